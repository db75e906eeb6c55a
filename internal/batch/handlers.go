package batch

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/common"
)

// Handler exposes batch submission and status over HTTP.
type Handler struct {
	Submitter *Submitter
	Store     *Store
}

func (h *Handler) enabled() bool {
	return h != nil && h.Submitter != nil && h.Store != nil
}

// Create enqueues the batch in the request body and answers 202.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.enabled() {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "batch pricing requires redis", nil)
		return
	}
	var req Request
	if err := checkout.DecodeJSON(r.Body, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Submitter.Submit(r.Context(), req)
	if err != nil {
		common.WriteError(w, checkout.Classify(err))
		return
	}
	w.Header().Set("Location", "/api/v1/checkout/batches/"+b.ID)
	common.Data(w, http.StatusAccepted, b)
}

// Get reports the state of the batch named by the {id} URL parameter.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.enabled() {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInternal, "batch pricing requires redis", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid batch id", nil)
		return
	}
	b, err := h.Store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "batch not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b)
}
