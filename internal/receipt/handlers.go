package receipt

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-checkout/internal/common"
)

// Handler serves stored receipts.
type Handler struct {
	Store Store
}

// Get returns the receipt named by the {id} URL parameter.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "receipts are not enabled", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid receipt id", nil)
		return
	}
	rec, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "receipt not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rec)
}
