package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/backend-checkout/internal/common"
)

// Handler wires the checkout service to HTTP.
type Handler struct {
	Svc *Service
}

// Quote prices the basket in the request body.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var req QuoteRequest
	if err := DecodeJSON(r.Body, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), req)
	if err != nil {
		common.WriteError(w, Classify(err))
		return
	}
	common.Data(w, http.StatusOK, q)
}

// DecodeJSON reads a single JSON object from body, rejecting unknown fields.
func DecodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return common.NewAppError(common.CodeBadRequest, "request body is required", http.StatusBadRequest, err)
		}
		return common.NewAppError(common.CodeBadRequest, "invalid JSON body", http.StatusBadRequest, err).
			WithDetails(map[string]string{"error": err.Error()})
	}
	if dec.More() {
		return common.NewAppError(common.CodeBadRequest, "request body must contain a single JSON object", http.StatusBadRequest, nil)
	}
	return nil
}
