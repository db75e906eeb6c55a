package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/noah-isme/backend-checkout/internal/common"
)

// Handler exposes read-only catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Info handles GET /api/v1/catalog and describes the loaded catalog.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.service.Catalog() == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	c := h.service.Catalog()
	w.Header().Set("X-Catalog-Fingerprint", c.Fingerprint())
	common.Data(w, http.StatusOK, Info{
		Source:      h.service.Source(),
		LoadedAt:    h.service.LoadedAt(),
		Fingerprint: c.Fingerprint(),
		Items:       c.ItemCount(),
		Rules:       c.RuleCount(),
	})
}

// Items handles GET /api/v1/catalog/items.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.service.Catalog() == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 0)
	result := h.service.ListItems(page, limit)
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	w.Header().Set("X-Catalog-Fingerprint", h.service.Catalog().Fingerprint())
	common.JSON(w, http.StatusOK, common.Envelope{
		Data:       result.Items,
		Pagination: &common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total},
	})
}

// Rules handles GET /api/v1/catalog/rules.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.service.Catalog() == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	rules := h.service.ListRules()
	w.Header().Set("X-Total-Count", strconv.Itoa(len(rules)))
	w.Header().Set("X-Catalog-Fingerprint", h.service.Catalog().Fingerprint())
	common.Data(w, http.StatusOK, rules)
}

// Validate handles POST /api/v1/catalog/validate. The body is a catalog in
// text form; it is parsed but never installed.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	c, err := ParseReader(r.Body)
	if err != nil {
		common.WriteError(w, syntaxAppError(err))
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"items":       c.ItemCount(),
		"rules":       c.RuleCount(),
		"fingerprint": c.Fingerprint(),
	})
}

func syntaxAppError(err error) *common.AppError {
	details := map[string]any{"reason": err.Error()}
	var (
		syn     *SyntaxError
		ord     *OrderError
		dup     *DuplicateIDError
		tooLong *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLong):
		return common.NewAppError(common.CodeTooLarge, "request entity too large", http.StatusRequestEntityTooLarge, err).
			WithDetails(map[string]string{"maxBytes": strconv.FormatInt(tooLong.Limit, 10)})
	case errors.As(err, &syn):
		details["line"] = syn.Line
	case errors.As(err, &ord):
		details["line"] = ord.Line
		details["itemId"] = ord.ItemID
	case errors.As(err, &dup):
		details["line"] = dup.Line
		details["firstLine"] = dup.FirstLine
	default:
		return common.NewAppError(common.CodeBadRequest, "unable to read catalog", http.StatusBadRequest, err)
	}
	return common.NewAppError(common.CodeCatalogSyntax, "catalog is invalid", http.StatusUnprocessableEntity, err).
		WithDetails(details)
}
