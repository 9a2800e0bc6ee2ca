package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/checkout-pricing/internal/common"
)

// Handler exposes catalog administration endpoints.
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

// List handles GET /api/v1/catalog/items.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":   h.service.Records(r.Context()),
		"strict": h.service.Strict(),
	})
}

// Put handles PUT /api/v1/catalog/items/{id}. Existing entries are overwritten.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be a catalog record", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if rec.ID == "" {
		rec.ID = id
	}
	if strings.TrimSpace(rec.ID) != id {
		common.JSONError(w, http.StatusBadRequest, "ID_MISMATCH", "record id does not match path", map[string]string{"path": id, "body": rec.ID})
		return
	}
	if err := h.service.Upsert(r.Context(), rec); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rec)
}

// Replace handles POST /api/v1/catalog, swapping in a whole catalog.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	records, err := Decode(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}
	if err := h.service.Replace(r.Context(), records); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]int{"items": len(records)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var recErr *RecordError
	switch {
	case errors.As(err, &recErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CATALOG", recErr.Error(), recErr.Fields)
	case errors.Is(err, ErrInvalidRecord):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CATALOG", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
