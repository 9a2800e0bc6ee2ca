package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/checkout-pricing/internal/catalog"
	"github.com/noah-isme/checkout-pricing/internal/common"
	"github.com/noah-isme/checkout-pricing/internal/obs"
	"github.com/noah-isme/checkout-pricing/internal/pricing"
)

// ScanInput is the body of a scan request. Qty defaults to one.
type ScanInput struct {
	SKU string `json:"sku" validate:"required,max=64"`
	Qty int    `json:"qty" validate:"omitempty,min=1,max=1000"`
}

// Handler exposes checkout session endpoints.
type Handler struct {
	Svc      *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler around svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Routes mounts the session endpoints. scan wraps the scan route, e.g. with
// rate limiting and idempotency.
func (h *Handler) Routes(r chi.Router, scan ...func(http.Handler) http.Handler) {
	r.Post("/", h.Open)
	r.Route("/{"+obs.SessionParam+"}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(scan...).Post("/scan", h.Scan)
		r.Get("/quote", h.Quote)
		r.Post("/close", h.Close)
	})
}

// Open handles POST /api/v1/checkouts.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sess, err := h.Svc.Open(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+sess.ID)
	common.Data(w, http.StatusCreated, sess)
}

// Get handles GET /api/v1/checkouts/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, obs.SessionParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// Scan handles POST /api/v1/checkouts/{sessionID}/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var in ScanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid payload", nil)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid scan", validationDetails(err))
		return
	}
	if in.Qty == 0 {
		in.Qty = 1
	}
	sess, err := h.Svc.Scan(r.Context(), chi.URLParam(r, obs.SessionParam), in.SKU, in.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// Quote handles GET /api/v1/checkouts/{sessionID}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Svc.Quote(r.Context(), chi.URLParam(r, obs.SessionParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, receipt)
}

// Close handles POST /api/v1/checkouts/{sessionID}/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Svc.Close(r.Context(), chi.URLParam(r, obs.SessionParam))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, receipt)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrSessionClosed):
		common.JSONError(w, http.StatusConflict, "SESSION_CLOSED", err.Error(), nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, catalog.ErrCatalogNotLoaded):
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_NOT_LOADED", err.Error(), nil)
	case errors.Is(err, pricing.ErrUnknownIdentifier),
		errors.Is(err, pricing.ErrInvalidPromotion),
		errors.Is(err, pricing.ErrNegativePriceOrTax):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRICING_FAILED", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
