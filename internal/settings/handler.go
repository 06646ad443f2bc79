package settings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

// Handler exposes the invoicing configuration API.
type Handler struct {
	repo     *Repository
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo, validate: validator.New()}
}

// Routes mounts the settings endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/invoicing", h.get)
	r.Put("/invoicing", h.update)
	return r
}

type invoiceConfigPayload struct {
	TermsCode      string  `json:"terms_code" validate:"max=100"`
	DueDays        *int    `json:"due_days" validate:"omitempty,gte=0,lte=365"`
	TaxRatePercent float64 `json:"tax_rate_percent" validate:"gte=0,lte=100"`
	InvoicePrefix  string  `json:"invoice_prefix" validate:"max=10"`
}

func companyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Company-ID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	cfg, err := h.repo.GetInvoiceConfig(r.Context(), company)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no invoicing settings for company")
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"terms_code":          cfg.TermsCode,
		"due_days":            cfg.DueDays,
		"tax_rate_percent":    cfg.TaxRatePercent,
		"invoice_prefix":      cfg.InvoicePrefix,
		"next_invoice_number": cfg.NextInvoiceNumber,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	var payload invoiceConfigPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	prefix := payload.InvoicePrefix
	if prefix == "" {
		prefix = "INV"
	}
	err := h.repo.UpdateInvoiceConfig(r.Context(), InvoiceConfig{
		CompanyID:      company,
		TermsCode:      payload.TermsCode,
		DueDays:        payload.DueDays,
		TaxRatePercent: payload.TaxRatePercent,
		InvoicePrefix:  prefix,
	})
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
