package invoices

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/shared"
)

// Handler exposes the invoice API.
type Handler struct {
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the invoice endpoints. The payment ledger router, when
// given, is nested under each invoice.
func (h *Handler) Routes(payments chi.Router) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/export", h.exportCSV)
	r.Post("/progress", h.createProgress)
	r.Post("/job-completions", h.jobCompletion)
	r.Route("/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Put("/items", h.syncItems)
		r.Post("/status", h.markStatus)
		if payments != nil {
			r.Mount("/payments", payments)
		}
	})
	return r
}

// companyID reads the tenant scope every request must carry.
func companyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Company-ID"), 10, 64)
	return id, err == nil && id > 0
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func invoiceID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	return id, err == nil && id > 0
}

// respondError maps the billing error taxonomy onto problem responses.
func respondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErrs.Error())
	case errors.Is(err, billing.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, billing.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, billing.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, billing.ErrDeletionForbidden):
		httpx.Problem(w, http.StatusForbidden, "Deletion Forbidden", err.Error())
	case errors.Is(err, billing.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type invoiceResponse struct {
	Invoice *Invoice      `json:"invoice"`
	Items   []InvoiceItem `json:"items,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, items, err := h.service.Create(r.Context(), company, actorID(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse{Invoice: inv, Items: items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	id, ok := invoiceID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, items, err := h.service.Get(r.Context(), company, id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv, Items: items})
}

func listFilterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{Status: InvoiceStatus(q.Get("status"))}
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	filter.JobID, _ = strconv.ParseInt(q.Get("job_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if from, err := time.Parse("2006-01-02", q.Get("issued_from")); err == nil {
		filter.IssuedFrom = &from
	}
	if to, err := time.Parse("2006-01-02", q.Get("issued_to")); err == nil {
		filter.IssuedTo = &to
	}
	return filter
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	invs, page, err := h.service.List(r.Context(), company, listFilterFromQuery(r))
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invs,
		"pagination": page,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	id, ok := invoiceID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, err := h.service.Update(r.Context(), company, id, actorID(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	id, ok := invoiceID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	if err := h.service.Delete(r.Context(), company, id, actorID(r)); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) syncItems(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	id, ok := invoiceID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req SyncItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, items, err := h.service.SyncItems(r.Context(), company, id, actorID(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv, Items: items})
}

func (h *Handler) markStatus(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	id, ok := invoiceID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req MarkStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, err := h.service.MarkStatus(r.Context(), company, id, actorID(r), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv})
}

func (h *Handler) createProgress(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	var req CreateProgressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, items, err := h.service.CreateProgressInvoice(r.Context(), company, actorID(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse{Invoice: inv, Items: items})
}

func (h *Handler) jobCompletion(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	var jc JobCompletion
	if err := httpx.DecodeJSON(r, &jc); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	inv, created, err := h.service.EnsureForJobCompletion(r.Context(), company, actorID(r), jc)
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, invoiceResponse{Invoice: inv})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.csv"`)
	if err := h.service.ExportCSV(r.Context(), w, company, listFilterFromQuery(r)); err != nil {
		// Headers may already be out; log-and-abort is all that is left.
		h.service.logger.Error("invoice export failed", "error", err)
	}
}
