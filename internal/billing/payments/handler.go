package payments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/billing/invoices"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/shared"
)

// Handler exposes the payment ledger API, nested under an invoice.
type Handler struct {
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the ledger endpoints; the parent router supplies the
// invoiceID parameter.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.record)
	r.Get("/", h.list)
	r.Delete("/{paymentID}", h.delete)
	return r
}

func headerID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(name), 10, 64)
	return id, err == nil && id > 0
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func respondError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErrs.Error())
	case errors.Is(err, billing.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, billing.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, billing.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, billing.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "invoice is being updated, retry shortly")
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type paymentResponse struct {
	Payment *Payment          `json:"payment,omitempty"`
	Invoice *invoices.Invoice `json:"invoice"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	company, ok := headerID(r, "X-Company-ID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	invID, ok := urlID(r, "invoiceID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	actor, _ := headerID(r, "X-Actor-ID")
	payment, inv, err := h.service.RecordPayment(r.Context(), company, invID, actor, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{Payment: payment, Invoice: inv})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	company, ok := headerID(r, "X-Company-ID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	invID, ok := urlID(r, "invoiceID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	ledger, err := h.service.ListPayments(r.Context(), company, invID)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": ledger})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	company, ok := headerID(r, "X-Company-ID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "X-Company-ID header required")
		return
	}
	invID, ok := urlID(r, "invoiceID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	paymentID, ok := urlID(r, "paymentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	actor, _ := headerID(r, "X-Actor-ID")
	inv, err := h.service.DeletePayment(r.Context(), company, invID, paymentID, actor)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paymentResponse{Invoice: inv})
}
