// Package handler содержит HTTP-обработчики API биллинга гостиницы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-billing/internal/billing"
	"github.com/mmeshcher/hotel-billing/internal/middleware"
	"github.com/mmeshcher/hotel-billing/internal/model"
	"github.com/mmeshcher/hotel-billing/internal/store"
	"github.com/mmeshcher/hotel-billing/internal/validation"
)

const reportDateLayout = "2006-01-02"

// Service определяет контракт биллинга, используемый HTTP-обработчиками.
type Service interface {
	CreateInvoice(ctx context.Context, in billing.CreateInvoiceInput) (*model.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	FindInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error)
	ListInvoices(ctx context.Context) ([]model.Invoice, error)
	UpdateInvoice(ctx context.Context, id string, in billing.UpdateInvoiceInput) (*model.Invoice, error)
	DeleteInvoice(ctx context.Context, ids ...string) error
	ProcessPayment(ctx context.Context, id string, in billing.PaymentInput) (*model.Invoice, error)
	ProcessRefund(ctx context.Context, id string, in billing.RefundInput) (*model.Invoice, error)
	AddAdjustment(ctx context.Context, id string, in billing.AdjustmentInput) (*model.Invoice, error)
	GetTaxReport(ctx context.Context, start, end time.Time) (*model.TaxReport, error)
}

// Handler реализует HTTP-обработчики API биллинга.
type Handler struct {
	service Service
	logger  *zap.Logger
	auth    *middleware.AdminAuth
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metricsHandler может быть nil, тогда /metrics не публикуется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AdminAuth, metricsHandler http.Handler) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		auth:    auth,
		metrics: metricsHandler,
	}
}

type createBillRequest struct {
	GuestName         string              `json:"guestName"`
	ReservationID     string              `json:"reservationId"`
	RoomNumber        string              `json:"roomNumber"`
	RoomCharges       decimal.Decimal     `json:"roomCharges"`
	AdditionalCharges []decimal.Decimal   `json:"additionalCharges"`
	TaxRate           *decimal.Decimal    `json:"taxRate,omitempty"`
	PaymentStatus     model.PaymentStatus `json:"paymentStatus"`
	PaymentMethod     string              `json:"paymentMethod"`
	Notes             string              `json:"notes"`
}

type updateBillRequest struct {
	GuestName     *string `json:"guestName"`
	ReservationID *string `json:"reservationId"`
	RoomNumber    *string `json:"roomNumber"`
	PaymentMethod *string `json:"paymentMethod"`
	Notes         *string `json:"notes"`
}

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Method string           `json:"method"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type adjustmentRequest struct {
	Type   model.AdjustmentType `json:"type"`
	Amount decimal.Decimal      `json:"amount"`
	Reason string               `json:"reason"`
}

type billResponse struct {
	ID                string                  `json:"id"`
	InvoiceNumber     string                  `json:"invoiceNumber"`
	GuestName         string                  `json:"guestName"`
	ReservationID     string                  `json:"reservationId"`
	RoomNumber        string                  `json:"roomNumber"`
	RoomCharges       decimal.Decimal         `json:"roomCharges"`
	AdditionalCharges []decimal.Decimal       `json:"additionalCharges"`
	Subtotal          decimal.Decimal         `json:"subtotal"`
	TaxRate           decimal.Decimal         `json:"taxRate"`
	TaxAmount         decimal.Decimal         `json:"taxAmount"`
	TotalAmount       decimal.Decimal         `json:"totalAmount"`
	PaymentStatus     model.PaymentStatus     `json:"paymentStatus"`
	PaymentMethod     string                  `json:"paymentMethod"`
	Notes             string                  `json:"notes"`
	PaidAt            *string                 `json:"paidAt,omitempty"`
	RefundedAmount    *decimal.Decimal        `json:"refundedAmount,omitempty"`
	RefundReason      string                  `json:"refundReason,omitempty"`
	AdjustmentReason  string                  `json:"adjustmentReason,omitempty"`
	CreatedAt         string                  `json:"createdAt"`
	Version           int64                   `json:"version"`
	PaymentHistory    []model.PaymentEntry    `json:"paymentHistory"`
	Adjustments       []model.AdjustmentEntry `json:"adjustments"`
	Refunds           []model.RefundEntry     `json:"refunds"`
}

func newBillResponse(inv *model.Invoice) billResponse {
	resp := billResponse{
		ID:                inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		GuestName:         inv.GuestName,
		ReservationID:     inv.ReservationID,
		RoomNumber:        inv.RoomNumber,
		RoomCharges:       inv.RoomCharges,
		AdditionalCharges: inv.AdditionalCharges,
		Subtotal:          inv.Subtotal,
		TaxRate:           inv.TaxRate,
		TaxAmount:         inv.TaxAmount,
		TotalAmount:       inv.TotalAmount,
		PaymentStatus:     inv.PaymentStatus,
		PaymentMethod:     inv.PaymentMethod,
		Notes:             inv.Notes,
		RefundedAmount:    inv.RefundedAmount,
		RefundReason:      inv.RefundReason,
		AdjustmentReason:  inv.AdjustmentReason,
		CreatedAt:         inv.CreatedAt.Format(time.RFC3339),
		Version:           inv.Version,
		PaymentHistory:    inv.PaymentHistory,
		Adjustments:       inv.Adjustments,
		Refunds:           inv.Refunds,
	}
	if resp.AdditionalCharges == nil {
		resp.AdditionalCharges = []decimal.Decimal{}
	}
	if resp.PaymentHistory == nil {
		resp.PaymentHistory = []model.PaymentEntry{}
	}
	if resp.Adjustments == nil {
		resp.Adjustments = []model.AdjustmentEntry{}
	}
	if resp.Refunds == nil {
		resp.Refunds = []model.RefundEntry{}
	}
	if inv.PaidAt != nil {
		paidAt := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paidAt
	}
	return resp
}

// CreateBill выставляет новый счёт.
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), billing.CreateInvoiceInput{
		GuestName:         req.GuestName,
		ReservationID:     req.ReservationID,
		RoomNumber:        req.RoomNumber,
		RoomCharges:       req.RoomCharges,
		AdditionalCharges: req.AdditionalCharges,
		TaxRate:           req.TaxRate,
		PaymentStatus:     req.PaymentStatus,
		PaymentMethod:     req.PaymentMethod,
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeError(w, r, "create bill error", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newBillResponse(inv))
}

// ListBills возвращает все счета или счёт с указанным номером (?invoiceNumber=).
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	if number := r.URL.Query().Get("invoiceNumber"); number != "" {
		if !validation.IsValidInvoiceNumber(number) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		inv, err := h.service.FindInvoiceByNumber(r.Context(), number)
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			h.writeError(w, r, "find bill error", err)
			return
		}

		h.writeJSON(w, http.StatusOK, []billResponse{newBillResponse(inv)})
		return
	}

	bills, err := h.service.ListInvoices(r.Context())
	if err != nil {
		h.writeError(w, r, "list bills error", err)
		return
	}

	if len(bills) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]billResponse, 0, len(bills))
	for i := range bills {
		resp = append(resp, newBillResponse(&bills[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBill возвращает счёт по идентификатору.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get bill error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newBillResponse(inv))
}

// UpdateBill изменяет описательные поля счёта.
func (h *Handler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	var req updateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.UpdateInvoice(r.Context(), id, billing.UpdateInvoiceInput{
		GuestName:     req.GuestName,
		ReservationID: req.ReservationID,
		RoomNumber:    req.RoomNumber,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, "update bill error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newBillResponse(inv))
}

// DeleteBill удаляет счёт.
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteInvoice(r.Context(), id); err != nil {
		h.writeError(w, r, "delete bill error", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ProcessPayment принимает оплату по счёту. Без суммы счёт оплачивается полностью.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.ProcessPayment(r.Context(), id, billing.PaymentInput{
		Amount: req.Amount,
		Method: req.Method,
	})
	if err != nil {
		h.writeError(w, r, "process payment error", err)
		return
	}

	h.logger.Info("payment processed",
		zap.String("id", inv.ID),
		zap.String("status", string(inv.PaymentStatus)),
		zap.String("operator", operator(r)),
	)
	h.writeJSON(w, http.StatusOK, newBillResponse(inv))
}

// ProcessRefund оформляет возврат средств по счёту.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.ProcessRefund(r.Context(), id, billing.RefundInput{
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(w, r, "process refund error", err)
		return
	}

	h.logger.Info("refund processed",
		zap.String("id", inv.ID),
		zap.String("amount", req.Amount.String()),
		zap.String("operator", operator(r)),
	)
	h.writeJSON(w, http.StatusOK, newBillResponse(inv))
}

// AddAdjustment применяет скидку или надбавку к счёту.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(w, r)
	if !ok {
		return
	}

	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.AddAdjustment(r.Context(), id, billing.AdjustmentInput{
		Type:   req.Type,
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(w, r, "add adjustment error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newBillResponse(inv))
}

// GetTaxReport формирует налоговый отчёт за период start..end (даты YYYY-MM-DD, конец включительно).
func (h *Handler) GetTaxReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := time.Parse(reportDateLayout, q.Get("start"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	end, err := time.Parse(reportDateLayout, q.Get("end"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	end = end.Add(24*time.Hour - time.Nanosecond)

	report, err := h.service.GetTaxReport(r.Context(), start, end)
	if err != nil {
		h.writeError(w, r, "tax report error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func billID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validation.IsValidBillID(id) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return "", false
	}
	return id, true
}

func operator(r *http.Request) string {
	if op, ok := middleware.GetOperatorFromContext(r.Context()); ok {
		return op
	}
	return "anonymous"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибки биллинга в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var rejected *store.RejectedError

	switch {
	case errors.Is(err, billing.ErrInvoiceNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidTaxRate),
		errors.Is(err, billing.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, billing.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, billing.ErrInvoiceRefunded),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrConcurrentUpdate),
		errors.Is(err, store.ErrDuplicate):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &rejected):
		http.Error(w, rejected.Message, http.StatusUnprocessableEntity)
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("uri", r.RequestURI))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
