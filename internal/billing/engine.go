// Package billing реализует расчёт счетов гостиницы: налоги, оплаты, возвраты,
// корректировки и налоговую отчётность.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-billing/internal/metrics"
	"github.com/mmeshcher/hotel-billing/internal/model"
	"github.com/mmeshcher/hotel-billing/internal/store"
)

// DefaultTaxRate задаёт налоговую ставку по умолчанию в процентах.
var DefaultTaxRate = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine содержит бизнес-логику биллинга поверх внешнего хранилища записей.
type Engine struct {
	store          store.RecordStore
	logger         *zap.Logger
	clock          Clock
	defaultTaxRate decimal.Decimal
	strictReports  bool
	metrics        *metrics.Billing
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock задаёт источник времени.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDefaultTaxRate задаёт ставку, применяемую к счетам без явной ставки.
func WithDefaultTaxRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.defaultTaxRate = rate }
}

// WithStrictReports включает возврат ошибок хранилища из GetTaxReport вместо пустого отчёта.
func WithStrictReports(strict bool) Option {
	return func(e *Engine) { e.strictReports = strict }
}

// WithMetrics подключает счётчики операций.
func WithMetrics(m *metrics.Billing) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine создаёт движок биллинга с указанным хранилищем.
func NewEngine(s store.RecordStore, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:          s,
		logger:         logger.Named("billing"),
		clock:          systemClock{},
		defaultTaxRate: DefaultTaxRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInvoiceInput содержит данные для выставления счёта.
type CreateInvoiceInput struct {
	GuestName         string
	ReservationID     string
	RoomNumber        string
	RoomCharges       decimal.Decimal
	AdditionalCharges []decimal.Decimal
	// TaxRate в процентах. nil или ноль означают ставку по умолчанию.
	TaxRate       *decimal.Decimal
	PaymentStatus model.PaymentStatus
	PaymentMethod string
	Notes         string
}

// CreateInvoice рассчитывает суммы, присваивает номер и сохраняет новый счёт.
func (e *Engine) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*model.Invoice, error) {
	if in.RoomCharges.IsNegative() {
		return nil, fmt.Errorf("%w: room charges %s", ErrInvalidAmount, in.RoomCharges)
	}
	for _, c := range in.AdditionalCharges {
		if c.IsNegative() {
			return nil, fmt.Errorf("%w: additional charge %s", ErrInvalidAmount, c)
		}
	}

	taxRate := e.defaultTaxRate
	if in.TaxRate != nil {
		if in.TaxRate.IsNegative() {
			return nil, ErrInvalidTaxRate
		}
		if !in.TaxRate.IsZero() {
			taxRate = *in.TaxRate
		}
	}

	status := in.PaymentStatus
	if status == "" {
		status = model.PaymentStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	subtotal := in.RoomCharges
	for _, c := range in.AdditionalCharges {
		subtotal = subtotal.Add(c)
	}
	taxAmount, totalAmount := computeTotals(subtotal, taxRate)

	now := e.clock.Now()
	inv := &model.Invoice{
		GuestName:         in.GuestName,
		ReservationID:     in.ReservationID,
		RoomNumber:        in.RoomNumber,
		RoomCharges:       in.RoomCharges,
		AdditionalCharges: in.AdditionalCharges,
		Subtotal:          subtotal,
		TaxRate:           taxRate,
		TaxAmount:         taxAmount,
		TotalAmount:       totalAmount,
		PaymentStatus:     status,
		PaymentMethod:     in.PaymentMethod,
		InvoiceNumber:     GenerateInvoiceNumber(now),
		Notes:             in.Notes,
	}
	if status == model.PaymentStatusPaid {
		inv.PaidAt = &now
	}

	fields, err := toStore(inv)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.Create(ctx, Table, fields)
	if err != nil {
		e.logger.Error("create bill error", zap.Error(err), zap.String("invoice", inv.InvoiceNumber))
		return nil, fmt.Errorf("create bill: %w", err)
	}

	e.metrics.InvoiceCreated()

	return fromStore(rec, e.defaultTaxRate), nil
}

// GetInvoice возвращает счёт по идентификатору.
func (e *Engine) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	rec, err := e.store.Get(ctx, Table, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvoiceNotFound
		}
		e.logger.Error("get bill error", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("get bill %s: %w", id, err)
	}
	return fromStore(rec, e.defaultTaxRate), nil
}

// ListInvoices возвращает все счета, новые первыми.
func (e *Engine) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	recs, err := e.store.Query(ctx, Table, store.Query{
		OrderBy: []store.Order{{Field: store.CreatedDateField, Desc: true}},
	})
	if err != nil {
		e.logger.Error("list bills error", zap.Error(err))
		return nil, fmt.Errorf("list bills: %w", err)
	}

	res := make([]model.Invoice, 0, len(recs))
	for _, rec := range recs {
		res = append(res, *fromStore(rec, e.defaultTaxRate))
	}
	return res, nil
}

// FindInvoiceByNumber ищет счёт по номеру счёта.
func (e *Engine) FindInvoiceByNumber(ctx context.Context, number string) (*model.Invoice, error) {
	recs, err := e.store.Query(ctx, Table, store.Query{
		Where: []store.Condition{store.Where(fieldInvoiceNumber, store.OpEqualTo, number)},
	})
	if err != nil {
		e.logger.Error("find bill error", zap.Error(err), zap.String("invoice", number))
		return nil, fmt.Errorf("find bill %s: %w", number, err)
	}
	if len(recs) == 0 {
		return nil, ErrInvoiceNotFound
	}
	return fromStore(recs[0], e.defaultTaxRate), nil
}

// UpdateInvoiceInput содержит изменяемые описательные поля счёта. nil означает «не менять».
type UpdateInvoiceInput struct {
	GuestName     *string
	ReservationID *string
	RoomNumber    *string
	PaymentMethod *string
	Notes         *string
}

// UpdateInvoice изменяет описательные поля счёта. Денежные поля меняются только через
// оплаты, возвраты и корректировки.
func (e *Engine) UpdateInvoice(ctx context.Context, id string, in UpdateInvoiceInput) (*model.Invoice, error) {
	fields := map[string]any{}
	set := func(field string, v *string) {
		if v != nil {
			fields[field] = *v
		}
	}
	set(fieldGuestName, in.GuestName)
	set(fieldReservation, in.ReservationID)
	set(fieldRoomNumber, in.RoomNumber)
	set(fieldPaymentMethod, in.PaymentMethod)
	set(fieldNotes, in.Notes)

	if len(fields) == 0 {
		return e.GetInvoice(ctx, id)
	}

	return e.write(ctx, id, 0, fields)
}

// DeleteInvoice удаляет счета. Связанные записи не затрагиваются.
func (e *Engine) DeleteInvoice(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := e.store.Delete(ctx, Table, ids...); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvoiceNotFound
		}
		e.logger.Error("delete bill error", zap.Error(err), zap.Strings("ids", ids))
		return fmt.Errorf("delete bill: %w", err)
	}
	return nil
}

// PaymentInput описывает оплату счёта. Amount == nil означает оплату полной суммы.
type PaymentInput struct {
	Amount *decimal.Decimal
	Method string
}

// ProcessPayment применяет оплату к счёту. Сумма каждой оплаты сравнивается с полной
// суммой счёта независимо от предыдущих оплат.
func (e *Engine) ProcessPayment(ctx context.Context, id string, in PaymentInput) (*model.Invoice, error) {
	if in.Amount != nil && in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: payment %s", ErrInvalidAmount, in.Amount)
	}

	inv, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.PaymentStatus == model.PaymentStatusRefunded {
		return nil, ErrInvoiceRefunded
	}

	paid := inv.TotalAmount
	if in.Amount != nil {
		paid = *in.Amount
	}
	status := paymentStatusFor(paid, inv.TotalAmount)

	if status.Rank() < inv.PaymentStatus.Rank() {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.PaymentStatus, status)
	}

	now := e.clock.Now()
	history := append(inv.PaymentHistory, model.PaymentEntry{
		Amount:    paid,
		Method:    in.Method,
		Status:    status,
		CreatedAt: now.UTC(),
	})
	rawHistory, err := encodeLedger(history)
	if err != nil {
		return nil, fmt.Errorf("encode payment history: %w", err)
	}

	fields := map[string]any{
		fieldPaymentStatus:  string(status),
		fieldPaymentMethod:  in.Method,
		fieldPaymentHistory: rawHistory,
	}
	if status == model.PaymentStatusPaid {
		fields[fieldPaidAt] = now.UTC().Format(time.RFC3339Nano)
	}

	updated, err := e.write(ctx, id, inv.Version, fields)
	if err != nil {
		return nil, err
	}

	e.metrics.PaymentProcessed(string(status))

	return updated, nil
}

// RefundInput описывает возврат средств.
type RefundInput struct {
	Amount decimal.Decimal
	Reason string
}

// ProcessRefund переводит счёт в статус Refunded. Сумма возврата не сверяется с оплаченной.
func (e *Engine) ProcessRefund(ctx context.Context, id string, in RefundInput) (*model.Invoice, error) {
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: refund %s", ErrInvalidAmount, in.Amount)
	}

	inv, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	refunds := append(inv.Refunds, model.RefundEntry{
		Amount:    in.Amount,
		Reason:    in.Reason,
		CreatedAt: e.clock.Now().UTC(),
	})
	rawRefunds, err := encodeLedger(refunds)
	if err != nil {
		return nil, fmt.Errorf("encode refunds: %w", err)
	}

	updated, err := e.write(ctx, id, inv.Version, map[string]any{
		fieldPaymentStatus:  string(model.PaymentStatusRefunded),
		fieldRefundedAmount: in.Amount,
		fieldRefundReason:   in.Reason,
		fieldRefunds:        rawRefunds,
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RefundProcessed()

	return updated, nil
}

// AdjustmentInput описывает корректировку суммы счёта. Любой тип, кроме discount, увеличивает сумму.
type AdjustmentInput struct {
	Type   model.AdjustmentType
	Amount decimal.Decimal
	Reason string
}

// AddAdjustment применяет скидку или надбавку и пересчитывает налог и итог по текущей ставке.
// Промежуточный итог может стать отрицательным.
func (e *Engine) AddAdjustment(ctx context.Context, id string, in AdjustmentInput) (*model.Invoice, error) {
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: adjustment %s", ErrInvalidAmount, in.Amount)
	}
	if in.Type == "" {
		in.Type = model.AdjustmentSurcharge
	}

	inv, err := e.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	kind := model.AdjustmentSurcharge
	signed := in.Amount
	if in.Type == model.AdjustmentDiscount {
		kind = model.AdjustmentDiscount
		signed = signed.Neg()
	}
	subtotal := inv.Subtotal.Add(signed)
	taxAmount, totalAmount := computeTotals(subtotal, inv.TaxRate)

	adjustments := append(inv.Adjustments, model.AdjustmentEntry{
		Type:      in.Type,
		Amount:    in.Amount,
		Reason:    in.Reason,
		CreatedAt: e.clock.Now().UTC(),
	})
	rawAdjustments, err := encodeLedger(adjustments)
	if err != nil {
		return nil, fmt.Errorf("encode adjustments: %w", err)
	}

	updated, err := e.write(ctx, id, inv.Version, map[string]any{
		fieldSubtotal:         subtotal,
		fieldTaxAmount:        taxAmount,
		fieldTotalAmount:      totalAmount,
		fieldAdjustmentReason: in.Reason,
		fieldAdjustments:      rawAdjustments,
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AdjustmentAdded(string(kind))

	return updated, nil
}

// GetTaxReport агрегирует оплаченные счета, созданные в периоде [start, end].
// При ошибке хранилища возвращается пустой отчёт, если не включён строгий режим.
func (e *Engine) GetTaxReport(ctx context.Context, start, end time.Time) (*model.TaxReport, error) {
	if start.After(end) {
		return nil, ErrInvalidPeriod
	}

	recs, err := e.store.Query(ctx, Table, store.Query{
		Where: []store.Condition{
			store.Where(fieldPaymentStatus, store.OpEqualTo, string(model.PaymentStatusPaid)),
			store.Where(store.CreatedDateField, store.OpGreaterThanOrEqualTo, start),
			store.Where(store.CreatedDateField, store.OpLessThanOrEqualTo, end),
		},
		OrderBy: []store.Order{{Field: store.CreatedDateField}},
	})
	if err != nil {
		e.metrics.ReportFailed()
		if e.strictReports {
			e.logger.Error("tax report error", zap.Error(err))
			return nil, fmt.Errorf("tax report: %w", err)
		}
		e.logger.Warn("tax report degraded to empty result", zap.Error(err))
		return model.EmptyTaxReport(), nil
	}

	report := model.EmptyTaxReport()
	rateSum := decimal.Zero
	for _, rec := range recs {
		inv := fromStore(rec, e.defaultTaxRate)

		report.TotalTaxCollected = report.TotalTaxCollected.Add(inv.TaxAmount)
		report.TotalRevenue = report.TotalRevenue.Add(inv.Subtotal)
		rateSum = rateSum.Add(inv.TaxRate)

		report.Bills = append(report.Bills, model.TaxReportLine{
			ID:            inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			GuestName:     inv.GuestName,
			Subtotal:      inv.Subtotal,
			TaxRate:       inv.TaxRate,
			TaxAmount:     inv.TaxAmount,
			TotalAmount:   inv.TotalAmount,
			CreatedAt:     inv.CreatedAt,
		})
	}

	report.BillCount = len(report.Bills)
	if report.BillCount > 0 {
		report.AverageTaxRate = rateSum.Div(decimal.NewFromInt(int64(report.BillCount)))
	}

	return report, nil
}

// write сохраняет поля счёта и переводит ошибки хранилища в ошибки биллинга.
func (e *Engine) write(ctx context.Context, id string, version int64, fields map[string]any) (*model.Invoice, error) {
	rec, err := e.store.Update(ctx, Table, id, version, fields)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrInvoiceNotFound
		case errors.Is(err, store.ErrVersionConflict):
			e.logger.Warn("concurrent bill update", zap.String("id", id), zap.Int64("version", version))
			return nil, ErrConcurrentUpdate
		}
		e.logger.Error("update bill error", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("update bill %s: %w", id, err)
	}
	return fromStore(rec, e.defaultTaxRate), nil
}

func computeTotals(subtotal, taxRate decimal.Decimal) (taxAmount, totalAmount decimal.Decimal) {
	taxAmount = subtotal.Mul(taxRate).Div(hundred)
	return taxAmount, subtotal.Add(taxAmount)
}

func paymentStatusFor(paid, total decimal.Decimal) model.PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return model.PaymentStatusPaid
	case paid.IsPositive():
		return model.PaymentStatusPartial
	default:
		return model.PaymentStatusPending
	}
}

// GenerateInvoiceNumber формирует номер счёта вида INV-YYYYMMDD-NNNN, где NNNN это
// последние четыре цифры времени в миллисекундах.
func GenerateInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%04d", now.Format("20060102"), now.UnixMilli()%10000)
}
