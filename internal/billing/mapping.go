package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/hotel-billing/internal/model"
	"github.com/mmeshcher/hotel-billing/internal/store"
)

// Table содержит имя таблицы счетов во внешнем хранилище.
const Table = "billing_c"

// InvoiceNumberField содержит имя уникального поля с номером счёта.
const InvoiceNumberField = fieldInvoiceNumber

// Имена полей счёта во внешнем хранилище.
const (
	fieldGuestName         = "Guest_Name__c"
	fieldReservation       = "Reservation__c"
	fieldRoomNumber        = "Room_Number__c"
	fieldRoomCharges       = "Room_Charges__c"
	fieldAdditionalCharges = "Additional_Charges__c"
	fieldSubtotal          = "Subtotal__c"
	fieldTaxRate           = "Tax_Rate__c"
	fieldTaxAmount         = "Tax_Amount__c"
	fieldTotalAmount       = "Total_Amount__c"
	fieldPaymentStatus     = "Payment_Status__c"
	fieldPaymentMethod     = "Payment_Method__c"
	fieldInvoiceNumber     = "Invoice_Number__c"
	fieldNotes             = "Notes__c"
	fieldPaidAt            = "Paid_At__c"
	fieldRefundedAmount    = "Refunded_Amount__c"
	fieldRefundReason      = "Refund_Reason__c"
	fieldAdjustmentReason  = "Adjustment_Reason__c"
	fieldAdjustments       = "Adjustments__c"
	fieldRefunds           = "Refunds__c"
	fieldPaymentHistory    = "Payment_History__c"
)

// toStore переводит счёт в поля внешнего хранилища.
func toStore(inv *model.Invoice) (map[string]any, error) {
	fields := map[string]any{
		fieldGuestName:         inv.GuestName,
		fieldReservation:       inv.ReservationID,
		fieldRoomNumber:        inv.RoomNumber,
		fieldRoomCharges:       inv.RoomCharges,
		fieldAdditionalCharges: joinCharges(inv.AdditionalCharges),
		fieldSubtotal:          inv.Subtotal,
		fieldTaxRate:           inv.TaxRate,
		fieldTaxAmount:         inv.TaxAmount,
		fieldTotalAmount:       inv.TotalAmount,
		fieldPaymentStatus:     string(inv.PaymentStatus),
		fieldPaymentMethod:     inv.PaymentMethod,
		fieldInvoiceNumber:     inv.InvoiceNumber,
		fieldNotes:             inv.Notes,
	}

	if inv.PaidAt != nil {
		fields[fieldPaidAt] = inv.PaidAt.UTC().Format(time.RFC3339Nano)
	}
	if inv.RefundedAmount != nil {
		fields[fieldRefundedAmount] = *inv.RefundedAmount
	}
	if inv.RefundReason != "" {
		fields[fieldRefundReason] = inv.RefundReason
	}
	if inv.AdjustmentReason != "" {
		fields[fieldAdjustmentReason] = inv.AdjustmentReason
	}

	ledgers := []struct {
		field string
		value any
	}{
		{fieldPaymentHistory, inv.PaymentHistory},
		{fieldAdjustments, inv.Adjustments},
		{fieldRefunds, inv.Refunds},
	}
	for _, l := range ledgers {
		raw, err := encodeLedger(l.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", l.field, err)
		}
		fields[l.field] = raw
	}

	return fields, nil
}

// fromStore собирает счёт из записи хранилища, подставляя значения по умолчанию для отсутствующих полей.
func fromStore(rec store.Record, defaultTaxRate decimal.Decimal) *model.Invoice {
	f := rec.Fields

	inv := &model.Invoice{
		ID:                rec.ID,
		GuestName:         stringField(f[fieldGuestName]),
		ReservationID:     referenceField(f[fieldReservation]),
		RoomNumber:        stringField(f[fieldRoomNumber]),
		RoomCharges:       decimalField(f[fieldRoomCharges]),
		AdditionalCharges: parseCharges(f[fieldAdditionalCharges]),
		Subtotal:          decimalField(f[fieldSubtotal]),
		TaxRate:           decimalField(f[fieldTaxRate]),
		TaxAmount:         decimalField(f[fieldTaxAmount]),
		TotalAmount:       decimalField(f[fieldTotalAmount]),
		PaymentStatus:     model.PaymentStatus(stringField(f[fieldPaymentStatus])),
		PaymentMethod:     stringField(f[fieldPaymentMethod]),
		InvoiceNumber:     stringField(f[fieldInvoiceNumber]),
		Notes:             stringField(f[fieldNotes]),
		RefundReason:      stringField(f[fieldRefundReason]),
		AdjustmentReason:  stringField(f[fieldAdjustmentReason]),
		CreatedAt:         rec.CreatedAt,
		Version:           rec.Version,
	}

	if inv.TaxRate.IsZero() {
		inv.TaxRate = defaultTaxRate
	}
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = model.PaymentStatusPending
	}
	if ts, ok := timeField(f[fieldPaidAt]); ok {
		inv.PaidAt = &ts
	}
	if v, ok := store.ToDecimal(f[fieldRefundedAmount]); ok {
		inv.RefundedAmount = &v
	}

	inv.PaymentHistory = decodeLedger[model.PaymentEntry](f[fieldPaymentHistory])
	inv.Adjustments = decodeLedger[model.AdjustmentEntry](f[fieldAdjustments])
	inv.Refunds = decodeLedger[model.RefundEntry](f[fieldRefunds])

	return inv
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// referenceField читает ссылку на связанную запись: либо объект с Id, либо сам идентификатор.
func referenceField(v any) string {
	if m, ok := v.(map[string]any); ok {
		return stringField(m["Id"])
	}
	return stringField(v)
}

func decimalField(v any) decimal.Decimal {
	d, ok := store.ToDecimal(v)
	if !ok {
		return decimal.Zero
	}
	return d
}

func timeField(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func joinCharges(charges []decimal.Decimal) string {
	parts := make([]string, 0, len(charges))
	for _, c := range charges {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// parseCharges разбирает список дополнительных начислений. Нечисловые элементы отбрасываются.
func parseCharges(v any) []decimal.Decimal {
	res := []decimal.Decimal{}

	switch c := v.(type) {
	case nil:
	case string:
		for _, part := range strings.Split(c, ",") {
			if d, ok := store.ToDecimal(part); ok {
				res = append(res, d)
			}
		}
	case []any:
		for _, item := range c {
			if d, ok := store.ToDecimal(item); ok {
				res = append(res, d)
			}
		}
	default:
		if d, ok := store.ToDecimal(c); ok {
			res = append(res, d)
		}
	}

	return res
}

func encodeLedger(entries any) (string, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodeLedger разбирает журнал операций. Повреждённый журнал читается как пустой.
func decodeLedger[T any](v any) []T {
	res := []T{}

	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return res
	}

	if len(raw) == 0 {
		return res
	}
	if err := json.Unmarshal(raw, &res); err != nil || res == nil {
		return []T{}
	}
	return res
}
