// Package model содержит доменные сущности биллинга гостиницы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает статус оплаты счёта.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPartial  PaymentStatus = "Partial"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

// Rank возвращает порядковый номер статуса в жизненном цикле счёта.
func (s PaymentStatus) Rank() int {
	switch s {
	case PaymentStatusPartial:
		return 1
	case PaymentStatusPaid:
		return 2
	case PaymentStatusRefunded:
		return 3
	default:
		return 0
	}
}

// Valid сообщает, является ли статус одним из известных значений.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// AdjustmentType описывает вид корректировки счёта.
type AdjustmentType string

const (
	AdjustmentDiscount  AdjustmentType = "discount"
	AdjustmentSurcharge AdjustmentType = "surcharge"
)

// Invoice описывает счёт гостя за проживание.
type Invoice struct {
	ID                string
	GuestName         string
	ReservationID     string
	RoomNumber        string
	RoomCharges       decimal.Decimal
	AdditionalCharges []decimal.Decimal
	Subtotal          decimal.Decimal
	TaxRate           decimal.Decimal
	TaxAmount         decimal.Decimal
	TotalAmount       decimal.Decimal
	PaymentStatus     PaymentStatus
	PaymentMethod     string
	InvoiceNumber     string
	Notes             string
	PaidAt            *time.Time
	RefundedAmount    *decimal.Decimal
	RefundReason      string
	AdjustmentReason  string
	CreatedAt         time.Time
	Version           int64

	PaymentHistory []PaymentEntry
	Adjustments    []AdjustmentEntry
	Refunds        []RefundEntry
}

// PaymentEntry описывает одну попытку оплаты счёта.
type PaymentEntry struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AdjustmentEntry описывает скидку или надбавку к счёту.
type AdjustmentEntry struct {
	Type      AdjustmentType  `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RefundEntry описывает возврат средств по счёту.
type RefundEntry struct {
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}

// TaxReportLine содержит данные одного оплаченного счёта в налоговом отчёте.
type TaxReportLine struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	GuestName     string          `json:"guestName"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TaxReport содержит агрегаты по налогам за период.
type TaxReport struct {
	TotalTaxCollected decimal.Decimal `json:"totalTaxCollected"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	BillCount         int             `json:"billCount"`
	AverageTaxRate    decimal.Decimal `json:"averageTaxRate"`
	Bills             []TaxReportLine `json:"bills"`
}

// EmptyTaxReport возвращает отчёт с нулевыми агрегатами и пустым списком счетов.
func EmptyTaxReport() *TaxReport {
	return &TaxReport{
		TotalTaxCollected: decimal.Zero,
		TotalRevenue:      decimal.Zero,
		AverageTaxRate:    decimal.Zero,
		Bills:             []TaxReportLine{},
	}
}
