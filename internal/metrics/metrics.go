// Package metrics содержит prometheus-метрики биллинга.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Billing объединяет счётчики операций биллинга.
type Billing struct {
	invoicesCreated prometheus.Counter
	payments        *prometheus.CounterVec
	refunds         prometheus.Counter
	adjustments     *prometheus.CounterVec
	reportFailures  prometheus.Counter
}

// NewBilling создаёт и регистрирует метрики. Если registerer не задан, используется prometheus.DefaultRegisterer.
func NewBilling(registerer prometheus.Registerer) (*Billing, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Billing{
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_billing_invoices_created_total",
			Help: "Invoices created.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_billing_payments_total",
			Help: "Processed payments by resulting payment status.",
		}, []string{"status"}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_billing_refunds_total",
			Help: "Processed refunds.",
		}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_billing_adjustments_total",
			Help: "Invoice adjustments by type.",
		}, []string{"type"}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_billing_tax_report_failures_total",
			Help: "Tax reports degraded or failed because of store errors.",
		}),
	}

	collectors := []prometheus.Collector{
		m.invoicesCreated,
		m.payments,
		m.refunds,
		m.adjustments,
		m.reportFailures,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// InvoiceCreated учитывает созданный счёт.
func (m *Billing) InvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

// PaymentProcessed учитывает оплату с итоговым статусом.
func (m *Billing) PaymentProcessed(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// RefundProcessed учитывает возврат.
func (m *Billing) RefundProcessed() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// AdjustmentAdded учитывает корректировку указанного типа.
func (m *Billing) AdjustmentAdded(kind string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(kind).Inc()
}

// ReportFailed учитывает ошибку построения налогового отчёта.
func (m *Billing) ReportFailed() {
	if m == nil {
		return
	}
	m.reportFailures.Inc()
}
