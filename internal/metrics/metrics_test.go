package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewBilling(reg)
	require.NoError(t, err)

	m.InvoiceCreated()
	m.InvoiceCreated()
	m.PaymentProcessed("Paid")
	m.PaymentProcessed("Partial")
	m.PaymentProcessed("Paid")
	m.AdjustmentAdded("discount")
	m.RefundProcessed()
	m.ReportFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invoicesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.payments.WithLabelValues("Paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("Partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adjustments.WithLabelValues("discount")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportFailures))
}

func TestNewBilling_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewBilling(reg)
	require.NoError(t, err)

	_, err = NewBilling(reg)
	assert.Error(t, err)
}

func TestNilBillingIsNoop(t *testing.T) {
	var m *Billing
	m.InvoiceCreated()
	m.PaymentProcessed("Paid")
	m.RefundProcessed()
	m.AdjustmentAdded("surcharge")
	m.ReportFailed()
}
