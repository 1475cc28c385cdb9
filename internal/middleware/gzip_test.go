package middleware_test

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-billing/internal/billing"
	"github.com/mmeshcher/hotel-billing/internal/handler"
	"github.com/mmeshcher/hotel-billing/internal/middleware"
	"github.com/mmeshcher/hotel-billing/internal/store"
)

type billBody struct {
	ID            string `json:"id"`
	TotalAmount   string `json:"totalAmount"`
	PaymentStatus string `json:"paymentStatus"`
}

func newBillingRouter(t *testing.T) http.Handler {
	t.Helper()

	engine := billing.NewEngine(store.NewMemory(), zap.NewNop())
	h := handler.NewHandler(engine, zap.NewNop(), middleware.NewAdminAuth(""), nil)
	return h.SetupRouter()
}

func gzipBody(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) []byte {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	}

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return body
}

func serve(router http.Handler, req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Result()
}

func createBill(t *testing.T, router http.Handler) billBody {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/bills",
		gzipBody(t, `{"guestName":"Grace","roomCharges":"200","additionalCharges":["30","20"]}`))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	res := serve(router, req)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Values("Vary"), "Accept-Encoding")

	var bill billBody
	require.NoError(t, json.Unmarshal(readBody(t, res), &bill))
	return bill
}

func TestGzipMiddleware_CompressedBillCreate(t *testing.T) {
	router := newBillingRouter(t)

	bill := createBill(t, router)

	assert.NotEmpty(t, bill.ID)
	assert.Equal(t, "275", bill.TotalAmount)
	assert.Equal(t, "Pending", bill.PaymentStatus)
}

func TestGzipMiddleware_CompressedPayment(t *testing.T) {
	router := newBillingRouter(t)
	bill := createBill(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/bills/"+bill.ID+"/payments",
		gzipBody(t, `{"amount":"275","method":"card"}`))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")

	res := serve(router, req)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	var paid billBody
	require.NoError(t, json.Unmarshal(readBody(t, res), &paid))
	assert.Equal(t, "Paid", paid.PaymentStatus)
}

func TestGzipMiddleware_PlainClient(t *testing.T) {
	router := newBillingRouter(t)
	bill := createBill(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/bills/"+bill.ID, nil)

	res := serve(router, req)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get("Content-Encoding"))

	var got billBody
	require.NoError(t, json.Unmarshal(readBody(t, res), &got))
	assert.Equal(t, bill.ID, got.ID)
}

func TestGzipMiddleware_NoBodyResponses(t *testing.T) {
	router := newBillingRouter(t)

	t.Run("empty bill list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/bills", nil)
		req.Header.Set("Accept-Encoding", "gzip")

		res := serve(router, req)
		defer res.Body.Close()

		assert.Equal(t, http.StatusNoContent, res.StatusCode)
		assert.Empty(t, res.Header.Get("Content-Encoding"))
		assert.Empty(t, readBody(t, res))
	})

	t.Run("delete bill", func(t *testing.T) {
		bill := createBill(t, router)

		req := httptest.NewRequest(http.MethodDelete, "/api/bills/"+bill.ID, nil)
		req.Header.Set("Accept-Encoding", "gzip")

		res := serve(router, req)
		defer res.Body.Close()

		assert.Equal(t, http.StatusNoContent, res.StatusCode)
		assert.Empty(t, res.Header.Get("Content-Encoding"))
		assert.Empty(t, readBody(t, res))
	})

	t.Run("not modified", func(t *testing.T) {
		notModified := middleware.GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/bills", nil)
		req.Header.Set("Accept-Encoding", "gzip")

		res := serve(notModified, req)
		defer res.Body.Close()

		assert.Equal(t, http.StatusNotModified, res.StatusCode)
		assert.Empty(t, res.Header.Get("Content-Encoding"))
		assert.Empty(t, readBody(t, res))
	})

	t.Run("nothing written", func(t *testing.T) {
		silent := middleware.GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/bills", nil)
		req.Header.Set("Accept-Encoding", "gzip")

		res := serve(silent, req)
		defer res.Body.Close()

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Empty(t, res.Header.Get("Content-Encoding"))
		assert.Empty(t, readBody(t, res))
	})
}

func TestGzipMiddleware_MalformedBillBody(t *testing.T) {
	router := newBillingRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bills", strings.NewReader(`{"roomCharges":"200"}`))
	req.Header.Set("Content-Encoding", "gzip")

	res := serve(router, req)
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGzipMiddleware_CompressedErrorResponse(t *testing.T) {
	router := newBillingRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bills/0b6f1a52-8c3e-4f6e-9d1a-3c2b1a0f9e8d", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	res := serve(router, req)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Contains(t, string(readBody(t, res)), http.StatusText(http.StatusNotFound))
}
