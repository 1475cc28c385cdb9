package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/hotel-billing/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса биллинга.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", h.CreateBill)
			r.Get("/", h.ListBills)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetBill)
				r.Patch("/", h.UpdateBill)
				r.Delete("/", h.DeleteBill)

				r.Post("/payments", h.ProcessPayment)
				r.Post("/refunds", h.ProcessRefund)
				r.Post("/adjustments", h.AddAdjustment)
			})
		})

		r.Get("/reports/tax", h.GetTaxReport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
