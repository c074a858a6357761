package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, verifier identity.Verifier) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(handler.log()))
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware(handler.writeError))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", handler.CreateBooking)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetBooking)
				r.Put("/", handler.EditBooking)
				r.Delete("/", handler.CancelBooking)
				r.Get("/history", handler.History)
				r.Get("/offers", handler.Offers)
				r.Get("/await", handler.Await)
				r.Get("/stream", handler.Stream)
				r.Post("/negotiate", handler.Negotiate)
				r.Post("/accept", handler.Accept)
				r.Post("/reject", handler.Reject)
				r.Post("/checkout/tenant", handler.TenantCheckout)
				r.Post("/checkout/owner", handler.HostCheckout)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", handler.CreateIntent)
			r.Get("/booking/{id}", handler.GetPayment)
			r.Put("/booking/{id}/tx-hash", handler.SubmitTxHash)
		})

		r.With(identity.RequireRole(handler.writeError, models.RoleWatcher, models.RoleAdmin)).
			Post("/chain/confirmations", handler.ReportConfirmations)

		r.Route("/admin", func(r chi.Router) {
			r.Use(identity.RequireRole(handler.writeError, models.RoleAdmin))
			r.Get("/conversion-rate", handler.GetRate)
			r.Put("/conversion-rate", handler.SetRate)
		})
	})

	return &Server{Router: r}
}
