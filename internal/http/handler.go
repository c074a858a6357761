package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/pricing"
	"BookingSettlement/internal/services"
)

// RateAdmin reads and replaces the fiat-to-crypto conversion rate.
type RateAdmin interface {
	CurrentSnapshot(ctx context.Context) (pricing.Snapshot, error)
	SetRate(ctx context.Context, rate decimal.Decimal, source string) (pricing.Snapshot, error)
}

type Handler struct {
	Bookings *services.Orchestrator
	Rates    RateAdmin
	AwaitMax time.Duration
	Log      logrus.FieldLogger

	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewHandler(bookings *services.Orchestrator, rates RateAdmin, awaitMax time.Duration, log logrus.FieldLogger) *Handler {
	return &Handler{
		Bookings: bookings,
		Rates:    rates,
		AwaitMax: awaitMax,
		Log:      log,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) log() logrus.FieldLogger {
	if h.Log != nil {
		return h.Log
	}
	return logging.Discard()
}

// principal returns the caller, writing the error response when there is none.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, err := identity.MustFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return identity.Principal{}, false
	}
	return p, true
}

// bookingResult writes the booking or the error that replaced it.
func (h *Handler) bookingResult(w http.ResponseWriter, r *http.Request, status int, b *models.Booking, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toBooking(b))
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Create(r.Context(), p, req.toService())
	h.bookingResult(w, r, http.StatusCreated, b, err)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Get(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) EditBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req editBookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	edit, err := req.toService()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Edit(r.Context(), p, chi.URLParam(r, "id"), edit)
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	evs, err := h.Bookings.History(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvents(evs))
}

func (h *Handler) Offers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	offers, err := h.Bookings.Offers(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOffer(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// Negotiate posts a counter-offer and answers with the booking.
func (h *Handler) Negotiate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req negotiateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Bookings.ProposeCounter(r.Context(), p, id, *req.Price); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Get(r.Context(), p, id)
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Accept(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Reject(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) TenantCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.TenantCheckout(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) HostCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.HostConfirmCheckout(r.Context(), p, chi.URLParam(r, "id"))
	h.bookingResult(w, r, http.StatusOK, b, err)
}
