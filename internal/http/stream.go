package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

const defaultAwait = 30 * time.Second

var knownStatuses = map[models.BookingStatus]bool{
	models.StatusRequested:          true,
	models.StatusPendingNegotiation: true,
	models.StatusPendingPayment:     true,
	models.StatusConfirmed:          true,
	models.StatusTenantCheckedOut:   true,
	models.StatusCompleted:          true,
	models.StatusCancelled:          true,
	models.StatusRejected:           true,
}

// Await holds the request until the booking reaches ?status= (or ends) and
// answers with the booking as it stands.
func (h *Handler) Await(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	want := models.BookingStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if !knownStatuses[want] {
		h.writeError(w, r, apperr.Validation("status must be a booking status"))
		return
	}
	timeout, err := h.awaitTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Await(r.Context(), p, chi.URLParam(r, "id"), want, timeout)
	h.bookingResult(w, r, http.StatusOK, b, err)
}

// awaitTimeout accepts "30s" style durations or bare seconds, capped at AwaitMax.
func (h *Handler) awaitTimeout(raw string) (time.Duration, error) {
	d := defaultAwait
	if raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			secs, convErr := strconv.Atoi(raw)
			if convErr != nil {
				return 0, apperr.Validation("timeout %q is not a duration", raw)
			}
			parsed = time.Duration(secs) * time.Second
		}
		if parsed <= 0 {
			return 0, apperr.Validation("timeout must be positive")
		}
		d = parsed
	}
	if h.AwaitMax > 0 && d > h.AwaitMax {
		d = h.AwaitMax
	}
	return d, nil
}

// Stream upgrades to a websocket and pushes every status change of the
// booking until the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	if h.Bookings.Events == nil {
		h.writeError(w, r, apperr.New(apperr.KindDependencyUnavailable, "event stream is not configured"))
		return
	}
	// Subscribe before the snapshot so nothing falls between the two.
	events, unsubscribe := h.Bookings.Events.Subscribe(ctx, id)
	defer unsubscribe()
	b, err := h.Bookings.Get(ctx, p, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log().WithError(err).Warn("stream upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(toBooking(b)); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if models.BookingStatus(ev.ToStatus).Terminal() {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.ToStatus))
				return
			}
		}
	}
}
