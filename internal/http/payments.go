package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req intentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	intent, err := h.Bookings.BuildIntent(r.Context(), p, req.BookingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntent(intent))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	st, err := h.Bookings.Payment(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayment(st))
}

func (h *Handler) SubmitTxHash(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req txHashRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.SubmitTransaction(r.Context(), p, chi.URLParam(r, "id"), req.TxHash)
	h.bookingResult(w, r, http.StatusOK, b, err)
}

// ReportConfirmations is the inbound side of an external chain watcher.
func (h *Handler) ReportConfirmations(w http.ResponseWriter, r *http.Request) {
	var req confirmationRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	if req.FailureReason != "" {
		if err := h.Bookings.MarkFailed(ctx, req.BookingID, req.TxHash, req.FailureReason); err != nil {
			h.writeError(w, r, err)
			return
		}
		b, err := h.Bookings.Store.GetBooking(ctx, req.BookingID)
		h.bookingResult(w, r, http.StatusOK, b, err)
		return
	}
	b, err := h.Bookings.Confirm(ctx, req.BookingID, req.TxHash, req.Confirmations)
	h.bookingResult(w, r, http.StatusOK, b, err)
}

func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rates.CurrentSnapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := h.Rates.SetRate(r.Context(), *req.Rate, req.Source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log().WithFields(logrus.Fields{"rate": snap.Rate.String(), "source": snap.Source, "actor": p.UserID}).Info("conversion rate updated")
	writeJSON(w, http.StatusOK, snap)
}
