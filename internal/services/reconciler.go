package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/store"
)

// SubmitTransaction records the hash of a transaction the tenant broadcast
// for the active intent. Resubmitting the same hash is a no-op; a new hash
// supersedes earlier pending ones.
func (o *Orchestrator) SubmitTransaction(ctx context.Context, p identity.Principal, bookingID, txHash string) (*models.Booking, error) {
	txHash = o.normalizeHash(txHash)
	if !o.Addresses.ValidTxHash(txHash) {
		return nil, apperr.Validation("malformed transaction hash")
	}
	if err := o.expireStale(ctx, bookingID); err != nil {
		return nil, err
	}

	var b *models.Booking
	var rec *models.SettlementRecord
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.TenantID != p.UserID && !p.IsAdmin() {
			return apperr.Forbidden("only the tenant can submit a payment")
		}
		existing, err := u.SettlementByTxHash(ctx, txHash)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.BookingID != b.ID {
				return apperr.Conflict("transaction already settles another booking")
			}
			return nil
		}
		if b.Status != models.StatusPendingPayment {
			return apperr.InvalidTransition("booking is %s, not awaiting payment", b.Status)
		}
		intent, err := u.ActiveIntent(ctx, b.ID)
		if err != nil {
			return err
		}
		if intent == nil || intent.Expired(u.now) {
			return apperr.Conflict("no active payment intent; request a new one")
		}

		prior, err := u.BookingSettlements(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, r := range prior {
			if r.Status != models.SettlementSubmitted {
				continue
			}
			r.Status = models.SettlementSuperseded
			r.UpdatedAt = u.now
			if err := u.UpdateSettlement(ctx, r); err != nil {
				return err
			}
		}
		rec = &models.SettlementRecord{
			ID:          uuid.NewString(),
			BookingID:   b.ID,
			IntentID:    intent.ID,
			TxHash:      txHash,
			Status:      models.SettlementSubmitted,
			SubmittedAt: u.now,
			UpdatedAt:   u.now,
		}
		return u.InsertSettlement(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		o.log().WithFields(logrus.Fields{"booking_id": bookingID, "tx_hash": txHash}).Info("transaction submitted")
	}
	return b, nil
}

// Confirm applies a confirmation depth reported by the chain watcher. At the
// threshold the settlement finalizes and the booking is confirmed, once; later
// calls are no-ops. A transaction paying a replaced or voided intent is
// rejected.
func (o *Orchestrator) Confirm(ctx context.Context, bookingID, txHash string, confirmations int64) (*models.Booking, error) {
	txHash = o.normalizeHash(txHash)
	if confirmations < 0 {
		return nil, apperr.Validation("confirmations must not be negative")
	}

	var b *models.Booking
	var rejected error
	finalized := false
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		rec, err := u.SettlementByTxHash(ctx, txHash)
		if err != nil {
			return err
		}
		if rec == nil || rec.BookingID != b.ID {
			return apperr.NotFound("no submitted transaction %s for booking %s", txHash, bookingID)
		}

		switch rec.Status {
		case models.SettlementFinalized:
			return nil
		case models.SettlementFailed, models.SettlementRejected:
			return apperr.Conflict("transaction %s is %s", txHash, rec.Status)
		}

		intent, err := u.GetIntent(ctx, rec.IntentID)
		if err != nil {
			return err
		}
		if reason := o.unpayable(ctx, u, b, intent, rec); reason != "" {
			rec.Status = models.SettlementRejected
			rec.FailureReason = &reason
			rec.UpdatedAt = u.now
			rejected = apperr.Conflict("transaction %s rejected: %s", txHash, reason)
			return u.UpdateSettlement(ctx, rec)
		}

		if confirmations > rec.Confirmations {
			rec.Confirmations = confirmations
		}
		rec.UpdatedAt = u.now
		if rec.Confirmations < o.ConfirmThreshold {
			return u.UpdateSettlement(ctx, rec)
		}

		at := u.now
		rec.Status = models.SettlementFinalized
		rec.FinalizedAt = &at
		if err := u.UpdateSettlement(ctx, rec); err != nil {
			return err
		}
		if err := u.supersedeOthers(ctx, b.ID, rec.ID); err != nil {
			return err
		}
		if err := u.UpdateIntentStatus(ctx, intent.ID, models.IntentConsumed); err != nil {
			return err
		}
		hash := rec.TxHash
		b.OnChainTxHash = &hash
		finalized = true
		return u.transition(ctx, b, EventPaymentConfirmed, SystemActor)
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		o.log().WithFields(logrus.Fields{"booking_id": bookingID, "tx_hash": txHash}).Warn(rejected.Error())
		return nil, rejected
	}
	if finalized {
		o.log().WithFields(logrus.Fields{"booking_id": bookingID, "tx_hash": txHash, "confirmations": confirmations}).Info("payment finalized")
	}
	return b, nil
}

// unpayable explains why rec can no longer settle b, or returns "".
func (o *Orchestrator) unpayable(ctx context.Context, u *unit, b *models.Booking, intent *models.PaymentIntent, rec *models.SettlementRecord) string {
	if b.Status != models.StatusPendingPayment {
		return "booking is " + string(b.Status)
	}
	switch intent.Status {
	case models.IntentActive:
		return ""
	case models.IntentExpired:
		// Submitted in time and nothing replaced it: the transfer still counts.
		active, err := u.ActiveIntent(ctx, b.ID)
		if err == nil && active == nil && rec.SubmittedAt.Before(intent.ExpiresAt) {
			return ""
		}
		return "payment intent expired and was replaced"
	}
	return "payment intent is " + string(intent.Status)
}

func (u *unit) supersedeOthers(ctx context.Context, bookingID, keepID string) error {
	recs, err := u.BookingSettlements(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if r.ID == keepID || r.Status != models.SettlementSubmitted {
			continue
		}
		r.Status = models.SettlementSuperseded
		r.UpdatedAt = u.now
		if err := u.UpdateSettlement(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// MarkFailed records that the chain reverted txHash or that it does not pay
// the intent. The booking stays in PENDING_PAYMENT.
func (o *Orchestrator) MarkFailed(ctx context.Context, bookingID, txHash, reason string) error {
	txHash = o.normalizeHash(txHash)
	err := o.run(ctx, func(u *unit) error {
		if _, err := u.LockBooking(ctx, bookingID); err != nil {
			return err
		}
		rec, err := u.SettlementByTxHash(ctx, txHash)
		if err != nil {
			return err
		}
		if rec == nil || rec.BookingID != bookingID {
			return apperr.NotFound("no submitted transaction %s for booking %s", txHash, bookingID)
		}
		switch rec.Status {
		case models.SettlementFailed:
			return nil
		case models.SettlementFinalized:
			return apperr.Conflict("transaction %s is already finalized", txHash)
		}
		rec.Status = models.SettlementFailed
		rec.FailureReason = &reason
		rec.UpdatedAt = u.now
		return u.UpdateSettlement(ctx, rec)
	})
	if err != nil {
		return err
	}
	o.log().WithFields(logrus.Fields{"booking_id": bookingID, "tx_hash": txHash, "reason": reason}).Warn("transaction failed")
	return nil
}

// PendingSettlement pairs a submitted record with the intent it pays.
type PendingSettlement struct {
	Record *models.SettlementRecord
	Intent *models.PaymentIntent
}

// PendingSettlements lists every SUBMITTED record for the watcher.
func (o *Orchestrator) PendingSettlements(ctx context.Context) ([]PendingSettlement, error) {
	recs, err := o.Store.ListSubmittedSettlements(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingSettlement, 0, len(recs))
	for _, r := range recs {
		intent, err := findIntent(ctx, o.Store, r.BookingID, r.IntentID)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingSettlement{Record: r, Intent: intent})
	}
	return out, nil
}

func findIntent(ctx context.Context, st store.Store, bookingID, intentID string) (*models.PaymentIntent, error) {
	intents, err := st.ListIntents(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for _, in := range intents {
		if in.ID == intentID {
			return in, nil
		}
	}
	return nil, apperr.NotFound("payment intent %s not found", intentID)
}

func (o *Orchestrator) normalizeHash(h string) string {
	h = strings.TrimSpace(h)
	if o.Addresses.Format == chain.FormatBech32 {
		return strings.ToUpper(h)
	}
	return strings.ToLower(h)
}
