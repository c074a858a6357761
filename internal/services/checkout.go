package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/reclamation"
)

func (o *Orchestrator) TenantCheckout(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	var b *models.Booking
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.TenantID != p.UserID {
			return apperr.Forbidden("only the tenant can check out")
		}
		if b.Status != models.StatusConfirmed {
			return apperr.InvalidTransition("booking is %s, not confirmed", b.Status)
		}
		at := u.now
		b.TenantCheckedOutAt = &at
		return u.transition(ctx, b, EventTenantCheckedOut, p.UserID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithField("booking_id", id).Info("tenant checked out")
	return b, nil
}

// HostConfirmCheckout completes the stay unless a reclamation is still open.
func (o *Orchestrator) HostConfirmCheckout(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	b, err := o.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.HostID != p.UserID && !p.IsAdmin() {
		return nil, apperr.Forbidden("only the host can confirm checkout")
	}
	return o.complete(ctx, b, p.UserID)
}

// AutoComplete completes a checked-out booking whose host did not respond
// within the grace period.
func (o *Orchestrator) AutoComplete(ctx context.Context, id string) (*models.Booking, error) {
	b, err := o.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.TenantCheckedOutAt == nil || o.now().Before(b.TenantCheckedOutAt.Add(o.AutoCompleteAfter)) {
		return nil, apperr.InvalidTransition("checkout grace period has not elapsed")
	}
	return o.complete(ctx, b, SystemActor)
}

// SweepDueCheckouts auto-completes every booking past its checkout grace.
// Disputed bookings are skipped and retried on a later sweep.
func (o *Orchestrator) SweepDueCheckouts(ctx context.Context) (int, error) {
	ids, err := o.Store.ListBookingsCheckedOutBefore(ctx, o.now().Add(-o.AutoCompleteAfter))
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		_, err := o.AutoComplete(ctx, id)
		switch {
		case err == nil:
			done++
		case apperr.KindOf(err) == apperr.KindDisputeBlocking:
			o.log().WithField("booking_id", id).Info("auto-complete held by reclamation")
		default:
			o.log().WithError(err).WithField("booking_id", id).Warn("auto-complete failed")
		}
	}
	return done, nil
}

func (o *Orchestrator) complete(ctx context.Context, b *models.Booking, actorID string) (*models.Booking, error) {
	if b.Status != models.StatusTenantCheckedOut {
		return nil, apperr.InvalidTransition("booking is %s, tenant has not checked out", b.Status)
	}
	if err := o.undisputed(ctx, b.ID); err != nil {
		return nil, err
	}

	var out *models.Booking
	err := o.run(ctx, func(u *unit) error {
		var err error
		out, err = u.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if out.Status != models.StatusTenantCheckedOut {
			return apperr.InvalidTransition("booking is %s, tenant has not checked out", out.Status)
		}
		// a reclamation may have been filed since the first look
		if err := o.undisputed(ctx, b.ID); err != nil {
			return err
		}
		at := u.now
		out.CompletedAt = &at
		return u.transition(ctx, out, EventCheckoutConfirmed, actorID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": b.ID, "actor": actorID}).Info("booking completed")
	return out, nil
}

func (o *Orchestrator) undisputed(ctx context.Context, bookingID string) error {
	list, err := o.Reclamations.ForBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if blocking := reclamation.Blocking(list); len(blocking) > 0 {
		return apperr.New(apperr.KindDisputeBlocking, "reclamation %s is %s", blocking[0].ID, blocking[0].Status)
	}
	return nil
}
