package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
)

// Floor is the lowest price a negotiation may reach: base × (1 − bound/100).
func Floor(base, boundPercent decimal.Decimal) decimal.Decimal {
	bound := clampPercent(boundPercent)
	return base.Mul(hundred.Sub(bound)).Div(hundred)
}

// ProposeCounter replaces the open offer with a new one from the caller's side.
// It leaves the booking status alone.
func (o *Orchestrator) ProposeCounter(ctx context.Context, p identity.Principal, id string, price decimal.Decimal) (*models.NegotiationOffer, error) {
	if err := o.expireStale(ctx, id); err != nil {
		return nil, err
	}
	var offer *models.NegotiationOffer
	err := o.run(ctx, func(u *unit) error {
		b, err := u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		party, ok := partyOf(p, b)
		if !ok {
			return apperr.Forbidden("only the tenant or host can negotiate")
		}
		if b.Status != models.StatusPendingNegotiation {
			return apperr.InvalidTransition("booking is %s, not negotiating", b.Status)
		}
		open, err := u.OpenOffer(ctx, b.ID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.Conflict("no open offer to counter")
		}
		offer, err = o.counter(ctx, u, b, open, party, price)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": id, "by": offer.ProposedBy, "price": offer.ProposedPrice.String()}).Info("counter-offer proposed")
	return offer, nil
}

// counter validates price against the booking's bounds and makes it the open
// offer. The later offer wins; an offer timestamped before the open one is
// refused.
func (o *Orchestrator) counter(ctx context.Context, u *unit, b *models.Booking, open *models.NegotiationOffer, by models.Party, price decimal.Decimal) (*models.NegotiationOffer, error) {
	bound := open.NegotiationPercentBound
	if !price.IsPositive() {
		return nil, apperr.Validation("proposed price must be positive")
	}
	if floor := Floor(b.BasePrice, bound); price.LessThan(floor) {
		return nil, apperr.Validation("proposed price %s is below the negotiation floor %s", price, floor)
	}
	if price.GreaterThan(b.BasePrice) {
		return nil, apperr.Validation("proposed price %s is above the base price %s", price, b.BasePrice)
	}
	if u.now.Before(open.CreatedAt) {
		return nil, apperr.Conflict("a later offer already supersedes this one")
	}

	resolved := u.now
	open.Status = models.OfferSuperseded
	open.ResolvedAt = &resolved
	if err := u.UpdateOffer(ctx, open); err != nil {
		return nil, err
	}
	next := &models.NegotiationOffer{
		ID:                      uuid.NewString(),
		BookingID:               b.ID,
		ProposedPrice:           price,
		ProposedBy:              by,
		NegotiationPercentBound: bound,
		Status:                  models.OfferOpen,
		CreatedAt:               u.now,
		ExpiresAt:               u.now.Add(o.OfferTTL),
	}
	if err := u.InsertOffer(ctx, next); err != nil {
		return nil, err
	}
	b.UpdatedAt = u.now
	if err := u.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	return next, nil
}

// Accept agrees to the counterpart's open offer and fixes the price.
func (o *Orchestrator) Accept(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	if err := o.expireStale(ctx, id); err != nil {
		return nil, err
	}
	if err := o.lapsedNegotiation(ctx, p, id); err != nil {
		return nil, err
	}
	var b *models.Booking
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		party, ok := partyOf(p, b)
		if !ok {
			return apperr.Forbidden("only the tenant or host can accept an offer")
		}
		if b.Status != models.StatusPendingNegotiation {
			return apperr.InvalidTransition("booking is %s, not negotiating", b.Status)
		}
		open, err := u.OpenOffer(ctx, b.ID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.Conflict("no open offer to accept")
		}
		if open.Expired(u.now) {
			return apperr.New(apperr.KindExpiredOffer, "offer expired at %s", open.ExpiresAt.Format(time.RFC3339))
		}
		if open.ProposedBy == party {
			return apperr.Forbidden("cannot accept your own offer")
		}

		if err := u.LockProperty(ctx, b.PropertyID); err != nil {
			return err
		}
		clash, err := u.FindOverlapping(ctx, b.PropertyID, b.CheckInDate, b.CheckOutDate, b.ID)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return apperr.Conflict("dates were taken by another booking during negotiation")
		}

		resolved := u.now
		open.Status = models.OfferAccepted
		open.ResolvedAt = &resolved
		if err := u.UpdateOffer(ctx, open); err != nil {
			return err
		}
		b.RequestedPrice = decimal.NewNullDecimal(open.ProposedPrice)
		return u.transition(ctx, b, EventNegotiationResolved, p.UserID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": id, "price": b.RequestedPrice.Decimal.String()}).Info("offer accepted")
	return b, nil
}

// Reject ends the negotiation; either party may walk away.
func (o *Orchestrator) Reject(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	if err := o.expireStale(ctx, id); err != nil {
		return nil, err
	}
	if err := o.lapsedNegotiation(ctx, p, id); err != nil {
		return nil, err
	}
	var b *models.Booking
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := partyOf(p, b); !ok {
			return apperr.Forbidden("only the tenant or host can reject")
		}
		if b.Status != models.StatusRequested && b.Status != models.StatusPendingNegotiation {
			return apperr.InvalidTransition("booking is %s, not negotiating", b.Status)
		}
		open, err := u.OpenOffer(ctx, b.ID)
		if err != nil {
			return err
		}
		if open != nil && open.Expired(u.now) {
			return apperr.New(apperr.KindExpiredOffer, "offer expired at %s", open.ExpiresAt.Format(time.RFC3339))
		}
		if err := u.closeOpenOffer(ctx, b.ID, models.OfferRejected); err != nil {
			return err
		}
		return u.transition(ctx, b, EventRejected, p.UserID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": id, "actor": p.UserID}).Info("negotiation rejected")
	return b, nil
}

// lapsedNegotiation returns ExpiredOffer to a party acting on a negotiation
// that already ended because its last offer ran out.
func (o *Orchestrator) lapsedNegotiation(ctx context.Context, p identity.Principal, id string) error {
	b, err := o.Store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := partyOf(p, b); !ok || b.Status != models.StatusRejected {
		return nil
	}
	offers, err := o.Store.ListOffers(ctx, id)
	if err != nil || len(offers) == 0 {
		return err
	}
	last := offers[len(offers)-1]
	if last.Status != models.OfferExpired {
		return nil
	}
	return apperr.New(apperr.KindExpiredOffer, "offer expired at %s", last.ExpiresAt.Format(time.RFC3339))
}

// Offers lists every offer of a booking, superseded ones included.
func (o *Orchestrator) Offers(ctx context.Context, p identity.Principal, id string) ([]*models.NegotiationOffer, error) {
	if _, err := o.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return o.Store.ListOffers(ctx, id)
}

// SweepExpiredNegotiations rejects bookings whose open offer lapsed more than
// the grace window ago. It returns how many bookings it looked at.
func (o *Orchestrator) SweepExpiredNegotiations(ctx context.Context) (int, error) {
	ids, err := o.Store.ListBookingsWithOfferExpiredBefore(ctx, o.now().Add(-o.OfferGrace))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := o.expireStale(ctx, id); err != nil {
			o.log().WithError(err).WithField("booking_id", id).Warn("expire negotiation failed")
		}
	}
	return len(ids), nil
}

func (u *unit) closeOpenOffer(ctx context.Context, bookingID string, status models.OfferStatus) error {
	open, err := u.OpenOffer(ctx, bookingID)
	if err != nil || open == nil {
		return err
	}
	resolved := u.now
	open.Status = status
	open.ResolvedAt = &resolved
	return u.UpdateOffer(ctx, open)
}
