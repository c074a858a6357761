package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/pricing"
)

// BuildIntent returns the booking's active payment intent, issuing a new one
// when none is active. The amount is fixed from the rate current at issue time.
func (o *Orchestrator) BuildIntent(ctx context.Context, p identity.Principal, bookingID string) (*models.PaymentIntent, error) {
	if err := o.expireStale(ctx, bookingID); err != nil {
		return nil, err
	}
	current, err := o.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.TenantID != p.UserID && !p.IsAdmin() {
		return nil, apperr.Forbidden("only the tenant can request a payment intent")
	}
	// Bookings created while the host had no wallet on file pick it up now.
	var hostWallet string
	if current.HostWalletAddress == "" && current.Status == models.StatusPendingPayment {
		prop, err := o.Catalog.GetProperty(ctx, current.PropertyID)
		if err != nil {
			return nil, err
		}
		hostWallet = prop.OwnerWalletAddress
	}
	snap, err := o.Rates.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var intent *models.PaymentIntent
	issued := false
	err = o.run(ctx, func(u *unit) error {
		b, err := u.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.StatusPendingPayment {
			return apperr.InvalidTransition("booking is %s, not awaiting payment", b.Status)
		}
		if b.HostWalletAddress == "" && hostWallet != "" {
			b.HostWalletAddress = hostWallet
			b.UpdatedAt = u.now
			if err := u.UpdateBooking(ctx, b); err != nil {
				return err
			}
		}
		if err := o.checkWallets(b); err != nil {
			return err
		}
		price := b.FinalPrice()
		if !price.IsPositive() {
			return apperr.New(apperr.KindInvalidPrice, "booking price %s is not payable", price)
		}

		active, err := u.ActiveIntent(ctx, b.ID)
		if err != nil {
			return err
		}
		if active != nil {
			if !active.Expired(u.now) {
				intent = active
				return nil
			}
			if err := u.UpdateIntentStatus(ctx, active.ID, models.IntentExpired); err != nil {
				return err
			}
		}

		amount, err := pricing.ToBaseUnits(price, snap.Rate, o.Decimals)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidPrice, err, "cannot convert %s %s", price, b.Currency)
		}
		intent = &models.PaymentIntent{
			ID:               uuid.NewString(),
			BookingID:        b.ID,
			RecipientAddress: b.HostWalletAddress,
			SenderAddress:    b.TenantWalletAddress,
			Amount:           amount,
			Symbol:           o.Symbol,
			Decimals:         o.Decimals,
			ChainID:          o.ChainID,
			FiatAmount:       price,
			Currency:         b.Currency,
			Rate:             snap.Rate,
			RateSource:       snap.Source,
			RateAt:           snap.At,
			Status:           models.IntentActive,
			CreatedAt:        u.now,
			ExpiresAt:        u.now.Add(o.IntentTTL),
		}
		issued = true
		return u.InsertIntent(ctx, intent)
	})
	if err != nil {
		return nil, err
	}
	if issued {
		o.log().WithFields(logrus.Fields{
			"booking_id": bookingID,
			"intent_id":  intent.ID,
			"amount":     intent.Amount,
			"rate":       intent.Rate.String(),
		}).Info("payment intent issued")
	}
	return intent, nil
}

func (o *Orchestrator) checkWallets(b *models.Booking) error {
	if b.TenantWalletAddress == "" {
		return apperr.New(apperr.KindMissingWallet, "tenant wallet address is missing")
	}
	if b.HostWalletAddress == "" {
		return apperr.New(apperr.KindMissingWallet, "host wallet address is missing")
	}
	if err := o.Addresses.Validate(b.TenantWalletAddress); err != nil {
		return apperr.Validation("tenant wallet address: %v", err)
	}
	if err := o.Addresses.Validate(b.HostWalletAddress); err != nil {
		return apperr.Validation("host wallet address: %v", err)
	}
	return nil
}

// PaymentState is the payment side of a booking.
type PaymentState struct {
	Booking     *models.Booking
	Intent      *models.PaymentIntent
	Intents     []*models.PaymentIntent
	Settlements []*models.SettlementRecord
}

// Payment reports the current intent (active, else most recent) and every
// settlement record of the booking.
func (o *Orchestrator) Payment(ctx context.Context, p identity.Principal, bookingID string) (*PaymentState, error) {
	b, err := o.Get(ctx, p, bookingID)
	if err != nil {
		return nil, err
	}
	intents, err := o.Store.ListIntents(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	recs, err := o.Store.ListSettlements(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	st := &PaymentState{Booking: b, Intents: intents, Settlements: recs}
	for _, in := range intents {
		if in.Status == models.IntentActive || in.Status == models.IntentConsumed {
			st.Intent = in
		}
	}
	if st.Intent == nil && len(intents) > 0 {
		st.Intent = intents[len(intents)-1]
	}
	return st, nil
}

// ExpireIntents marks lapsed intents EXPIRED in bulk.
func (o *Orchestrator) ExpireIntents(ctx context.Context) (int64, error) {
	return o.Store.ExpireIntents(ctx, o.now())
}
