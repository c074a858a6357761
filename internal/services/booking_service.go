package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/events"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/pricing"
	"BookingSettlement/internal/store"
)

type Catalog interface {
	GetProperty(ctx context.Context, id string) (*models.Property, error)
}

type Reclamations interface {
	ForBooking(ctx context.Context, bookingID string) ([]models.Reclamation, error)
}

type RateSource interface {
	CurrentSnapshot(ctx context.Context) (pricing.Snapshot, error)
}

// Orchestrator owns the booking aggregate: status, offers, payment intents and
// settlement records. Operations are grouped by file.
type Orchestrator struct {
	Store        store.Store
	Catalog      Catalog
	Reclamations Reclamations
	Rates        RateSource
	Events       events.Bus
	Addresses    chain.AddressValidator
	Log          logrus.FieldLogger
	Now          func() time.Time

	ChainID          string
	Symbol           string
	Decimals         int
	ConfirmThreshold int64

	OfferTTL          time.Duration
	OfferGrace        time.Duration
	IntentTTL         time.Duration
	AutoCompleteAfter time.Duration
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) log() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Discard()
}

type CreateRequest struct {
	PropertyID          string
	CheckIn             time.Time
	CheckOut            time.Time
	Guests              int
	TenantWalletAddress string
	RequestedPrice      *decimal.Decimal
}

// Create books a stay for the caller. The booking lands in PENDING_NEGOTIATION
// when the property allows negotiation and the caller offered less than the
// base price, in PENDING_PAYMENT otherwise.
func (o *Orchestrator) Create(ctx context.Context, p identity.Principal, req CreateRequest) (*models.Booking, error) {
	if p.UserID == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "not authenticated")
	}
	checkIn, checkOut := civilDate(req.CheckIn), civilDate(req.CheckOut)
	if err := o.validateStay(checkIn, checkOut); err != nil {
		return nil, err
	}
	if req.PropertyID == "" {
		return nil, apperr.Validation("propertyId is required")
	}
	if req.TenantWalletAddress != "" {
		if err := o.Addresses.Validate(req.TenantWalletAddress); err != nil {
			return nil, apperr.Validation("tenant wallet address: %v", err)
		}
	}

	prop, err := o.Catalog.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if prop.OwnerID == p.UserID {
		return nil, apperr.Validation("cannot book your own property")
	}
	if err := validateGuests(req.Guests, prop.Capacity); err != nil {
		return nil, err
	}

	nights := nightsBetween(checkIn, checkOut)
	base := BasePrice(prop, nights)
	bound := clampPercent(prop.NegotiationPercentBound)

	negotiate := false
	if req.RequestedPrice != nil {
		price := *req.RequestedPrice
		if !price.IsPositive() {
			return nil, apperr.Validation("requested price must be positive")
		}
		if bound.IsPositive() && price.LessThan(base) {
			if floor := Floor(base, bound); price.LessThan(floor) {
				return nil, apperr.Validation("requested price %s is below the negotiation floor %s", price, floor)
			}
			negotiate = true
		}
	}

	var b *models.Booking
	err = o.run(ctx, func(u *unit) error {
		if err := u.LockProperty(ctx, prop.ID); err != nil {
			return err
		}
		clash, err := u.FindOverlapping(ctx, prop.ID, checkIn, checkOut, "")
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return apperr.Conflict("dates overlap an existing booking")
		}

		b = &models.Booking{
			ID:                  uuid.NewString(),
			TenantID:            p.UserID,
			HostID:              prop.OwnerID,
			PropertyID:          prop.ID,
			CheckInDate:         checkIn,
			CheckOutDate:        checkOut,
			Nights:              nights,
			NumberOfGuests:      req.Guests,
			Currency:            prop.Currency,
			BasePrice:           base,
			Status:              models.StatusRequested,
			TenantWalletAddress: req.TenantWalletAddress,
			HostWalletAddress:   prop.OwnerWalletAddress,
			CreatedAt:           u.now,
			UpdatedAt:           u.now,
		}
		if err := u.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := u.record(ctx, b.ID, EventCreated, "", models.StatusRequested, p.UserID); err != nil {
			return err
		}

		if !negotiate {
			return u.transition(ctx, b, EventPriceFixed, p.UserID)
		}
		offer := &models.NegotiationOffer{
			ID:                      uuid.NewString(),
			BookingID:               b.ID,
			ProposedPrice:           *req.RequestedPrice,
			ProposedBy:              models.PartyTenant,
			NegotiationPercentBound: bound,
			Status:                  models.OfferOpen,
			CreatedAt:               u.now,
			ExpiresAt:               u.now.Add(o.OfferTTL),
		}
		if err := u.InsertOffer(ctx, offer); err != nil {
			return err
		}
		return u.transition(ctx, b, EventNegotiationOpened, p.UserID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": b.ID, "property_id": b.PropertyID, "status": b.Status}).Info("booking created")
	return b, nil
}

// Get returns the booking after applying any overdue expiry.
func (o *Orchestrator) Get(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	if err := o.expireStale(ctx, id); err != nil {
		return nil, err
	}
	b, err := o.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, b) {
		return nil, apperr.Forbidden("not a party to this booking")
	}
	return b, nil
}

func (o *Orchestrator) History(ctx context.Context, p identity.Principal, id string) ([]*models.BookingEvent, error) {
	if _, err := o.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return o.Store.ListBookingEvents(ctx, id)
}

// Cancel withdraws a booking that has not been paid for yet.
func (o *Orchestrator) Cancel(ctx context.Context, p identity.Principal, id string) (*models.Booking, error) {
	var b *models.Booking
	err := o.run(ctx, func(u *unit) error {
		var err error
		b, err = u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := partyOf(p, b); !ok && !p.IsAdmin() {
			return apperr.Forbidden("not a party to this booking")
		}
		switch {
		case b.Status.Terminal():
			return apperr.InvalidTransition("booking is already %s", b.Status)
		case b.Status == models.StatusConfirmed || b.Status == models.StatusTenantCheckedOut:
			return apperr.Forbidden("a paid booking cannot be cancelled directly; file a reclamation")
		}

		recs, err := u.BookingSettlements(ctx, b.ID)
		if err != nil {
			return err
		}
		if hasSubmitted(recs) && !p.IsAdmin() {
			return apperr.Forbidden("a payment is in flight; only an admin can cancel")
		}

		if intent, err := u.ActiveIntent(ctx, b.ID); err != nil {
			return err
		} else if intent != nil {
			if err := u.UpdateIntentStatus(ctx, intent.ID, models.IntentVoided); err != nil {
				return err
			}
		}
		if err := u.closeOpenOffer(ctx, b.ID, models.OfferRejected); err != nil {
			return err
		}

		actor := p.UserID
		b.CancelledBy = &actor
		return u.transition(ctx, b, EventCancelled, p.UserID)
	})
	if err != nil {
		return nil, err
	}
	o.log().WithFields(logrus.Fields{"booking_id": id, "actor": p.UserID}).Info("booking cancelled")
	return b, nil
}

type EditRequest struct {
	CheckIn             *time.Time
	CheckOut            *time.Time
	Guests              *int
	TenantWalletAddress *string
	Price               *decimal.Decimal
}

// Edit changes a booking before payment. Only the tenant may edit. While
// negotiating, a new price acts as a tenant counter-offer. Once the price is
// fixed, dates may change only for a non-negotiated booking with no
// transaction submitted, and any change supersedes the active intent.
func (o *Orchestrator) Edit(ctx context.Context, p identity.Principal, id string, req EditRequest) (*models.Booking, error) {
	if err := o.expireStale(ctx, id); err != nil {
		return nil, err
	}
	current, err := o.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.TenantID != p.UserID {
		return nil, apperr.Forbidden("only the tenant can edit a booking")
	}
	if req.TenantWalletAddress != nil && *req.TenantWalletAddress != "" {
		if err := o.Addresses.Validate(*req.TenantWalletAddress); err != nil {
			return nil, apperr.Validation("tenant wallet address: %v", err)
		}
	}

	var prop *models.Property
	if req.CheckIn != nil || req.CheckOut != nil || req.Guests != nil {
		if prop, err = o.Catalog.GetProperty(ctx, current.PropertyID); err != nil {
			return nil, err
		}
	}

	var b *models.Booking
	err = o.run(ctx, func(u *unit) error {
		b, err = u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := editable(b); err != nil {
			return err
		}

		checkIn, checkOut := b.CheckInDate, b.CheckOutDate
		if req.CheckIn != nil {
			checkIn = civilDate(*req.CheckIn)
		}
		if req.CheckOut != nil {
			checkOut = civilDate(*req.CheckOut)
		}
		datesChanged := !checkIn.Equal(b.CheckInDate) || !checkOut.Equal(b.CheckOutDate)

		if b.Status == models.StatusPendingPayment {
			if req.Price != nil {
				return apperr.Validation("price can only change while negotiating")
			}
			recs, err := u.BookingSettlements(ctx, b.ID)
			if err != nil {
				return err
			}
			if hasSubmitted(recs) {
				return apperr.Conflict("a payment is in flight; the booking can no longer change")
			}
			if datesChanged && b.RequestedPrice.Valid {
				return apperr.Validation("dates are fixed once a price was negotiated")
			}
		}

		if datesChanged {
			if err := o.validateStay(checkIn, checkOut); err != nil {
				return err
			}
			if err := u.LockProperty(ctx, b.PropertyID); err != nil {
				return err
			}
			clash, err := u.FindOverlapping(ctx, b.PropertyID, checkIn, checkOut, b.ID)
			if err != nil {
				return err
			}
			if len(clash) > 0 {
				return apperr.Conflict("dates overlap an existing booking")
			}
			b.CheckInDate, b.CheckOutDate = checkIn, checkOut
			b.Nights = nightsBetween(checkIn, checkOut)
			b.BasePrice = BasePrice(prop, b.Nights)
		}
		if req.Guests != nil {
			if err := validateGuests(*req.Guests, prop.Capacity); err != nil {
				return err
			}
			b.NumberOfGuests = *req.Guests
		}
		if req.TenantWalletAddress != nil {
			b.TenantWalletAddress = *req.TenantWalletAddress
		}
		b.UpdatedAt = u.now
		if err := u.UpdateBooking(ctx, b); err != nil {
			return err
		}

		switch b.Status {
		case models.StatusPendingPayment:
			intent, err := u.ActiveIntent(ctx, b.ID)
			if err != nil || intent == nil {
				return err
			}
			return u.UpdateIntentStatus(ctx, intent.ID, models.IntentSuperseded)
		case models.StatusPendingNegotiation:
			if req.Price == nil && !datesChanged {
				return nil
			}
			open, err := u.OpenOffer(ctx, b.ID)
			if err != nil {
				return err
			}
			if open == nil {
				return apperr.Conflict("no open offer to revise")
			}
			price := open.ProposedPrice
			if req.Price != nil {
				price = *req.Price
			}
			_, err = o.counter(ctx, u, b, open, models.PartyTenant, price)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// expireStale applies lazy expiry: an offer past its grace window rejects the
// booking, a lapsed intent is marked EXPIRED.
func (o *Orchestrator) expireStale(ctx context.Context, id string) error {
	return o.run(ctx, func(u *unit) error {
		b, err := u.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		switch b.Status {
		case models.StatusPendingNegotiation:
			open, err := u.OpenOffer(ctx, b.ID)
			if err != nil || open == nil {
				return err
			}
			if u.now.Before(open.ExpiresAt.Add(o.OfferGrace)) {
				return nil
			}
			if err := u.closeOpenOffer(ctx, b.ID, models.OfferExpired); err != nil {
				return err
			}
			o.log().WithField("booking_id", b.ID).Info("negotiation expired")
			return u.transition(ctx, b, EventRejected, SystemActor)
		case models.StatusPendingPayment:
			intent, err := u.ActiveIntent(ctx, b.ID)
			if err != nil || intent == nil || !intent.Expired(u.now) {
				return err
			}
			return u.UpdateIntentStatus(ctx, intent.ID, models.IntentExpired)
		}
		return nil
	})
}

func (o *Orchestrator) validateStay(checkIn, checkOut time.Time) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return apperr.Validation("checkInDate and checkOutDate are required")
	}
	if !checkOut.After(checkIn) {
		return apperr.Validation("checkOutDate must be after checkInDate")
	}
	if checkIn.Before(civilDate(o.now())) {
		return apperr.Validation("checkInDate is in the past")
	}
	return nil
}

func validateGuests(guests, capacity int) error {
	if guests < 1 {
		return apperr.Validation("numberOfGuests must be at least 1")
	}
	if capacity > 0 && guests > capacity {
		return apperr.Validation("numberOfGuests exceeds property capacity of %d", capacity)
	}
	return nil
}

func editable(b *models.Booking) error {
	switch b.Status {
	case models.StatusPendingNegotiation, models.StatusPendingPayment:
		return nil
	case models.StatusConfirmed, models.StatusTenantCheckedOut:
		return apperr.Forbidden("a paid booking cannot be edited")
	}
	return apperr.InvalidTransition("a %s booking cannot be edited", b.Status)
}

// BasePrice is nightly rate times nights less the best long-stay discount the
// property grants.
func BasePrice(p *models.Property, nights int) decimal.Decimal {
	gross := p.NightlyPrice.Mul(decimal.NewFromInt(int64(nights)))
	var pct decimal.Decimal
	switch {
	case nights >= 28 && p.MonthlyDiscountPercent.IsPositive():
		pct = p.MonthlyDiscountPercent
	case nights >= 7 && p.WeeklyDiscountPercent.IsPositive():
		pct = p.WeeklyDiscountPercent
	}
	pct = clampPercent(pct)
	if pct.IsZero() {
		return gross
	}
	return gross.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
}

var hundred = decimal.NewFromInt(100)

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func civilDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nightsBetween(in, out time.Time) int {
	return int(out.Sub(in).Hours() / 24)
}

func partyOf(p identity.Principal, b *models.Booking) (models.Party, bool) {
	switch p.UserID {
	case b.TenantID:
		return models.PartyTenant, true
	case b.HostID:
		return models.PartyHost, true
	}
	return "", false
}

func canView(p identity.Principal, b *models.Booking) bool {
	if _, ok := partyOf(p, b); ok {
		return true
	}
	return p.IsAdmin() || p.Has(models.RoleWatcher)
}

func hasSubmitted(recs []*models.SettlementRecord) bool {
	for _, r := range recs {
		if r.Status == models.SettlementSubmitted {
			return true
		}
	}
	return false
}
