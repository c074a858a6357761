package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/events"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/store"
)

type Event string

const (
	EventCreated             Event = "CREATED"
	EventNegotiationOpened   Event = "NEGOTIATION_OPENED"
	EventPriceFixed          Event = "PRICE_FIXED"
	EventNegotiationResolved Event = "NEGOTIATION_RESOLVED"
	EventPaymentConfirmed    Event = "PAYMENT_CONFIRMED"
	EventTenantCheckedOut    Event = "TENANT_CHECKED_OUT"
	EventCheckoutConfirmed   Event = "CHECKOUT_CONFIRMED"
	EventRejected            Event = "REJECTED"
	EventCancelled           Event = "CANCELLED"
)

// SystemActor is recorded for transitions no user asked for.
const SystemActor = "system"

type edge struct {
	from []models.BookingStatus
	to   models.BookingStatus
}

var nonTerminal = []models.BookingStatus{
	models.StatusRequested,
	models.StatusPendingNegotiation,
	models.StatusPendingPayment,
	models.StatusConfirmed,
	models.StatusTenantCheckedOut,
}

var transitions = map[Event]edge{
	EventNegotiationOpened:   {from: []models.BookingStatus{models.StatusRequested}, to: models.StatusPendingNegotiation},
	EventPriceFixed:          {from: []models.BookingStatus{models.StatusRequested}, to: models.StatusPendingPayment},
	EventNegotiationResolved: {from: []models.BookingStatus{models.StatusPendingNegotiation}, to: models.StatusPendingPayment},
	EventPaymentConfirmed:    {from: []models.BookingStatus{models.StatusPendingPayment}, to: models.StatusConfirmed},
	EventTenantCheckedOut:    {from: []models.BookingStatus{models.StatusConfirmed}, to: models.StatusTenantCheckedOut},
	EventCheckoutConfirmed:   {from: []models.BookingStatus{models.StatusTenantCheckedOut}, to: models.StatusCompleted},
	EventRejected:            {from: []models.BookingStatus{models.StatusRequested, models.StatusPendingNegotiation}, to: models.StatusRejected},
	EventCancelled:           {from: nonTerminal, to: models.StatusCancelled},
}

// Next returns the status ev leads to from the given status.
func Next(from models.BookingStatus, ev Event) (models.BookingStatus, error) {
	e, ok := transitions[ev]
	if !ok {
		return "", apperr.InvalidTransition("unknown event %s", ev)
	}
	for _, s := range e.from {
		if s == from {
			return e.to, nil
		}
	}
	return "", apperr.InvalidTransition("cannot apply %s to a %s booking", ev, from)
}

// unit is one serialized read-modify-write over a booking aggregate. Events
// recorded in it are published only after the transaction commits.
type unit struct {
	store.Tx
	now    time.Time
	events []*models.BookingEvent
}

func (o *Orchestrator) run(ctx context.Context, fn func(u *unit) error) error {
	u := &unit{now: o.now()}
	err := o.Store.InTx(ctx, func(tx store.Tx) error {
		u.Tx = tx
		u.events = u.events[:0]
		return fn(u)
	})
	if err != nil {
		return err
	}
	o.publish(ctx, u.events)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, evs []*models.BookingEvent) {
	if o.Events == nil {
		return
	}
	for _, ev := range evs {
		if err := o.Events.Publish(ctx, events.FromBookingEvent(ev)); err != nil {
			o.log().WithError(err).WithField("booking_id", ev.BookingID).Warn("publish booking event failed")
		}
	}
}

// transition is the only place a booking's status changes.
func (u *unit) transition(ctx context.Context, b *models.Booking, ev Event, actorID string) error {
	next, err := Next(b.Status, ev)
	if err != nil {
		return err
	}
	from := b.Status
	b.Status = next
	b.UpdatedAt = u.now
	if err := u.UpdateBooking(ctx, b); err != nil {
		return err
	}
	return u.record(ctx, b.ID, ev, from, next, actorID)
}

func (u *unit) record(ctx context.Context, bookingID string, ev Event, from, to models.BookingStatus, actorID string) error {
	rec := &models.BookingEvent{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		Event:      string(ev),
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		At:         u.now,
	}
	if err := u.InsertEvent(ctx, rec); err != nil {
		return err
	}
	u.events = append(u.events, rec)
	return nil
}
