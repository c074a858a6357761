package services

import (
	"context"
	"time"

	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/models"
)

// Await blocks until the booking reaches want (or any terminal status) or the
// timeout passes, then returns the booking as it stands.
func (o *Orchestrator) Await(ctx context.Context, p identity.Principal, id string, want models.BookingStatus, timeout time.Duration) (*models.Booking, error) {
	if o.Events == nil {
		return o.Get(ctx, p, id)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Subscribe before reading so a transition in between is not missed.
	ch, unsubscribe := o.Events.Subscribe(ctx, id)
	defer unsubscribe()

	b, err := o.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if reached(b.Status, want) {
		return b, nil
	}
	for {
		select {
		case <-ctx.Done():
			return o.Store.GetBooking(context.Background(), id)
		case ev, ok := <-ch:
			if !ok {
				return o.Store.GetBooking(context.Background(), id)
			}
			if reached(models.BookingStatus(ev.ToStatus), want) {
				return o.Store.GetBooking(context.Background(), id)
			}
		}
	}
}

func reached(s, want models.BookingStatus) bool {
	return s == want || s.Terminal()
}
