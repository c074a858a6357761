package events

import (
	"context"
	"sync"
	"time"

	"BookingSettlement/internal/models"
)

// Event is the wire form of a committed booking status change.
type Event struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"bookingId"`
	Event      string    `json:"event"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	ActorID    string    `json:"actorId"`
	At         time.Time `json:"at"`
}

func FromBookingEvent(ev *models.BookingEvent) Event {
	return Event{
		ID:         ev.ID,
		BookingID:  ev.BookingID,
		Event:      ev.Event,
		FromStatus: string(ev.FromStatus),
		ToStatus:   string(ev.ToStatus),
		ActorID:    ev.ActorID,
		At:         ev.At,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	// Subscribe delivers events for bookingID until the returned cancel is
	// called or ctx is done. An empty bookingID receives every booking.
	Subscribe(ctx context.Context, bookingID string) (<-chan Event, func())
}

type Bus interface {
	Publisher
	Subscriber
}

// Local fans events out to in-process subscribers. Slow subscribers drop
// events rather than block publishers.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]localSub
}

type localSub struct {
	bookingID string
	ch        chan Event
}

func NewLocal() *Local {
	return &Local{subs: map[int]localSub{}}
}

func (l *Local) Publish(ctx context.Context, ev Event) error {
	l.deliver(ev)
	return nil
}

func (l *Local) deliver(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		if s.bookingID != "" && s.bookingID != ev.BookingID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func (l *Local) Subscribe(ctx context.Context, bookingID string) (<-chan Event, func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	ch := make(chan Event, 16)
	l.subs[id] = localSub{bookingID: bookingID, ch: ch}
	l.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			close(ch)
			l.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel
}
