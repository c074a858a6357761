package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

// Memory is a Store held in process memory. Transactions are fully serialized
// and applied copy-on-commit, so a failed unit of work leaves no trace. It backs
// tests and single-process development runs.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	bookings    map[string]models.Booking
	events      []models.BookingEvent
	offers      []models.NegotiationOffer
	intents     []models.PaymentIntent
	settlements []models.SettlementRecord
	rates       []models.ConversionRate
}

func NewMemory() *Memory {
	return &Memory{state: memState{bookings: map[string]models.Booking{}}}
}

func (s memState) clone() memState {
	out := memState{
		bookings:    make(map[string]models.Booking, len(s.bookings)),
		events:      append([]models.BookingEvent(nil), s.events...),
		offers:      append([]models.NegotiationOffer(nil), s.offers...),
		intents:     append([]models.PaymentIntent(nil), s.intents...),
		settlements: append([]models.SettlementRecord(nil), s.settlements...),
		rates:       append([]models.ConversionRate(nil), s.rates...),
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	return out
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := &memTx{state: m.state.clone()}
	if err := fn(work); err != nil {
		return err
	}
	m.state = work.state
	return nil
}

func (m *Memory) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return &b, nil
}

func (m *Memory) ListBookingEvents(ctx context.Context, bookingID string) ([]*models.BookingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BookingEvent
	for i := range m.state.events {
		if m.state.events[i].BookingID == bookingID {
			ev := m.state.events[i]
			out = append(out, &ev)
		}
	}
	return out, nil
}

func (m *Memory) ListOffers(ctx context.Context, bookingID string) ([]*models.NegotiationOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.NegotiationOffer
	for i := range m.state.offers {
		if m.state.offers[i].BookingID == bookingID {
			o := m.state.offers[i]
			out = append(out, &o)
		}
	}
	return out, nil
}

func (m *Memory) ListIntents(ctx context.Context, bookingID string) ([]*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentIntent
	for i := range m.state.intents {
		if m.state.intents[i].BookingID == bookingID {
			p := m.state.intents[i]
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *Memory) ListSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).BookingSettlements(ctx, bookingID)
}

func (m *Memory) ListSubmittedSettlements(ctx context.Context) ([]*models.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SettlementRecord
	for i := range m.state.settlements {
		if m.state.settlements[i].Status == models.SettlementSubmitted {
			r := m.state.settlements[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *Memory) ListBookingsWithOfferExpiredBefore(ctx context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, o := range m.state.offers {
		if o.Status != models.OfferOpen || !o.ExpiresAt.Before(before) {
			continue
		}
		if b, ok := m.state.bookings[o.BookingID]; ok && b.Status == models.StatusPendingNegotiation {
			out = append(out, o.BookingID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ListBookingsCheckedOutBefore(ctx context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, b := range m.state.bookings {
		if b.Status == models.StatusTenantCheckedOut && b.TenantCheckedOutAt != nil && b.TenantCheckedOutAt.Before(before) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ExpireIntents(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.state.intents {
		p := &m.state.intents[i]
		if p.Status == models.IntentActive && p.Expired(now) {
			p.Status = models.IntentExpired
			n++
		}
	}
	return n, nil
}

func (m *Memory) LatestRate(ctx context.Context, fiat, symbol string) (*models.ConversionRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.ConversionRate
	for i := range m.state.rates {
		r := m.state.rates[i]
		if r.FiatCurrency != fiat || r.Symbol != symbol {
			continue
		}
		if latest == nil || !r.EffectiveAt.Before(latest.EffectiveAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("no conversion rate for %s/%s", fiat, symbol)
	}
	return latest, nil
}

func (m *Memory) InsertRate(ctx context.Context, rate *models.ConversionRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rates = append(m.state.rates, *rate)
	return nil
}

type memTx struct {
	state memState
}

// Locks are implicit: Memory.InTx already runs one transaction at a time.
func (t *memTx) LockProperty(ctx context.Context, propertyID string) error { return nil }

func (t *memTx) LockBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := t.state.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return &b, nil
}

func (t *memTx) FindOverlapping(ctx context.Context, propertyID string, checkIn, checkOut time.Time, excludeID string) ([]string, error) {
	var out []string
	for id, b := range t.state.bookings {
		if id == excludeID || b.PropertyID != propertyID || !holdsCalendar(b.Status) {
			continue
		}
		if b.Overlaps(checkIn, checkOut) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if _, ok := t.state.bookings[b.ID]; ok {
		return apperr.Conflict("booking %s already exists", b.ID)
	}
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	if _, ok := t.state.bookings[b.ID]; !ok {
		return apperr.NotFound("booking %s not found", b.ID)
	}
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, ev *models.BookingEvent) error {
	t.state.events = append(t.state.events, *ev)
	return nil
}

func (t *memTx) OpenOffer(ctx context.Context, bookingID string) (*models.NegotiationOffer, error) {
	for i := len(t.state.offers) - 1; i >= 0; i-- {
		o := t.state.offers[i]
		if o.BookingID == bookingID && o.Status == models.OfferOpen {
			return &o, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertOffer(ctx context.Context, o *models.NegotiationOffer) error {
	t.state.offers = append(t.state.offers, *o)
	return nil
}

func (t *memTx) UpdateOffer(ctx context.Context, o *models.NegotiationOffer) error {
	for i := range t.state.offers {
		if t.state.offers[i].ID == o.ID {
			t.state.offers[i] = *o
			return nil
		}
	}
	return apperr.NotFound("offer %s not found", o.ID)
}

func (t *memTx) ActiveIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	for i := len(t.state.intents) - 1; i >= 0; i-- {
		p := t.state.intents[i]
		if p.BookingID == bookingID && p.Status == models.IntentActive {
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	for i := range t.state.intents {
		if t.state.intents[i].ID == id {
			p := t.state.intents[i]
			return &p, nil
		}
	}
	return nil, apperr.NotFound("payment intent %s not found", id)
}

func (t *memTx) InsertIntent(ctx context.Context, p *models.PaymentIntent) error {
	t.state.intents = append(t.state.intents, *p)
	return nil
}

func (t *memTx) UpdateIntentStatus(ctx context.Context, id string, status models.IntentStatus) error {
	for i := range t.state.intents {
		if t.state.intents[i].ID == id {
			t.state.intents[i].Status = status
			return nil
		}
	}
	return apperr.NotFound("payment intent %s not found", id)
}

func (t *memTx) SettlementByTxHash(ctx context.Context, txHash string) (*models.SettlementRecord, error) {
	for i := range t.state.settlements {
		if t.state.settlements[i].TxHash == txHash {
			r := t.state.settlements[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (t *memTx) BookingSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error) {
	var out []*models.SettlementRecord
	for i := range t.state.settlements {
		if t.state.settlements[i].BookingID == bookingID {
			r := t.state.settlements[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

func (t *memTx) InsertSettlement(ctx context.Context, r *models.SettlementRecord) error {
	for _, existing := range t.state.settlements {
		if existing.TxHash == r.TxHash {
			return apperr.Conflict("transaction %s already recorded", r.TxHash)
		}
	}
	t.state.settlements = append(t.state.settlements, *r)
	return nil
}

func (t *memTx) UpdateSettlement(ctx context.Context, r *models.SettlementRecord) error {
	for i := range t.state.settlements {
		if t.state.settlements[i].ID == r.ID {
			t.state.settlements[i] = *r
			return nil
		}
	}
	return apperr.NotFound("settlement %s not found", r.ID)
}

func holdsCalendar(s models.BookingStatus) bool {
	for _, h := range models.CalendarHoldingStatuses {
		if s == h {
			return true
		}
	}
	return false
}
