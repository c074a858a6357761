package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/events"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/pricing"
	"BookingSettlement/internal/store"
)

const (
	hostWallet   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	tenantWallet = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	txA          = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txB          = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var (
	tenant   = identity.Principal{UserID: "tenant-1", Roles: []models.Role{models.RoleTenant}}
	tenant2  = identity.Principal{UserID: "tenant-2", Roles: []models.Role{models.RoleTenant}}
	host     = identity.Principal{UserID: "host-1", Roles: []models.Role{models.RoleHost}}
	admin    = identity.Principal{UserID: "admin-1", Roles: []models.Role{models.RoleAdmin}}
	outsider = identity.Principal{UserID: "someone", Roles: []models.Role{models.RoleTenant}}

	start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeCatalog struct {
	props map[string]*models.Property
	err   error
}

func (f *fakeCatalog) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.props[id]
	if !ok {
		return nil, apperr.NotFound("property %s not found", id)
	}
	cp := *p
	return &cp, nil
}

type fakeReclamations struct {
	mu   sync.Mutex
	list []models.Reclamation
	// filed replaces list once the current query has been answered.
	filed []models.Reclamation
}

func (f *fakeReclamations) ForBooking(ctx context.Context, bookingID string) ([]models.Reclamation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reclamation
	for _, r := range f.list {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	if f.filed != nil {
		f.list, f.filed = f.filed, nil
	}
	return out, nil
}

func (f *fakeReclamations) set(list ...models.Reclamation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = list
}

type harness struct {
	o      *Orchestrator
	store  *store.Memory
	clock  *clock
	recl   *fakeReclamations
	catalg *fakeCatalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	clk := &clock{t: start}
	recl := &fakeReclamations{}
	cat := &fakeCatalog{props: map[string]*models.Property{
		"villa": {
			ID:                      "villa",
			OwnerID:                 host.UserID,
			NightlyPrice:            decimal.NewFromInt(600),
			Currency:                "MAD",
			NegotiationPercentBound: decimal.NewFromInt(10),
			Capacity:                4,
			OwnerWalletAddress:      hostWallet,
		},
		"studio": {
			ID:                     "studio",
			OwnerID:                host.UserID,
			NightlyPrice:           decimal.NewFromInt(100),
			Currency:               "MAD",
			Capacity:               2,
			OwnerWalletAddress:     hostWallet,
			WeeklyDiscountPercent:  decimal.NewFromInt(10),
			MonthlyDiscountPercent: decimal.NewFromInt(25),
		},
	}}
	o := &Orchestrator{
		Store:        st,
		Catalog:      cat,
		Reclamations: recl,
		Rates: pricing.Service{
			Store:        st,
			FiatCurrency: "MAD",
			Symbol:       "ETH",
			FallbackRate: decimal.NewFromInt(35000),
			Now:          clk.Now,
		},
		Events:            events.NewLocal(),
		Addresses:         chain.AddressValidator{Format: chain.FormatEVM},
		Log:               logging.Discard(),
		Now:               clk.Now,
		ChainID:           "1",
		Symbol:            "ETH",
		Decimals:          18,
		ConfirmThreshold:  12,
		OfferTTL:          48 * time.Hour,
		OfferGrace:        time.Hour,
		IntentTTL:         30 * time.Minute,
		AutoCompleteAfter: 72 * time.Hour,
	}
	return &harness{o: o, store: st, clock: clk, recl: recl, catalg: cat}
}

func day(d int) time.Time {
	return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
}

func mad(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (h *harness) create(t *testing.T, in, out int, offer *decimal.Decimal) *models.Booking {
	t.Helper()
	b, err := h.o.Create(context.Background(), tenant, CreateRequest{
		PropertyID:          "villa",
		CheckIn:             day(in),
		CheckOut:            day(out),
		Guests:              2,
		TenantWalletAddress: tenantWallet,
		RequestedPrice:      offer,
	})
	require.NoError(t, err)
	return b
}

// confirmed drives a fresh booking at base price all the way to CONFIRMED.
func (h *harness) confirmed(t *testing.T, in, out int) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := h.create(t, in, out, nil)
	_, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)
	b, err = h.o.Confirm(ctx, b.ID, txA, 12)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, b.Status)
	return b
}

func (h *harness) holding(t *testing.T, propertyID string, in, out int) []string {
	t.Helper()
	var ids []string
	err := h.store.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		ids, err = tx.FindOverlapping(context.Background(), propertyID, day(in), day(out), "")
		return err
	})
	require.NoError(t, err)
	return ids
}

func statuses(evs []*models.BookingEvent) []models.BookingStatus {
	out := make([]models.BookingStatus, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ToStatus)
	}
	return out
}
