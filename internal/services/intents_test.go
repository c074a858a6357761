package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/pricing"
	"BookingSettlement/internal/store"
)

func TestBuildIntentIsIdempotentWhileActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.create(t, 1, 6, nil)

	first, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentActive, first.Status)
	assert.Equal(t, hostWallet, first.RecipientAddress)
	assert.Equal(t, tenantWallet, first.SenderAddress)
	assert.Equal(t, "85714285714285715", first.Amount)
	assert.Equal(t, "ETH", first.Symbol)
	assert.Equal(t, 18, first.Decimals)
	assert.Equal(t, "1", first.ChainID)
	assert.True(t, first.FiatAmount.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, "config", first.RateSource)
	assert.Equal(t, start.Add(30*time.Minute), first.ExpiresAt)

	h.clock.Advance(10 * time.Minute)
	again, err := h.o.BuildIntent(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Amount, again.Amount)
}

func TestBuildIntentReissuesAfterExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.create(t, 1, 6, nil)

	first, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	second, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), second.ExpiresAt)

	st, err := h.o.Payment(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.Len(t, st.Intents, 2)
	assert.Equal(t, models.IntentExpired, st.Intents[0].Status)
	assert.Equal(t, models.IntentActive, st.Intents[1].Status)
	assert.Equal(t, second.ID, st.Intent.ID)
	assert.Empty(t, st.Settlements)
}

func TestBuildIntentUsesNegotiatedPriceAndCurrentRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.create(t, 1, 6, mad("2750"))
	_, err := h.o.Accept(ctx, host, b.ID)
	require.NoError(t, err)

	intent, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "78571428571428572", intent.Amount)
	assert.True(t, intent.FiatAmount.Equal(decimal.NewFromInt(2750)))

	other := h.create(t, 10, 15, nil)
	_, err = h.o.Rates.(pricing.Service).SetRate(ctx, decimal.NewFromInt(36000), "")
	require.NoError(t, err)

	intent, err = h.o.BuildIntent(ctx, tenant, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "83333333333333334", intent.Amount)
	assert.True(t, intent.Rate.Equal(decimal.NewFromInt(36000)))
	assert.Equal(t, "admin", intent.RateSource)
}

func TestBuildIntentNeedsWallets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	noWallet, err := h.o.Create(ctx, tenant, CreateRequest{PropertyID: "villa", CheckIn: day(1), CheckOut: day(3), Guests: 1})
	require.NoError(t, err)
	_, err = h.o.BuildIntent(ctx, tenant, noWallet.ID)
	assert.ErrorIs(t, err, apperr.ErrMissingWallet)

	// a host without a wallet on file at booking time is looked up again
	h.catalg.props["villa"].OwnerWalletAddress = ""
	lazy := h.create(t, 5, 8, nil)
	assert.Empty(t, lazy.HostWalletAddress)
	_, err = h.o.BuildIntent(ctx, tenant, lazy.ID)
	assert.ErrorIs(t, err, apperr.ErrMissingWallet)

	h.catalg.props["villa"].OwnerWalletAddress = hostWallet
	intent, err := h.o.BuildIntent(ctx, tenant, lazy.ID)
	require.NoError(t, err)
	assert.Equal(t, hostWallet, intent.RecipientAddress)
	stored, err := h.store.GetBooking(ctx, lazy.ID)
	require.NoError(t, err)
	assert.Equal(t, hostWallet, stored.HostWalletAddress)

	h.catalg.props["villa"].OwnerWalletAddress = "0x1234"
	broken := h.create(t, 10, 12, nil)
	_, err = h.o.BuildIntent(ctx, tenant, broken.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBuildIntentGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b := h.create(t, 1, 6, nil)
	_, err := h.o.BuildIntent(ctx, host, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	negotiating := h.create(t, 10, 12, mad("1100"))
	_, err = h.o.BuildIntent(ctx, tenant, negotiating.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	free := &models.Booking{
		ID:                  uuid.NewString(),
		TenantID:            tenant.UserID,
		HostID:              host.UserID,
		PropertyID:          "villa",
		CheckInDate:         day(20),
		CheckOutDate:        day(21),
		Nights:              1,
		NumberOfGuests:      1,
		Currency:            "MAD",
		BasePrice:           decimal.Zero,
		Status:              models.StatusPendingPayment,
		TenantWalletAddress: tenantWallet,
		HostWalletAddress:   hostWallet,
		CreatedAt:           start,
		UpdatedAt:           start,
	}
	require.NoError(t, h.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertBooking(ctx, free)
	}))
	_, err = h.o.BuildIntent(ctx, tenant, free.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidPrice)

	_, err = h.o.BuildIntent(ctx, tenant, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBuildIntentWithoutRate(t *testing.T) {
	h := newHarness(t)
	rates := h.o.Rates.(pricing.Service)
	rates.FallbackRate = decimal.Zero
	h.o.Rates = rates
	b := h.create(t, 1, 6, nil)

	_, err := h.o.BuildIntent(context.Background(), tenant, b.ID)
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestExpireIntentsInBulk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, 1, 3, nil)
	b := h.create(t, 5, 7, nil)
	_, err := h.o.BuildIntent(ctx, tenant, a.ID)
	require.NoError(t, err)
	h.clock.Advance(20 * time.Minute)
	_, err = h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	n, err := h.o.ExpireIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := h.o.Payment(ctx, tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, st.Intent.Status)
}
