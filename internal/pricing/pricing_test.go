package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/store"
)

func TestToBaseUnitsRoundsUp(t *testing.T) {
	got, err := ToBaseUnits(decimal.RequireFromString("2750"), decimal.RequireFromString("35000"), 18)
	require.NoError(t, err)
	assert.Equal(t, "78571428571428572", got)

	got, err = ToBaseUnits(decimal.RequireFromString("3000"), decimal.RequireFromString("30000"), 18)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", got)

	got, err = ToBaseUnits(decimal.RequireFromString("1"), decimal.RequireFromString("3"), 6)
	require.NoError(t, err)
	assert.Equal(t, "333334", got)
}

func TestToBaseUnitsRejectsNonPositive(t *testing.T) {
	_, err := ToBaseUnits(decimal.Zero, decimal.NewFromInt(1), 18)
	assert.Error(t, err)
	_, err = ToBaseUnits(decimal.NewFromInt(1), decimal.Zero, 18)
	assert.Error(t, err)
}

func TestSnapshotFallsBackToConfig(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := Service{
		Store:        store.NewMemory(),
		FiatCurrency: "MAD",
		Symbol:       "ETH",
		FallbackRate: decimal.NewFromInt(35000),
		Now:          func() time.Time { return now },
	}

	snap, err := svc.CurrentSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "config", snap.Source)
	assert.True(t, snap.Rate.Equal(decimal.NewFromInt(35000)))
	assert.Equal(t, now, snap.At)
}

func TestSetRateWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := Service{
		Store:        store.NewMemory(),
		FiatCurrency: "MAD",
		Symbol:       "ETH",
		FallbackRate: decimal.NewFromInt(35000),
		Now:          func() time.Time { return now },
	}

	_, err := svc.SetRate(context.Background(), decimal.NewFromInt(36000), "")
	require.NoError(t, err)

	snap, err := svc.CurrentSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", snap.Source)
	assert.True(t, snap.Rate.Equal(decimal.NewFromInt(36000)))

	_, err = svc.SetRate(context.Background(), decimal.NewFromInt(-1), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSnapshotWithoutAnyRate(t *testing.T) {
	svc := Service{Store: store.NewMemory(), FiatCurrency: "MAD", Symbol: "ETH"}
	_, err := svc.CurrentSnapshot(context.Background())
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}
