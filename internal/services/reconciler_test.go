package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

// awaitingPayment returns a base-price booking with an active intent.
func (h *harness) awaitingPayment(t *testing.T, in, out int) (*models.Booking, *models.PaymentIntent) {
	t.Helper()
	b := h.create(t, in, out, nil)
	intent, err := h.o.BuildIntent(context.Background(), tenant, b.ID)
	require.NoError(t, err)
	return b, intent
}

func (h *harness) settlement(t *testing.T, bookingID, txHash string) *models.SettlementRecord {
	t.Helper()
	recs, err := h.store.ListSettlements(context.Background(), bookingID)
	require.NoError(t, err)
	for _, r := range recs {
		if r.TxHash == txHash {
			return r
		}
	}
	t.Fatalf("no settlement %s for %s", txHash, bookingID)
	return nil
}

func TestConfirmIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, intent := h.awaitingPayment(t, 1, 6)

	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)

	got, err := h.o.Confirm(ctx, b.ID, txA, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)
	assert.Equal(t, int64(3), h.settlement(t, b.ID, txA).Confirmations)

	// a lagging report never lowers the depth
	_, err = h.o.Confirm(ctx, b.ID, txA, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.settlement(t, b.ID, txA).Confirmations)

	for _, depth := range []int64{12, 12, 40} {
		got, err = h.o.Confirm(ctx, b.ID, txA, depth)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
	}
	require.NotNil(t, got.OnChainTxHash)
	assert.Equal(t, txA, *got.OnChainTxHash)

	rec := h.settlement(t, b.ID, txA)
	assert.Equal(t, models.SettlementFinalized, rec.Status)
	assert.Equal(t, int64(12), rec.Confirmations)
	assert.NotNil(t, rec.FinalizedAt)

	st, err := h.o.Payment(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, st.Intent.ID)
	assert.Equal(t, models.IntentConsumed, st.Intent.Status)
	assert.Len(t, st.Settlements, 1)

	evs, err := h.o.History(ctx, tenant, b.ID)
	require.NoError(t, err)
	confirmed := 0
	for _, ev := range evs {
		if ev.Event == string(EventPaymentConfirmed) {
			confirmed++
			assert.Equal(t, SystemActor, ev.ActorID)
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestSubmitTransactionRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.SubmitTransaction(ctx, tenant, "whatever", "0x12")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	noIntent := h.create(t, 20, 22, nil)
	_, err = h.o.SubmitTransaction(ctx, tenant, noIntent.ID, txB)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	b, _ := h.awaitingPayment(t, 1, 6)
	_, err = h.o.SubmitTransaction(ctx, host, b.ID, txA)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, strings.ToUpper(txA[2:]))
	assert.ErrorIs(t, err, apperr.ErrValidation, "hash without 0x prefix")
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, "0x"+strings.ToUpper(txA[2:]))
	require.NoError(t, err, "same hash in another case is a resubmission")

	recs, err := h.store.ListSettlements(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txB)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSuperseded, h.settlement(t, b.ID, txA).Status)
	assert.Equal(t, models.SettlementSubmitted, h.settlement(t, b.ID, txB).Status)

	other, _ := h.awaitingPayment(t, 10, 12)
	_, err = h.o.SubmitTransaction(ctx, tenant, other.ID, txA)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSubmitAfterIntentLapsed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, _ := h.awaitingPayment(t, 1, 6)

	h.clock.Advance(31 * time.Minute)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	assert.NoError(t, err)
}

func TestSupersededTransactionCanStillSettle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, _ := h.awaitingPayment(t, 1, 6)

	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txB)
	require.NoError(t, err)

	// the first broadcast is the one that landed
	got, err := h.o.Confirm(ctx, b.ID, txA, 12)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, models.SettlementFinalized, h.settlement(t, b.ID, txA).Status)
	assert.Equal(t, models.SettlementSuperseded, h.settlement(t, b.ID, txB).Status)

	_, err = h.o.Confirm(ctx, b.ID, txB, 12)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, models.SettlementRejected, h.settlement(t, b.ID, txB).Status)
}

func TestLateTransactionForReplacedIntentIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, first := h.awaitingPayment(t, 1, 6)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	second, err := h.o.BuildIntent(ctx, tenant, b.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = h.o.Confirm(ctx, b.ID, txA, 12)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	rec := h.settlement(t, b.ID, txA)
	assert.Equal(t, models.SettlementRejected, rec.Status)
	require.NotNil(t, rec.FailureReason)

	got, err := h.o.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingPayment, got.Status)

	_, err = h.o.Confirm(ctx, b.ID, txA, 20)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestTransactionSubmittedInTimeSettlesAfterExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, intent := h.awaitingPayment(t, 1, 6)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	n, err := h.o.ExpireIntents(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := h.o.Confirm(ctx, b.ID, txA, 12)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	st, err := h.o.Payment(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, st.Intent.ID)
	assert.Equal(t, models.IntentConsumed, st.Intent.Status)
}

func TestConfirmAfterCancelIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, _ := h.awaitingPayment(t, 1, 6)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)
	_, err = h.o.Cancel(ctx, admin, b.ID)
	require.NoError(t, err)

	_, err = h.o.Confirm(ctx, b.ID, txA, 12)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, models.SettlementRejected, h.settlement(t, b.ID, txA).Status)

	got, err := h.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestConfirmInputErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, _ := h.awaitingPayment(t, 1, 6)
	other, _ := h.awaitingPayment(t, 10, 12)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)

	_, err = h.o.Confirm(ctx, b.ID, txA, -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.o.Confirm(ctx, b.ID, txB, 12)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = h.o.Confirm(ctx, other.ID, txA, 12)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = h.o.Confirm(ctx, "missing", txA, 12)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, _ := h.awaitingPayment(t, 1, 6)
	_, err := h.o.SubmitTransaction(ctx, tenant, b.ID, txA)
	require.NoError(t, err)

	require.NoError(t, h.o.MarkFailed(ctx, b.ID, txA, "reverted"))
	require.NoError(t, h.o.MarkFailed(ctx, b.ID, txA, "reverted"))
	rec := h.settlement(t, b.ID, txA)
	assert.Equal(t, models.SettlementFailed, rec.Status)
	require.NotNil(t, rec.FailureReason)
	assert.Equal(t, "reverted", *rec.FailureReason)

	_, err = h.o.Confirm(ctx, b.ID, txA, 12)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// the tenant can retry with a new transaction
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txB)
	require.NoError(t, err)
	got, err := h.o.Confirm(ctx, b.ID, txB, 12)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	assert.ErrorIs(t, h.o.MarkFailed(ctx, b.ID, txB, "late"), apperr.ErrConflict)
	assert.ErrorIs(t, h.o.MarkFailed(ctx, b.ID, "0x"+strings.Repeat("c", 64), "x"), apperr.ErrNotFound)
}

func TestPendingSettlements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, intentA := h.awaitingPayment(t, 1, 6)
	b, intentB := h.awaitingPayment(t, 10, 12)
	_, err := h.o.SubmitTransaction(ctx, tenant, a.ID, txA)
	require.NoError(t, err)
	_, err = h.o.SubmitTransaction(ctx, tenant, b.ID, txB)
	require.NoError(t, err)

	pending, err := h.o.PendingSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	byHash := map[string]PendingSettlement{}
	for _, p := range pending {
		byHash[p.Record.TxHash] = p
	}
	assert.Equal(t, intentA.ID, byHash[txA].Intent.ID)
	assert.Equal(t, intentB.ID, byHash[txB].Intent.ID)
	assert.Equal(t, "34285714285714286", byHash[txB].Intent.Amount)

	_, err = h.o.Confirm(ctx, a.ID, txA, 12)
	require.NoError(t, err)
	pending, err = h.o.PendingSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txB, pending[0].Record.TxHash)
}
