package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/payments"
	"BookingSettlement/internal/services"
)

// Bookings is the slice of the orchestrator the watcher drives.
type Bookings interface {
	ExpireIntents(ctx context.Context) (int64, error)
	SweepExpiredNegotiations(ctx context.Context) (int, error)
	SweepDueCheckouts(ctx context.Context) (int, error)
	PendingSettlements(ctx context.Context) ([]services.PendingSettlement, error)
	Confirm(ctx context.Context, bookingID, txHash string, confirmations int64) (*models.Booking, error)
	MarkFailed(ctx context.Context, bookingID, txHash, reason string) error
}

type Worker struct {
	Bookings            Bookings
	Chain               chain.Client
	Addresses           chain.AddressValidator
	Interval            time.Duration
	SettlementTimeout   time.Duration
	WSEndpoints         []string
	WSFailoverThreshold int
	Log                 logrus.FieldLogger
	Now                 func() time.Time

	kick chan struct{}
}

// Run ticks until ctx is done. New block headers from the websocket feed
// trigger an extra tick; the interval is the fallback.
func (w *Worker) Run(ctx context.Context) {
	w.kick = make(chan struct{}, 1)
	go w.RunWS(ctx)

	interval := w.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			w.log().WithError(err).Error("sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.kick:
		}
	}
}

// Trigger asks Run for an immediate tick. Requests coalesce while one is
// already pending.
func (w *Worker) Trigger() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// SyncOnce runs the expiry sweeps, then pushes the chain's view of every
// submitted transaction to the orchestrator.
func (w *Worker) SyncOnce(ctx context.Context) error {
	log := w.log()
	if n, err := w.Bookings.ExpireIntents(ctx); err != nil {
		return err
	} else if n > 0 {
		log.WithField("count", n).Info("payment intents expired")
	}
	if n, err := w.Bookings.SweepExpiredNegotiations(ctx); err != nil {
		return err
	} else if n > 0 {
		log.WithField("count", n).Info("lapsed negotiations swept")
	}
	if n, err := w.Bookings.SweepDueCheckouts(ctx); err != nil {
		return err
	} else if n > 0 {
		log.WithField("count", n).Info("checkouts auto-completed")
	}

	pending, err := w.Bookings.PendingSettlements(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	latest, err := w.Chain.LatestHeight(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"latest": latest, "pending": len(pending)}).Debug("reconciling settlements")
	for _, p := range pending {
		if err := w.settle(ctx, p, latest); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"booking_id": p.Record.BookingID,
				"tx_hash":    p.Record.TxHash,
			}).Warn("settle failed")
		}
	}
	return nil
}

func (w *Worker) settle(ctx context.Context, p services.PendingSettlement, latest int64) error {
	rec := p.Record
	receipt, err := w.Chain.Receipt(ctx, rec.TxHash)
	if err != nil {
		return err
	}
	var tx *chain.Tx
	if receipt != nil {
		if tx, err = w.Chain.TxByHash(ctx, rec.TxHash); err != nil {
			return err
		}
	}

	fields := logrus.Fields{"booking_id": rec.BookingID, "tx_hash": rec.TxHash}
	verdict, reason := payments.Check(p.Intent, tx, receipt, w.Addresses)
	switch verdict {
	case payments.Pending:
		if w.SettlementTimeout > 0 && w.now().Sub(rec.SubmittedAt) > w.SettlementTimeout {
			w.log().WithFields(fields).WithField("submitted_at", rec.SubmittedAt).Warn("transaction still not mined")
		}
		return nil
	case payments.Invalid:
		return w.Bookings.MarkFailed(ctx, rec.BookingID, rec.TxHash, reason)
	}

	depth := payments.Depth(latest, receipt)
	if _, err := w.Bookings.Confirm(ctx, rec.BookingID, rec.TxHash, depth); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			w.log().WithFields(fields).WithError(err).Info("settlement rejected")
			return nil
		}
		return err
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func (w *Worker) log() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log
	}
	return logging.Discard()
}
