package worker

import (
	"context"
	"time"

	"BookingSettlement/internal/chain"
)

const wsRetryDelay = 3 * time.Second

// RunWS follows newHeads on the configured endpoints, moving to the next one
// after WSFailoverThreshold consecutive failures.
func (w *Worker) RunWS(ctx context.Context) {
	if len(w.WSEndpoints) == 0 {
		w.log().Info("ws disabled: no ws endpoints")
		return
	}
	threshold := w.WSFailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}

	idx, failures := 0, 0
	for {
		endpoint := w.WSEndpoints[idx]
		gotHead, err := w.followHeads(ctx, endpoint)
		if ctx.Err() != nil {
			return
		}
		if gotHead {
			failures = 0
		}
		failures++
		w.log().WithError(err).WithField("endpoint", endpoint).Warn("ws connection lost")
		if failures >= threshold && len(w.WSEndpoints) > 1 {
			idx = (idx + 1) % len(w.WSEndpoints)
			failures = 0
			w.log().WithField("endpoint", w.WSEndpoints[idx]).Info("ws failover")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsRetryDelay):
		}
	}
}

// followHeads blocks until the connection fails or ctx is done.
func (w *Worker) followHeads(ctx context.Context, endpoint string) (bool, error) {
	client := chain.NewWSClient(endpoint)
	if err := client.Connect(ctx); err != nil {
		return false, err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, client.Close)
	defer stop()

	if err := client.SubscribeNewHeads(); err != nil {
		return false, err
	}
	w.log().WithField("endpoint", endpoint).Info("ws connected")

	gotHead := false
	for {
		msg, err := client.Read()
		if err != nil {
			return gotHead, err
		}
		height, ok, err := chain.ParseHead(msg)
		if err != nil {
			w.log().WithError(err).Warn("ws parse failed")
			continue
		}
		if !ok {
			continue
		}
		gotHead = true
		w.log().WithField("height", height).Debug("new head")
		w.Trigger()
	}
}
