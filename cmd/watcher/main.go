package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/app"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/config"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("config load failed: %v", err)
	}
	log, closer := logging.New("booking-watcher", logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	rpc, err := chain.NewMultiRPCClient(cfg.Chain.RPCEndpoints, cfg.Worker.RPCFailoverThreshold)
	if err != nil {
		log.WithError(err).Fatal("rpc client init failed")
	}
	wsEndpoints := chain.WSEndpoints(cfg.Chain.WSEndpoints, cfg.Chain.RPCEndpoints)
	if len(wsEndpoints) > 0 {
		log.WithField("endpoints", wsEndpoints).Info("ws endpoints")
	}

	w := &worker.Worker{
		Bookings:            a.Bookings,
		Chain:               rpc,
		Addresses:           a.Addresses,
		Interval:            time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		SettlementTimeout:   time.Duration(cfg.Payments.SettlementTimeoutMinutes) * time.Minute,
		WSEndpoints:         wsEndpoints,
		WSFailoverThreshold: cfg.Worker.WSFailoverThreshold,
		Log:                 log.WithField("component", "watcher"),
	}

	log.WithFields(logrus.Fields{"rpc": cfg.Chain.RPCEndpoints, "confirm_depth": cfg.Chain.ConfirmDepth}).Info("watcher started")
	w.Run(ctx)
	log.Info("watcher stopped")
}
