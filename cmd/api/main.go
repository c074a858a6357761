package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/app"
	"BookingSettlement/internal/config"
	internalhttp "BookingSettlement/internal/http"
	"BookingSettlement/internal/identity"
	"BookingSettlement/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("config load failed: %v", err)
	}
	log, closer := logging.New("booking-api", logging.Options{
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
	a.Start(ctx)

	verifier := identity.Verifier{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer}
	h := internalhttp.NewHandler(a.Bookings, a.Rates, time.Duration(cfg.Server.AwaitMaxSeconds)*time.Second, log.WithField("component", "http"))
	srv := internalhttp.NewServer(h, verifier)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	<-ctx.Done()

	ctxShutdown, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}
