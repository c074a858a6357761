package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"BookingSettlement/internal/catalog"
	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/config"
	"BookingSettlement/internal/db"
	"BookingSettlement/internal/depclient"
	"BookingSettlement/internal/events"
	"BookingSettlement/internal/pricing"
	"BookingSettlement/internal/reclamation"
	"BookingSettlement/internal/services"
	"BookingSettlement/internal/store"
)

// App holds the components shared by the API and the watcher.
type App struct {
	Pool      *pgxpool.Pool
	Bookings  *services.Orchestrator
	Rates     pricing.Service
	Addresses chain.AddressValidator

	redis *redis.Client
}

// Build connects to Postgres and wires the orchestrator. When redis.addr is
// set, booking events are relayed through Redis; Start must then be called to
// receive them.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	rate, err := decimal.NewFromString(cfg.Pricing.Rate)
	if err != nil {
		return nil, fmt.Errorf("pricing.rate: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	st := store.New(pool)

	a := &App{
		Pool:      pool,
		Addresses: chain.AddressValidator{Format: cfg.Chain.AddressFormat, Prefix: cfg.Chain.Bech32Prefix},
		Rates: pricing.Service{
			Store:        st,
			FiatCurrency: cfg.Pricing.FiatCurrency,
			Symbol:       cfg.Chain.Symbol,
			FallbackRate: rate,
		},
	}

	var bus events.Bus = events.NewLocal()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		bus = events.NewRedis(a.redis, cfg.Redis.Channel, log.WithField("component", "events"))
	}

	a.Bookings = &services.Orchestrator{
		Store:             st,
		Catalog:           catalog.Client{HTTP: depclient.New("catalog", cfg.Catalog, log)},
		Reclamations:      reclamation.Client{HTTP: depclient.New("reclamations", cfg.Reclamation, log)},
		Rates:             a.Rates,
		Events:            bus,
		Addresses:         a.Addresses,
		Log:               log.WithField("component", "bookings"),
		ChainID:           cfg.Chain.ChainID,
		Symbol:            cfg.Chain.Symbol,
		Decimals:          cfg.Chain.Decimals,
		ConfirmThreshold:  int64(cfg.Chain.ConfirmDepth),
		OfferTTL:          time.Duration(cfg.Negotiation.OfferTTLMinutes) * time.Minute,
		OfferGrace:        time.Duration(cfg.Negotiation.GraceMinutes) * time.Minute,
		IntentTTL:         time.Duration(cfg.Payments.IntentTTLMinutes) * time.Minute,
		AutoCompleteAfter: time.Duration(cfg.Checkout.AutoCompleteHours) * time.Hour,
	}
	return a, nil
}

// Start relays events published by other processes to local subscribers.
func (a *App) Start(ctx context.Context) {
	if r, ok := a.Bookings.Events.(*events.Redis); ok {
		go r.Run(ctx)
	}
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Pool.Close()
}
