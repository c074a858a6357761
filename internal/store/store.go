package store

import (
	"context"
	"time"

	"BookingSettlement/internal/models"
)

// Store is the persistence boundary of the orchestrator. Every mutation happens
// inside InTx; reads outside a transaction see committed state only.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookingEvents(ctx context.Context, bookingID string) ([]*models.BookingEvent, error)
	ListOffers(ctx context.Context, bookingID string) ([]*models.NegotiationOffer, error)
	ListIntents(ctx context.Context, bookingID string) ([]*models.PaymentIntent, error)
	ListSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error)

	// Sweep queries used by the watcher.
	ListSubmittedSettlements(ctx context.Context) ([]*models.SettlementRecord, error)
	ListBookingsWithOfferExpiredBefore(ctx context.Context, before time.Time) ([]string, error)
	ListBookingsCheckedOutBefore(ctx context.Context, before time.Time) ([]string, error)
	ExpireIntents(ctx context.Context, now time.Time) (int64, error)

	LatestRate(ctx context.Context, fiat, symbol string) (*models.ConversionRate, error)
	InsertRate(ctx context.Context, rate *models.ConversionRate) error
}

// Tx is a unit of work. LockBooking and LockProperty hold their locks until the
// transaction ends.
type Tx interface {
	LockProperty(ctx context.Context, propertyID string) error
	LockBooking(ctx context.Context, id string) (*models.Booking, error)
	FindOverlapping(ctx context.Context, propertyID string, checkIn, checkOut time.Time, excludeID string) ([]string, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
	UpdateBooking(ctx context.Context, b *models.Booking) error
	InsertEvent(ctx context.Context, ev *models.BookingEvent) error

	OpenOffer(ctx context.Context, bookingID string) (*models.NegotiationOffer, error)
	InsertOffer(ctx context.Context, o *models.NegotiationOffer) error
	UpdateOffer(ctx context.Context, o *models.NegotiationOffer) error

	ActiveIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	InsertIntent(ctx context.Context, p *models.PaymentIntent) error
	UpdateIntentStatus(ctx context.Context, id string, status models.IntentStatus) error

	SettlementByTxHash(ctx context.Context, txHash string) (*models.SettlementRecord, error)
	BookingSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error)
	InsertSettlement(ctx context.Context, r *models.SettlementRecord) error
	UpdateSettlement(ctx context.Context, r *models.SettlementRecord) error
}
