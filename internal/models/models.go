package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusRequested          BookingStatus = "REQUESTED"
	StatusPendingNegotiation BookingStatus = "PENDING_NEGOTIATION"
	StatusPendingPayment     BookingStatus = "PENDING_PAYMENT"
	StatusConfirmed          BookingStatus = "CONFIRMED"
	StatusTenantCheckedOut   BookingStatus = "TENANT_CHECKED_OUT"
	StatusCompleted          BookingStatus = "COMPLETED"
	StatusCancelled          BookingStatus = "CANCELLED"
	StatusRejected           BookingStatus = "REJECTED"
)

func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// CalendarHoldingStatuses block other bookings of the same property from
// overlapping dates.
var CalendarHoldingStatuses = []BookingStatus{
	StatusPendingPayment,
	StatusConfirmed,
	StatusTenantCheckedOut,
}

type Role string

const (
	RoleTenant  Role = "TENANT"
	RoleHost    Role = "HOST"
	RoleAdmin   Role = "ADMIN"
	RoleWatcher Role = "WATCHER"
)

type Booking struct {
	ID                  string
	TenantID            string
	HostID              string
	PropertyID          string
	CheckInDate         time.Time
	CheckOutDate        time.Time
	Nights              int
	NumberOfGuests      int
	Currency            string
	BasePrice           decimal.Decimal
	RequestedPrice      decimal.NullDecimal
	Status              BookingStatus
	TenantWalletAddress string
	HostWalletAddress   string
	OnChainTxHash       *string
	TenantCheckedOutAt  *time.Time
	CompletedAt         *time.Time
	CancelledBy         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FinalPrice is the negotiated price when one was agreed, the base price otherwise.
func (b *Booking) FinalPrice() decimal.Decimal {
	if b.RequestedPrice.Valid {
		return b.RequestedPrice.Decimal
	}
	return b.BasePrice
}

// Overlaps reports whether [in, out) intersects the booking's stay.
func (b *Booking) Overlaps(in, out time.Time) bool {
	return in.Before(b.CheckOutDate) && b.CheckInDate.Before(out)
}

type BookingEvent struct {
	ID         string
	BookingID  string
	Event      string
	FromStatus BookingStatus
	ToStatus   BookingStatus
	ActorID    string
	At         time.Time
}

type Party string

const (
	PartyTenant Party = "TENANT"
	PartyHost   Party = "HOST"
)

func (p Party) Counterpart() Party {
	if p == PartyTenant {
		return PartyHost
	}
	return PartyTenant
}

type OfferStatus string

const (
	OfferOpen       OfferStatus = "OPEN"
	OfferAccepted   OfferStatus = "ACCEPTED"
	OfferRejected   OfferStatus = "REJECTED"
	OfferSuperseded OfferStatus = "SUPERSEDED"
	OfferExpired    OfferStatus = "EXPIRED"
)

type NegotiationOffer struct {
	ID                      string
	BookingID               string
	ProposedPrice           decimal.Decimal
	ProposedBy              Party
	NegotiationPercentBound decimal.Decimal
	Status                  OfferStatus
	CreatedAt               time.Time
	ExpiresAt               time.Time
	ResolvedAt              *time.Time
}

func (o *NegotiationOffer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

type IntentStatus string

const (
	IntentActive     IntentStatus = "ACTIVE"
	IntentConsumed   IntentStatus = "CONSUMED"
	IntentSuperseded IntentStatus = "SUPERSEDED"
	IntentExpired    IntentStatus = "EXPIRED"
	IntentVoided     IntentStatus = "VOIDED"
)

type PaymentIntent struct {
	ID               string
	BookingID        string
	RecipientAddress string
	SenderAddress    string
	Amount           string
	Symbol           string
	Decimals         int
	ChainID          string
	FiatAmount       decimal.Decimal
	Currency         string
	Rate             decimal.Decimal
	RateSource       string
	RateAt           time.Time
	Status           IntentStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

func (p *PaymentIntent) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type SettlementStatus string

const (
	SettlementSubmitted  SettlementStatus = "SUBMITTED"
	SettlementSuperseded SettlementStatus = "SUPERSEDED"
	SettlementFinalized  SettlementStatus = "FINALIZED"
	SettlementFailed     SettlementStatus = "FAILED"
	SettlementRejected   SettlementStatus = "REJECTED"
)

type SettlementRecord struct {
	ID            string
	BookingID     string
	IntentID      string
	TxHash        string
	Status        SettlementStatus
	Confirmations int64
	FailureReason *string
	SubmittedAt   time.Time
	FinalizedAt   *time.Time
	UpdatedAt     time.Time
}

type ReclamationStatus string

const (
	ReclamationOpen     ReclamationStatus = "OPEN"
	ReclamationInReview ReclamationStatus = "IN_REVIEW"
	ReclamationResolved ReclamationStatus = "RESOLVED"
	ReclamationRejected ReclamationStatus = "REJECTED"
)

// Blocking reports whether the reclamation still gates booking completion.
func (s ReclamationStatus) Blocking() bool {
	return s == ReclamationOpen || s == ReclamationInReview
}

type Reclamation struct {
	ID              string            `json:"id"`
	BookingID       string            `json:"bookingId"`
	ComplainantID   string            `json:"complainantId"`
	ComplainantRole Role              `json:"complainantRole"`
	Type            string            `json:"type"`
	Status          ReclamationStatus `json:"status"`
	RefundAmount    *decimal.Decimal  `json:"refundAmount,omitempty"`
	PenaltyPoints   *int              `json:"penaltyPoints,omitempty"`
}

type ConversionRate struct {
	FiatCurrency string
	Symbol       string
	Rate         decimal.Decimal
	Source       string
	EffectiveAt  time.Time
}

// Property is the catalog's view of a listing, read-only for this service.
type Property struct {
	ID                      string          `json:"id"`
	OwnerID                 string          `json:"ownerId"`
	NightlyPrice            decimal.Decimal `json:"nightlyPrice"`
	Currency                string          `json:"currency"`
	NegotiationPercentBound decimal.Decimal `json:"negotiationPercentage"`
	Capacity                int             `json:"capacity"`
	OwnerWalletAddress      string          `json:"ownerWalletAddress"`
	WeeklyDiscountPercent   decimal.Decimal `json:"weeklyDiscountPercent"`
	MonthlyDiscountPercent  decimal.Decimal `json:"monthlyDiscountPercent"`
}
