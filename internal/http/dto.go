package http

import (
	"time"

	"github.com/shopspring/decimal"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/services"
)

const dateLayout = "2006-01-02"

type createBookingRequest struct {
	PropertyID          string           `json:"propertyId" validate:"required"`
	CheckInDate         string           `json:"checkInDate" validate:"required,datetime=2006-01-02"`
	CheckOutDate        string           `json:"checkOutDate" validate:"required,datetime=2006-01-02"`
	NumberOfGuests      int              `json:"numberOfGuests" validate:"required,min=1"`
	TenantWalletAddress string           `json:"tenantWalletAddress"`
	RequestedPrice      *decimal.Decimal `json:"requestedPrice"`
}

func (req createBookingRequest) toService() services.CreateRequest {
	in, _ := time.Parse(dateLayout, req.CheckInDate)
	out, _ := time.Parse(dateLayout, req.CheckOutDate)
	return services.CreateRequest{
		PropertyID:          req.PropertyID,
		CheckIn:             in,
		CheckOut:            out,
		Guests:              req.NumberOfGuests,
		TenantWalletAddress: req.TenantWalletAddress,
		RequestedPrice:      req.RequestedPrice,
	}
}

type editBookingRequest struct {
	CheckInDate         *string          `json:"checkInDate" validate:"omitempty,datetime=2006-01-02"`
	CheckOutDate        *string          `json:"checkOutDate" validate:"omitempty,datetime=2006-01-02"`
	NumberOfGuests      *int             `json:"numberOfGuests" validate:"omitempty,min=1"`
	TenantWalletAddress *string          `json:"tenantWalletAddress"`
	RequestedPrice      *decimal.Decimal `json:"requestedPrice"`
}

func (req editBookingRequest) toService() (services.EditRequest, error) {
	out := services.EditRequest{
		Guests:              req.NumberOfGuests,
		TenantWalletAddress: req.TenantWalletAddress,
		Price:               req.RequestedPrice,
	}
	if req.CheckInDate != nil {
		t, _ := time.Parse(dateLayout, *req.CheckInDate)
		out.CheckIn = &t
	}
	if req.CheckOutDate != nil {
		t, _ := time.Parse(dateLayout, *req.CheckOutDate)
		out.CheckOut = &t
	}
	if out == (services.EditRequest{}) {
		return out, apperr.Validation("nothing to change")
	}
	return out, nil
}

type negotiateRequest struct {
	Price *decimal.Decimal `json:"price" validate:"required"`
}

type intentRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
}

type txHashRequest struct {
	TxHash string `json:"txHash" validate:"required"`
}

// confirmationRequest is what a chain watcher reports for a submitted
// transaction. A failureReason marks the transaction failed instead.
type confirmationRequest struct {
	BookingID     string `json:"bookingId" validate:"required"`
	TxHash        string `json:"txHash" validate:"required"`
	Confirmations int64  `json:"confirmations" validate:"min=0"`
	FailureReason string `json:"failureReason"`
}

type rateRequest struct {
	Rate   *decimal.Decimal `json:"rate" validate:"required"`
	Source string           `json:"source"`
}

type bookingResponse struct {
	ID                  string              `json:"id"`
	TenantID            string              `json:"tenantId"`
	HostID              string              `json:"hostId"`
	PropertyID          string              `json:"propertyId"`
	CheckInDate         string              `json:"checkInDate"`
	CheckOutDate        string              `json:"checkOutDate"`
	Nights              int                 `json:"nights"`
	NumberOfGuests      int                 `json:"numberOfGuests"`
	Currency            string              `json:"currency"`
	BasePrice           decimal.Decimal     `json:"basePrice"`
	RequestedPrice      decimal.NullDecimal `json:"requestedPrice"`
	FinalPrice          decimal.Decimal     `json:"finalPrice"`
	Status              string              `json:"status"`
	TenantWalletAddress string              `json:"tenantWalletAddress,omitempty"`
	HostWalletAddress   string              `json:"hostWalletAddress,omitempty"`
	OnChainTxHash       *string             `json:"onChainTxHash,omitempty"`
	TenantCheckedOutAt  *time.Time          `json:"tenantCheckedOutAt,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	CancelledBy         *string             `json:"cancelledBy,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

func toBooking(b *models.Booking) bookingResponse {
	return bookingResponse{
		ID:                  b.ID,
		TenantID:            b.TenantID,
		HostID:              b.HostID,
		PropertyID:          b.PropertyID,
		CheckInDate:         b.CheckInDate.Format(dateLayout),
		CheckOutDate:        b.CheckOutDate.Format(dateLayout),
		Nights:              b.Nights,
		NumberOfGuests:      b.NumberOfGuests,
		Currency:            b.Currency,
		BasePrice:           b.BasePrice,
		RequestedPrice:      b.RequestedPrice,
		FinalPrice:          b.FinalPrice(),
		Status:              string(b.Status),
		TenantWalletAddress: b.TenantWalletAddress,
		HostWalletAddress:   b.HostWalletAddress,
		OnChainTxHash:       b.OnChainTxHash,
		TenantCheckedOutAt:  b.TenantCheckedOutAt,
		CompletedAt:         b.CompletedAt,
		CancelledBy:         b.CancelledBy,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

type eventResponse struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus"`
	ActorID    string    `json:"actorId"`
	At         time.Time `json:"at"`
}

func toEvents(evs []*models.BookingEvent) []eventResponse {
	out := make([]eventResponse, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventResponse{
			ID:         ev.ID,
			Event:      ev.Event,
			FromStatus: string(ev.FromStatus),
			ToStatus:   string(ev.ToStatus),
			ActorID:    ev.ActorID,
			At:         ev.At,
		})
	}
	return out
}

type offerResponse struct {
	ID                      string          `json:"id"`
	ProposedPrice           decimal.Decimal `json:"proposedPrice"`
	ProposedBy              string          `json:"proposedBy"`
	NegotiationPercentBound decimal.Decimal `json:"negotiationPercentBound"`
	Status                  string          `json:"status"`
	CreatedAt               time.Time       `json:"createdAt"`
	ExpiresAt               time.Time       `json:"expiresAt"`
	ResolvedAt              *time.Time      `json:"resolvedAt,omitempty"`
}

func toOffer(o *models.NegotiationOffer) offerResponse {
	return offerResponse{
		ID:                      o.ID,
		ProposedPrice:           o.ProposedPrice,
		ProposedBy:              string(o.ProposedBy),
		NegotiationPercentBound: o.NegotiationPercentBound,
		Status:                  string(o.Status),
		CreatedAt:               o.CreatedAt,
		ExpiresAt:               o.ExpiresAt,
		ResolvedAt:              o.ResolvedAt,
	}
}

type intentResponse struct {
	ID               string          `json:"id"`
	BookingID        string          `json:"bookingId"`
	RecipientAddress string          `json:"recipientAddress"`
	SenderAddress    string          `json:"senderAddress"`
	Amount           string          `json:"amount"`
	Symbol           string          `json:"symbol"`
	Decimals         int             `json:"decimals"`
	ChainID          string          `json:"chainId"`
	FiatAmount       decimal.Decimal `json:"fiatAmount"`
	Currency         string          `json:"currency"`
	Rate             decimal.Decimal `json:"rate"`
	RateSource       string          `json:"rateSource"`
	RateAt           time.Time       `json:"rateAt"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	ExpiresAt        time.Time       `json:"expiresAt"`
}

func toIntent(p *models.PaymentIntent) *intentResponse {
	if p == nil {
		return nil
	}
	return &intentResponse{
		ID:               p.ID,
		BookingID:        p.BookingID,
		RecipientAddress: p.RecipientAddress,
		SenderAddress:    p.SenderAddress,
		Amount:           p.Amount,
		Symbol:           p.Symbol,
		Decimals:         p.Decimals,
		ChainID:          p.ChainID,
		FiatAmount:       p.FiatAmount,
		Currency:         p.Currency,
		Rate:             p.Rate,
		RateSource:       p.RateSource,
		RateAt:           p.RateAt,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
	}
}

type settlementResponse struct {
	ID            string     `json:"id"`
	IntentID      string     `json:"intentId"`
	TxHash        string     `json:"txHash"`
	Status        string     `json:"status"`
	Confirmations int64      `json:"confirmations"`
	FailureReason *string    `json:"failureReason,omitempty"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	FinalizedAt   *time.Time `json:"finalizedAt,omitempty"`
}

type paymentResponse struct {
	Booking     bookingResponse      `json:"booking"`
	Intent      *intentResponse      `json:"intent"`
	Intents     []*intentResponse    `json:"intents"`
	Settlements []settlementResponse `json:"settlements"`
}

func toPayment(st *services.PaymentState) paymentResponse {
	out := paymentResponse{
		Booking:     toBooking(st.Booking),
		Intent:      toIntent(st.Intent),
		Intents:     make([]*intentResponse, 0, len(st.Intents)),
		Settlements: make([]settlementResponse, 0, len(st.Settlements)),
	}
	for _, in := range st.Intents {
		out.Intents = append(out.Intents, toIntent(in))
	}
	for _, r := range st.Settlements {
		out.Settlements = append(out.Settlements, settlementResponse{
			ID:            r.ID,
			IntentID:      r.IntentID,
			TxHash:        r.TxHash,
			Status:        string(r.Status),
			Confirmations: r.Confirmations,
			FailureReason: r.FailureReason,
			SubmittedAt:   r.SubmittedAt,
			FinalizedAt:   r.FinalizedAt,
		})
	}
	return out
}
