package reclamation

import (
	"context"
	"net/url"

	"BookingSettlement/internal/models"
)

type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

type Client struct {
	HTTP Getter
}

// ForBooking lists reclamations filed against a booking.
func (c Client) ForBooking(ctx context.Context, bookingID string) ([]models.Reclamation, error) {
	var out []models.Reclamation
	q := url.Values{"bookingId": []string{bookingID}}
	if err := c.HTTP.GetJSON(ctx, "/reclamations", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Blocking returns the reclamations that hold up completion.
func Blocking(list []models.Reclamation) []models.Reclamation {
	var out []models.Reclamation
	for _, r := range list {
		if r.Status.Blocking() {
			out = append(out, r)
		}
	}
	return out
}
