package catalog

import (
	"context"
	"net/url"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"
)

type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// Client reads listings from the property catalog service.
type Client struct {
	HTTP Getter
}

func (c Client) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var p models.Property
	if err := c.HTTP.GetJSON(ctx, "/properties/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.OwnerID == "" || !p.NightlyPrice.IsPositive() {
		return nil, apperr.New(apperr.KindDependencyUnavailable, "catalog returned incomplete property %s", id)
	}
	return &p, nil
}
