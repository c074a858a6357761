package depclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/catalog"
	"BookingSettlement/internal/config"
	"BookingSettlement/internal/logging"
	"BookingSettlement/internal/models"
	"BookingSettlement/internal/reclamation"
)

func newClient(url string, retries int) *Client {
	return New("catalog", config.DependencyConfig{BaseURL: url, TimeoutMS: 1000, Retries: retries, BackoffMS: 1}, logging.Discard())
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","ownerId":"h1","nightlyPrice":"600","negotiationPercentage":"10","capacity":4}`))
	}))
	defer srv.Close()

	p, err := catalog.Client{HTTP: newClient(srv.URL, 3)}.GetProperty(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "h1", p.OwnerID)
	assert.Equal(t, "600", p.NightlyPrice.String())
	assert.Equal(t, int32(3), hits.Load())
}

func TestGetJSONGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out map[string]any
	err := newClient(srv.URL, 1).GetJSON(context.Background(), "/properties/p1", nil, &out)
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestGetJSONNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := catalog.Client{HTTP: newClient(srv.URL, 2)}.GetProperty(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBadRequestsDoNotOpenBreaker(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, 0)
	var out map[string]any
	for i := 0; i < 8; i++ {
		err := c.GetJSON(context.Background(), "/x", nil, &out)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	healthy.Store(true)
	require.NoError(t, c.GetJSON(context.Background(), "/x", nil, &out))
	assert.Equal(t, true, out["ok"])
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL, 0)
	var out map[string]any
	for i := 0; i < 7; i++ {
		_ = c.GetJSON(context.Background(), "/x", nil, &out)
	}
	assert.Equal(t, int32(5), hits.Load())
	assert.ErrorIs(t, c.GetJSON(context.Background(), "/x", nil, &out), gobreaker.ErrOpenState)
}

func TestGetJSONUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	var out map[string]any
	err := newClient(base, 0).GetJSON(context.Background(), "/x", nil, &out)
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestReclamationsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[{"id":"r1","bookingId":"b1","status":"OPEN"},{"id":"r2","bookingId":"b1","status":"RESOLVED"}]`))
	}))
	defer srv.Close()

	list, err := reclamation.Client{HTTP: newClient(srv.URL, 0)}.ForBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", gotQuery.Get("bookingId"))
	require.Len(t, list, 2)

	blocking := reclamation.Blocking(list)
	require.Len(t, blocking, 1)
	assert.Equal(t, models.ReclamationOpen, blocking[0].Status)
}
