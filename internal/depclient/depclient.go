package depclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/config"
)

// errNotFound marks a 404 from upstream. It is not a dependency failure and
// does not count against the breaker; neither does a permanentError.
var errNotFound = errors.New("upstream resource not found")

// Client is a JSON GET client for an upstream service. Calls go through a
// circuit breaker and are retried with linear backoff on transport errors and
// 5xx responses.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	retries int
	backoff time.Duration
	log     logrus.FieldLogger
}

func New(name string, cfg config.DependencyConfig, log logrus.FieldLogger) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		retries: cfg.Retries,
		backoff: cfg.Backoff(),
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var perm *permanentError
			return err == nil || errors.Is(err, errNotFound) || errors.As(err, &perm)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"dependency": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})
	return c
}

// GetJSON fetches path (relative to the base URL) with query and decodes the
// body into out. A 404 maps to NotFoundError; anything else that fails maps to
// DependencyUnavailableError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperr.Wrap(apperr.KindDependencyUnavailable, ctx.Err(), "%s unavailable", c.name)
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.get(ctx, endpoint, out)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, errNotFound) {
			return apperr.NotFound("%s: %s not found", c.name, path)
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			break
		}
		c.log.WithError(err).WithFields(logrus.Fields{"dependency": c.name, "attempt": attempt + 1}).
			Debug("upstream call failed")
	}
	return apperr.Wrap(apperr.KindDependencyUnavailable, lastErr, "%s unavailable", c.name)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &permanentError{err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: http status %d", c.name, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &permanentError{fmt.Errorf("%s: http status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &permanentError{fmt.Errorf("%s: decode: %w", c.name, err)}
	}
	return nil
}

// permanentError is not worth retrying.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
