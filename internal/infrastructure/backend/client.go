// Package backend talks to the food-delivery REST API that owns orders,
// saved payment methods and the food catalog.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/observability"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     observability.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l observability.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client for baseURL. Every call is bounded by timeout and runs
// through a circuit breaker that opens after consecutive transport failures.
// Calls are never retried.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a caller that gave up says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit_breaker_state_changed",
				observability.F("breaker", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	})
	return c
}

// do sends one JSON request. Non-2xx responses become *failure.Error carrying
// the upstream status and the server's message when it sent one.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage,
			fmt.Errorf("backend: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage,
			fmt.Errorf("backend: read %s %s: %w", method, path, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return failure.Wrap(failure.KindNetworkOrServer, failure.GenericMessage,
			fmt.Errorf("backend: decode %s %s: %w", method, path, err))
	}
	return nil
}

func statusError(method, path string, status int, raw []byte) error {
	cause := fmt.Errorf("backend: %s %s: status %d", method, path, status)
	msg := serverMessage(raw)

	switch status {
	case http.StatusUnauthorized:
		return &failure.Error{Kind: failure.KindUnauthenticated, Message: failure.ErrUnauthenticated.Message, Status: status, Err: cause}
	case http.StatusNotFound:
		if msg == "" {
			msg = failure.ErrNotFound.Message
		}
		return &failure.Error{Kind: failure.KindNotFound, Message: msg, Status: status, Err: cause}
	default:
		if msg == "" {
			msg = failure.GenericMessage
		}
		return &failure.Error{Kind: failure.KindNetworkOrServer, Message: msg, Status: status, Err: cause}
	}
}

// serverMessage pulls a human message out of an error body, if any.
func serverMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, k := range []string{"message", "error", "detail"} {
		if s, ok := body[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
