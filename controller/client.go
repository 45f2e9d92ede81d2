package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"gofalre.io/storefront/models"
)

var (
	// ErrRejected is returned when the server answered with success == false.
	ErrRejected = errors.New("controller: cart update rejected")
	// ErrMalformedResponse is returned when the body is not a cart summary.
	ErrMalformedResponse = errors.New("controller: malformed response")
)

// CartAPI is the server side of the cart as seen by the controller.
type CartAPI interface {
	UpdateCart(ctx context.Context, productID string, quantity int) (*models.LineUpdate, error)
	RemoveFromCart(ctx context.Context, productID string) (*models.CartSummary, error)
}

var _ CartAPI = (*Client)(nil)

// Client calls the storefront cart endpoints. It keeps the session cookie
// between calls and stops calling a server that keeps failing.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A missing cookie jar
// is filled in so the cart session survives between calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storefront-cart",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c, nil
}

func (c *Client) UpdateCart(ctx context.Context, productID string, quantity int) (*models.LineUpdate, error) {
	body, err := json.Marshal(map[string]int{"quantity": quantity})
	if err != nil {
		return nil, err
	}

	var update models.LineUpdate
	if err = c.post(ctx, "/update-cart/"+url.PathEscape(productID), body, &update); err != nil {
		return nil, err
	}
	if !update.Success {
		return nil, rejected(update.Error)
	}
	return &update, nil
}

func (c *Client) RemoveFromCart(ctx context.Context, productID string) (*models.CartSummary, error) {
	var summary models.CartSummary
	if err := c.post(ctx, "/remove-from-cart/"+url.PathEscape(productID), nil, &summary); err != nil {
		return nil, err
	}
	if !summary.Success {
		return nil, rejected(summary.Error)
	}
	return &summary, nil
}

// post sends a POST and decodes the JSON body into v whatever the status
// code, the same way the page script reads every response as JSON.
func (c *Client) post(ctx context.Context, path string, body []byte, v any) error {
	data, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(path).String(), reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			// 伺服器錯誤計入斷路器，但仍交由呼叫端解析
			return raw, fmt.Errorf("server returned %s", resp.Status)
		}
		return raw, nil
	})
	raw, _ := data.([]byte)
	if err != nil && raw == nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}

	if decodeErr := json.Unmarshal(raw, v); decodeErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, decodeErr)
	}
	return nil
}

func rejected(msg string) error {
	if msg == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, msg)
}
