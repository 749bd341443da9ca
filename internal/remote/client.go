// Package remote is the HTTP client of the storefront API: the authoritative
// cart store and order placement.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ cart.RemoteStore = (*Client)(nil)
var _ checkout.OrderStore = (*Client)(nil)

const maxResponseBytes = 4 << 20

// Client talks to the storefront API.
//
// The quantity sent by AddItem is a delta: the API adds it to the quantity it
// already holds for the product.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	retry   config.RetryConfig
	logger  *slog.Logger
}

// NewClient creates a client for the API at cfg.BaseURL.
func NewClient(cfg config.RemoteConfig, resilience config.ResilienceConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote base URL %q: %w", cfg.BaseURL, err)
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: newCircuitBreaker("storefront-api-cb", resilience.CircuitBreaker),
		retry:   resilience.Retry,
		logger:  logger.With("component", "remote"),
	}, nil
}

// product is the wire form of cart.Item. Prices travel as JSON numbers.
type product struct {
	ID       string      `json:"_id"`
	Name     string      `json:"name,omitempty"`
	Price    json.Number `json:"price"`
	ImageURL string      `json:"imageUrl,omitempty"`
	Quantity int         `json:"quantity"`
}

func toProduct(item cart.Item) product {
	return product{
		ID:       item.ID,
		Name:     item.Name,
		Price:    json.Number(item.Price.String()),
		ImageURL: item.ImageURL,
		Quantity: item.Quantity,
	}
}

type addRequest struct {
	Email   string  `json:"email"`
	Product product `json:"product"`
}

type orderRequest struct {
	Email    string            `json:"email"`
	Items    []product         `json:"items"`
	Total    json.Number       `json:"total"`
	Status   string            `json:"status"`
	Shipping checkout.Shipping `json:"shipping"`
}

type removeRequest struct {
	Email     string `json:"email"`
	ProductID string `json:"productId"`
}

type clearRequest struct {
	Email string `json:"email"`
}

// Fetch returns the cart of identity. A null payload is an empty cart.
func (c *Client) Fetch(ctx context.Context, identity string) ([]cart.Item, error) {
	data, err := c.do(ctx, http.MethodGet, "/cart", url.Values{"email": {identity}}, nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	var items []cart.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("fetch cart: %w: %v", ErrMalformedResponse, err)
	}
	return items, nil
}

// AddItem adds item.Quantity (a delta) to the stored line of item.ID.
func (c *Client) AddItem(ctx context.Context, identity string, item cart.Item) error {
	if _, err := c.do(ctx, http.MethodPost, "/cart/add", nil, addRequest{Email: identity, Product: toProduct(item)}, false); err != nil {
		return fmt.Errorf("add cart item %s: %w", item.ID, err)
	}
	return nil
}

// RemoveItem deletes the line of itemID.
func (c *Client) RemoveItem(ctx context.Context, identity, itemID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/cart/item", nil, removeRequest{Email: identity, ProductID: itemID}, true); err != nil {
		return fmt.Errorf("remove cart item %s: %w", itemID, err)
	}
	return nil
}

// Clear deletes the whole cart of identity.
func (c *Client) Clear(ctx context.Context, identity string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/cart/clear", nil, clearRequest{Email: identity}, true); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, order checkout.Order) error {
	req := orderRequest{
		Email:    order.Email,
		Items:    make([]product, 0, len(order.Items)),
		Total:    json.Number(order.Total.StringFixed(2)),
		Status:   order.Status,
		Shipping: order.Shipping,
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, toProduct(item))
	}
	if _, err := c.do(ctx, http.MethodPost, "/orders", nil, req, false); err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	return nil
}

// ListOrders returns the orders placed by identity.
func (c *Client) ListOrders(ctx context.Context, identity string) ([]checkout.PlacedOrder, error) {
	data, err := c.do(ctx, http.MethodGet, "/orders", url.Values{"email": {identity}}, nil, true)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var orders []checkout.PlacedOrder
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w: %v", ErrMalformedResponse, err)
	}
	return orders, nil
}

// do sends one request through the retry policy and the circuit breaker and returns the response body.
// A request that is not idempotent is sent again only when it never reached the API,
// so a delta or an order is applied at most once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, idempotent bool) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}
	endpoint := c.baseURL.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	reqID, ok := web.GetRequestID(ctx)
	if !ok {
		reqID = uuid.NewString()
	}

	retryable := isTransient
	if !idempotent {
		retryable = notDelivered
	}

	attempt := 0
	return withRetry(ctx, c.retry, retryable, func() ([]byte, error) {
		attempt++
		data, err := c.breaker.Execute(func() ([]byte, error) {
			return c.send(ctx, method, endpoint.String(), payload, reqID)
		})
		if err != nil && isTransient(err) {
			c.logger.DebugContext(ctx, "Remote call failed", "method", method, "path", path, "attempt", attempt, "error", err)
		}
		return data, err
	})
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, reqID string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(web.XRequestID, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", errTransport, err)
	}
	c.logger.DebugContext(ctx, "Remote call completed",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration_ms", float64(time.Since(start).Nanoseconds())/1e6,
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts {"message"} or {"error"} from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
