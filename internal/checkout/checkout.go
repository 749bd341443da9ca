// Package checkout turns the session cart into an order.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StatusPlaced is the status of every order submitted by the storefront.
const StatusPlaced = "Placed"

// Shipping is the delivery address of an order.
type Shipping struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// Order is what gets submitted to the storefront API.
type Order struct {
	Email    string          `json:"email"`
	Items    []cart.Item     `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Status   string          `json:"status"`
	Shipping Shipping        `json:"shipping"`
}

// Summary is the price breakdown shown before an order is placed.
type Summary struct {
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Totals prices a snapshot. Shipping is free; amounts are rounded to cents.
func Totals(s cart.Snapshot) Summary {
	subtotal := s.Subtotal().Round(2)
	return Summary{
		Count:    s.Count(),
		Subtotal: subtotal,
		Shipping: decimal.Zero,
		Total:    subtotal,
	}
}

// PlacedOrder is an order as stored by the storefront API.
type PlacedOrder struct {
	ID        string          `json:"_id"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     []cart.Item     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	Shipping  Shipping        `json:"shipping"`
}

// OrderStore submits and lists orders of the storefront API.
type OrderStore interface {
	PlaceOrder(ctx context.Context, order Order) error
	ListOrders(ctx context.Context, identity string) ([]PlacedOrder, error)
}

// Cart is the part of the cart engine checkout depends on.
type Cart interface {
	Identity() string
	Snapshot() cart.Snapshot
	Clear()
}

// Service places orders for the current session.
type Service struct {
	cart       Cart
	orderStore OrderStore
	validate   *validator.Validate
	logger     *slog.Logger
	orders     metric.Int64Counter
}

func NewService(c Cart, store OrderStore, logger *slog.Logger) *Service {
	orders, err := otel.Meter("storefront-checkout").Int64Counter("checkout_orders", metric.WithDescription("Orders submitted by outcome"))
	if err != nil {
		panic(fmt.Sprintf("failed to create checkout_orders counter: %v", err))
	}
	return &Service{
		cart:       c,
		orderStore: store,
		validate:   validation.New(),
		logger:     logger.With("component", "checkout"),
		orders:     orders,
	}
}

// PlaceOrder submits the current cart with the given shipping address and,
// once the API accepted it, clears the cart. The cart is left untouched on failure.
func (s *Service) PlaceOrder(ctx context.Context, shipping Shipping) (Order, error) {
	identity := s.cart.Identity()
	if identity == "" {
		return Order{}, ErrNotSignedIn
	}
	if err := s.validate.Struct(shipping); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrInvalidShipping, err)
	}
	snapshot := s.cart.Snapshot()
	if len(snapshot) == 0 {
		return Order{}, ErrEmptyCart
	}

	order := Order{
		Email:    identity,
		Items:    snapshot,
		Total:    Totals(snapshot).Total,
		Status:   StatusPlaced,
		Shipping: shipping,
	}
	if err := s.orderStore.PlaceOrder(ctx, order); err != nil {
		s.count(ctx, false)
		s.logger.ErrorContext(ctx, "Failed to place order", "identity", identity, "error", err)
		return Order{}, fmt.Errorf("%w: %w", ErrOrderFailed, err)
	}
	s.count(ctx, true)
	s.logger.InfoContext(ctx, "Order placed", "identity", identity, "items", len(order.Items), "total", order.Total.StringFixed(2))
	s.cart.Clear()
	return order, nil
}

// History lists the orders of the signed-in user, newest first as returned by the API.
func (s *Service) History(ctx context.Context) ([]PlacedOrder, error) {
	identity := s.cart.Identity()
	if identity == "" {
		return nil, ErrNotSignedIn
	}
	orders, err := s.orderStore.ListOrders(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []PlacedOrder{}
	}
	return orders, nil
}

func (s *Service) count(ctx context.Context, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
