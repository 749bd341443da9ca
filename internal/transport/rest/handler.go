// Package rest exposes the storefront session to a browser UI.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// CartService is the cart engine as seen by the handlers.
type CartService interface {
	Identity() string
	Snapshot() cart.Snapshot
	Count() int
	AddItem(item cart.Item, onAuthRequired cart.AuthRequiredFunc) error
	RemoveItem(id string)
	Clear()
	UpdateQuantity(id string, quantity int)
	Reload(identity string)
}

type IdentityService interface {
	Current() *identity.User
	SignIn(ctx context.Context, email, password string) identity.Result
	SignUp(ctx context.Context, req identity.SignUpRequest) identity.Result
	SignOut(ctx context.Context)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, shipping checkout.Shipping) (checkout.Order, error)
	History(ctx context.Context) ([]checkout.PlacedOrder, error)
}

type Handler struct {
	cart     CartService
	identity IdentityService
	checkout CheckoutService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(c CartService, id IdentityService, co CheckoutService, logger *slog.Logger) *Handler {
	return &Handler{
		cart:     c,
		identity: id,
		checkout: co,
		validate: validation.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the BFF routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Get("/count", h.CartCount)
			r.Post("/reload", h.ReloadCart)
			r.Post("/items", h.AddItem)
			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", h.UpdateQuantity)
				r.Delete("/", h.RemoveItem)
			})
		})
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", h.SignIn)
			r.Post("/signup", h.SignUp)
			r.Post("/signout", h.SignOut)
			r.Get("/me", h.Me)
		})
		r.Post("/checkout", h.Checkout)
		r.Get("/orders", h.Orders)
	})
	r.Get("/healthz", h.HealthCheck)
}

type cartResponse struct {
	Identity string          `json:"identity,omitempty"`
	Items    cart.Snapshot   `json:"items"`
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

type authRequiredResponse struct {
	Error  string `json:"error"`
	Action string `json:"action"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) cartBody() cartResponse {
	snapshot := h.cart.Snapshot()
	totals := checkout.Totals(snapshot)
	return cartResponse{
		Identity: h.cart.Identity(),
		Items:    snapshot,
		Count:    totals.Count,
		Subtotal: totals.Subtotal,
		Total:    totals.Total,
	}
}

func (h *Handler) respondSignInRequired(w http.ResponseWriter, logger *slog.Logger) {
	web.RespondJSON(w, logger, http.StatusUnauthorized, authRequiredResponse{
		Error:  "Sign in to use the cart",
		Action: "signin",
	})
}

// GetCart returns the local cart with its totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.loggerWithReqID(r), http.StatusOK, h.cartBody())
}

// CartCount returns the number of units in the cart.
func (h *Handler) CartCount(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.loggerWithReqID(r), http.StatusOK, map[string]int{"count": h.cart.Count()})
}

// AddItem adds one unit of the posted product. Anonymous sessions get a 401 asking to sign in.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var item cart.Item
	if !web.DecodeJSON(w, r, mLogger, &item) {
		return
	}

	authRequired := false
	err := h.cart.AddItem(item, func() { authRequired = true })
	switch {
	case authRequired:
		mLogger.DebugContext(r.Context(), "Add to cart requires sign-in", "item_id", item.ID)
		h.respondSignInRequired(w, mLogger)
		return
	case errors.Is(err, cart.ErrInvalidItem):
		mLogger.WarnContext(r.Context(), "Invalid cart item", "item_id", item.ID, "error", err)
		if fields := validation.FieldErrors(err); fields != nil {
			web.RespondValidation(w, mLogger, fields)
			return
		}
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid cart item")
		return
	case errors.Is(err, cart.ErrEngineClosed):
		web.RespondError(w, mLogger, http.StatusServiceUnavailable, "Cart is shutting down")
		return
	case err != nil:
		mLogger.ErrorContext(r.Context(), "Failed to add item", "item_id", item.ID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to add item")
		return
	}
	mLogger.DebugContext(r.Context(), "Item added to cart", "item_id", item.ID)
	web.RespondJSON(w, mLogger, http.StatusAccepted, h.cartBody())
}

// UpdateQuantity sets the quantity of a line already in the cart.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	if h.cart.Identity() == "" {
		h.respondSignInRequired(w, mLogger)
		return
	}
	id := chi.URLParam(r, "id")
	var req quantityRequest
	if !web.DecodeJSON(w, r, mLogger, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		web.RespondValidation(w, mLogger, validation.FieldErrors(err))
		return
	}
	if h.cart.Snapshot().Index(id) < 0 {
		web.RespondError(w, mLogger, http.StatusNotFound, "Item is not in the cart")
		return
	}
	h.cart.UpdateQuantity(id, req.Quantity)
	web.RespondJSON(w, mLogger, http.StatusAccepted, h.cartBody())
}

// RemoveItem drops a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	if h.cart.Identity() == "" {
		h.respondSignInRequired(w, mLogger)
		return
	}
	h.cart.RemoveItem(chi.URLParam(r, "id"))
	web.RespondJSON(w, mLogger, http.StatusAccepted, h.cartBody())
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	if h.cart.Identity() == "" {
		h.respondSignInRequired(w, mLogger)
		return
	}
	h.cart.Clear()
	web.RespondJSON(w, mLogger, http.StatusAccepted, h.cartBody())
}

// ReloadCart refreshes the cart from the storefront API in the background.
func (h *Handler) ReloadCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	current := h.cart.Identity()
	if current == "" {
		h.respondSignInRequired(w, mLogger)
		return
	}
	h.cart.Reload(current)
	web.RespondJSON(w, mLogger, http.StatusAccepted, h.cartBody())
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req signInRequest
	if !web.DecodeJSON(w, r, mLogger, &req) {
		return
	}
	res := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if !res.Success {
		web.RespondError(w, mLogger, http.StatusUnauthorized, res.Error)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, h.identity.Current())
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req identity.SignUpRequest
	if !web.DecodeJSON(w, r, mLogger, &req) {
		return
	}
	res := h.identity.SignUp(r.Context(), req)
	if !res.Success {
		web.RespondError(w, mLogger, http.StatusBadRequest, res.Error)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusCreated, h.identity.Current())
}

// SignOut forgets the user; the cart is empty when the response is written.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.identity.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	user := h.identity.Current()
	if user == nil {
		web.RespondError(w, mLogger, http.StatusUnauthorized, "Not signed in")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, user)
}

// Checkout places an order for the cart and the posted shipping address.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var shipping checkout.Shipping
	if !web.DecodeJSON(w, r, mLogger, &shipping) {
		return
	}
	order, err := h.checkout.PlaceOrder(r.Context(), shipping)
	switch {
	case err == nil:
		web.RespondJSON(w, mLogger, http.StatusCreated, order)
	case errors.Is(err, checkout.ErrNotSignedIn):
		h.respondSignInRequired(w, mLogger)
	case errors.Is(err, checkout.ErrEmptyCart):
		web.RespondError(w, mLogger, http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, checkout.ErrInvalidShipping):
		if fields := validation.FieldErrors(err); fields != nil {
			web.RespondValidation(w, mLogger, fields)
			return
		}
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid shipping address")
	case errors.Is(err, checkout.ErrOrderFailed):
		web.RespondError(w, mLogger, http.StatusBadGateway, "Order could not be placed, please try again")
	default:
		mLogger.ErrorContext(r.Context(), "Checkout failed", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Checkout failed")
	}
}

// Orders lists the orders of the signed-in user.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	orders, err := h.checkout.History(r.Context())
	if errors.Is(err, checkout.ErrNotSignedIn) {
		h.respondSignInRequired(w, mLogger)
		return
	} else if err != nil {
		mLogger.ErrorContext(r.Context(), "Failed to fetch orders", "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "Failed to fetch orders")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, orders)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}
