package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/events"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RemoteStore is the authoritative cart store, keyed by identity.
//
// AddItem is delta-additive: item.Quantity is added to the quantity the store
// already holds for item.ID (a missing line starts at zero). A negative
// quantity decrements. The store never interprets it as an absolute value.
type RemoteStore interface {
	// Fetch returns the cart of identity, possibly empty.
	Fetch(ctx context.Context, identity string) ([]Item, error)
	// AddItem adds item.Quantity to the stored quantity of item.ID.
	AddItem(ctx context.Context, identity string, item Item) error
	// RemoveItem deletes the line of itemID.
	RemoveItem(ctx context.Context, identity, itemID string) error
	// Clear deletes every line.
	Clear(ctx context.Context, identity string) error
}

// AuthRequiredFunc is called when an anonymous session tries to add to the cart.
type AuthRequiredFunc func()

const (
	opReload = "reload"
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
)

const defaultSyncTimeout = 10 * time.Second

// Engine owns the cart of the current session. Every mutation is applied
// locally first and then synchronized with the RemoteStore in the background.
// Sync failures are logged and never returned to the caller.
type Engine struct {
	store     RemoteStore
	validate  *validator.Validate
	logger    *slog.Logger
	publisher messaging.Publisher
	syncTotal metric.Int64Counter
	timeout   time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu       sync.Mutex
	identity string
	items    Snapshot
	revision uint64 // bumped on every local mutation
	session  *session
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSyncTimeout bounds every remote call issued by the engine.
func WithSyncTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPublisher publishes a CartSynced event for every remote mutation.
func WithPublisher(p messaging.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithValidator replaces the default item validator.
func WithValidator(v *validator.Validate) Option {
	return func(e *Engine) {
		if v != nil {
			e.validate = v
		}
	}
}

// NewEngine creates an anonymous engine backed by store.
func NewEngine(store RemoteStore, logger *slog.Logger, opts ...Option) *Engine {
	meter := otel.Meter("storefront-cart")
	syncTotal, err := meter.Int64Counter("cart_sync_operations", metric.WithDescription("Remote cart operations by op and outcome"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_sync_operations counter: %v", err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		validate:  validation.New(),
		logger:    logger.With("component", "cart"),
		publisher: messaging.NopPublisher{},
		syncTotal: syncTotal,
		timeout:   defaultSyncTimeout,
		baseCtx:   ctx,
		cancel:    cancel,
		items:     Snapshot{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Identity returns the identity the cart belongs to, empty when anonymous.
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// Snapshot returns a copy of the local cart.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.items.Clone()
}

// Count returns the sum of quantities of the local cart.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.items.Count()
}

// Reload binds the cart to identity. A new identity empties the local cart
// immediately and, when present, loads the authoritative cart in the background.
// Reloading the current identity refreshes the cart without clearing it first.
func (e *Engine) Reload(identity string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	if identity != "" && identity == e.identity && e.session != nil {
		e.session.push(e.fetchTask(e.session, e.revision))
		return
	}

	if prev := e.session; prev != nil {
		prev.retire()
	}
	e.identity = identity
	e.items = Snapshot{}
	e.revision++
	e.session = nil

	if identity == "" {
		e.logger.Debug("Cart cleared for anonymous session")
		return
	}
	s := newSession(e.baseCtx, identity, e.timeout, e.logger)
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		s.run()
	}()
	e.session = s
	s.push(e.fetchTask(s, e.revision))
	e.logger.Debug("Cart session started", "identity", identity)
}

// AddItem adds one unit of item to the cart. An anonymous session calls
// onAuthRequired and leaves the cart untouched. The quantity carried by item is ignored.
// It returns ErrInvalidItem when item has no ID or no positive price.
func (e *Engine) AddItem(item Item, onAuthRequired AuthRequiredFunc) error {
	e.mu.Lock()
	if e.identity == "" {
		e.mu.Unlock()
		if onAuthRequired != nil {
			onAuthRequired()
		}
		return nil
	}
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrEngineClosed
	}
	if err := e.validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	line := item
	line.Quantity = 1
	if idx := e.items.Index(item.ID); idx >= 0 {
		e.items[idx].Quantity = e.items[idx].Qty() + 1
	} else {
		e.items = append(e.items, line)
	}
	e.revision++
	e.session.push(e.addTask(e.session, e.revision, opAdd, line))
	return nil
}

// RemoveItem drops the line of id. No-op for an anonymous session.
func (e *Engine) RemoveItem(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == "" || e.session == nil {
		return
	}

	kept := make(Snapshot, 0, len(e.items))
	for _, item := range e.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	e.items = kept
	e.revision++

	s := e.session
	s.push(task{op: opRemove, mutation: true, run: func(ctx context.Context) {
		err := e.store.RemoveItem(ctx, s.identity, id)
		e.report(ctx, s, opRemove, id, 0, err)
	}})
}

// Clear empties the cart. No-op for an anonymous session.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == "" || e.session == nil {
		return
	}

	e.items = Snapshot{}
	e.revision++

	s := e.session
	s.push(task{op: opClear, mutation: true, run: func(ctx context.Context) {
		err := e.store.Clear(ctx, s.identity)
		e.report(ctx, s, opClear, "", 0, err)
	}})
}

// UpdateQuantity sets the quantity of id to quantity and sends the difference
// to the remote store. Quantities below 1 are rejected, not treated as removal.
// No-op for an anonymous session or an item that is not in the cart.
func (e *Engine) UpdateQuantity(id string, quantity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == "" || e.session == nil || quantity < 1 {
		return
	}
	idx := e.items.Index(id)
	if idx < 0 {
		e.logger.Debug("Quantity update for item not in cart ignored", "item_id", id)
		return
	}

	previous := e.items[idx].Qty()
	delta := quantity - previous
	if delta == 0 {
		return
	}
	e.items[idx].Quantity = quantity
	e.revision++

	line := e.items[idx]
	line.Quantity = delta
	e.session.push(e.addTask(e.session, e.revision, opUpdate, line))
}

// Wait blocks until the background sync of the current session is drained.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.wait(ctx)
}

// Close stops accepting mutations and lets queued remote mutations finish.
// When ctx expires first, the outstanding calls are cancelled.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.session != nil {
		e.session.retire()
		e.session = nil
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) fetchTask(s *session, rev uint64) task {
	return task{op: opReload, run: func(ctx context.Context) {
		items, err := e.store.Fetch(ctx, s.identity)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to load cart, falling back to empty cart", "error", err)
			e.count(ctx, opReload, false)
			items = nil
		} else {
			e.count(ctx, opReload, true)
		}
		if e.reconcile(s, rev, Normalize(items)) {
			return
		}
		if e.refetch(s) {
			s.logger.DebugContext(ctx, "Cart reload superseded by local changes, loading again")
			return
		}
		s.logger.DebugContext(ctx, "Stale cart reload discarded")
	}}
}

// refetch queues another load of the cart behind the pending mutations of s.
// A reload overtaken by a local mutation must not be lost: the mutation may
// fail and never reconcile. It reports false when s is no longer active.
func (e *Engine) refetch(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s {
		return false
	}
	return s.push(e.fetchTask(s, e.revision))
}

// addTask sends item to the store and, once acknowledged, replaces the local
// cart with the authoritative one.
func (e *Engine) addTask(s *session, rev uint64, op string, item Item) task {
	return task{op: op, mutation: true, run: func(ctx context.Context) {
		err := e.store.AddItem(ctx, s.identity, item)
		e.report(ctx, s, op, item.ID, item.Quantity, err)
		if err != nil || !e.isCurrent(s) {
			return
		}
		items, err := e.store.Fetch(ctx, s.identity)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to refresh cart after sync, keeping local cart", "op", op, "error", err)
			return
		}
		if !e.reconcile(s, rev, Normalize(items)) {
			s.logger.DebugContext(ctx, "Stale cart reconciliation discarded", "op", op)
		}
	}}
}

// reconcile replaces the local cart when s is still the active session and no
// local mutation happened after revision rev.
func (e *Engine) reconcile(s *session, rev uint64, snapshot Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s || e.revision != rev {
		return false
	}
	e.items = snapshot
	return true
}

func (e *Engine) isCurrent(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session == s && !s.isRetired()
}

func (e *Engine) report(ctx context.Context, s *session, op, itemID string, quantity int, err error) {
	e.count(ctx, op, err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "Cart sync failed, local cart may diverge", "op", op, "item_id", itemID, "error", err)
	}
	event := events.CartSynced{
		Identity:  s.identity,
		Op:        op,
		ItemID:    itemID,
		Quantity:  quantity,
		Succeeded: err == nil,
		At:        time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if pubErr := e.publisher.Publish(ctx, event); pubErr != nil {
		s.logger.DebugContext(ctx, "Failed to publish cart sync event", "op", op, "error", pubErr)
	}
}

func (e *Engine) count(ctx context.Context, op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	e.syncTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
