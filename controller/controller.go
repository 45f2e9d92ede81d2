// Package controller drives a cart page: quantity and remove intents become
// calls to the cart endpoints, and successful responses are written back
// into the page.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
	"gofalre.io/storefront/worker"
)

// ErrNoProduct is returned for an empty product id.
var ErrNoProduct = errors.New("controller: product id is required")

const (
	// RemovedMessage is the toast shown after a line is removed.
	RemovedMessage = "Product removed from cart"

	// maxToasts is the container size at which the oldest toast is evicted
	// before a new one is added.
	maxToasts = 2

	defaultWorkers   = 4
	defaultQueueSize = 64
)

type Controller struct {
	api  CartAPI
	view View

	// shipping is read from the page once, at construction.
	shipping float64

	// mu plays the role of the browser main thread: every view access
	// happens under it.
	mu sync.Mutex

	pool   *worker.Pool
	logger *zap.Logger
}

type Option func(*options)

type options struct {
	workers   int
	queueSize int
	logger    *zap.Logger
}

// WithWorkers sets how many requests may be in flight at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithQueueSize sets how many intents may wait for a free worker before new
// ones are dropped.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New(view View, api CartAPI, opts ...Option) *Controller {
	o := &options{
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	shipping, err := view.Shipping()
	if err != nil {
		o.logger.Warn("Failed to read shipping from page, using 0", zap.Error(err))
		shipping = 0
	}

	return &Controller{
		api:      api,
		view:     view,
		shipping: shipping,
		pool:     worker.NewPool(o.workers, o.queueSize, o.logger),
		logger:   o.logger,
	}
}

// Shipping returns the shipping amount captured at construction.
func (c *Controller) Shipping() float64 {
	return c.shipping
}

// UpdateCart sends the new quantity and, on success, refreshes the badge,
// the product's line totals, the subtotal and the total. The view is left
// untouched on any error.
func (c *Controller) UpdateCart(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrNoProduct
	}
	update, err := c.api.UpdateCart(ctx, productID, quantity)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.view.SetBadge(update.CartQuantity)
	for _, el := range c.view.LineElements(productID) {
		el.SetItemTotal(update.ItemTotal)
	}
	c.setTotals(update.Subtotal)

	return nil
}

// RemoveFromCart removes the product and, on success, deletes its lines from
// the view, refreshes the totals and shows a warning toast.
func (c *Controller) RemoveFromCart(ctx context.Context, productID string) error {
	if productID == "" {
		return ErrNoProduct
	}
	summary, err := c.api.RemoveFromCart(ctx, productID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.SetBadge(summary.CartQuantity)
	c.view.RemoveLine(productID)
	c.setTotals(summary.Subtotal)
	c.mu.Unlock()

	c.ShowToast(RemovedMessage, enum.ToastCategoryWarning)

	return nil
}

func (c *Controller) setTotals(subtotal float64) {
	c.view.SetSubtotal(subtotal)
	c.view.SetTotal(c.total(subtotal))
}

// total adds shipping in decimal so the displayed amount carries no float
// noise.
func (c *Controller) total(subtotal float64) float64 {
	return decimal.NewFromFloat(subtotal).Add(decimal.NewFromFloat(c.shipping)).InexactFloat64()
}

// Intents return at once. The request runs on the worker pool under ctx;
// when every worker is busy and the queue is full the intent is dropped.

// Increase adds one to the product's quantity field and sends it.
func (c *Controller) Increase(ctx context.Context, productID string) {
	if productID == "" {
		return
	}
	c.mu.Lock()
	quantity, ok := c.readQuantity(productID)
	if !ok {
		c.mu.Unlock()
		return
	}
	quantity++
	c.view.SetQuantity(productID, quantity)
	c.mu.Unlock()

	c.dispatchUpdate(ctx, productID, quantity)
}

// Decrease subtracts one while the quantity is above 1. At 1 nothing is sent.
func (c *Controller) Decrease(ctx context.Context, productID string) {
	if productID == "" {
		return
	}
	c.mu.Lock()
	quantity, ok := c.readQuantity(productID)
	if !ok || quantity <= 1 {
		c.mu.Unlock()
		return
	}
	quantity--
	c.view.SetQuantity(productID, quantity)
	c.mu.Unlock()

	c.dispatchUpdate(ctx, productID, quantity)
}

// ChangeQuantity handles an edit of the quantity field. Values below 1, and
// values that are not numbers, become 1.
func (c *Controller) ChangeQuantity(ctx context.Context, productID string) {
	if productID == "" {
		return
	}
	c.mu.Lock()
	raw, ok := c.view.Quantity(productID)
	if !ok {
		c.mu.Unlock()
		return
	}
	quantity, ok := ParseQuantity(raw)
	if !ok || quantity < 1 {
		quantity = 1
	}
	c.view.SetQuantity(productID, quantity)
	c.mu.Unlock()

	c.dispatchUpdate(ctx, productID, quantity)
}

// Remove removes the product from the cart.
func (c *Controller) Remove(ctx context.Context, productID string) {
	if productID == "" {
		return
	}
	c.dispatch(ctx, "remove-from-cart", productID, func(ctx context.Context) error {
		return c.RemoveFromCart(ctx, productID)
	})
}

// ShowToast adds a notification to the toast container, evicting the oldest
// one when the container is full. Without a container it does nothing.
func (c *Controller) ShowToast(message string, category enum.ToastCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	container, ok := c.view.ToastContainer()
	if !ok {
		return
	}
	if container.Len() >= maxToasts {
		container.RemoveOldest()
	}
	container.Append(models.NewToast(message, category))
}

// Wait blocks until every dispatched intent has finished.
func (c *Controller) Wait() {
	c.pool.Wait()
}

// Close waits for in-flight intents and stops the workers.
func (c *Controller) Close() {
	c.pool.Shutdown()
}

func (c *Controller) readQuantity(productID string) (int, bool) {
	raw, ok := c.view.Quantity(productID)
	if !ok {
		return 0, false
	}
	quantity, ok := ParseQuantity(raw)
	if !ok {
		c.logger.Debug("Ignoring non-numeric quantity", zap.String("product_id", productID), zap.String("value", raw))
	}
	return quantity, ok
}

func (c *Controller) dispatchUpdate(ctx context.Context, productID string, quantity int) {
	c.dispatch(ctx, "update-cart", productID, func(ctx context.Context) error {
		return c.UpdateCart(ctx, productID, quantity)
	})
}

// dispatch runs fn on the worker pool. Failures stay invisible to the user
// and only reach the debug log.
func (c *Controller) dispatch(ctx context.Context, name, productID string, fn func(ctx context.Context) error) {
	err := c.pool.TrySubmit(ctx, name, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			c.logger.Debug("Cart request failed",
				zap.String("request", name),
				zap.String("product_id", productID),
				zap.Error(err))
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("Intent dropped", zap.String("request", name), zap.Error(err))
	}
}

// ParseQuantity reads a leading integer from a form value: surrounding
// spaces are ignored and anything after the digits is dropped, so "3.7"
// reads as 3. It reports false when no digits lead the value.
func ParseQuantity(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	sign := 1
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}

	n, digits := 0, 0
	for ; digits < len(s); digits++ {
		ch := s[digits]
		if ch < '0' || ch > '9' {
			break
		}
		if n > (1<<31)/10 {
			// clamp absurdly long inputs
			break
		}
		n = n*10 + int(ch-'0')
	}
	if digits == 0 {
		return 0, false
	}
	return sign * n, true
}
