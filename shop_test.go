package storefront

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"gofalre.io/storefront/cart"
	"gofalre.io/storefront/event"
	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
	"gofalre.io/storefront/product"
)

type fakeProducts struct {
	mu          sync.Mutex
	nextID      int64
	byID        map[int64]*models.Product
	invalidated []int64
	searches    []string
}

func newFakeProducts(products ...*models.Product) *fakeProducts {
	f := &fakeProducts{byID: make(map[int64]*models.Product)}
	for _, p := range products {
		f.byID[p.ID] = p
		if p.ID > f.nextID {
			f.nextID = p.ID
		}
	}
	return f
}

func (f *fakeProducts) Create(_ context.Context, _ pgx.Tx, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProducts) GetByID(_ context.Context, _ pgx.Tx, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) List(_ context.Context, _ pgx.Tx, _, _ uint64) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) ListByCategory(_ context.Context, _ pgx.Tx, category string) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Product
	for _, p := range f.byID {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) sorted() []*models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeProducts) ListByStore(_ context.Context, _ pgx.Tx, store string) ([]*models.Product, error) {
	var out []*models.Product
	for _, p := range f.sorted() {
		if strings.EqualFold(p.Store, store) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) ListStores(context.Context, pgx.Tx) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range f.sorted() {
		if !seen[p.Store] {
			seen[p.Store] = true
			out = append(out, p.Store)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeProducts) Search(_ context.Context, _ pgx.Tx, query string, limit uint64) ([]*models.Product, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	q := strings.ToLower(query)
	var out []*models.Product
	for _, p := range f.sorted() {
		if strings.Contains(strings.ToLower(p.Name+" "+p.Description+" "+p.Category), q) {
			out = append(out, p)
		}
		if limit > 0 && uint64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeProducts) Delete(_ context.Context, _ pgx.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return product.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeProducts) Invalidate(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

type fakeEvents struct {
	mu     sync.Mutex
	stored map[string]*models.Event
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{stored: make(map[string]*models.Event)}
}

func (f *fakeEvents) Create(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[e.ID]; !ok {
		copied := *e
		f.stored[e.ID] = &copied
	}
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.stored[id]
	if !ok {
		return nil, event.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEvents) MarkAsProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.stored[id]; ok {
		e.Processed = true
	}
	return nil
}

type fakeTransactor struct {
	calls int
}

func (f *fakeTransactor) ExecuteTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	return fn(nil)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []enum.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]enum.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       *service
	products  *fakeProducts
	events    *fakeEvents
	tm        *fakeTransactor
	publisher *recordingPublisher
}

func newFixture(t *testing.T, products ...*models.Product) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		products:  newFakeProducts(products...),
		events:    newFakeEvents(),
		tm:        &fakeTransactor{},
		publisher: &recordingPublisher{},
	}
	svc := NewService(f.products, cart.NewRepository(client, stripe.CurrencyUSD, zap.NewNop()), f.events, f.tm,
		nil, nil, Options{Shipping: decimal.NewFromInt(10)}, zap.NewNop()).(*service)
	svc.publisher = f.publisher
	f.svc = svc
	return f
}

func watch(id int64) *models.Product {
	return &models.Product{ID: id, Name: "Smart Watch", Price: decimal.RequireFromString("10.00"), Image: "p2.jpg", Category: "electronics", Store: "Tech Store"}
}

func dress(id int64) *models.Product {
	return &models.Product{ID: id, Name: "Red Dress", Price: decimal.RequireFromString("79.99"), Image: "dress1.jpg", Category: "dress", Store: "Fashion Hub"}
}

func TestService_AddToCartMergesSameProductAndSize(t *testing.T) {
	f := newFixture(t, watch(42), dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 42, 2, "")
	require.NoError(t, err)
	summary, err := f.svc.AddToCart(ctx, "s1", 42, 1, "ignored")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CartQuantity)
	assert.Equal(t, 30.0, summary.Subtotal)

	_, err = f.svc.AddToCart(ctx, "s1", 4, 1, "M")
	require.NoError(t, err)
	summary, err = f.svc.AddToCart(ctx, "s1", 4, 1, "L")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.CartQuantity)

	view, err := f.svc.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, view.Items, 3)
	assert.Equal(t, "", view.Items[0].Size)
	assert.Equal(t, "M", view.Items[1].Size)
	assert.Equal(t, "L", view.Items[2].Size)
}

func TestService_AddToCartValidation(t *testing.T) {
	f := newFixture(t, watch(42), dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 99, 1, "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.svc.AddToCart(ctx, "s1", 4, 1, "XS")
	assert.ErrorIs(t, err, ErrInvalidSize)

	summary, err := f.svc.AddToCart(ctx, "s1", 42, -3, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CartQuantity)

	_, err = f.svc.AddToCart(ctx, "", 42, 1, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_UpdateCart(t *testing.T) {
	f := newFixture(t, watch(42), dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 42, 2, "")
	require.NoError(t, err)

	update, err := f.svc.UpdateCart(ctx, "s1", 42, 3)
	require.NoError(t, err)
	assert.True(t, update.Success)
	assert.Equal(t, 3, update.CartQuantity)
	assert.Equal(t, 30.0, update.ItemTotal)
	assert.Equal(t, 30.0, update.Subtotal)

	update, err = f.svc.UpdateCart(ctx, "s1", 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, update.ItemTotal)
	assert.Equal(t, 3, update.CartQuantity)

	update, err = f.svc.UpdateCart(ctx, "s1", 42, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, update.CartQuantity)
	assert.Equal(t, 0.0, update.Subtotal)

	assert.Equal(t, []enum.EventType{
		enum.EventTypeCartItemAdded,
		enum.EventTypeCartItemUpdated,
		enum.EventTypeCartItemUpdated,
		enum.EventTypeCartItemRemoved,
	}, f.publisher.types())
}

func TestService_UpdateCartRoundsToCents(t *testing.T) {
	f := newFixture(t, dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 4, 1, "S")
	require.NoError(t, err)

	update, err := f.svc.UpdateCart(ctx, "s1", 4, 3)
	require.NoError(t, err)
	assert.Equal(t, 239.97, update.ItemTotal)
	assert.Equal(t, 239.97, update.Subtotal)
}

func TestService_RemoveFromCart(t *testing.T) {
	f := newFixture(t, watch(7), dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 7, 2, "")
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "s1", 4, 1, "M")
	require.NoError(t, err)

	summary, err := f.svc.RemoveFromCart(ctx, "s1", 7)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.CartQuantity)
	assert.Equal(t, 79.99, summary.Subtotal)

	summary, err = f.svc.RemoveFromCart(ctx, "s1", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CartQuantity)
}

func TestService_GetCartPrunesDeletedProducts(t *testing.T) {
	f := newFixture(t, watch(42), dress(4))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 42, 2, "")
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, "s1", 4, 1, "M")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProduct(ctx, 4))

	view, err := f.svc.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(42), view.Items[0].ProductID)
	assert.Equal(t, "Tech Store", view.Items[0].ShopName)
	assert.True(t, decimal.NewFromInt(20).Equal(view.Subtotal))
	assert.True(t, decimal.NewFromInt(30).Equal(view.Total))

	quantity, err := f.svc.CartQuantity(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, quantity)
}

func TestService_ClearCart(t *testing.T) {
	f := newFixture(t, watch(42))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "s1", 42, 2, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearCart(ctx, "s1"))

	quantity, err := f.svc.CartQuantity(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, quantity)
}

func TestService_PublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, watch(42))
	f.publisher.err = errors.New("nats down")

	summary, err := f.svc.AddToCart(context.Background(), "s1", 42, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CartQuantity)
}

func TestService_Catalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.SeedProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	dresses, err := f.svc.ListProductsByCategory(ctx, "dress")
	require.NoError(t, err)
	assert.Len(t, dresses, 2)

	all, err := f.svc.ListProducts(ctx, 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	err = f.svc.CreateProduct(ctx, &models.Product{Price: decimal.NewFromInt(1)})
	assert.Error(t, err)

	assert.ErrorIs(t, f.svc.DeleteProduct(ctx, 999), ErrProductNotFound)
	require.NoError(t, f.svc.DeleteProduct(ctx, 1))
	_, err = f.svc.GetProduct(ctx, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	assert.Contains(t, f.publisher.types(), enum.EventTypeCatalogProductDeleted)
}

func TestService_DeleteProductInvalidatesAfterCommit(t *testing.T) {
	f := newFixture(t, watch(42))

	require.NoError(t, f.svc.DeleteProduct(context.Background(), 42))
	assert.Equal(t, []int64{42}, f.products.invalidated)
}

func TestService_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SeedProducts(ctx)
	require.NoError(t, err)

	products, err := f.svc.SearchProducts(ctx, "  dress ")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Blue Dress", products[0].Name)

	products, err = f.svc.SearchProducts(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, []string{"dress"}, f.products.searches)

	suggestions, err := f.svc.SearchSuggestions(ctx, "e")
	require.NoError(t, err)
	assert.Len(t, suggestions, maxSuggestions)
	assert.Equal(t, int64(7), suggestions[0].ID)
	assert.Equal(t, "Slippers", suggestions[0].Name)

	suggestions, err = f.svc.SearchSuggestions(ctx, "")
	require.NoError(t, err)
	assert.NotNil(t, suggestions)
	assert.Empty(t, suggestions)
}

func TestService_GetProductPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SeedProducts(ctx)
	require.NoError(t, err)

	page, err := f.svc.GetProductPage(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Red Dress", page.Product.Name)
	require.Len(t, page.Related, 1)
	assert.Equal(t, int64(5), page.Related[0].ID)
	assert.Len(t, page.StoreProducts, 3)
	for _, p := range page.StoreProducts {
		assert.NotEqual(t, int64(4), p.ID)
	}

	_, err = f.svc.GetProductPage(ctx, 99)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_StorePages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SeedProducts(ctx)
	require.NoError(t, err)

	stores, err := f.svc.ListStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fashion Hub", "Tech Store"}, stores)

	page, err := f.svc.GetStorePage(ctx, "fashion hub", "SNEAKERS")
	require.NoError(t, err)
	assert.Equal(t, "Fashion Hub", page.Name)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "Sneakers", page.Products[0].Name)
	assert.Equal(t, []string{"dress", "slippers", "sneakers"}, page.Categories)

	page, err = f.svc.GetStorePage(ctx, "tech store", "")
	require.NoError(t, err)
	assert.Len(t, page.Products, 3)

	page, err = f.svc.GetStorePage(ctx, "nowhere", "")
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.Empty(t, page.Categories)
}

func TestService_ProcessEventOnce(t *testing.T) {
	f := newFixture(t)
	em := NewEventManager(nil, zap.NewNop())
	f.svc.eventManager = em

	handled := 0
	em.RegisterHandler(enum.EventTypeCartCleared, func(context.Context, *models.Event) error {
		handled++
		return nil
	})

	e := &models.Event{ID: "evt-1", Type: enum.EventTypeCartCleared, SessionID: "s1", CreatedAt: time.Now()}
	require.NoError(t, f.svc.ProcessEvent(context.Background(), e))
	require.NoError(t, f.svc.ProcessEvent(context.Background(), e))

	assert.Equal(t, 1, handled)
	stored, err := f.events.GetByID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.True(t, stored.Processed)
}

func TestNewService_PublishOnlyWithoutWorkerPool(t *testing.T) {
	em := NewEventManager(nil, zap.NewNop())
	svc := NewService(newFakeProducts(), nil, newFakeEvents(), &fakeTransactor{},
		em, nil, Options{}, zap.NewNop()).(*service)

	assert.Same(t, em, svc.publisher)
	assert.Empty(t, em.subs)
	_, ok := em.GetHandler(enum.EventTypeCartCleared)
	assert.True(t, ok)
}

func TestService_ProcessEventUnknownType(t *testing.T) {
	f := newFixture(t)
	f.svc.eventManager = NewEventManager(nil, zap.NewNop())

	err := f.svc.ProcessEvent(context.Background(), &models.Event{ID: "evt-2", Type: "cart.unknown"})
	assert.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	e, err := decodeEvent(&nats.Msg{
		Subject: Subject(enum.EventTypeCatalogProductDeleted),
		Data:    []byte(`{"id":"evt-3","product_id":4}`),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.EventTypeCatalogProductDeleted, e.Type)
	assert.Equal(t, int64(4), e.ProductID)

	_, err = decodeEvent(&nats.Msg{Subject: "storefront.event.cart.cleared", Data: []byte(`{}`)})
	assert.Error(t, err)

	_, err = decodeEvent(&nats.Msg{Data: []byte(`nope`)})
	assert.Error(t, err)
}
