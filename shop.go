package storefront

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gofalre.io/storefront/cart"
	"gofalre.io/storefront/event"
	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
	"gofalre.io/storefront/product"
	"gofalre.io/storefront/worker"
)

var (
	ErrProductNotFound = errors.New("storefront: product not found")
	ErrInvalidSize     = errors.New("storefront: invalid size selected")
	ErrInvalidSession  = errors.New("storefront: session id is required")
)

type Service interface {
	GetCart(ctx context.Context, sessionID string) (*models.CartView, error)
	AddToCart(ctx context.Context, sessionID string, productID int64, quantity int, size string) (*models.CartSummary, error)
	UpdateCart(ctx context.Context, sessionID string, productID int64, quantity int) (*models.LineUpdate, error)
	RemoveFromCart(ctx context.Context, sessionID string, productID int64) (*models.CartSummary, error)
	ClearCart(ctx context.Context, sessionID string) error
	CartQuantity(ctx context.Context, sessionID string) (int, error)

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, limit, offset uint64) ([]*models.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	SearchProducts(ctx context.Context, query string) ([]*models.Product, error)
	SearchSuggestions(ctx context.Context, query string) ([]*models.ProductSuggestion, error)
	GetProductPage(ctx context.Context, id int64) (*models.ProductPage, error)
	GetStorePage(ctx context.Context, store, category string) (*models.StorePage, error)
	ListStores(ctx context.Context) ([]string, error)
	SeedProducts(ctx context.Context) (int, error)

	ProcessEvent(ctx context.Context, event *models.Event) error
}

// Transactor 在資料庫交易中執行 fn
type Transactor interface {
	ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Publisher 廣播領域事件
type Publisher interface {
	Publish(ctx context.Context, event *models.Event) error
}

// Options 服務所需的商店設定
type Options struct {
	Currency stripe.Currency
	Shipping decimal.Decimal
}

type service struct {
	product product.Repository
	cart    cart.Repository
	event   event.Repository

	transactionManager Transactor
	eventManager       *EventManager
	publisher          Publisher

	options Options
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService 組裝商店服務。eventManager 為 nil 時不發佈也不消費事件；
// 有 eventManager 但沒有 workerPool 時只發佈事件
func NewService(
	product product.Repository, cart cart.Repository, event event.Repository, tm Transactor,
	eventManager *EventManager, workerPool *worker.Pool,
	options Options,
	logger *zap.Logger) Service {
	if options.Currency == "" {
		options.Currency = stripe.CurrencyUSD
	}
	s := &service{
		product:            product,
		cart:               cart,
		event:              event,
		transactionManager: tm,
		eventManager:       eventManager,
		options:            options,
		clock:              time.Now,
		logger:             logger,
	}

	if eventManager != nil {
		s.publisher = eventManager
		s.registerEventHandlers()

		// 訂閱事件
		if workerPool != nil {
			if err := eventManager.SubscribeToEvents(workerPool, s.ProcessEvent, product.Invalidate); err != nil {
				logger.Error("Failed to subscribe to events", zap.Error(err))
			}
		}
	}

	return s
}

func (s *service) GetCart(ctx context.Context, sessionID string) (*models.CartView, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	cartModel, err := s.cart.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	// 1. 查詢每個商品，跳過已刪除的商品
	products := make(map[int64]*models.Product, len(cartModel.Lines))
	for _, line := range cartModel.Lines {
		if _, seen := products[line.ProductID]; seen {
			continue
		}
		p, err := s.product.GetByID(ctx, nil, line.ProductID)
		if errors.Is(err, product.ErrNotFound) {
			products[line.ProductID] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get product %d: %w", line.ProductID, err)
		}
		products[line.ProductID] = p
	}

	keep := func(productID int64) bool {
		return products[productID] != nil
	}

	// 2. 將移除已刪除商品後的購物車寫回
	if cartModel.Retain(keep) {
		if _, err = s.cart.Update(ctx, sessionID, func(c *models.Cart) error {
			c.Retain(keep)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to prune cart: %w", err)
		}
		s.logger.Info("Pruned deleted products from cart", zap.String("session_id", sessionID))
	}

	// 3. 組合畫面資料
	view := &models.CartView{
		Items:    make([]*models.CartItemView, 0, len(cartModel.Lines)),
		Quantity: cartModel.Quantity(),
		Currency: string(cartModel.Currency),
		Subtotal: cartModel.Subtotal(),
		Shipping: s.options.Shipping,
	}
	for _, line := range cartModel.Lines {
		p := products[line.ProductID]
		view.Items = append(view.Items, &models.CartItemView{
			CartLine:  line,
			Image:     p.Image,
			ShopName:  p.Store,
			LineTotal: line.Total().Round(2),
		})
	}
	view.Total = view.Subtotal.Add(view.Shipping)

	return view, nil
}

func (s *service) AddToCart(ctx context.Context, sessionID string, productID int64, quantity int, size string) (*models.CartSummary, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	// 1. 確認商品存在
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	// 2. 校正數量並檢查尺寸
	if quantity < 1 {
		quantity = 1
	}
	if !p.ValidSize(size) {
		return nil, ErrInvalidSize
	}
	if len(p.Sizes()) == 0 {
		size = ""
	}

	// 3. 相同商品與尺寸合併數量
	cartModel, err := s.cart.Update(ctx, sessionID, func(c *models.Cart) error {
		c.Add(p, quantity, size, s.clock())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add product %d to cart: %w", productID, err)
	}

	s.publish(ctx, enum.EventTypeCartItemAdded, sessionID, productID, quantity)

	return models.NewCartSummary(cartModel), nil
}

func (s *service) UpdateCart(ctx context.Context, sessionID string, productID int64, quantity int) (*models.LineUpdate, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	var itemTotal decimal.Decimal
	cartModel, err := s.cart.Update(ctx, sessionID, func(c *models.Cart) error {
		itemTotal = c.SetQuantity(productID, quantity, s.clock())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}

	eventType := enum.EventTypeCartItemUpdated
	if quantity <= 0 {
		eventType = enum.EventTypeCartItemRemoved
	}
	s.publish(ctx, eventType, sessionID, productID, quantity)

	return &models.LineUpdate{
		CartSummary: *models.NewCartSummary(cartModel),
		ItemTotal:   models.Money(itemTotal),
	}, nil
}

func (s *service) RemoveFromCart(ctx context.Context, sessionID string, productID int64) (*models.CartSummary, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	removed := 0
	cartModel, err := s.cart.Update(ctx, sessionID, func(c *models.Cart) error {
		removed = c.Remove(productID, s.clock())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove product %d from cart: %w", productID, err)
	}

	if removed > 0 {
		s.publish(ctx, enum.EventTypeCartItemRemoved, sessionID, productID, 0)
	}

	return models.NewCartSummary(cartModel), nil
}

func (s *service) ClearCart(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	if err := s.cart.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	s.publish(ctx, enum.EventTypeCartCleared, sessionID, 0, 0)

	return nil
}

func (s *service) CartQuantity(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrInvalidSession
	}

	cartModel, err := s.cart.Get(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to get cart: %w", err)
	}
	return cartModel.Quantity(), nil
}

func (s *service) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.Name == "" {
		return errors.New("product name is required")
	}
	if p.Price.IsNegative() {
		return errors.New("product price must not be negative")
	}

	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.product.Create(ctx, tx, p)
	})
}

func (s *service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.product.GetByID(ctx, nil, id)
	if errors.Is(err, product.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return p, nil
}

func (s *service) ListProducts(ctx context.Context, limit, offset uint64) ([]*models.Product, error) {
	return s.product.List(ctx, nil, limit, offset)
}

func (s *service) ListProductsByCategory(ctx context.Context, category string) ([]*models.Product, error) {
	return s.product.ListByCategory(ctx, nil, category)
}

func (s *service) SearchProducts(ctx context.Context, query string) ([]*models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.Product{}, nil
	}
	return s.product.Search(ctx, nil, query, 0)
}

func (s *service) SearchSuggestions(ctx context.Context, query string) ([]*models.ProductSuggestion, error) {
	suggestions := make([]*models.ProductSuggestion, 0, maxSuggestions)

	query = strings.TrimSpace(query)
	if query == "" {
		return suggestions, nil
	}

	products, err := s.product.Search(ctx, nil, query, maxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	for _, p := range products {
		suggestions = append(suggestions, &models.ProductSuggestion{ID: p.ID, Name: p.Name})
	}
	return suggestions, nil
}

func (s *service) GetProductPage(ctx context.Context, id int64) (*models.ProductPage, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	// 1. 同類別的其他商品
	related, err := s.product.ListByCategory(ctx, nil, p.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list related products: %w", err)
	}

	// 2. 同店鋪的其他商品
	storeProducts, err := s.product.ListByStore(ctx, nil, p.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to list store products: %w", err)
	}

	return &models.ProductPage{
		Product:       p,
		Related:       withoutProduct(related, id),
		StoreProducts: withoutProduct(storeProducts, id),
	}, nil
}

func (s *service) GetStorePage(ctx context.Context, store, category string) (*models.StorePage, error) {
	products, err := s.product.ListByStore(ctx, nil, store)
	if err != nil {
		return nil, fmt.Errorf("failed to list store products: %w", err)
	}

	page := &models.StorePage{
		Name:       cases.Title(language.English).String(store),
		Products:   make([]*models.Product, 0, len(products)),
		Categories: make([]string, 0),
	}

	seen := make(map[string]bool)
	for _, p := range products {
		if !seen[p.Category] {
			seen[p.Category] = true
			page.Categories = append(page.Categories, p.Category)
		}
		if category == "" || strings.EqualFold(p.Category, category) {
			page.Products = append(page.Products, p)
		}
	}
	sort.Strings(page.Categories)

	return page, nil
}

func (s *service) ListStores(ctx context.Context) ([]string, error) {
	return s.product.ListStores(ctx, nil)
}

// maxSuggestions 搜尋建議的最大筆數
const maxSuggestions = 5

func withoutProduct(products []*models.Product, id int64) []*models.Product {
	out := make([]*models.Product, 0, len(products))
	for _, p := range products {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func (s *service) DeleteProduct(ctx context.Context, id int64) error {
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.product.Delete(ctx, tx, id); err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("failed to delete product %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 提交後再清一次，避免交易期間被讀回快取
	s.product.Invalidate(id)

	// 其他實例透過 catalog 事件清除快取
	s.publish(ctx, enum.EventTypeCatalogProductDeleted, "", id, 0)

	return nil
}

func (s *service) SeedProducts(ctx context.Context) (int, error) {
	samples := models.SampleProducts()

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		for _, p := range samples {
			if err := s.product.Create(ctx, tx, p); err != nil {
				return fmt.Errorf("failed to seed product %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Seeded sample products", zap.Int("count", len(samples)))
	return len(samples), nil
}

// publish 發佈領域事件，失敗只記錄日誌，不影響呼叫方
func (s *service) publish(ctx context.Context, eventType enum.EventType, sessionID string, productID int64, quantity int) {
	if s.publisher == nil {
		return
	}

	now := s.clock()
	e := &models.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
