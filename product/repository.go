package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gofalre.io/storefront/driver"
	"gofalre.io/storefront/models"
)

// ErrNotFound 查無此商品
var ErrNotFound = errors.New("product: not found")

var _ Repository = (*repository)(nil)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, product *models.Product) error
	GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.Product, error)
	List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Product, error)
	ListByCategory(ctx context.Context, tx pgx.Tx, category string) ([]*models.Product, error)
	ListByStore(ctx context.Context, tx pgx.Tx, store string) ([]*models.Product, error)
	// ListStores 依字母順序回傳所有店鋪名稱
	ListStores(ctx context.Context, tx pgx.Tx) ([]string, error)
	// Search 以名稱、描述與類別比對關鍵字，新商品在前；limit 為 0 時不限筆數
	Search(ctx context.Context, tx pgx.Tx, query string, limit uint64) ([]*models.Product, error)
	Delete(ctx context.Context, tx pgx.Tx, id int64) error
	// Invalidate 清除商品快取
	Invalidate(id int64)
}

type repository struct {
	conn     driver.PostgresPool
	cache    *ristretto.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRepository 建立商品 repository，cache 可為 nil
func NewRepository(conn driver.PostgresPool, cache *ristretto.Cache, cacheTTL time.Duration, logger *zap.Logger) Repository {
	return &repository{
		conn:     conn,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// NewCache 建立行程內商品快取
func NewCache(numCounters, maxCost int64) (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
}

const selectColumns = `id, name, price::text, COALESCE(image, ''), COALESCE(description, ''), COALESCE(category, ''), COALESCE(store, ''), created_at`

func (r *repository) Create(ctx context.Context, tx pgx.Tx, product *models.Product) error {
	err := driver.Use(r.conn, tx).QueryRow(ctx, `
		INSERT INTO products (name, price, image, description, category, store)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
		RETURNING id, created_at`,
		product.Name, product.Price.StringFixed(2), product.Image, product.Description, product.Category, product.Store,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create product", zap.String("name", product.Name), zap.Error(err))
		return err
	}

	// 交易中寫入的商品在提交前不放入快取
	if tx == nil {
		r.setCache(product)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*models.Product, error) {
	if r.cache != nil {
		if v, found := r.cache.Get(id); found {
			if p, ok := v.(*models.Product); ok {
				cp := *p
				return &cp, nil
			}
		}
	}

	row := driver.Use(r.conn, tx).QueryRow(ctx, `SELECT `+selectColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.Int64("product_id", id), zap.Error(err))
		return nil, err
	}

	if tx == nil {
		r.setCache(product)
	}

	return product, nil
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, limit, offset uint64) ([]*models.Product, error) {
	query := `SELECT ` + selectColumns + ` FROM products ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := driver.Use(r.conn, tx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	return collectProducts(rows)
}

func (r *repository) ListByCategory(ctx context.Context, tx pgx.Tx, category string) ([]*models.Product, error) {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`SELECT `+selectColumns+` FROM products WHERE LOWER(category) = LOWER($1) ORDER BY id DESC`, category)
	if err != nil {
		r.logger.Error("Failed to list products by category", zap.String("category", category), zap.Error(err))
		return nil, err
	}
	return collectProducts(rows)
}

func (r *repository) ListByStore(ctx context.Context, tx pgx.Tx, store string) ([]*models.Product, error) {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`SELECT `+selectColumns+` FROM products WHERE LOWER(store) = LOWER($1) ORDER BY id DESC`, store)
	if err != nil {
		r.logger.Error("Failed to list products by store", zap.String("store", store), zap.Error(err))
		return nil, err
	}
	return collectProducts(rows)
}

func (r *repository) ListStores(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`SELECT DISTINCT store FROM products WHERE COALESCE(store, '') <> '' ORDER BY store`)
	if err != nil {
		r.logger.Error("Failed to list stores", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	stores := make([]string, 0)
	for rows.Next() {
		var store string
		if err = rows.Scan(&store); err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repository) Search(ctx context.Context, tx pgx.Tx, query string, limit uint64) ([]*models.Product, error) {
	sql := `SELECT ` + selectColumns + ` FROM products
		WHERE name ILIKE $1 OR description ILIKE $1 OR category ILIKE $1
		ORDER BY id DESC`
	args := []any{"%" + likeEscaper.Replace(query) + "%"}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := driver.Use(r.conn, tx).Query(ctx, sql, args...)
	if err != nil {
		r.logger.Error("Failed to search products", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	return collectProducts(rows)
}

// likeEscaper 跳脫 LIKE 萬用字元，讓關鍵字按字面比對
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, id int64) error {
	tag, err := driver.Use(r.conn, tx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete product", zap.Int64("product_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.Invalidate(id)

	return nil
}

func (r *repository) Invalidate(id int64) {
	if r.cache != nil {
		r.cache.Del(id)
	}
}

func (r *repository) setCache(product *models.Product) {
	if r.cache == nil {
		return
	}
	cp := *product
	if !r.cache.SetWithTTL(cp.ID, &cp, 1, r.cacheTTL) {
		r.logger.Warn("Failed to cache product", zap.Int64("product_id", cp.ID))
	}
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p     models.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Image, &p.Description, &p.Category, &p.Store, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	p.Price = d
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]*models.Product, error) {
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
