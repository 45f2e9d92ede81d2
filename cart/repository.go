package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"gofalre.io/storefront/models"
)

// ErrConflict 購物車在重試期間持續被其他寫入者修改
var ErrConflict = errors.New("cart: concurrent modification")

// maxUpdateAttempts Update 樂觀鎖 (WATCH) 的最大嘗試次數
const maxUpdateAttempts = 5

var _ Repository = (*repository)(nil)

type Repository interface {
	// Get 取得 session 的購物車，不存在時回傳空購物車
	Get(ctx context.Context, sessionID string) (*models.Cart, error)
	// Update 讀取購物車、套用 fn 後原子地寫回
	Update(ctx context.Context, sessionID string, fn func(cart *models.Cart) error) (*models.Cart, error)
	Delete(ctx context.Context, sessionID string) error
}

type repository struct {
	client   redis.UniversalClient
	currency stripe.Currency
	clock    func() time.Time
	logger   *zap.Logger
}

// NewRepository 以 Redis 儲存購物車，每個 session 一份 JSON
func NewRepository(client redis.UniversalClient, currency stripe.Currency, logger *zap.Logger) Repository {
	return &repository{
		client:   client,
		currency: currency,
		clock:    time.Now,
		logger:   logger,
	}
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func (r *repository) Get(ctx context.Context, sessionID string) (*models.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(sessionID, r.currency, r.clock()), nil
	}
	if err != nil {
		r.logger.Error("Failed to get cart", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return r.decode(sessionID, data)
}

func (r *repository) Update(ctx context.Context, sessionID string, fn func(cart *models.Cart) error) (*models.Cart, error) {
	key := cartKey(sessionID)
	var result *models.Cart

	txf := func(tx *redis.Tx) error {
		// 1. 讀取目前的購物車
		cart, err := r.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		// 2. 套用變更
		if err = fn(cart); err != nil {
			return err
		}

		data, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("failed to encode cart: %w", err)
		}

		// 3. 僅在 key 未被其他寫入者修改時提交
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttlUntil(cart.ExpiresAt, r.clock()))
			return nil
		})
		if err != nil {
			return err
		}

		result = cart
		return nil
	}

	// key 被其他寫入者修改時重試
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		r.logger.Warn("Cart changed during update, retrying",
			zap.String("session_id", sessionID), zap.Int("attempt", attempt))
	}

	return nil, ErrConflict
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		r.logger.Error("Failed to delete cart", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) load(ctx context.Context, tx *redis.Tx, sessionID string) (*models.Cart, error) {
	data, err := tx.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(sessionID, r.currency, r.clock()), nil
	}
	if err != nil {
		return nil, err
	}
	return r.decode(sessionID, data)
}

func (r *repository) decode(sessionID string, data []byte) (*models.Cart, error) {
	cart := models.NewCart(sessionID, r.currency, r.clock())
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart %s: %w", sessionID, err)
	}
	if cart.Lines == nil {
		cart.Lines = []*models.CartLine{}
	}
	return cart, nil
}

func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
