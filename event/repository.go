package event

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/storefront/driver"
	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
)

// ErrNotFound 事件尚未被記錄
var ErrNotFound = errors.New("event: not found")

var _ Repository = (*repository)(nil)

// Repository 記錄已消費的事件，重送時只處理一次
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, id string) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) Create(ctx context.Context, event *models.Event) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO processed_events (id, type, session_id, product_id, quantity, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Type), event.SessionID, event.ProductID, event.Quantity,
		event.Processed, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record event", zap.String("event_id", event.ID), zap.Error(err))
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var (
		e         models.Event
		eventType string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT id, type, COALESCE(session_id, ''), COALESCE(product_id, 0), COALESCE(quantity, 0), processed, created_at, updated_at
		FROM processed_events WHERE id = $1`, id,
	).Scan(&e.ID, &eventType, &e.SessionID, &e.ProductID, &e.Quantity, &e.Processed, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Type = enum.EventType(eventType)
	return &e, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE processed_events SET processed = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now())
	return err
}
