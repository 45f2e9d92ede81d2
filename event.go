package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gofalre.io/storefront/event"
	"gofalre.io/storefront/models"
	"gofalre.io/storefront/models/enum"
	"gofalre.io/storefront/worker"
)

const (
	subjectPrefix = "storefront.event."

	cartSubjects    = subjectPrefix + "cart.>"
	catalogSubjects = subjectPrefix + "catalog.>"

	// cartQueue 讓多個實例分攤購物車事件
	cartQueue = "storefront-cart-audit"
)

type EventHandler func(context.Context, *models.Event) error

type EventManager struct {
	natsConn *nats.Conn
	handlers map[enum.EventType]EventHandler
	subs     []*nats.Subscription
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		handlers: make(map[enum.EventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType enum.EventType, handler EventHandler) {
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType enum.EventType) (EventHandler, bool) {
	handler, exists := em.handlers[eventType]
	return handler, exists
}

// Subject 回傳事件類型對應的 NATS subject
func Subject(eventType enum.EventType) string {
	return subjectPrefix + string(eventType)
}

func (em *EventManager) Publish(_ context.Context, e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return em.natsConn.Publish(Subject(e.Type), data)
}

// SubscribeToEvents 訂閱事件：購物車事件以 queue group 分派到單一實例的 worker pool 處理，
// 商品刪除事件則廣播到所有實例，透過 invalidate 清除本地快取
func (em *EventManager) SubscribeToEvents(wp *worker.Pool, process EventHandler, invalidate func(productID int64)) error {
	sub, err := em.natsConn.QueueSubscribe(cartSubjects, cartQueue, func(msg *nats.Msg) {
		e, err := decodeEvent(msg)
		if err != nil {
			em.logger.Error("Failed to unmarshal event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if !e.Type.IsCart() {
			return
		}

		if err = wp.Submit(context.Background(), string(e.Type), func(ctx context.Context) error {
			return process(ctx, e)
		}); err != nil {
			em.logger.Warn("Dropped event", zap.String("event_id", e.ID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cartSubjects, err)
	}
	em.subs = append(em.subs, sub)

	sub, err = em.natsConn.Subscribe(catalogSubjects, func(msg *nats.Msg) {
		e, err := decodeEvent(msg)
		if err != nil {
			em.logger.Error("Failed to unmarshal event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if e.Type == enum.EventTypeCatalogProductDeleted {
			invalidate(e.ProductID)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", catalogSubjects, err)
	}
	em.subs = append(em.subs, sub)

	return nil
}

// Close 排空 SubscribeToEvents 建立的訂閱
func (em *EventManager) Close() {
	for _, sub := range em.subs {
		if err := sub.Drain(); err != nil {
			em.logger.Warn("Failed to drain subscription", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	em.subs = nil
}

func decodeEvent(msg *nats.Msg) (*models.Event, error) {
	var e models.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, errors.New("event id is missing")
	}
	if e.Type == "" {
		e.Type = enum.EventType(strings.TrimPrefix(msg.Subject, subjectPrefix))
	}
	return &e, nil
}

func (s *service) registerEventHandlers() {
	eventHandlers := map[enum.EventType]EventHandler{
		enum.EventTypeCartItemAdded:   s.handleCartActivity,
		enum.EventTypeCartItemUpdated: s.handleCartActivity,
		enum.EventTypeCartItemRemoved: s.handleCartActivity,
		enum.EventTypeCartCleared:     s.handleCartCleared,
	}

	for eventType, handler := range eventHandlers {
		s.eventManager.RegisterHandler(eventType, handler)
	}
}

func (s *service) handleCartActivity(_ context.Context, e *models.Event) error {
	s.logger.Info("Cart activity",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("session_id", e.SessionID),
		zap.Int64("product_id", e.ProductID),
		zap.Int("quantity", e.Quantity),
	)
	return nil
}

func (s *service) handleCartCleared(_ context.Context, e *models.Event) error {
	s.logger.Info("Cart cleared", zap.String("event_id", e.ID), zap.String("session_id", e.SessionID))
	return nil
}

// ProcessEvent 執行事件處理器，同一個事件 ID 只處理一次
func (s *service) ProcessEvent(ctx context.Context, e *models.Event) error {
	if existing, err := s.event.GetByID(ctx, e.ID); err == nil && existing.Processed {
		s.logger.Info("Event already processed", zap.String("event_id", e.ID))
		return nil
	} else if err != nil && !errors.Is(err, event.ErrNotFound) {
		return fmt.Errorf("failed to look up event %s: %w", e.ID, err)
	}

	if s.eventManager == nil {
		return fmt.Errorf("no handler registered for event type: %s", e.Type)
	}
	handler, exists := s.eventManager.GetHandler(e.Type)
	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", e.Type)
	}

	now := s.clock()
	if err := s.event.Create(ctx, &models.Event{
		ID:        e.ID,
		Type:      e.Type,
		SessionID: e.SessionID,
		ProductID: e.ProductID,
		Quantity:  e.Quantity,
		Processed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		s.logger.Error("Failed to create event", zap.Error(err))
		return err
	}

	if err := handler(ctx, e); err != nil {
		s.logger.Error("處理事件時出錯",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err),
		)
		return err
	}

	if err := s.event.MarkAsProcessed(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to mark event %s as processed: %w", e.ID, err)
	}

	s.logger.Info("Event processed", zap.String("event_id", e.ID))

	return nil
}
