package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	storefront "gofalre.io/storefront"
	"gofalre.io/storefront/cart"
	"gofalre.io/storefront/driver"
	"gofalre.io/storefront/event"
	"gofalre.io/storefront/product"
	"gofalre.io/storefront/worker"
)

// app holds the connections and the service built from the config.
type app struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	nats   *nats.Conn
	events *storefront.EventManager
	worker *worker.Pool

	svc storefront.Service
}

// eventMode selects how much of the event bus an app joins.
type eventMode int

const (
	noEvents eventMode = iota
	// publishEvents connects to NATS for publishing only. Short-lived
	// commands use it so they never take cart events off the queue group.
	publishEvents
	consumeEvents
)

// newApp connects to the backing stores, and to NATS when a URL is
// configured and events is not noEvents.
func newApp(ctx context.Context, events eventMode) (*app, error) {
	a := &app{}

	var err error
	a.pool, err = driver.ConnectPostgres(ctx, cfg.Postgres.DSN, driver.PostgresOptions{
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnLifetime: cfg.Postgres.GetMaxConnLifetime(),
	})
	if err != nil {
		return nil, err
	}

	a.redis, err = driver.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.close()
		return nil, err
	}

	shipping, err := cfg.ShippingAmount()
	if err != nil {
		a.close()
		return nil, err
	}

	if events != noEvents && cfg.NATS.URL != "" {
		a.nats, err = driver.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.events = storefront.NewEventManager(a.nats, logger)
		if events == consumeEvents {
			a.worker = worker.NewPool(cfg.Cart.Workers, 256, logger)
		}
	}

	cache, err := product.NewCache(cfg.Cache.NumCounters, cfg.Cache.MaxCost)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create product cache: %w", err)
	}

	a.svc = storefront.NewService(
		product.NewRepository(a.pool, cache, cfg.Cache.GetTTL(), logger),
		cart.NewRepository(a.redis, cfg.Currency(), logger),
		event.NewRepository(a.pool, logger),
		driver.NewTransactionManager(a.pool, logger),
		a.events, a.worker,
		storefront.Options{Currency: cfg.Currency(), Shipping: shipping},
		logger,
	)

	return a, nil
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.worker != nil {
		a.worker.Shutdown()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
