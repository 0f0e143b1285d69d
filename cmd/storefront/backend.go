package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/ports"
	"github.com/marketplace/storefront/internal/infrastructure/config"
	redisdb "github.com/marketplace/storefront/internal/infrastructure/db/redis"
	"github.com/marketplace/storefront/internal/infrastructure/queue"
	filestore "github.com/marketplace/storefront/internal/infrastructure/store/file"
	"github.com/marketplace/storefront/internal/infrastructure/store/memory"
)

// contextStore is a durable store handle bound to one execution context.
type contextStore interface {
	ports.DurableStore
	ContextID() string
}

// openStore opens this process's handle on the configured durable store.
// The returned release func closes the handle and whatever backs it.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (contextStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		d := queue.NewDispatcher(2, log)
		d.Start(ctx)
		st := memory.NewHub(d).Open()
		return st, func() {
			_ = st.Close()
			d.Stop()
		}, nil

	case config.BackendFile:
		st, err := filestore.Open(ctx, cfg.Store.FilePath, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.BackendRedis:
		client, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		st, err := redisdb.NewDurableStore(ctx, client, cfg.Store.Namespace, log)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return st, func() {
			_ = st.Close()
			_ = client.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func sessionKeys(cfg *config.Config) ports.SessionKeys {
	return ports.SessionKeys{Token: cfg.Store.TokenKey, User: cfg.Store.UserKey}
}
