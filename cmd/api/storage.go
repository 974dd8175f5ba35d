package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	boltlockstore "github.com/lakay-digital/recharge-relay/internal/adapters/bolt/lockstore"
	memlockstore "github.com/lakay-digital/recharge-relay/internal/adapters/memory/lockstore"
	mongoadapter "github.com/lakay-digital/recharge-relay/internal/adapters/mongo"
	mongolockstore "github.com/lakay-digital/recharge-relay/internal/adapters/mongo/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/adapters/postgres"
	pglockstore "github.com/lakay-digital/recharge-relay/internal/adapters/postgres/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/adapters/postgres/migrations"
	sqlitelockstore "github.com/lakay-digital/recharge-relay/internal/adapters/sqlite/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/platform/config"
	lockstoreport "github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// openStore connects the configured lock store. When migrate is set the backend's
// schema (tables, indexes) is created or updated first.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) (lockstoreport.Store, func(), error) {
	log = log.With(zap.String("backend", cfg.StorageBackend))

	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Warn("using in-memory lock store; idempotency records are lost on restart")
		return memlockstore.NewStore(), func() {}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if migrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
			log.Info("postgres migrations applied")
		}
		return pglockstore.NewStore(pool), pool.Close, nil

	case config.BackendSQLite:
		s, err := sqlitelockstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("sqlite lock store opened", zap.String("path", cfg.SQLitePath))
		return s, func() { _ = s.Close() }, nil

	case config.BackendBolt:
		s, err := boltlockstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("bolt: %w", err)
		}
		log.Info("bolt lock store opened", zap.String("path", cfg.BoltPath))
		return s, func() { _ = s.Close() }, nil

	case config.BackendMongo:
		client, err := mongoadapter.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		s := mongolockstore.NewStore(client.Database(cfg.MongoDatabase))
		if err := s.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return s, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
