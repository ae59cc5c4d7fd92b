// Package store selects and opens the configured storage backend.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"schoolattend/internal/config"
	"schoolattend/internal/domain"
	"schoolattend/internal/store/memory"
	"schoolattend/internal/store/mongostore"
	"schoolattend/internal/store/postgres"
)

// Open returns the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.App, log *zap.Logger) (domain.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil

	case "mongo", "mongodb":
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			log.Warn("mongo not reachable", zap.Error(err))
		} else if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case "postgres", "":
		db, err := postgres.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			if db == nil {
				return nil, err
			}
			log.Warn("db not reachable", zap.Error(err))
		} else if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		return postgres.NewRepository(db), nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
