package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tbourn/go-todo-backend/internal/config"
	"github.com/tbourn/go-todo-backend/internal/http/handlers"
	"github.com/tbourn/go-todo-backend/internal/repo"
	"github.com/tbourn/go-todo-backend/internal/services"
)

type purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type idempotencyStore interface {
	handlers.IdempotencyStore
	purger
}

// stores is the opened backend: the todo service over the selected store,
// the matching idempotency store, and a closer for the underlying handle.
type stores struct {
	service *services.TodoService
	idem    idempotencyStore
	close   func(context.Context) error
}

// openStores connects to cfg.Store.Driver and brings its schema or indexes up
// to date.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite, config.StorePostgres:
		var (
			db  *gorm.DB
			err error
		)
		if cfg.Store.Driver == config.StoreSQLite {
			db, err = repo.OpenSQLite(cfg.Store.DBPath)
		} else {
			db, err = repo.OpenPostgres(cfg.Store.DatabaseURL)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", cfg.Store.Driver)
		}
		if cfg.OTEL.Enabled {
			if err := repo.Instrument(db); err != nil {
				return nil, errors.Wrap(err, "instrument gorm")
			}
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, errors.Wrap(err, "migrate")
		}
		return &stores{
			service: services.NewTodoService(repo.NewGormTodoStore(db)),
			idem:    repo.NewGormIdempotencyStore(db),
			close: func(context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil

	case config.StoreMongo:
		client, err := repo.OpenMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoTimeout)
		if err != nil {
			return nil, errors.Wrap(err, "open mongo")
		}
		mdb := client.Database(cfg.Store.MongoDatabase)
		ictx, cancel := context.WithTimeout(ctx, cfg.Store.MongoTimeout)
		defer cancel()
		if err := repo.EnsureMongoIndexes(ictx, mdb); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, errors.Wrap(err, "mongo indexes")
		}
		return &stores{
			service: services.NewTodoService(repo.NewMongoTodoStore(mdb)),
			idem:    repo.NewMongoIdempotencyStore(mdb),
			close:   client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
