// Package engine wires the configured backend into an instrumented store.Store.
package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aridsondez/queue-engine/internal/config"
	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
	"github.com/aridsondez/queue-engine/internal/queue/store/file"
	"github.com/aridsondez/queue-engine/internal/queue/store/memory"
	pgstore "github.com/aridsondez/queue-engine/internal/queue/store/postgres"
)

// Open builds the backend named by cfg.Backend. The returned func releases
// whatever the backend holds open and is safe to call once.
func Open(ctx context.Context, cfg *config.Config, clock queue.Clock, log logging.Logger) (store.Store, func(), error) {
	if clock == nil {
		clock = queue.SystemClock{}
	}
	if log == nil {
		log = logging.Nop{}
	}

	var (
		backend store.Store
		closer  = func() {}
	)

	switch cfg.Backend {
	case config.BackendFile:
		fs, err := file.New(file.Options{
			Dir:               cfg.QueueDir,
			Delimiter:         cfg.FieldDelimiter,
			VisibilityTimeout: cfg.VisibilityTimeout,
			DeletePolicy:      cfg.DeletePolicy,
			Clock:             clock,
			Logger:            log,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = fs

	case config.BackendMemory:
		backend = memory.New(memory.Options{
			VisibilityTimeout: cfg.VisibilityTimeout,
			Clock:             clock,
			Logger:            log,
		})

	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectionTimeout)
		defer cancel()

		pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgx ping: %w", err)
		}
		ps := pgstore.New(pool, pgstore.Options{
			VisibilityTimeout: cfg.VisibilityTimeout,
			Clock:             clock,
			Logger:            log,
		})
		if err := ps.EnsureSchema(connectCtx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		backend = ps
		closer = pool.Close

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	log.Info("queue engine opened",
		logging.F("backend", cfg.Backend),
		logging.F("visibility_timeout", cfg.VisibilityTimeout),
	)
	return store.Instrument(backend, log), closer, nil
}
