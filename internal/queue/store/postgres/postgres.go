package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
)

// Ensure *PostgresStore implements store.Store at compile time.
var _ store.Store = (*PostgresStore)(nil)

const DefaultVisibilityTimeout = 30 * time.Second

type PostgresStore struct {
	pool       *pgxpool.Pool
	visibility time.Duration
	clock      queue.Clock
	log        logging.Logger
}

type Options struct {
	VisibilityTimeout time.Duration
	Clock             queue.Clock
	Logger            logging.Logger
}

func New(pool *pgxpool.Pool, opts Options) *PostgresStore {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Clock == nil {
		opts.Clock = queue.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	return &PostgresStore{
		pool:       pool,
		visibility: opts.VisibilityTimeout,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
}

// SQL templates
const (
	sqlSchema = `
CREATE TABLE IF NOT EXISTS queue_messages (
  id           BIGSERIAL PRIMARY KEY,
  queue        TEXT        NOT NULL,
  receipt_id   TEXT        NOT NULL,
  priority     INT         NOT NULL DEFAULT 0,
  body         TEXT        NOT NULL,
  attempts     INT         NOT NULL DEFAULT 0,
  visible_from TIMESTAMPTZ NOT NULL,
  enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS queue_messages_pull_idx
  ON queue_messages (queue, priority DESC, id);
CREATE INDEX IF NOT EXISTS queue_messages_receipt_idx
  ON queue_messages (queue, receipt_id);`

	sqlPush = `
INSERT INTO queue_messages (queue, receipt_id, priority, body, visible_from)
VALUES ($1, $2, $3, $4, $5);`

	// Single CTE pattern: pick -> update -> return row
	sqlPull = `
WITH picked AS (
  SELECT id
  FROM queue_messages
  WHERE queue = $1
    AND visible_from <= $2
  ORDER BY priority DESC, id
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
UPDATE queue_messages m
SET attempts     = m.attempts + 1,
    visible_from = $3,
    receipt_id   = $4
FROM picked
WHERE m.id = picked.id
RETURNING m.body, m.receipt_id;`

	// Only an in-flight delivery can be acknowledged.
	sqlDelete = `
DELETE FROM queue_messages
WHERE queue = $1
  AND receipt_id = $2
  AND attempts > 0
  AND visible_from > $3;`

	sqlPurge = `DELETE FROM queue_messages WHERE queue = $1;`
)

// EnsureSchema creates the messages table and its indexes if missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, sqlSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Push(ctx context.Context, queueID, body string, priority int) error {
	name, err := queue.ValidatePush(queueID, body)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, sqlPush,
		name,
		queue.NewReceiptID(),
		priority,
		body,
		p.clock.Now(), // visible immediately
	)
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	return nil
}

// Pull leases the highest-priority visible row and gives it a fresh receipt.
func (p *PostgresStore) Pull(ctx context.Context, queueID string) (*queue.Message, error) {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	var m queue.Message
	err = p.pool.QueryRow(ctx, sqlPull,
		name,
		now,
		now.Add(p.visibility),
		queue.NewReceiptID(),
	).Scan(&m.Body, &m.ReceiptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", name, err)
	}
	return &m, nil
}

func (p *PostgresStore) Delete(ctx context.Context, queueID, receiptID string) error {
	name, err := queue.ValidateReceipt(queueID, receiptID)
	if err != nil {
		return err
	}

	ct, err := p.pool.Exec(ctx, sqlDelete, name, receiptID, p.clock.Now())
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if ct.RowsAffected() == 0 {
		p.log.Debug("delete matched no record", logging.F("queue", name), logging.F("receipt", receiptID))
	}
	return nil
}

func (p *PostgresStore) Purge(ctx context.Context, queueID string) error {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return err
	}

	ct, err := p.pool.Exec(ctx, sqlPurge, name)
	if err != nil {
		return fmt.Errorf("purge %s: %w", name, err)
	}
	p.log.Info("queue purged", logging.F("queue", name), logging.F("removed", ct.RowsAffected()))
	return nil
}
