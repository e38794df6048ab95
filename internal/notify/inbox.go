package notify

import (
	"context"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinversity/storefront-go/pkg/contracts"
)

// Inbox records received events once. Record reports false for an event id it
// has already seen.
type Inbox interface {
	Record(ctx context.Context, evt contracts.Event) (bool, error)
}

//go:embed schema.sql
var schemaSQL string

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

type PostgresInbox struct {
	Pool *pgxpool.Pool
}

func (b *PostgresInbox) Record(ctx context.Context, evt contracts.Event) (bool, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `INSERT INTO inbox(event_id, received_at)
		VALUES ($1, now()) ON CONFLICT (event_id) DO NOTHING`, evt.EventID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `INSERT INTO notifications(event_id, order_id, type, payload)
		VALUES ($1, $2, $3, $4)`, evt.EventID, evt.OrderID, evt.Type, data)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

type MemoryInbox struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	Events []contracts.Event
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{seen: make(map[string]struct{})}
}

func (b *MemoryInbox) Record(_ context.Context, evt contracts.Event) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[evt.EventID]; ok {
		return false, nil
	}
	b.seen[evt.EventID] = struct{}{}
	b.Events = append(b.Events, evt)
	return true, nil
}

func (b *MemoryInbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Events)
}
