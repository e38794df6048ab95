package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/idempotency"
)

const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusAbandoned = "abandoned"
)

var (
	ErrUnknownReference   = errors.New("unknown transaction reference")
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	ErrAlreadySettled     = errors.New("transaction already settled")
)

type Record struct {
	payment.Transaction
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sandbox transactions. Settle moves a pending transaction to
// status exactly once.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, reference string) (Record, error)
	Settle(ctx context.Context, reference, status string) (Record, error)
}

type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.Reference]; ok {
		return ErrDuplicateReference
	}
	s.recs[rec.Reference] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, reference string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[reference]
	if !ok {
		return Record{}, ErrUnknownReference
	}
	return rec, nil
}

func (s *MemoryStore) Settle(_ context.Context, reference, status string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[reference]
	if !ok {
		return Record{}, ErrUnknownReference
	}
	if rec.Status != StatusPending {
		return rec, ErrAlreadySettled
	}
	rec.Status = status
	s.recs[reference] = rec
	return rec, nil
}

//go:embed schema.sql
var schemaSQL string

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

type PostgresStore struct {
	Pool *pgxpool.Pool
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `INSERT INTO payment_transactions(reference, amount, currency, email, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Reference, rec.AmountMinor, rec.Currency, rec.Email, rec.Status, meta)
	if idempotency.IsUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

const selectRecord = `SELECT reference, amount, currency, email, status, metadata, created_at
	FROM payment_transactions WHERE reference = $1`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec  Record
		meta []byte
	)
	err := row.Scan(&rec.Reference, &rec.AmountMinor, &rec.Currency, &rec.Email, &rec.Status, &meta, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrUnknownReference
	}
	if err != nil {
		return Record{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, reference string) (Record, error) {
	return scanRecord(s.Pool.QueryRow(ctx, selectRecord, reference))
}

func (s *PostgresStore) Settle(ctx context.Context, reference, status string) (Record, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE payment_transactions SET status=$2, updated_at=now()
		WHERE reference=$1 AND status='pending'`, reference, status)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.Get(ctx, reference)
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return rec, ErrAlreadySettled
	}
	return rec, nil
}
