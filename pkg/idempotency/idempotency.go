package idempotency

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const Header = "Idempotency-Key"

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// ErrConflict means the key is already bound to a different order.
var ErrConflict = errors.New("idempotency key already used")

// Store binds an idempotency key to the order created for it.
type Store interface {
	Lookup(ctx context.Context, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, key, orderID string) error
}

type PostgresStore struct {
	Pool *pgxpool.Pool
}

func (s *PostgresStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var orderID string
	err := s.Pool.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE idempotency_key=$1`, key).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderID, true, nil
}

func (s *PostgresStore) Remember(ctx context.Context, key, orderID string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO order_idempotency(idempotency_key, order_id) VALUES($1, $2)`,
		key, orderID,
	)
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// IsUniqueViolation reports a Postgres UNIQUE constraint failure (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	return id, ok, nil
}

func (s *MemoryStore) Remember(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return ErrConflict
	}
	s.keys[key] = orderID
	return nil
}
