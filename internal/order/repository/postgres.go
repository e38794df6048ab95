package repository

import (
	"context"
	_ "embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skinversity/storefront-go/internal/order/domain"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the order tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTable stores orders in Postgres through pgx.
type PostgresTable struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresTable(pool *pgxpool.Pool) *PostgresTable {
	return &PostgresTable{pool: pool, q: pool}
}

func (t *PostgresTable) InTx(ctx context.Context, fn func(Table) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresTable{pool: t.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (t *PostgresTable) InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	err := t.q.QueryRow(ctx,
		`INSERT INTO orders(user_id, total, status) VALUES($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		o.UserID, o.Total, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (t *PostgresTable) InsertItem(ctx context.Context, it domain.OrderItem) (domain.OrderItem, error) {
	err := t.q.QueryRow(ctx,
		`INSERT INTO order_items(order_id, product_id, quantity, price) VALUES($1, $2, $3, $4)
		 RETURNING id, created_at`,
		it.OrderID, it.ProductID, it.Quantity, it.Price,
	).Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return it, nil
}

func (t *PostgresTable) DeleteOrder(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	return err
}

func (t *PostgresTable) SelectOrders(ctx context.Context, f Filter) ([]domain.OrderWithItems, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, user_id, total, status, created_at, updated_at
		 FROM orders
		 WHERE ($1 = '' OR id = $1) AND ($2 = '' OR user_id = $2)
		 ORDER BY created_at DESC`,
		f.OrderID, f.UserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderWithItems
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var o domain.OrderWithItems
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.Status(status)
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	itemRows, err := t.q.Query(ctx,
		`SELECT id, order_id, product_id, quantity, price, created_at
		 FROM order_items WHERE order_id = ANY($1) ORDER BY created_at, id`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it domain.OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.CreatedAt); err != nil {
			return nil, err
		}
		i := index[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, itemRows.Err()
}

func (t *PostgresTable) CompareAndSetStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
