package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/avetra/ordergate/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, owner_id, items, total_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	getOrderSQL = `SELECT id, owner_id, items, total_amount, status, created_at, updated_at
		FROM orders WHERE id = $1`

	// The status guard makes the write conditional: zero rows means either
	// the order is gone or its status no longer matches.
	updateOrderStatusSQL = `UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING id, owner_id, items, total_amount, status, created_at, updated_at`
)

// orderSortColumns is the allow-list for ORDER BY. Keys match the domain sort
// constants, values are real column names.
var orderSortColumns = map[string]string{
	order.SortByCreatedAt:   "created_at",
	order.SortByStatus:      "status",
	order.SortByTotalAmount: "total_amount",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.OwnerID, itemsJSON, o.TotalAmount, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID fetches a single order by primary key.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("fetching order %q: %w", id, err)
	}
	return o, nil
}

// List returns one page of orders and the total match count. The page query
// and the count query run concurrently on separate pool connections.
func (r *OrderRepository) List(ctx context.Context, params order.ListParams) ([]order.Order, int, error) {
	column, ok := orderSortColumns[params.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if params.SortDesc {
		direction = "DESC"
	}

	filter := ""
	args := []any{params.Limit, params.Offset}
	countArgs := []any{}
	if params.OwnerID != "" {
		filter = "WHERE owner_id = $3"
		args = append(args, params.OwnerID)
		countArgs = append(countArgs, params.OwnerID)
	}

	listSQL := fmt.Sprintf(`SELECT id, owner_id, items, total_amount, status, created_at, updated_at
		FROM orders %s ORDER BY %s %s LIMIT $1 OFFSET $2`, filter, column, direction)
	countSQL := "SELECT count(*) FROM orders"
	if params.OwnerID != "" {
		countSQL += " WHERE owner_id = $1"
	}

	var (
		orders []order.Order
		total  int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.pool.Query(ctx, listSQL, args...)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scanning order row: %w", err)
			}
			orders = append(orders, *o)
		}
		return rows.Err()
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("counting orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStatus performs the guarded transition write. Zero affected rows is
// reported as ErrNotFound; the caller decides whether that means a missing
// order or a lost race.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, next order.Status) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, updateOrderStatusSQL, id, from, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
	)
	err := row.Scan(&o.ID, &o.OwnerID, &itemsJSON, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return &o, nil
}
