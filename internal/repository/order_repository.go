package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/ticketing-system/internal/model"
)

// OrderRepo provides access to orders and their order_items.  Orders are
// always written inside the transaction that books their tickets.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to db.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateTx inserts the order row and populates o.ID.  Items are written
// separately with CreateItemsBulkTx.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	o.CreatedAt = dbTime(o.CreatedAt)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (order_number, customer_id, buyer_id, status, total_amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.OrderNumber, nullID(o.CustomerID), nullID(o.BuyerID), string(o.Status), o.TotalAmount, o.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return storeErr("insert order", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("insert order", err)
	}
	o.ID = uint64(id)
	return nil
}

// CreateItemsBulkTx inserts all items of an order in one statement and
// reloads them so the returned items carry their ids.  A ticket that
// already appears in an order item makes the insert fail with
// ErrDuplicate.
func (r *OrderRepo) CreateItemsBulkTx(ctx context.Context, tx *sql.Tx, orderID uint64, items []model.OrderItem) ([]model.OrderItem, error) {
	if len(items) == 0 {
		return []model.OrderItem{}, nil
	}
	var q strings.Builder
	q.WriteString(`INSERT INTO order_items (order_id, ticket_id, price) VALUES `)
	args := make([]interface{}, 0, len(items)*3)
	for i, it := range items {
		if i > 0 {
			q.WriteString(",")
		}
		q.WriteString("(?, ?, ?)")
		args = append(args, orderID, it.TicketID, it.Price)
	}
	if _, err := tx.ExecContext(ctx, q.String(), args...); err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, storeErr("insert order items", err)
	}
	return r.itemsTx(ctx, tx, orderID)
}

func (r *OrderRepo) itemsTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_id, ticket_id, price FROM order_items WHERE order_id = ? ORDER BY ticket_id`, orderID)
	if err != nil {
		return nil, storeErr("list order items", err)
	}
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]model.OrderItem, error) {
	defer rows.Close()
	items := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.TicketID, &it.Price); err != nil {
			return nil, storeErr("scan order item", err)
		}
		items = append(items, it)
	}
	return items, storeErr("list order items", rows.Err())
}

// GetByID returns the order with its items or model.ErrOrderNotFound.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	var (
		o          model.Order
		status     string
		customerID sql.NullInt64
		buyerID    sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_number, customer_id, buyer_id, status, total_amount, created_at FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.OrderNumber, &customerID, &buyerID, &status, &o.TotalAmount, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, storeErr("get order", err)
	}
	o.Status = model.OrderStatus(status)
	o.CustomerID = idPtr(customerID)
	o.BuyerID = idPtr(buyerID)
	o.CreatedAt = o.CreatedAt.UTC()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, ticket_id, price FROM order_items WHERE order_id = ? ORDER BY ticket_id`, id)
	if err != nil {
		return model.Order{}, storeErr("list order items", err)
	}
	if o.Items, err = scanItems(rows); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// CountItemsForTicket reports how many order items reference ticketID.
func (r *OrderRepo) CountItemsForTicket(ctx context.Context, ticketID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_items WHERE ticket_id = ?`, ticketID).Scan(&n)
	return n, storeErr("count order items", err)
}

func nullID(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func idPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}
