package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// MySQLOrderAdapter persists orders. Creation spans the order insert and
// every item's ledger append plus decrement in one transaction, so a
// failing item rolls the whole order back instead of leaving stock
// decremented for a deleted order.
type MySQLOrderAdapter struct {
	db *sql.DB
}

func NewMySQLOrderAdapter(db *sql.DB) *MySQLOrderAdapter {
	return &MySQLOrderAdapter{db: db}
}

const orderColumns = `id, customer_name, customer_phone, shipping_address, subtotal,
	shipping_fee, tax, total_amount, status, payment_status, created_at, updated_at`

func (m *MySQLOrderAdapter) CreateOrder(ctx context.Context, o *domain.Order, performedBy string) ([]domain.MovementEntry, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerName, o.CustomerPhone, o.ShippingAddress, o.Subtotal,
		o.ShippingFee, o.Tax, o.TotalAmount, string(o.Status), string(o.PaymentStatus),
		o.CreatedAt, o.UpdatedAt,
	)
	if isDuplicate(err) {
		return nil, fmt.Errorf("order %s: %w", o.ID, domain.ErrDuplicateRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	movements := make([]domain.MovementEntry, 0, len(o.Items))
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID

		result, err := tx.ExecContext(ctx, `
			UPDATE variants
			SET quantity = quantity - ?, updated_at = UTC_TIMESTAMP(6)
			WHERE product_id = ? AND variant_id = ? AND quantity >= ?`,
			item.Quantity, item.ProductID, item.VariantID, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement %s/%s: %w", item.ProductID, item.VariantID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			exists, err := variantExists(ctx, tx, item.ProductID, item.VariantID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("variant %s/%s: %w", item.ProductID, item.VariantID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("variant %s/%s: %w", item.ProductID, item.VariantID, domain.ErrInsufficientStock)
		}

		var after int
		err = tx.QueryRowContext(ctx, `
			SELECT quantity FROM variants WHERE product_id = ? AND variant_id = ?`,
			item.ProductID, item.VariantID,
		).Scan(&after)
		if err != nil {
			return nil, fmt.Errorf("read quantity: %w", err)
		}

		itemResult, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			o.ID, item.ProductID, item.VariantID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
		item.ID, _ = itemResult.LastInsertId()

		entry := &domain.MovementEntry{
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			Type:            domain.MovementSale,
			QuantityBefore:  after + item.Quantity,
			QuantityChanged: -item.Quantity,
			QuantityAfter:   after,
			Reason:          fmt.Sprintf("order %s", o.ID),
			PerformedBy:     performedBy,
			ReferenceType:   "order",
			ReferenceID:     o.ID,
			CreatedAt:       time.Now().UTC(),
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, entry); err != nil {
			return nil, err
		}
		movements = append(movements, *entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return movements, nil
}

func (m *MySQLOrderAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID,
			&item.Quantity, &item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (m *MySQLOrderAdapter) ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (m *MySQLOrderAdapter) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND status = ?`,
		string(to), orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var n int
		if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = ?`, orderID).Scan(&n); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return fmt.Errorf("order %s moved off %s: %w", orderID, from, domain.ErrConcurrencyConflict)
	}
	return nil
}

// CancelOrder reverses every non-reversed sale movement of the order and
// sets the status, all in one transaction.
func (m *MySQLOrderAdapter) CancelOrder(ctx context.Context, orderID, performedBy, reason string) ([]domain.MovementEntry, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ? FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if !domain.OrderStatus(status).CanTransition(domain.OrderStatusCancelled) {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, status, domain.ErrInvalidTransition)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM stock_movements
		WHERE reference_type = 'order' AND reference_id = ?
		  AND movement_type = 'sale' AND is_reversed = 0
		ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query sale movements: %w", err)
	}
	var saleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan movement id: %w", err)
		}
		saleIDs = append(saleIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reversals := make([]domain.MovementEntry, 0, len(saleIDs))
	for _, id := range saleIDs {
		rev, err := reverseInTx(ctx, tx, id, performedBy, reason)
		if err != nil {
			return nil, err
		}
		reversals = append(reversals, *rev)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`,
		string(domain.OrderStatusCancelled), orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return reversals, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o       domain.Order
		status  string
		payment string
	)
	err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerPhone, &o.ShippingAddress,
		&o.Subtotal, &o.ShippingFee, &o.Tax, &o.TotalAmount, &status, &payment,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payment)
	return &o, nil
}
