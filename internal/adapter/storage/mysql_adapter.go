package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// MySQLAdapter is the authoritative store for variants and the stock
// movement ledger. Every mutation runs the ledger append and the variant
// projection update inside one transaction, with the decrement guard
// expressed as a conditional UPDATE so concurrent writers cannot both pass
// the check.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

const variantColumns = `product_id, variant_id, package_type, quantity, min_stock_level,
	max_stock_level, unit_cost, unit_price, available, created_at, updated_at`

const movementColumns = `id, product_id, variant_id, movement_type, quantity_before,
	quantity_changed, quantity_after, reason, performed_by, reference_type, reference_id,
	unit_cost, is_reversed, reversal_of, created_at`

func (m *MySQLAdapter) GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+variantColumns+` FROM variants
		WHERE product_id = ? AND variant_id = ?`, productID, variantID)

	v, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s/%s: %w", productID, variantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query variant: %w", err)
	}
	return v, nil
}

func (m *MySQLAdapter) CreateVariant(ctx context.Context, v *domain.Variant) error {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO variants (`+variantColumns+`)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		v.ProductID, v.VariantID, v.PackageType, v.MinStockLevel, v.MaxStockLevel,
		v.UnitCost, v.UnitPrice, v.Available, now, now,
	)
	if isDuplicate(err) {
		return fmt.Errorf("variant %s/%s exists: %w", v.ProductID, v.VariantID, domain.ErrDuplicateRequest)
	}
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	// the ledger starts empty, so the projection starts at zero
	v.Quantity = 0
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

func (m *MySQLAdapter) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return m.listVariants(ctx, `SELECT `+variantColumns+` FROM variants ORDER BY product_id, variant_id`)
}

func (m *MySQLAdapter) ListLowStock(ctx context.Context) ([]domain.Variant, error) {
	return m.listVariants(ctx, `
		SELECT `+variantColumns+` FROM variants
		WHERE quantity <= min_stock_level
		ORDER BY quantity, product_id, variant_id`)
}

func (m *MySQLAdapter) listVariants(ctx context.Context, query string) ([]domain.Variant, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

// ApplyDelta changes a variant's quantity by delta. The guard
// `quantity >= ?` makes the check-and-decrement a single atomic statement;
// two concurrent sales cannot both pass it.
func (m *MySQLAdapter) ApplyDelta(ctx context.Context, draft domain.MovementDraft, delta int) (*domain.MovementEntry, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	floor := 0
	if delta < 0 {
		floor = -delta
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE variants
		SET quantity = quantity + ?, updated_at = UTC_TIMESTAMP(6)
		WHERE product_id = ? AND variant_id = ? AND quantity >= ?`,
		delta, draft.ProductID, draft.VariantID, floor,
	)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := variantExists(ctx, tx, draft.ProductID, draft.VariantID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrInsufficientStock)
	}

	var after int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM variants WHERE product_id = ? AND variant_id = ?`,
		draft.ProductID, draft.VariantID,
	).Scan(&after)
	if err != nil {
		return nil, fmt.Errorf("read quantity: %w", err)
	}

	entry := entryFromDraft(draft, after-delta, delta)
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

// ApplyAbsolute sets a variant's quantity to target. The row lock held
// from the SELECT ... FOR UPDATE to the commit keeps the computed delta
// consistent with the written quantity.
func (m *MySQLAdapter) ApplyAbsolute(ctx context.Context, draft domain.MovementDraft, target int, skipZeroDelta bool) (*domain.MovementEntry, error) {
	if target < 0 {
		return nil, fmt.Errorf("target quantity %d: %w", target, domain.ErrInvalidMovement)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var before int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM variants
		WHERE product_id = ? AND variant_id = ? FOR UPDATE`,
		draft.ProductID, draft.VariantID,
	).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read quantity: %w", err)
	}

	delta := target - before
	if delta == 0 && skipZeroDelta {
		return nil, tx.Commit()
	}

	entry := entryFromDraft(draft, before, delta)
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, entry); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE variants SET quantity = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE product_id = ? AND variant_id = ?`,
		target, draft.ProductID, draft.VariantID,
	)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

func (m *MySQLAdapter) ReverseMovement(ctx context.Context, entryID int64, performedBy, reason string) (*domain.MovementEntry, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	entry, err := reverseInTx(ctx, tx, entryID, performedBy, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

// reverseInTx appends the negating entry and marks the original reversed.
// Shared with order cancellation, which reverses every sale of an order
// inside its own transaction.
func reverseInTx(ctx context.Context, tx *sql.Tx, entryID int64, performedBy, reason string) (*domain.MovementEntry, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM stock_movements WHERE id = ? FOR UPDATE`, entryID)
	orig, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	if orig.IsReversed {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrAlreadyReversed)
	}

	var before int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM variants
		WHERE product_id = ? AND variant_id = ? FOR UPDATE`,
		orig.ProductID, orig.VariantID,
	).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %s/%s: %w", orig.ProductID, orig.VariantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read quantity: %w", err)
	}

	rev := &domain.MovementEntry{
		ProductID:       orig.ProductID,
		VariantID:       orig.VariantID,
		Type:            domain.MovementReversal,
		QuantityBefore:  before,
		QuantityChanged: -orig.QuantityChanged,
		QuantityAfter:   before - orig.QuantityChanged,
		Reason:          reason,
		PerformedBy:     performedBy,
		ReferenceType:   "movement",
		ReferenceID:     strconv.FormatInt(orig.ID, 10),
		ReversalOf:      orig.ID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := rev.Validate(); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, rev); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE variants SET quantity = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE product_id = ? AND variant_id = ?`,
		rev.QuantityAfter, orig.ProductID, orig.VariantID,
	)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE stock_movements SET is_reversed = 1 WHERE id = ? AND is_reversed = 0`, orig.ID)
	if err != nil {
		return nil, fmt.Errorf("mark reversed: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("movement %d: %w", orig.ID, domain.ErrAlreadyReversed)
	}

	return rev, nil
}

func (m *MySQLAdapter) GetMovement(ctx context.Context, entryID int64) (*domain.MovementEntry, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM stock_movements WHERE id = ?`, entryID)
	entry, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	return entry, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (m *MySQLAdapter) Movements(ctx context.Context, productID, variantID string, f domain.MovementFilter) ([]domain.MovementEntry, int64, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE product_id = ? AND variant_id = ?`
	args := []any{productID, variantID}

	if f.Type != "" {
		query += ` AND movement_type = ?`
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, f.To.UTC())
	}
	if f.Cursor > 0 {
		query += ` AND id < ?`
		args = append(args, f.Cursor)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var entries []domain.MovementEntry
	for rows.Next() {
		e, err := scanMovement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movement: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var cursor int64
	if len(entries) == limit {
		cursor = entries[len(entries)-1].ID
	}
	return entries, cursor, nil
}

func (m *MySQLAdapter) MovementsByReference(ctx context.Context, referenceType, referenceID string) ([]domain.MovementEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+movementColumns+` FROM stock_movements
		WHERE reference_type = ? AND reference_id = ?
		ORDER BY id`, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("query movements by reference: %w", err)
	}
	defer rows.Close()

	var entries []domain.MovementEntry
	for rows.Next() {
		e, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (m *MySQLAdapter) SaleVolume(ctx context.Context, productID, variantID string, since time.Time) (int, error) {
	var sold int
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(-quantity_changed), 0) FROM stock_movements
		WHERE product_id = ? AND variant_id = ? AND movement_type = 'sale'
		  AND is_reversed = 0 AND created_at >= ?`,
		productID, variantID, since.UTC(),
	).Scan(&sold)
	if err != nil {
		return 0, fmt.Errorf("query sale volume: %w", err)
	}
	return sold, nil
}

func (m *MySQLAdapter) InventoryValue(ctx context.Context) (*domain.InventoryValue, error) {
	var v domain.InventoryValue
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(quantity * unit_cost), 0),
		       COALESCE(SUM(quantity * unit_price), 0)
		FROM variants`,
	).Scan(&v.VariantCount, &v.TotalCost, &v.TotalRetail)
	if err != nil {
		return nil, fmt.Errorf("query inventory value: %w", err)
	}
	return &v, nil
}

// PurgeMovements removes old adjustment/audit entries. Reversed entries
// and entries referenced by a still-open order are kept.
func (m *MySQLAdapter) PurgeMovements(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM stock_movements
		WHERE movement_type IN ('adjustment', 'audit')
		  AND is_reversed = 0
		  AND created_at < ?
		  AND (reference_type IS NULL OR reference_type <> 'order' OR reference_id IN
		       (SELECT id FROM orders WHERE status IN ('delivered', 'cancelled', 'refunded')))`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge movements: %w", err)
	}
	purged, _ := result.RowsAffected()
	return purged, nil
}

func entryFromDraft(draft domain.MovementDraft, before, delta int) *domain.MovementEntry {
	return &domain.MovementEntry{
		ProductID:       draft.ProductID,
		VariantID:       draft.VariantID,
		Type:            draft.Type,
		QuantityBefore:  before,
		QuantityChanged: delta,
		QuantityAfter:   before + delta,
		Reason:          draft.Reason,
		PerformedBy:     draft.PerformedBy,
		ReferenceType:   draft.ReferenceType,
		ReferenceID:     draft.ReferenceID,
		UnitCost:        draft.UnitCost,
		CreatedAt:       time.Now().UTC(),
	}
}

func insertMovement(ctx context.Context, tx *sql.Tx, e *domain.MovementEntry) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements
			(product_id, variant_id, movement_type, quantity_before, quantity_changed,
			 quantity_after, reason, performed_by, reference_type, reference_id,
			 unit_cost, is_reversed, reversal_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProductID, e.VariantID, string(e.Type), e.QuantityBefore, e.QuantityChanged,
		e.QuantityAfter, e.Reason, e.PerformedBy, nullStr(e.ReferenceType), nullStr(e.ReferenceID),
		nullFloat(e.UnitCost), e.IsReversed, nullID(e.ReversalOf), e.CreatedAt,
	)
	if isDuplicate(err) {
		return fmt.Errorf("reference %s/%s already recorded for %s/%s: %w",
			e.ReferenceType, e.ReferenceID, e.ProductID, e.VariantID, domain.ErrDuplicateRequest)
	}
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	e.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("movement id: %w", err)
	}
	return nil
}

func variantExists(ctx context.Context, tx *sql.Tx, productID, variantID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM variants WHERE product_id = ? AND variant_id = ?`,
		productID, variantID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check variant: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (*domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ProductID, &v.VariantID, &v.PackageType, &v.Quantity,
		&v.MinStockLevel, &v.MaxStockLevel, &v.UnitCost, &v.UnitPrice,
		&v.Available, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanMovement(row rowScanner) (*domain.MovementEntry, error) {
	var (
		e          domain.MovementEntry
		movType    string
		refType    sql.NullString
		refID      sql.NullString
		unitCost   sql.NullFloat64
		reversalOf sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ProductID, &e.VariantID, &movType, &e.QuantityBefore,
		&e.QuantityChanged, &e.QuantityAfter, &e.Reason, &e.PerformedBy, &refType,
		&refID, &unitCost, &e.IsReversed, &reversalOf, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = domain.MovementType(movType)
	e.ReferenceType = refType.String
	e.ReferenceID = refID.String
	e.UnitCost = unitCost.Float64
	e.ReversalOf = reversalOf.Int64
	return &e, nil
}

// Empty references are stored as NULL so the dedup unique key only applies
// to movements that actually carry a reference.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
