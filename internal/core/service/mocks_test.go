package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// Mock InventoryRepository: an in-memory ledger with the same conditional
// semantics as the MySQL adapter.
type mockInventoryRepo struct {
	mu        sync.Mutex
	variants  map[string]*domain.Variant
	movements []*domain.MovementEntry
	nextID    int64
	refs      map[string]bool
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{
		variants: make(map[string]*domain.Variant),
		refs:     make(map[string]bool),
	}
}

func key(productID, variantID string) string {
	return productID + "/" + variantID
}

// addVariant seeds a variant with a quantity without going through the
// ledger; test setup only.
func (m *mockInventoryRepo) addVariant(v domain.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[key(v.ProductID, v.VariantID)] = &v
}

func (m *mockInventoryRepo) quantity(productID, variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.variants[key(productID, variantID)].Quantity
}

// ledgerSum re-derives the net quantity change from the full ledger.
// Reversed entries stay in the sum; their reversal entries cancel them.
func (m *mockInventoryRepo) ledgerSum(productID, variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.movements {
		if e.ProductID == productID && e.VariantID == variantID {
			sum += e.QuantityChanged
		}
	}
	return sum
}

func (m *mockInventoryRepo) movementCount(productID, variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.movements {
		if e.ProductID == productID && e.VariantID == variantID {
			n++
		}
	}
	return n
}

func (m *mockInventoryRepo) GetVariant(_ context.Context, productID, variantID string) (*domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[key(productID, variantID)]
	if !ok {
		return nil, fmt.Errorf("variant %s/%s: %w", productID, variantID, domain.ErrNotFound)
	}
	copied := *v
	return &copied, nil
}

func (m *mockInventoryRepo) CreateVariant(_ context.Context, v *domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(v.ProductID, v.VariantID)
	if _, ok := m.variants[k]; ok {
		return fmt.Errorf("variant %s exists: %w", k, domain.ErrDuplicateRequest)
	}
	v.Quantity = 0
	copied := *v
	m.variants[k] = &copied
	return nil
}

func (m *mockInventoryRepo) ListVariants(_ context.Context) ([]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Variant
	for _, v := range m.variants {
		out = append(out, *v)
	}
	return out, nil
}

func (m *mockInventoryRepo) ListLowStock(_ context.Context) ([]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Variant
	for _, v := range m.variants {
		if v.LowStock() {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *mockInventoryRepo) ApplyDelta(_ context.Context, draft domain.MovementDraft, delta int) (*domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(draft, delta)
}

func (m *mockInventoryRepo) applyDeltaLocked(draft domain.MovementDraft, delta int) (*domain.MovementEntry, error) {
	v, ok := m.variants[key(draft.ProductID, draft.VariantID)]
	if !ok {
		return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrNotFound)
	}
	if v.Quantity+delta < 0 {
		return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrInsufficientStock)
	}
	entry, err := m.appendLocked(draft, v.Quantity, delta)
	if err != nil {
		return nil, err
	}
	v.Quantity = entry.QuantityAfter
	return entry, nil
}

func (m *mockInventoryRepo) ApplyAbsolute(_ context.Context, draft domain.MovementDraft, target int, skipZeroDelta bool) (*domain.MovementEntry, error) {
	if target < 0 {
		return nil, fmt.Errorf("target quantity %d: %w", target, domain.ErrInvalidMovement)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[key(draft.ProductID, draft.VariantID)]
	if !ok {
		return nil, fmt.Errorf("variant %s/%s: %w", draft.ProductID, draft.VariantID, domain.ErrNotFound)
	}
	delta := target - v.Quantity
	if delta == 0 && skipZeroDelta {
		return nil, nil
	}
	entry, err := m.appendLocked(draft, v.Quantity, delta)
	if err != nil {
		return nil, err
	}
	v.Quantity = target
	return entry, nil
}

func (m *mockInventoryRepo) appendLocked(draft domain.MovementDraft, before, delta int) (*domain.MovementEntry, error) {
	if draft.ReferenceType != "" && draft.ReferenceID != "" {
		ref := draft.ReferenceType + "|" + draft.ReferenceID + "|" + key(draft.ProductID, draft.VariantID)
		if m.refs[ref] {
			return nil, fmt.Errorf("reference %s: %w", ref, domain.ErrDuplicateRequest)
		}
		m.refs[ref] = true
	}
	m.nextID++
	entry := &domain.MovementEntry{
		ID:              m.nextID,
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
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	m.movements = append(m.movements, entry)
	return entry, nil
}

func (m *mockInventoryRepo) ReverseMovement(_ context.Context, entryID int64, performedBy, reason string) (*domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reverseLocked(entryID, performedBy, reason)
}

func (m *mockInventoryRepo) reverseLocked(entryID int64, performedBy, reason string) (*domain.MovementEntry, error) {
	var orig *domain.MovementEntry
	for _, e := range m.movements {
		if e.ID == entryID {
			orig = e
			break
		}
	}
	if orig == nil {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrNotFound)
	}
	if orig.IsReversed {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrAlreadyReversed)
	}
	v := m.variants[key(orig.ProductID, orig.VariantID)]
	if v.Quantity-orig.QuantityChanged < 0 {
		return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrInvalidMovement)
	}
	rev, err := m.appendLocked(domain.MovementDraft{
		ProductID:     orig.ProductID,
		VariantID:     orig.VariantID,
		Type:          domain.MovementReversal,
		Reason:        reason,
		PerformedBy:   performedBy,
		ReferenceType: "movement",
		ReferenceID:   strconv.FormatInt(orig.ID, 10),
	}, v.Quantity, -orig.QuantityChanged)
	if err != nil {
		return nil, err
	}
	rev.ReversalOf = orig.ID
	orig.IsReversed = true
	v.Quantity = rev.QuantityAfter
	return rev, nil
}

func (m *mockInventoryRepo) GetMovement(_ context.Context, entryID int64) (*domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.movements {
		if e.ID == entryID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("movement %d: %w", entryID, domain.ErrNotFound)
}

func (m *mockInventoryRepo) Movements(_ context.Context, productID, variantID string, f domain.MovementFilter) ([]domain.MovementEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []domain.MovementEntry
	for i := len(m.movements) - 1; i >= 0; i-- {
		e := m.movements[i]
		if e.ProductID != productID || e.VariantID != variantID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Cursor > 0 && e.ID >= f.Cursor {
			continue
		}
		if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			return out, e.ID, nil
		}
	}
	return out, 0, nil
}

func (m *mockInventoryRepo) MovementsByReference(_ context.Context, referenceType, referenceID string) ([]domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MovementEntry
	for _, e := range m.movements {
		if e.ReferenceType == referenceType && e.ReferenceID == referenceID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockInventoryRepo) SaleVolume(_ context.Context, productID, variantID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sold := 0
	for _, e := range m.movements {
		if e.ProductID == productID && e.VariantID == variantID &&
			e.Type == domain.MovementSale && !e.IsReversed && !e.CreatedAt.Before(since) {
			sold += -e.QuantityChanged
		}
	}
	return sold, nil
}

func (m *mockInventoryRepo) InventoryValue(_ context.Context) (*domain.InventoryValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var value domain.InventoryValue
	for _, v := range m.variants {
		cost, retail := v.StockValue()
		value.VariantCount++
		value.TotalCost += cost
		value.TotalRetail += retail
	}
	return &value, nil
}

func (m *mockInventoryRepo) PurgeMovements(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.MovementEntry
	var purged int64
	for _, e := range m.movements {
		if e.Type.Purgeable() && !e.IsReversed && e.CreatedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.movements = kept
	return purged, nil
}

// Mock CacheRepository
type mockCache struct {
	mu       sync.Mutex
	stock    map[string]int
	dedup    map[string]bool
	restores map[string]int
}

func newMockCache() *mockCache {
	return &mockCache{
		stock:    make(map[string]int),
		dedup:    make(map[string]bool),
		restores: make(map[string]int),
	}
}

func (m *mockCache) GateDecrement(_ context.Context, productID, variantID string, quantity int) (port.GateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.stock[key(productID, variantID)]
	if !ok {
		return port.GateMissing, nil
	}
	if current < quantity {
		return port.GateInsufficient, nil
	}
	m.stock[key(productID, variantID)] = current - quantity
	return port.GateAllowed, nil
}

func (m *mockCache) RestoreStock(_ context.Context, productID, variantID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[key(productID, variantID)] += quantity
	m.restores[key(productID, variantID)] += quantity
	return nil
}

func (m *mockCache) GetQuantity(_ context.Context, productID, variantID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.stock[key(productID, variantID)]
	return q, ok, nil
}

func (m *mockCache) SetQuantity(_ context.Context, productID, variantID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[key(productID, variantID)] = quantity
	return nil
}

func (m *mockCache) SetIdempotency(_ context.Context, k string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dedup[k] {
		return false, nil
	}
	m.dedup[k] = true
	return true, nil
}

// Mock Notifier
type mockNotifier struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
	fail   error
}

func (m *mockNotifier) Notify(_ context.Context, alert domain.StockAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *mockNotifier) last() domain.StockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts[len(m.alerts)-1]
}

// Mock OrderRepository: all-or-nothing creation over the in-memory
// inventory, mirroring the MySQL adapter's transaction.
type mockOrderRepo struct {
	mu     sync.Mutex
	inv    *mockInventoryRepo
	orders map[string]*domain.Order
}

func newMockOrderRepo(inv *mockInventoryRepo) *mockOrderRepo {
	return &mockOrderRepo{
		inv:    inv,
		orders: make(map[string]*domain.Order),
	}
}

func (m *mockOrderRepo) CreateOrder(_ context.Context, o *domain.Order, performedBy string) ([]domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inv.mu.Lock()
	defer m.inv.mu.Unlock()

	// validate every item before mutating anything
	for _, item := range o.Items {
		v, ok := m.inv.variants[key(item.ProductID, item.VariantID)]
		if !ok {
			return nil, fmt.Errorf("variant %s/%s: %w", item.ProductID, item.VariantID, domain.ErrNotFound)
		}
		if v.Quantity < item.Quantity {
			return nil, fmt.Errorf("variant %s/%s: %w", item.ProductID, item.VariantID, domain.ErrInsufficientStock)
		}
	}

	movements := make([]domain.MovementEntry, 0, len(o.Items))
	for _, item := range o.Items {
		entry, err := m.inv.applyDeltaLocked(domain.MovementDraft{
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Type:          domain.MovementSale,
			Reason:        fmt.Sprintf("order %s", o.ID),
			PerformedBy:   performedBy,
			ReferenceType: "order",
			ReferenceID:   o.ID,
		}, -item.Quantity)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *entry)
	}

	copied := *o
	m.orders[o.ID] = &copied
	return movements, nil
}

func (m *mockOrderRepo) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepo) ListOrders(_ context.Context, limit, offset int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("order %s moved off %s: %w", orderID, from, domain.ErrConcurrencyConflict)
	}
	o.Status = to
	return nil
}

func (m *mockOrderRepo) CancelOrder(_ context.Context, orderID, performedBy, reason string) ([]domain.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if !o.Status.CanTransition(domain.OrderStatusCancelled) {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, o.Status, domain.ErrInvalidTransition)
	}

	m.inv.mu.Lock()
	defer m.inv.mu.Unlock()

	var saleIDs []int64
	for _, e := range m.inv.movements {
		if e.ReferenceType == "order" && e.ReferenceID == orderID &&
			e.Type == domain.MovementSale && !e.IsReversed {
			saleIDs = append(saleIDs, e.ID)
		}
	}

	reversals := make([]domain.MovementEntry, 0, len(saleIDs))
	for _, id := range saleIDs {
		rev, err := m.inv.reverseLocked(id, performedBy, reason)
		if err != nil {
			return nil, err
		}
		reversals = append(reversals, *rev)
	}
	o.Status = domain.OrderStatusCancelled
	return reversals, nil
}
