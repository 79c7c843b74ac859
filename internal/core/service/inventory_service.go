package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// InventoryService is the single writer of stock state. Every quantity
// change goes through a repository operation that appends the ledger entry
// and updates the variant projection atomically; the service then refreshes
// the cache projection and hands the movement to the alert evaluator.
type InventoryService struct {
	repo   port.InventoryRepository
	cache  port.CacheRepository
	alerts *AlertEvaluator
}

func NewInventoryService(repo port.InventoryRepository, cache port.CacheRepository, alerts *AlertEvaluator) *InventoryService {
	return &InventoryService{
		repo:   repo,
		cache:  cache,
		alerts: alerts,
	}
}

// AdjustStock sets a variant's quantity to an absolute target. A zero
// delta is still recorded: the operator asked for an adjustment, the
// ledger keeps the intent.
func (s *InventoryService) AdjustStock(ctx context.Context, productID, variantID string, target int, reason, actor string) (*domain.MovementEntry, error) {
	if target < 0 {
		return nil, fmt.Errorf("target quantity %d: %w", target, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:   productID,
		VariantID:   variantID,
		Type:        domain.MovementAdjustment,
		Reason:      reason,
		PerformedBy: actor,
	}
	entry, err := s.repo.ApplyAbsolute(ctx, draft, target, false)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// RecordSale decrements stock for a sold quantity. Fails with
// ErrInsufficientStock when the variant holds less than quantity, without
// touching state. The order reference doubles as a dedup key: a retried
// call for the same order and variant fails with ErrDuplicateRequest
// instead of double-counting.
func (s *InventoryService) RecordSale(ctx context.Context, productID, variantID string, quantity int, orderRef, actor string) (*domain.MovementEntry, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("sale quantity %d: %w", quantity, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:     productID,
		VariantID:     variantID,
		Type:          domain.MovementSale,
		Reason:        "sale",
		PerformedBy:   actor,
		ReferenceType: "order",
		ReferenceID:   orderRef,
	}
	entry, err := s.repo.ApplyDelta(ctx, draft, -quantity)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// RecordPurchase increments stock for a received supply line. The supply
// reference dedups retried receipts.
func (s *InventoryService) RecordPurchase(ctx context.Context, productID, variantID string, quantity int, purchaseRef, actor string, unitCost float64) (*domain.MovementEntry, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("purchase quantity %d: %w", quantity, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:     productID,
		VariantID:     variantID,
		Type:          domain.MovementPurchase,
		Reason:        "supply receipt",
		PerformedBy:   actor,
		ReferenceType: "supply",
		ReferenceID:   purchaseRef,
		UnitCost:      unitCost,
	}
	entry, err := s.repo.ApplyDelta(ctx, draft, quantity)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// RecordReturn adds returned units back to stock.
func (s *InventoryService) RecordReturn(ctx context.Context, productID, variantID string, quantity int, orderRef, actor string) (*domain.MovementEntry, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("return quantity %d: %w", quantity, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:     productID,
		VariantID:     variantID,
		Type:          domain.MovementReturn,
		Reason:        "customer return",
		PerformedBy:   actor,
		ReferenceType: "return",
		ReferenceID:   orderRef,
	}
	entry, err := s.repo.ApplyDelta(ctx, draft, quantity)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// RecordDamage writes off damaged units.
func (s *InventoryService) RecordDamage(ctx context.Context, productID, variantID string, quantity int, reason, actor string) (*domain.MovementEntry, error) {
	return s.writeOff(ctx, productID, variantID, quantity, domain.MovementDamage, reason, actor)
}

// RecordExpiry writes off expired units.
func (s *InventoryService) RecordExpiry(ctx context.Context, productID, variantID string, quantity int, reason, actor string) (*domain.MovementEntry, error) {
	return s.writeOff(ctx, productID, variantID, quantity, domain.MovementExpired, reason, actor)
}

func (s *InventoryService) writeOff(ctx context.Context, productID, variantID string, quantity int, movType domain.MovementType, reason, actor string) (*domain.MovementEntry, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("write-off quantity %d: %w", quantity, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:   productID,
		VariantID:   variantID,
		Type:        movType,
		Reason:      reason,
		PerformedBy: actor,
	}
	entry, err := s.repo.ApplyDelta(ctx, draft, -quantity)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// PerformAudit reconciles the ledger against a physical count. A count
// matching the current quantity appends nothing and reports no adjustment.
func (s *InventoryService) PerformAudit(ctx context.Context, productID, variantID string, physicalCount int, actor, notes string) (*domain.MovementEntry, bool, error) {
	if physicalCount < 0 {
		return nil, false, fmt.Errorf("physical count %d: %w", physicalCount, domain.ErrInvalidMovement)
	}

	draft := domain.MovementDraft{
		ProductID:   productID,
		VariantID:   variantID,
		Type:        domain.MovementAudit,
		Reason:      notes,
		PerformedBy: actor,
	}
	entry, err := s.repo.ApplyAbsolute(ctx, draft, physicalCount, true)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	s.movementCommitted(ctx, entry)
	return entry, true, nil
}

// ReverseMovement negates a prior entry's effect with a new ledger entry.
func (s *InventoryService) ReverseMovement(ctx context.Context, entryID int64, actor, reason string) (*domain.MovementEntry, error) {
	entry, err := s.repo.ReverseMovement(ctx, entryID, actor, reason)
	if err != nil {
		return nil, err
	}
	s.movementCommitted(ctx, entry)
	return entry, nil
}

// BulkAdjust applies each adjustment independently. One failing item never
// blocks the others; the caller gets a result per item.
func (s *InventoryService) BulkAdjust(ctx context.Context, items []domain.StockAdjustment, actor string) []domain.AdjustmentResult {
	results := make([]domain.AdjustmentResult, 0, len(items))
	for _, item := range items {
		result := domain.AdjustmentResult{StockAdjustment: item}
		entry, err := s.AdjustStock(ctx, item.ProductID, item.VariantID, item.TargetQuantity, item.Reason, actor)
		if err != nil {
			result.Err = err.Error()
		} else {
			result.Entry = entry
		}
		results = append(results, result)
	}
	return results
}

func (s *InventoryService) GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error) {
	return s.repo.GetVariant(ctx, productID, variantID)
}

func (s *InventoryService) CreateVariant(ctx context.Context, v *domain.Variant) error {
	if err := s.repo.CreateVariant(ctx, v); err != nil {
		return err
	}
	if err := s.cache.SetQuantity(ctx, v.ProductID, v.VariantID, 0); err != nil {
		log.Printf("cache warm failed for %s/%s: %v", v.ProductID, v.VariantID, err)
	}
	return nil
}

func (s *InventoryService) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx)
}

func (s *InventoryService) IsLowStock(ctx context.Context, productID, variantID string) (bool, error) {
	v, err := s.repo.GetVariant(ctx, productID, variantID)
	if err != nil {
		return false, err
	}
	return v.LowStock(), nil
}

func (s *InventoryService) LowStockVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *InventoryService) InventoryValue(ctx context.Context) (*domain.InventoryValue, error) {
	return s.repo.InventoryValue(ctx)
}

func (s *InventoryService) GetMovement(ctx context.Context, entryID int64) (*domain.MovementEntry, error) {
	return s.repo.GetMovement(ctx, entryID)
}

func (s *InventoryService) Movements(ctx context.Context, productID, variantID string, f domain.MovementFilter) ([]domain.MovementEntry, int64, error) {
	return s.repo.Movements(ctx, productID, variantID, f)
}

const (
	projectionDays = 30
	bufferDays     = 7
	defaultWindow  = 30
)

// PredictRequirement averages recent sale volume over the window and
// projects a 30-day requirement plus a 7-day-buffer reorder point.
func (s *InventoryService) PredictRequirement(ctx context.Context, productID, variantID string, windowDays int) (*domain.RequirementForecast, error) {
	if windowDays <= 0 {
		windowDays = defaultWindow
	}

	v, err := s.repo.GetVariant(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	sold, err := s.repo.SaleVolume(ctx, productID, variantID, since)
	if err != nil {
		return nil, err
	}

	avg := float64(sold) / float64(windowDays)
	forecast := &domain.RequirementForecast{
		ProductID:            productID,
		VariantID:            variantID,
		WindowDays:           windowDays,
		SoldInWindow:         sold,
		AvgDailySales:        avg,
		ProjectedRequirement: int(math.Ceil(avg * projectionDays)),
		ReorderPoint:         int(math.Ceil(avg*bufferDays)) + v.MinStockLevel,
		CurrentQuantity:      v.Quantity,
	}
	forecast.NeedsReorder = v.Quantity <= forecast.ReorderPoint
	return forecast, nil
}

// PurgeOldMovements removes adjustment/audit entries older than maxAge.
func (s *InventoryService) PurgeOldMovements(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.PurgeMovements(ctx, time.Now().UTC().Add(-maxAge))
}

// movementCommitted refreshes the cache projection and evaluates alerts
// after a movement was durably written. Neither step may fail the
// operation; the cache self-heals on the next refresh and alert delivery
// is fire-and-forget.
func (s *InventoryService) movementCommitted(ctx context.Context, entry *domain.MovementEntry) {
	if entry == nil {
		return
	}
	if err := s.cache.SetQuantity(ctx, entry.ProductID, entry.VariantID, entry.QuantityAfter); err != nil {
		log.Printf("cache refresh failed for %s/%s: %v", entry.ProductID, entry.VariantID, err)
	}
	s.alerts.MovementApplied(ctx, entry)
}
