package service

import (
	"context"
	"fmt"
	"log"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// AlertEvaluator watches committed movements for threshold crossings and
// emits one alert per crossing. Delivery failures are logged and never
// propagate into the inventory path.
type AlertEvaluator struct {
	repo     port.InventoryRepository
	notifier port.Notifier
}

func NewAlertEvaluator(repo port.InventoryRepository, notifier port.Notifier) *AlertEvaluator {
	return &AlertEvaluator{
		repo:     repo,
		notifier: notifier,
	}
}

// MovementApplied checks whether the movement carried its variant across
// the low-stock or out-of-stock threshold. A variant already below the
// threshold produces nothing on a further decrement.
func (a *AlertEvaluator) MovementApplied(ctx context.Context, entry *domain.MovementEntry) {
	if entry == nil {
		return
	}

	v, err := a.repo.GetVariant(ctx, entry.ProductID, entry.VariantID)
	if err != nil {
		log.Printf("alert evaluation skipped for %s/%s: %v", entry.ProductID, entry.VariantID, err)
		return
	}

	severity, crossed := domain.DetectCrossing(entry.QuantityBefore, entry.QuantityAfter, v.MinStockLevel)
	if !crossed {
		return
	}

	alert := domain.StockAlert{
		ProductID:     entry.ProductID,
		VariantID:     entry.VariantID,
		Severity:      severity,
		Quantity:      entry.QuantityAfter,
		MinStockLevel: v.MinStockLevel,
		OccurredAt:    entry.CreatedAt,
	}
	switch severity {
	case domain.AlertOutOfStock:
		alert.Message = fmt.Sprintf("%s/%s is out of stock", entry.ProductID, entry.VariantID)
	default:
		alert.Message = fmt.Sprintf("%s/%s is low on stock: %d left (min %d)",
			entry.ProductID, entry.VariantID, entry.QuantityAfter, v.MinStockLevel)
	}

	if err := a.notifier.Notify(ctx, alert); err != nil {
		log.Printf("alert delivery failed for %s/%s: %v", entry.ProductID, entry.VariantID, err)
	}
}
