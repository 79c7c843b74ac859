package port

import (
	"context"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// Notifier delivers stock alerts to the notification collaborator.
// Delivery is fire-and-forget from the inventory path's point of view:
// errors are logged by the caller and never fail a movement.
type Notifier interface {
	Notify(ctx context.Context, alert domain.StockAlert) error
}
