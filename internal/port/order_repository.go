package port

import (
	"context"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists the order, its items, one sale movement per
	// item and the matching stock decrements in a single transaction.
	// On any item failure nothing is persisted. Returns the appended
	// movements for alert evaluation.
	CreateOrder(ctx context.Context, o *domain.Order, performedBy string) ([]domain.MovementEntry, error)

	// GetOrder retrieves an order with its items, ErrNotFound when absent.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrders returns orders newest-first.
	ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error)

	// UpdateStatus moves an order between statuses conditionally on the
	// expected current status; ErrConcurrencyConflict when a concurrent
	// transition won.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error

	// CancelOrder sets the order cancelled and reverses all of its
	// non-reversed sale movements in one transaction. Returns the
	// reversal entries.
	CancelOrder(ctx context.Context, orderID, performedBy, reason string) ([]domain.MovementEntry, error)
}
