package port

import (
	"context"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// InventoryRepository is the authoritative store for variants and the
// movement ledger. Every mutation appends the ledger entry and updates the
// variant projection in one storage transaction; there is deliberately no
// operation that writes a quantity without a ledger entry.
type InventoryRepository interface {
	// GetVariant retrieves a variant, ErrNotFound when absent.
	GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error)

	// CreateVariant inserts a new variant with its starting quantity of zero.
	CreateVariant(ctx context.Context, v *domain.Variant) error

	// ListVariants returns all variants.
	ListVariants(ctx context.Context) ([]domain.Variant, error)

	// ListLowStock returns variants at or below their min stock level.
	ListLowStock(ctx context.Context) ([]domain.Variant, error)

	// ApplyDelta appends a movement changing the quantity by delta, as a
	// conditional update: it fails with ErrInsufficientStock when the
	// resulting quantity would go negative, without mutating anything.
	ApplyDelta(ctx context.Context, draft domain.MovementDraft, delta int) (*domain.MovementEntry, error)

	// ApplyAbsolute appends a movement setting the quantity to target,
	// computing the delta against the current quantity under a row lock.
	// With skipZeroDelta set, a target equal to the current quantity
	// appends nothing and returns (nil, nil).
	ApplyAbsolute(ctx context.Context, draft domain.MovementDraft, target int, skipZeroDelta bool) (*domain.MovementEntry, error)

	// ReverseMovement appends a reversal entry negating the original's
	// effect and marks the original reversed. ErrAlreadyReversed on a
	// second attempt; ErrInvalidMovement when undoing the entry would push
	// the quantity negative.
	ReverseMovement(ctx context.Context, entryID int64, performedBy, reason string) (*domain.MovementEntry, error)

	// GetMovement retrieves a single ledger entry.
	GetMovement(ctx context.Context, entryID int64) (*domain.MovementEntry, error)

	// Movements lists a variant's ledger newest-first. The returned cursor
	// restarts the listing after the last entry of this page; zero means
	// the listing is exhausted.
	Movements(ctx context.Context, productID, variantID string, f domain.MovementFilter) ([]domain.MovementEntry, int64, error)

	// MovementsByReference returns the entries recorded under a reference,
	// e.g. every sale movement of one order.
	MovementsByReference(ctx context.Context, referenceType, referenceID string) ([]domain.MovementEntry, error)

	// SaleVolume sums the units sold (non-reversed sale movements) since
	// the given time.
	SaleVolume(ctx context.Context, productID, variantID string, since time.Time) (int, error)

	// InventoryValue sums quantity times unit cost/price over all variants.
	InventoryValue(ctx context.Context) (*domain.InventoryValue, error)

	// PurgeMovements deletes purgeable movement types older than the
	// cutoff, skipping reversed entries and entries referenced by an open
	// order. Returns the number of entries removed.
	PurgeMovements(ctx context.Context, olderThan time.Time) (int64, error)
}
