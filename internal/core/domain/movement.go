package domain

import (
	"fmt"
	"time"
)

type MovementType string

const (
	MovementPurchase   MovementType = "purchase"
	MovementSale       MovementType = "sale"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementDamage     MovementType = "damage"
	MovementExpired    MovementType = "expired"
	MovementAudit      MovementType = "audit"
	MovementReversal   MovementType = "reversal"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementAdjustment, MovementReturn,
		MovementDamage, MovementExpired, MovementAudit, MovementReversal:
		return true
	}
	return false
}

// Purgeable reports whether entries of this type may be removed by
// retention cleanup. Types tied to money flow are kept forever.
func (t MovementType) Purgeable() bool {
	return t == MovementAdjustment || t == MovementAudit
}

// MovementEntry is one immutable line of the stock ledger. After creation
// only IsReversed may change, when a later reversal entry points back at it.
type MovementEntry struct {
	ID              int64        `json:"id"`
	ProductID       string       `json:"product_id"`
	VariantID       string       `json:"variant_id"`
	Type            MovementType `json:"movement_type"`
	QuantityBefore  int          `json:"quantity_before"`
	QuantityChanged int          `json:"quantity_changed"`
	QuantityAfter   int          `json:"quantity_after"`
	Reason          string       `json:"reason"`
	PerformedBy     string       `json:"performed_by"`
	ReferenceType   string       `json:"reference_type,omitempty"`
	ReferenceID     string       `json:"reference_id,omitempty"`
	UnitCost        float64      `json:"unit_cost,omitempty"`
	IsReversed      bool         `json:"is_reversed"`
	ReversalOf      int64        `json:"reversal_of,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Validate checks the ledger invariants: the quantities must sum and the
// resulting quantity must never be negative.
func (e *MovementEntry) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown movement type %q", ErrInvalidMovement, e.Type)
	}
	if e.QuantityAfter != e.QuantityBefore+e.QuantityChanged {
		return fmt.Errorf("%w: %d + %d != %d", ErrInvalidMovement,
			e.QuantityBefore, e.QuantityChanged, e.QuantityAfter)
	}
	if e.QuantityAfter < 0 {
		return fmt.Errorf("%w: resulting quantity %d is negative", ErrInvalidMovement, e.QuantityAfter)
	}
	return nil
}

// MovementDraft carries the caller-supplied fields of a movement about to
// be appended. Quantities, id and timestamp are filled by the storage
// layer inside the appending transaction.
type MovementDraft struct {
	ProductID     string
	VariantID     string
	Type          MovementType
	Reason        string
	PerformedBy   string
	ReferenceType string
	ReferenceID   string
	UnitCost      float64
}

// MovementFilter narrows and pages a ledger listing. Cursor is the id of
// the last entry of the previous page; zero starts from the newest entry.
type MovementFilter struct {
	Type   MovementType
	From   time.Time
	To     time.Time
	Cursor int64
	Limit  int
}

// StockAdjustment is one item of a bulk adjustment request.
type StockAdjustment struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id"`
	TargetQuantity int    `json:"target_quantity"`
	Reason         string `json:"reason"`
}

// AdjustmentResult reports the outcome of one bulk adjustment item.
// Failures are isolated: Err is set and Entry is nil, other items proceed.
type AdjustmentResult struct {
	StockAdjustment
	Entry *MovementEntry `json:"entry,omitempty"`
	Err   string         `json:"error,omitempty"`
}
