package domain

import "time"

type AlertSeverity string

const (
	AlertLowStock   AlertSeverity = "low_stock"
	AlertOutOfStock AlertSeverity = "out_of_stock"
)

// StockAlert is emitted when a movement carries a variant across its
// reorder threshold or down to zero.
type StockAlert struct {
	ProductID     string        `json:"product_id"`
	VariantID     string        `json:"variant_id"`
	Severity      AlertSeverity `json:"severity"`
	Quantity      int           `json:"quantity"`
	MinStockLevel int           `json:"min_stock_level"`
	Message       string        `json:"message"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// DetectCrossing classifies the threshold transition of a single movement.
// It fires at most once per crossing: a variant already at or below the
// threshold produces nothing on a further decrement. Reaching zero
// supersedes the low-stock crossing of the same movement.
func DetectCrossing(before, after, minLevel int) (AlertSeverity, bool) {
	if after == 0 && before > 0 {
		return AlertOutOfStock, true
	}
	if after <= minLevel && before > minLevel {
		return AlertLowStock, true
	}
	return "", false
}
