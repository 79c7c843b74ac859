package domain

import "time"

// Variant is the unit at which stock is tracked: one purchasable
// packaging/size of a product. Quantity is a projection of the movement
// ledger and is only ever written inside a storage transaction that also
// appends the matching ledger entry.
type Variant struct {
	ProductID     string    `json:"product_id"`
	VariantID     string    `json:"variant_id"`
	PackageType   string    `json:"package_type"`
	Quantity      int       `json:"quantity"`
	MinStockLevel int       `json:"min_stock_level"`
	MaxStockLevel int       `json:"max_stock_level"`
	UnitCost      float64   `json:"unit_cost"`
	UnitPrice     float64   `json:"unit_price"`
	Available     bool      `json:"available"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LowStock reports whether the variant sits at or below its reorder
// threshold.
func (v *Variant) LowStock() bool {
	return v.Quantity <= v.MinStockLevel
}

func (v *Variant) OutOfStock() bool {
	return v.Quantity == 0
}

// StockValue returns the variant's value at cost and at retail.
func (v *Variant) StockValue() (cost, retail float64) {
	return float64(v.Quantity) * v.UnitCost, float64(v.Quantity) * v.UnitPrice
}

// InventoryValue is the cost and retail value summed over all variants.
type InventoryValue struct {
	VariantCount int     `json:"variant_count"`
	TotalCost    float64 `json:"total_cost"`
	TotalRetail  float64 `json:"total_retail"`
}

// RequirementForecast projects demand for a variant from recent sale
// movements.
type RequirementForecast struct {
	ProductID            string  `json:"product_id"`
	VariantID            string  `json:"variant_id"`
	WindowDays           int     `json:"window_days"`
	SoldInWindow         int     `json:"sold_in_window"`
	AvgDailySales        float64 `json:"avg_daily_sales"`
	ProjectedRequirement int     `json:"projected_requirement"` // 30-day demand
	ReorderPoint         int     `json:"reorder_point"`         // 7-day buffer + min stock level
	CurrentQuantity      int     `json:"current_quantity"`
	NeedsReorder         bool    `json:"needs_reorder"`
}
