package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

// HTTPHandler is the thin API surface for the excluded collaborators:
// order intake, the supplier receipt flow and the staff adjustment UI.
// Inputs are bound and handed straight to the services; all stock
// semantics live below.
type HTTPHandler struct {
	inventory *service.InventoryService
	orders    *service.OrderService
}

func NewHTTPHandler(inventory *service.InventoryService, orders *service.OrderService) *HTTPHandler {
	return &HTTPHandler{
		inventory: inventory,
		orders:    orders,
	}
}

func (h *HTTPHandler) Register(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.PUT("/orders/:id/status", h.TransitionStatus)
		api.POST("/orders/:id/cancel", h.CancelOrder)

		api.POST("/variants", h.CreateVariant)
		api.GET("/variants", h.ListVariants)
		api.GET("/variants/:product/:variant", h.GetVariant)
		api.GET("/variants/:product/:variant/movements", h.Movements)
		api.GET("/variants/:product/:variant/forecast", h.Forecast)

		api.POST("/stock/adjust", h.AdjustStock)
		api.POST("/stock/bulk-adjust", h.BulkAdjust)
		api.POST("/stock/receive", h.ReceiveSupply)
		api.POST("/stock/audit", h.PerformAudit)
		api.POST("/stock/movements/:id/reverse", h.ReverseMovement)
		api.GET("/stock/low", h.LowStock)
		api.GET("/stock/value", h.InventoryValue)
	}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := h.orders.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor" binding:"required"`
}

func (h *HTTPHandler) TransitionStatus(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.TransitionStatus(c.Request.Context(), c.Param("id"), domain.OrderStatus(req.Status), req.Actor)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

type cancelRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

type createVariantRequest struct {
	ProductID     string  `json:"product_id" binding:"required"`
	VariantID     string  `json:"variant_id" binding:"required"`
	PackageType   string  `json:"package_type"`
	MinStockLevel int     `json:"min_stock_level"`
	MaxStockLevel int     `json:"max_stock_level"`
	UnitCost      float64 `json:"unit_cost"`
	UnitPrice     float64 `json:"unit_price"`
}

func (h *HTTPHandler) CreateVariant(c *gin.Context) {
	var req createVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := &domain.Variant{
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		PackageType:   req.PackageType,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitCost:      req.UnitCost,
		UnitPrice:     req.UnitPrice,
		Available:     true,
	}
	if err := h.inventory.CreateVariant(c.Request.Context(), v); err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *HTTPHandler) ListVariants(c *gin.Context) {
	variants, err := h.inventory.ListVariants(c.Request.Context())
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, variants)
}

func (h *HTTPHandler) GetVariant(c *gin.Context) {
	v, err := h.inventory.GetVariant(c.Request.Context(), c.Param("product"), c.Param("variant"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *HTTPHandler) Movements(c *gin.Context) {
	filter := domain.MovementFilter{
		Type: domain.MovementType(c.Query("type")),
	}
	if cursor, err := strconv.ParseInt(c.Query("cursor"), 10, 64); err == nil {
		filter.Cursor = cursor
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = to
	}

	entries, cursor, err := h.inventory.Movements(c.Request.Context(), c.Param("product"), c.Param("variant"), filter)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": entries, "next_cursor": cursor})
}

func (h *HTTPHandler) Forecast(c *gin.Context) {
	window, _ := strconv.Atoi(c.DefaultQuery("window_days", "30"))

	forecast, err := h.inventory.PredictRequirement(c.Request.Context(), c.Param("product"), c.Param("variant"), window)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, forecast)
}

type adjustRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	VariantID      string `json:"variant_id" binding:"required"`
	TargetQuantity *int   `json:"target_quantity" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
	Actor          string `json:"actor" binding:"required"`
}

func (h *HTTPHandler) AdjustStock(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.inventory.AdjustStock(c.Request.Context(), req.ProductID, req.VariantID,
		*req.TargetQuantity, req.Reason, req.Actor)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type bulkAdjustRequest struct {
	Items []domain.StockAdjustment `json:"items" binding:"required"`
	Actor string                   `json:"actor" binding:"required"`
}

func (h *HTTPHandler) BulkAdjust(c *gin.Context) {
	var req bulkAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := h.inventory.BulkAdjust(c.Request.Context(), req.Items, req.Actor)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type receiveSupplyRequest struct {
	SupplyRef string `json:"supply_ref" binding:"required"`
	Actor     string `json:"actor" binding:"required"`
	Items     []struct {
		ProductID string  `json:"product_id" binding:"required"`
		VariantID string  `json:"variant_id" binding:"required"`
		Quantity  int     `json:"quantity" binding:"required"`
		UnitCost  float64 `json:"unit_cost"`
	} `json:"items" binding:"required"`
}

// ReceiveSupply records one purchase movement per received line item.
// Line failures are isolated, mirroring the bulk adjustment contract.
func (h *HTTPHandler) ReceiveSupply(c *gin.Context) {
	var req receiveSupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	type lineResult struct {
		ProductID string                `json:"product_id"`
		VariantID string                `json:"variant_id"`
		Entry     *domain.MovementEntry `json:"entry,omitempty"`
		Err       string                `json:"error,omitempty"`
	}

	results := make([]lineResult, 0, len(req.Items))
	for _, item := range req.Items {
		result := lineResult{ProductID: item.ProductID, VariantID: item.VariantID}
		entry, err := h.inventory.RecordPurchase(c.Request.Context(), item.ProductID, item.VariantID,
			item.Quantity, req.SupplyRef, req.Actor, item.UnitCost)
		if err != nil {
			result.Err = err.Error()
		} else {
			result.Entry = entry
		}
		results = append(results, result)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type auditRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	VariantID     string `json:"variant_id" binding:"required"`
	PhysicalCount *int   `json:"physical_count" binding:"required"`
	Actor         string `json:"actor" binding:"required"`
	Notes         string `json:"notes"`
}

func (h *HTTPHandler) PerformAudit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, adjusted, err := h.inventory.PerformAudit(c.Request.Context(), req.ProductID, req.VariantID,
		*req.PhysicalCount, req.Actor, req.Notes)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"adjusted": adjusted, "entry": entry})
}

type reverseRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (h *HTTPHandler) ReverseMovement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}

	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.inventory.ReverseMovement(c.Request.Context(), id, req.Actor, req.Reason)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) LowStock(c *gin.Context) {
	variants, err := h.inventory.LowStockVariants(c.Request.Context())
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, variants)
}

func (h *HTTPHandler) InventoryValue(c *gin.Context) {
	value, err := h.inventory.InventoryValue(c.Request.Context())
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, value)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidMovement), errors.Is(err, domain.ErrEmptyOrder):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrAlreadyReversed),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
