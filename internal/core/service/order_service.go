package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	shippingFee      = 15.0
	freeShippingOver = 200.0
	taxRate          = 0.08
)

// OrderService creates and advances customer orders, keeping stock in sync
// through the inventory ledger. Creation commits the order and every
// item's decrement in one storage transaction; the cached projection is
// used only as a fast-fail gate in front of it.
type OrderService struct {
	orders    port.OrderRepository
	inventory port.InventoryRepository
	cache     port.CacheRepository
	alerts    *AlertEvaluator
}

func NewOrderService(orders port.OrderRepository, inventory port.InventoryRepository, cache port.CacheRepository, alerts *AlertEvaluator) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		cache:     cache,
		alerts:    alerts,
	}
}

type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	// ClientReference dedups retried submissions; optional.
	ClientReference string             `json:"client_reference"`
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	ShippingAddress string             `json:"shipping_address"`
	Actor           string             `json:"actor"`
	Items           []OrderItemRequest `json:"items"`
}

// CreateOrder validates the items, prices them, and commits the order with
// all stock decrements atomically. On any item failure nothing persists;
// quantities gated in the cache beforehand are restored.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	merged, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	if req.ClientReference != "" {
		ok, err := s.cache.SetIdempotency(ctx, "order:"+req.ClientReference)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("reference %s: %w", req.ClientReference, domain.ErrDuplicateRequest)
		}
	}

	items := make([]domain.OrderItem, 0, len(merged))
	var subtotal float64
	for _, item := range merged {
		v, err := s.inventory.GetVariant(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return nil, err
		}
		if !v.Available {
			return nil, fmt.Errorf("variant %s/%s unavailable: %w", item.ProductID, item.VariantID, domain.ErrNotFound)
		}
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: v.UnitPrice,
		})
		subtotal += float64(item.Quantity) * v.UnitPrice
	}

	shipping := shippingFee
	if subtotal >= freeShippingOver {
		shipping = 0
	}
	tax := round2(subtotal * taxRate)

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.NewString(),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
		Subtotal:        round2(subtotal),
		ShippingFee:     shipping,
		Tax:             tax,
		TotalAmount:     round2(subtotal + shipping + tax),
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Fast-fail against the cached projection before opening the
	// authoritative transaction. A miss falls through; the transaction
	// below is the real guard.
	var gated []domain.OrderItem
	for _, item := range items {
		result, err := s.cache.GateDecrement(ctx, item.ProductID, item.VariantID, item.Quantity)
		if err != nil {
			log.Printf("stock gate unavailable for %s/%s: %v", item.ProductID, item.VariantID, err)
			continue
		}
		switch result {
		case port.GateAllowed:
			gated = append(gated, item)
		case port.GateInsufficient:
			s.restoreGated(ctx, gated)
			return nil, fmt.Errorf("variant %s/%s: %w", item.ProductID, item.VariantID, domain.ErrInsufficientStock)
		}
	}

	movements, err := s.orders.CreateOrder(ctx, order, req.Actor)
	if err != nil {
		s.restoreGated(ctx, gated)
		return nil, err
	}

	for i := range movements {
		s.movementCommitted(ctx, &movements[i])
	}
	return order, nil
}

// TransitionStatus advances an order along the fulfillment chain.
// Cancellation goes through CancelOrder so the sale movements are
// reversed with it.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, actor string) (*domain.Order, error) {
	if to == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID, actor, "cancelled")
	}

	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, domain.ErrInvalidTransition)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, o.Status, to); err != nil {
		return nil, err
	}
	o.Status = to
	return o, nil
}

// CancelOrder reverses the order's sale movements and sets it cancelled in
// one transaction, returning stock to the shelf without editing history.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actor, reason string) (*domain.Order, error) {
	reversals, err := s.orders.CancelOrder(ctx, orderID, actor, reason)
	if err != nil {
		return nil, err
	}
	for i := range reversals {
		s.movementCommitted(ctx, &reversals[i])
	}
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx, limit, offset)
}

func (s *OrderService) restoreGated(ctx context.Context, gated []domain.OrderItem) {
	for _, item := range gated {
		if err := s.cache.RestoreStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			log.Printf("CRITICAL gate restore failed for %s/%s qty %d: %v",
				item.ProductID, item.VariantID, item.Quantity, err)
		}
	}
}

func (s *OrderService) movementCommitted(ctx context.Context, entry *domain.MovementEntry) {
	if err := s.cache.SetQuantity(ctx, entry.ProductID, entry.VariantID, entry.QuantityAfter); err != nil {
		log.Printf("cache refresh failed for %s/%s: %v", entry.ProductID, entry.VariantID, err)
	}
	s.alerts.MovementApplied(ctx, entry)
}

// mergeItems folds duplicate (product, variant) lines into one so each
// variant maps to exactly one sale movement per order.
func mergeItems(items []OrderItemRequest) ([]OrderItemRequest, error) {
	index := make(map[string]int, len(items))
	merged := make([]OrderItemRequest, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s/%s quantity %d: %w",
				item.ProductID, item.VariantID, item.Quantity, domain.ErrInvalidMovement)
		}
		key := item.ProductID + "/" + item.VariantID
		if i, ok := index[key]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
