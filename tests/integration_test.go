package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/adapter/notify"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

type testEnv struct {
	redis     *redis.Client
	mysql     *sql.DB
	inventory *service.InventoryService
	orders    *service.OrderService
	cleanup   func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	inventoryRepo := storage.NewMySQLAdapter(db)
	orderRepo := storage.NewMySQLOrderAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	alerts := service.NewAlertEvaluator(inventoryRepo, notify.NewLogNotifier())

	return &testEnv{
		redis:     rdb,
		mysql:     db,
		inventory: service.NewInventoryService(inventoryRepo, cache, alerts),
		orders:    service.NewOrderService(orderRepo, inventoryRepo, cache, alerts),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

// seedVariant creates a fresh variant with stock received through the
// ledger, so the test starts from a consistent history.
func (e *testEnv) seedVariant(t *testing.T, quantity int) (string, string) {
	ctx := context.Background()
	productID := "it-" + uuid.NewString()[:8]
	variantID := "v1"

	v := &domain.Variant{
		ProductID:     productID,
		VariantID:     variantID,
		PackageType:   "box",
		MinStockLevel: 2,
		UnitCost:      2.0,
		UnitPrice:     5.0,
		Available:     true,
	}
	if err := e.inventory.CreateVariant(ctx, v); err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if quantity > 0 {
		if _, err := e.inventory.RecordPurchase(ctx, productID, variantID, quantity,
			"seed-"+productID, "test", 2.0); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	return productID, variantID
}

func TestOrderLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 10)

	order, err := env.orders.CreateOrder(ctx, service.CreateOrderRequest{
		CustomerName: "Integration",
		Actor:        "test",
		Items: []service.OrderItemRequest{
			{ProductID: productID, VariantID: variantID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	v, err := env.inventory.GetVariant(ctx, productID, variantID)
	if err != nil {
		t.Fatalf("GetVariant failed: %v", err)
	}
	if v.Quantity != 7 {
		t.Errorf("quantity = %d, want 7", v.Quantity)
	}

	// advance then cancel; the sale movements must be reversed
	if _, err := env.orders.TransitionStatus(ctx, order.ID, domain.OrderStatusConfirmed, "test"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	cancelled, err := env.orders.CancelOrder(ctx, order.ID, "test", "integration cleanup")
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	v, _ = env.inventory.GetVariant(ctx, productID, variantID)
	if v.Quantity != 10 {
		t.Errorf("quantity = %d, want 10 after cancellation", v.Quantity)
	}

	movements, _, err := env.inventory.Movements(ctx, productID, variantID, domain.MovementFilter{})
	if err != nil {
		t.Fatalf("Movements failed: %v", err)
	}
	// purchase + sale + reversal
	if len(movements) != 3 {
		t.Errorf("got %d movements, want 3", len(movements))
	}
}

func TestLedgerMatchesProjection(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 0)

	if _, err := env.inventory.RecordPurchase(ctx, productID, variantID, 30, "po-"+productID, "test", 2.0); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := env.inventory.RecordSale(ctx, productID, variantID, 12, "ord-"+productID, "test"); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := env.inventory.RecordDamage(ctx, productID, variantID, 2, "dropped", "test"); err != nil {
		t.Fatalf("damage failed: %v", err)
	}

	var ledgerSum int
	err := env.mysql.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_changed), 0) FROM stock_movements
		WHERE product_id = ? AND variant_id = ?`,
		productID, variantID).Scan(&ledgerSum)
	if err != nil {
		t.Fatalf("sum ledger: %v", err)
	}

	v, err := env.inventory.GetVariant(ctx, productID, variantID)
	if err != nil {
		t.Fatalf("GetVariant failed: %v", err)
	}
	if v.Quantity != 16 {
		t.Errorf("quantity = %d, want 16", v.Quantity)
	}
	if ledgerSum != v.Quantity {
		t.Errorf("ledger sum %d != projection %d", ledgerSum, v.Quantity)
	}
}

// Concurrent orders against one variant must sell exactly the available
// stock, never more.
func TestConcurrentOrders_NoOversell(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 20)

	var succeeded, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orders.CreateOrder(ctx, service.CreateOrderRequest{
				CustomerName: "Load",
				Actor:        "test",
				Items: []service.OrderItemRequest{
					{ProductID: productID, VariantID: variantID, Quantity: 1},
				},
			})
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case errors.Is(err, domain.ErrInsufficientStock):
				atomic.AddInt64(&rejected, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 20 {
		t.Errorf("succeeded = %d, want exactly 20", succeeded)
	}
	if rejected != 30 {
		t.Errorf("rejected = %d, want 30", rejected)
	}

	v, err := env.inventory.GetVariant(ctx, productID, variantID)
	if err != nil {
		t.Fatalf("GetVariant failed: %v", err)
	}
	if v.Quantity != 0 {
		t.Errorf("quantity = %d, want 0", v.Quantity)
	}
}

func TestAuditAndForecast(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID, variantID := env.seedVariant(t, 50)

	if _, err := env.inventory.RecordSale(ctx, productID, variantID, 15, "ord-f-"+productID, "test"); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	entry, adjusted, err := env.inventory.PerformAudit(ctx, productID, variantID, 33, "test", "cycle count")
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if !adjusted || entry.QuantityChanged != -2 {
		t.Errorf("audit adjusted=%v changed=%d, want true/-2", adjusted, entry.QuantityChanged)
	}

	forecast, err := env.inventory.PredictRequirement(ctx, productID, variantID, 30)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}
	if forecast.SoldInWindow != 15 {
		t.Errorf("SoldInWindow = %d, want 15", forecast.SoldInWindow)
	}
	if forecast.CurrentQuantity != 33 {
		t.Errorf("CurrentQuantity = %d, want 33", forecast.CurrentQuantity)
	}
}
