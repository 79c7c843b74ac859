// Oversell probe: fires concurrent single-item orders at one variant and
// verifies the ledger and the projection agree afterwards. Needs a live
// MySQL and Redis with the schema from migrations/schema.sql applied.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/adapter/notify"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

const (
	productID     = "stress-product"
	variantID     = "stress-variant"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous runs
	db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = ?`, productID)
	db.ExecContext(ctx, `DELETE FROM order_items WHERE product_id = ?`, productID)
	db.ExecContext(ctx, `DELETE FROM variants WHERE product_id = ?`, productID)
	rdb.Del(ctx, "stock:"+productID+":"+variantID)

	inventoryRepo := storage.NewMySQLAdapter(db)
	orderRepo := storage.NewMySQLOrderAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	alerts := service.NewAlertEvaluator(inventoryRepo, notify.NewLogNotifier())
	inventory := service.NewInventoryService(inventoryRepo, cache, alerts)
	orders := service.NewOrderService(orderRepo, inventoryRepo, cache, alerts)

	if err := inventory.CreateVariant(ctx, &domain.Variant{
		ProductID: productID,
		VariantID: variantID,
		UnitPrice: 9.99,
		Available: true,
	}); err != nil {
		log.Fatalf("failed to create variant: %v", err)
	}
	if _, err := inventory.AdjustStock(ctx, productID, variantID, initialStock, "stress seed", "stress"); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			_, err := orders.CreateOrder(reqCtx, service.CreateOrderRequest{
				CustomerName:    fmt.Sprintf("stress-user-%d", n),
				ShippingAddress: "nowhere",
				Actor:           "stress",
				Items: []service.OrderItemRequest{
					{ProductID: productID, VariantID: variantID, Quantity: 1},
				},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	v, err := inventory.GetVariant(ctx, productID, variantID)
	if err != nil {
		log.Fatalf("failed to read variant: %v", err)
	}

	var ledgerSum int
	err = db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_changed), 0) FROM stock_movements
		WHERE product_id = ? AND variant_id = ?`,
		productID, variantID,
	).Scan(&ledgerSum)
	if err != nil {
		log.Fatalf("failed to sum ledger: %v", err)
	}

	log.Printf("done in %v: %d orders placed, %d sold out, %d errors",
		elapsed, successCount.Load(), soldOutCount.Load(), otherCount.Load())
	log.Printf("final quantity %d, ledger sum %d", v.Quantity, ledgerSum)

	switch {
	case v.Quantity != ledgerSum:
		log.Fatalf("FAIL: projection %d diverged from ledger sum %d", v.Quantity, ledgerSum)
	case v.Quantity < 0:
		log.Fatalf("FAIL: oversold, quantity %d", v.Quantity)
	case int(successCount.Load()) != initialStock-v.Quantity:
		log.Fatalf("FAIL: %d orders placed but %d units left", successCount.Load(), v.Quantity)
	default:
		log.Println("OK: no oversell, ledger and projection agree")
	}
}
