package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/storage"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/service"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/logger"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

const (
	itemID       = 1
	totalAdds    = 50
	totalRemoves = 20
	lockTTL      = 5 * time.Second
)

func main() {
	ctx := context.Background()
	quiet := logger.Discard()

	store, locker := openBackends(ctx)

	users := service.NewUserService(store, auth.NewPasswordHasher(bcrypt.MinCost), quiet)
	carts := service.NewCartService(store, store, store, locker, quiet)

	username := fmt.Sprintf("stress-%d", time.Now().UnixNano())
	if _, err := users.CreateUser(ctx, username, "stressPassword", "stressPassword"); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	item, err := store.GetItem(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to load item %d: %v", itemID, err)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	// Adds and removes race each other on the same cart
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < totalAdds; i++ {
		g.Go(func() error {
			if _, err := carts.AddToCart(ctx, username, itemID, 1); err != nil {
				failCount.Add(1)
				return nil
			}
			successCount.Add(1)
			return nil
		})
	}
	for i := 0; i < totalRemoves; i++ {
		g.Go(func() error {
			if _, err := carts.RemoveFromCart(ctx, username, itemID, 1); err != nil {
				failCount.Add(1)
				return nil
			}
			successCount.Add(1)
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	cart, err := carts.GetCart(ctx, username)
	if err != nil {
		log.Fatalf("failed to load cart: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Adds:             %d\n", totalAdds)
	fmt.Printf("Removes:          %d\n", totalRemoves)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Cart entries:     %d\n", len(cart.Items))
	fmt.Printf("Cart total:       %s\n", cart.Total.StringFixed(2))
	fmt.Println("==========================================")

	// A remove that ran before any add removes nothing, so the floor is adds-removes
	minEntries := totalAdds - totalRemoves
	if failCount.Load() == 0 && len(cart.Items) >= minEntries && len(cart.Items) <= totalAdds {
		fmt.Printf("PASS: %d entries within [%d, %d]\n", len(cart.Items), minEntries, totalAdds)
	} else {
		fmt.Printf("FAIL: expected %d..%d entries and no failures, got %d entries, %d failures\n",
			minEntries, totalAdds, len(cart.Items), failCount.Load())
	}

	expectedTotal := item.Price.Mul(decimal.NewFromInt(int64(len(cart.Items))))
	if cart.Total.Equal(expectedTotal) {
		fmt.Println("PASS: total matches entries")
	} else {
		fmt.Printf("FAIL: expected total %s, got %s\n", expectedTotal.StringFixed(2), cart.Total.StringFixed(2))
	}
}

// openBackends uses MySQL and Redis when reachable and falls back to the in-memory adapters.
func openBackends(ctx context.Context) (port.Store, port.CartLocker) {
	var store port.Store = storage.NewMemoryStore(storage.SeedItems...)
	var locker port.CartLocker = storage.NewMemoryLocker()

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping mysql: %v", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		store = adapter
		log.Println("using mysql")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		locker = storage.NewRedisAdapter(rdb, lockTTL, logger.New(logger.Options{Service: "stress_test", Level: "warn", Output: os.Stderr}))
		log.Println("using redis lock")
	}

	return store, locker
}
