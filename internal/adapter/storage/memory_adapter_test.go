package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

func TestMemoryStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(SeedItems...)

	user, err := store.CreateUser(ctx, domain.User{Username: "test", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == 0 || user.CartID == 0 {
		t.Fatalf("expected ids to be assigned, got %+v", user)
	}

	cart, err := store.GetCartByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("expected cart, got %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Errorf("expected empty cart, got %+v", cart)
	}

	if _, err := store.CreateUser(ctx, domain.User{Username: "test", PasswordHash: "other"}); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestMemoryStore_Lookups(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(SeedItems...)

	if _, err := store.GetUserByUsername(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.GetItem(ctx, 99); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	items, _ := store.FindItemsByName(ctx, "Round Widget")
	if len(items) != 1 || items[0].ID != 1 {
		t.Errorf("expected Round Widget, got %+v", items)
	}

	all, _ := store.ListItems(ctx)
	if len(all) != len(SeedItems) {
		t.Errorf("expected %d items, got %d", len(SeedItems), len(all))
	}
}

func TestMemoryStore_SaveCartVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(SeedItems...)
	user, _ := store.CreateUser(ctx, domain.User{Username: "test", PasswordHash: "hash"})

	cart, _ := store.GetCartByUserID(ctx, user.ID)
	if err := cart.AddItem(SeedItems[0], 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	saved, err := store.SaveCart(ctx, cart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Version != cart.Version+1 {
		t.Errorf("expected version %d, got %d", cart.Version+1, saved.Version)
	}

	// Stale version
	if _, err := store.SaveCart(ctx, cart); !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	reloaded, _ := store.GetCartByUserID(ctx, user.ID)
	if !reloaded.Total.Equal(decimal.RequireFromString("5.98")) {
		t.Errorf("expected total 5.98, got %s", reloaded.Total)
	}
}

func TestMemoryStore_ReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(SeedItems...)
	user, _ := store.CreateUser(ctx, domain.User{Username: "test", PasswordHash: "hash"})

	cart, _ := store.GetCartByUserID(ctx, user.ID)
	cart.AddItem(SeedItems[0], 1)
	cart, _ = store.SaveCart(ctx, cart)

	order, _ := store.CreateOrder(ctx, domain.NewOrderFromCart(user, cart, time.Now()))
	order.Items[0].Name = "mutated"

	orders, _ := store.ListOrdersByUserID(ctx, user.ID)
	if orders[0].Items[0].Name != "Round Widget" {
		t.Errorf("stored order changed through returned slice: %+v", orders[0].Items)
	}
}

func TestMemoryStore_ListOrdersEmpty(t *testing.T) {
	store := NewMemoryStore()
	orders, err := store.ListOrdersByUserID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Errorf("expected empty non-nil list, got %v", orders)
	}
}

func TestMemoryLocker_Exclusive(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "lock:cart:test")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most 1 holder, saw %d", maxSeen)
	}
	if len(locker.locks) != 0 {
		t.Errorf("expected lock table to drain, got %d entries", len(locker.locks))
	}
}

func TestMemoryLocker_RespectsContext(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, _ := locker.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Other keys are independent
	other, err := locker.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other()
}

func TestMemoryIdempotency(t *testing.T) {
	ctx := context.Background()
	idem := NewMemoryIdempotency()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idem.now = func() time.Time { return now }

	if ok, _ := idem.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := idem.SetIdempotency(ctx, "k"); ok {
		t.Fatal("expected duplicate claim to fail")
	}

	now = now.Add(idempotencyKeyTTL + time.Second)
	if ok, _ := idem.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected claim to succeed after expiry")
	}

	idem.ReleaseIdempotency(ctx, "k")
	if ok, _ := idem.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected claim to succeed after release")
	}
}
