package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

// SeedItems is the catalog both storage drivers start with.
var SeedItems = []domain.Item{
	{ID: 1, Name: "Round Widget", Price: decimal.RequireFromString("2.99"), Description: "A widget that is round"},
	{ID: 2, Name: "Square Widget", Price: decimal.RequireFromString("1.99"), Description: "A widget that is square"},
}

// MemoryStore keeps everything in process. Used when no MySQL DSN is configured and in handler tests.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	byName     map[string]int64
	items      []domain.Item
	carts      map[int64]domain.Cart // by user id
	orders     []domain.UserOrder
	nextUserID int64
	nextCartID int64
	nextOrder  int64
}

func NewMemoryStore(items ...domain.Item) *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]domain.User),
		byName: make(map[string]int64),
		items:  cloneItems(items),
		carts:  make(map[int64]domain.Cart),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byName[user.Username]; taken {
		return domain.User{}, domain.ErrDuplicateUsername
	}

	m.nextUserID++
	m.nextCartID++
	user.ID = m.nextUserID
	user.CartID = m.nextCartID

	m.users[user.ID] = user
	m.byName[user.Username] = user.ID
	m.carts[user.ID] = domain.Cart{ID: user.CartID, UserID: user.ID, Items: []domain.Item{}, Total: decimal.Zero}
	return user, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneItems(m.items), nil
}

func (m *MemoryStore) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.Item{}, domain.ErrItemNotFound
}

func (m *MemoryStore) FindItemsByName(ctx context.Context, name string) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Item
	for _, it := range m.items {
		if it.Name == name {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCartByUserID(ctx context.Context, userID int64) (domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, fmt.Errorf("cart %w", domain.ErrNotFound)
	}
	cart.Items = cloneItems(cart.Items)
	return cart, nil
}

func (m *MemoryStore) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.carts[cart.UserID]
	if !ok || current.ID != cart.ID || current.Version != cart.Version {
		return domain.Cart{}, domain.ErrOptimisticLock
	}

	cart.Version++
	cart.Items = cloneItems(cart.Items)
	m.carts[cart.UserID] = cart

	cart.Items = cloneItems(cart.Items)
	return cart, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order domain.UserOrder) (domain.UserOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextOrder++
	order.ID = m.nextOrder
	order.Items = cloneItems(order.Items)
	m.orders = append(m.orders, order)

	order.Items = cloneItems(order.Items)
	return order, nil
}

func (m *MemoryStore) ListOrdersByUserID(ctx context.Context, userID int64) ([]domain.UserOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.UserOrder{}
	for _, o := range m.orders {
		if o.User.ID == userID {
			o.Items = cloneItems(o.Items)
			out = append(out, o)
		}
	}
	return out, nil
}

func cloneItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)
	return out
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker serializes callers per key within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// MemoryIdempotency remembers claimed keys for idempotencyKeyTTL.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.keys[key] = now.Add(idempotencyKeyTTL)
	return true, nil
}

func (m *MemoryIdempotency) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
