package service

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/logger"
)

var testLog = logger.Discard()

// Mock Store
type mockStore struct {
	mu        sync.Mutex
	users     map[int64]domain.User
	items     map[int64]domain.Item
	carts     map[int64]domain.Cart // by user id
	orders    []domain.UserOrder
	nextID    int64
	saveCalls int

	// conflicts makes the next N SaveCart calls fail with ErrOptimisticLock
	conflicts int
}

func newMockStore() *mockStore {
	return &mockStore{
		users: make(map[int64]domain.User),
		items: make(map[int64]domain.Item),
		carts: make(map[int64]domain.Cart),
	}
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (m *mockStore) addItem(id int64, name, p string) domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := domain.Item{ID: id, Name: name, Price: price(p), Description: "This is " + name}
	m.items[id] = it
	return it
}

// addUser creates a user whose cart holds items.
func (m *mockStore) addUser(username string, items ...domain.Item) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := domain.User{ID: m.nextID, Username: username, PasswordHash: "thisIsHashed", CartID: m.nextID}
	m.users[u.ID] = u
	m.carts[u.ID] = domain.Cart{ID: u.CartID, UserID: u.ID, Items: copyItems(items), Total: domain.SumPrices(items)}
	return u
}

func (m *mockStore) cartOf(userID int64) domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[userID]
	c.Items = copyItems(c.Items)
	return c
}

func copyItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)
	return out
}

func (m *mockStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return domain.User{}, domain.ErrDuplicateUsername
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CartID = m.nextID
	m.users[user.ID] = user
	m.carts[user.ID] = domain.Cart{ID: user.CartID, UserID: user.ID, Total: decimal.Zero}
	return user, nil
}

func (m *mockStore) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *mockStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *mockStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockStore) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return it, nil
}

func (m *mockStore) FindItemsByName(ctx context.Context, name string) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, it := range m.items {
		if strings.EqualFold(it.Name, name) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockStore) GetCartByUserID(ctx context.Context, userID int64) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrNotFound
	}
	c.Items = copyItems(c.Items)
	return c, nil
}

func (m *mockStore) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.conflicts > 0 {
		m.conflicts--
		return domain.Cart{}, domain.ErrOptimisticLock
	}
	current := m.carts[cart.UserID]
	if current.Version != cart.Version {
		return domain.Cart{}, domain.ErrOptimisticLock
	}
	cart.Version++
	cart.Items = copyItems(cart.Items)
	m.carts[cart.UserID] = cart
	return cart, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, order domain.UserOrder) (domain.UserOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	m.orders = append(m.orders, order)
	return order, nil
}

func (m *mockStore) ListOrdersByUserID(ctx context.Context, userID int64) ([]domain.UserOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UserOrder
	for _, o := range m.orders {
		if o.User.ID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Mock CartLocker
type mockLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	calls int
}

func newMockLocker() *mockLocker {
	return &mockLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.calls++
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock, nil
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: make(map[string]bool)}
}

func (m *mockIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotency) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Mock OrderEventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *mockPublisher) PublishOrderSubmitted(ctx context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}
