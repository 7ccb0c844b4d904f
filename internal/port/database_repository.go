package port

import (
	"context"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

type UserRepository interface {
	// CreateUser stores the user together with an empty cart and returns both ids filled in.
	// A taken username yields domain.ErrDuplicateUsername.
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)

	// GetUserByID returns domain.ErrUserNotFound when absent
	GetUserByID(ctx context.Context, id int64) (domain.User, error)

	// GetUserByUsername returns domain.ErrUserNotFound when absent
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type ItemRepository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)

	// GetItem returns domain.ErrItemNotFound when absent
	GetItem(ctx context.Context, id int64) (domain.Item, error)

	FindItemsByName(ctx context.Context, name string) ([]domain.Item, error)
}

type CartRepository interface {
	// GetCartByUserID loads the cart with its entries in insertion order
	GetCartByUserID(ctx context.Context, userID int64) (domain.Cart, error)

	// SaveCart replaces the cart's entries and total with version check for optimistic locking
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
}

type OrderRepository interface {
	// CreateOrder persists the order snapshot and returns it with its id
	CreateOrder(ctx context.Context, order domain.UserOrder) (domain.UserOrder, error)

	// ListOrdersByUserID returns orders in storage order
	ListOrdersByUserID(ctx context.Context, userID int64) ([]domain.UserOrder, error)
}

// Store is everything the services need from persistence.
type Store interface {
	UserRepository
	ItemRepository
	CartRepository
	OrderRepository
}
