package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

const maxSaveAttempts = 3

// CartService applies add/remove operations to a user's cart. Each
// load-mutate-save runs while holding the user's cart lock.
type CartService struct {
	users  port.UserRepository
	items  port.ItemRepository
	carts  port.CartRepository
	locker port.CartLocker
	log    *slog.Logger
}

func NewCartService(users port.UserRepository, items port.ItemRepository, carts port.CartRepository, locker port.CartLocker, log *slog.Logger) *CartService {
	return &CartService{users: users, items: items, carts: carts, locker: locker, log: log}
}

func (s *CartService) GetCart(ctx context.Context, username string) (domain.Cart, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.carts.GetCartByUserID(ctx, user.ID)
}

func (s *CartService) AddToCart(ctx context.Context, username string, itemID int64, quantity int) (domain.Cart, error) {
	return s.modify(ctx, "add", username, itemID, quantity, func(cart *domain.Cart, item domain.Item) error {
		return cart.AddItem(item, quantity)
	})
}

func (s *CartService) RemoveFromCart(ctx context.Context, username string, itemID int64, quantity int) (domain.Cart, error) {
	return s.modify(ctx, "remove", username, itemID, quantity, func(cart *domain.Cart, item domain.Item) error {
		_, err := cart.RemoveItem(item.ID, quantity)
		return err
	})
}

func (s *CartService) modify(ctx context.Context, op, username string, itemID int64, quantity int, apply func(*domain.Cart, domain.Item) error) (domain.Cart, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Error("cart "+op+" failed: user not found", slog.String("username", username))
		}
		return domain.Cart{}, err
	}

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			s.log.Error("cart "+op+" failed: item not found", slog.String("username", username), slog.Int64("item_id", itemID))
		}
		return domain.Cart{}, err
	}

	if quantity <= 0 {
		s.log.Error("cart "+op+" failed: invalid quantity", slog.String("username", username), slog.Int("quantity", quantity))
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	if op == "add" && quantity > domain.MaxCartEntries {
		s.log.Error("cart add failed: quantity over cart limit", slog.String("username", username), slog.Int("quantity", quantity))
		return domain.Cart{}, domain.ErrCartFull
	}

	unlock, err := s.locker.Lock(ctx, cartLockKey(username))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		cart, err := s.carts.GetCartByUserID(ctx, user.ID)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("load cart: %w", err)
		}

		if err := apply(&cart, item); err != nil {
			if errors.Is(err, domain.ErrCartFull) {
				s.log.Error("cart "+op+" failed: cart full", slog.String("username", username), slog.Int("entries", len(cart.Items)))
			}
			return domain.Cart{}, err
		}

		saved, err := s.carts.SaveCart(ctx, cart)
		if errors.Is(err, domain.ErrOptimisticLock) && attempt < maxSaveAttempts {
			s.log.Warn("cart save conflict, retrying", slog.String("username", username), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return domain.Cart{}, fmt.Errorf("save cart: %w", err)
		}

		s.log.Debug("cart "+op+" success",
			slog.String("username", username),
			slog.Int64("item_id", itemID),
			slog.Int("quantity", quantity),
			slog.String("total", saved.Total.StringFixed(2)),
		)
		return saved, nil
	}
}

func cartLockKey(username string) string {
	return "lock:cart:" + username
}
