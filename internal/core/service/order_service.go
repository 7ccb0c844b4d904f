package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

// OrderService freezes carts into orders. Stored orders are announced on an
// event queue drained by RunEventWorker.
type OrderService struct {
	users  port.UserRepository
	carts  port.CartRepository
	orders port.OrderRepository
	idem   port.IdempotencyStore
	log    *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	closed     bool
	eventQueue chan domain.OrderEvent
}

func NewOrderService(users port.UserRepository, carts port.CartRepository, orders port.OrderRepository, idem port.IdempotencyStore, queueSize int, log *slog.Logger) *OrderService {
	return &OrderService{
		users:      users,
		carts:      carts,
		orders:     orders,
		idem:       idem,
		log:        log,
		now:        time.Now,
		eventQueue: make(chan domain.OrderEvent, queueSize),
	}
}

// SubmitOrder copies the user's current cart into a new order. The cart is left as is.
// A non-empty idempotencyKey may be used once per user.
func (s *OrderService) SubmitOrder(ctx context.Context, username, idempotencyKey string) (domain.UserOrder, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Error("order submission failed: user not found", slog.String("username", username))
		}
		return domain.UserOrder{}, err
	}

	if idempotencyKey != "" && s.idem != nil {
		key := fmt.Sprintf("order:%s:%s", username, idempotencyKey)
		ok, err := s.idem.SetIdempotency(ctx, key)
		if err != nil {
			return domain.UserOrder{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			s.log.Warn("order submission rejected: duplicate request", slog.String("username", username))
			return domain.UserOrder{}, domain.ErrDuplicateRequest
		}

		order, err := s.submit(ctx, user)
		if err != nil {
			if relErr := s.idem.ReleaseIdempotency(ctx, key); relErr != nil {
				s.log.Error("failed to release idempotency key", slog.String("key", key), slog.Any("err", relErr))
			}
		}
		return order, err
	}

	return s.submit(ctx, user)
}

func (s *OrderService) submit(ctx context.Context, user domain.User) (domain.UserOrder, error) {
	cart, err := s.carts.GetCartByUserID(ctx, user.ID)
	if err != nil {
		return domain.UserOrder{}, fmt.Errorf("load cart: %w", err)
	}

	order, err := s.orders.CreateOrder(ctx, domain.NewOrderFromCart(user, cart, s.now()))
	if err != nil {
		return domain.UserOrder{}, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order submitted",
		slog.String("username", user.Username),
		slog.Int64("order_id", order.ID),
		slog.String("total", order.Total.StringFixed(2)),
	)
	s.enqueue(order.Event())
	return order, nil
}

func (s *OrderService) GetOrdersForUser(ctx context.Context, username string) ([]domain.UserOrder, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Error("order history failed: user not found", slog.String("username", username))
		}
		return nil, err
	}
	return s.orders.ListOrdersByUserID(ctx, user.ID)
}

func (s *OrderService) enqueue(event domain.OrderEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.eventQueue <- event:
	default:
		s.log.Warn("order event queue full, dropping event", slog.Int64("order_id", event.OrderID))
	}
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.eventQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.eventQueue)
	}
}

// RunEventWorker publishes queued events until the queue is closed.
func RunEventWorker(id int, queue <-chan domain.OrderEvent, publisher port.OrderEventPublisher, log *slog.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.PublishOrderSubmitted(ctx, event); err != nil {
			log.Error("failed to publish order event",
				slog.Int("worker", id),
				slog.Int64("order_id", event.OrderID),
				slog.Any("err", err),
			)
		} else {
			log.Debug("published order event", slog.Int("worker", id), slog.Int64("order_id", event.OrderID))
		}

		cancel()
	}
}
