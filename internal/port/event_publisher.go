package port

import (
	"context"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
)

type OrderEventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event domain.OrderEvent) error
}
