package service

import (
	"context"
	"log/slog"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

type ItemService struct {
	items port.ItemRepository
	log   *slog.Logger
}

func NewItemService(items port.ItemRepository, log *slog.Logger) *ItemService {
	return &ItemService{items: items, log: log}
}

func (s *ItemService) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.items.ListItems(ctx)
}

func (s *ItemService) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	return s.items.GetItem(ctx, id)
}

// FindByName returns domain.ErrItemNotFound when nothing matches.
func (s *ItemService) FindByName(ctx context.Context, name string) ([]domain.Item, error) {
	items, err := s.items.FindItemsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.log.Warn("no items with name", slog.String("name", name))
		return nil, domain.ErrItemNotFound
	}
	return items, nil
}
