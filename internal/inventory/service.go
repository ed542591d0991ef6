// Package inventory is the data-access layer over the backend's inventory
// collection. List, Add and Remove return errors; ListItems, AddItem and
// RemoveItem log failures and degrade to empty results instead.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockroom/internal/backend"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

var (
	ErrMissingUserID    = errors.New("user id is required")
	ErrInvalidItem      = errors.New("item requires a name and a user id")
	ErrIncompleteRecord = errors.New("backend returned an item without id or created_at")
)

type Service struct {
	store backend.InventoryStore
	log   *logger.Logger
}

type Option func(*Service)

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store backend.InventoryStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	return s
}

// List returns the items owned by userID, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	items, err := s.store.ListInventory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	return items, nil
}

// Add stores item and returns the record as the backend assigned it.
func (s *Service) Add(ctx context.Context, item models.NewInventoryItem) (*models.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.UserID == "" {
		return nil, ErrInvalidItem
	}

	created, err := s.store.InsertInventory(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to add inventory item: %w", err)
	}
	if created == nil || created.ID == 0 || created.CreatedAt.IsZero() {
		return nil, ErrIncompleteRecord
	}
	return created, nil
}

// Remove deletes the item with id. Ownership is left to the backend.
func (s *Service) Remove(ctx context.Context, id int64) error {
	if err := s.store.DeleteInventory(ctx, id); err != nil {
		return fmt.Errorf("failed to remove inventory item: %w", err)
	}
	return nil
}

// ListItems is List with failures logged and reported as no items.
func (s *Service) ListItems(ctx context.Context, userID string) []models.InventoryItem {
	items, err := s.List(ctx, userID)
	if err != nil {
		s.log.Error("Error fetching inventory", "user_id", userID, "error", err)
		return []models.InventoryItem{}
	}
	return items
}

// AddItem is Add with failures logged and reported as nil.
func (s *Service) AddItem(ctx context.Context, item models.NewInventoryItem) *models.InventoryItem {
	created, err := s.Add(ctx, item)
	if err != nil {
		s.log.Error("Error adding inventory item", "user_id", item.UserID, "error", err)
		return nil
	}
	return created
}

// RemoveItem is Remove with failures logged and reported as false.
func (s *Service) RemoveItem(ctx context.Context, id int64) bool {
	if err := s.Remove(ctx, id); err != nil {
		s.log.Error("Error removing inventory item", "item", id, "error", err)
		return false
	}
	return true
}
