// Package catalog manages shop categories and the items listed in them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/platform/id"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
)

// Item currencies.
const (
	CurrencyTokens  = "tokens"
	CurrencyCredits = "credits"
)

const (
	maxCategoryName = 50
	maxItemName     = 100
)

// Service validates and persists catalog changes.
type Service struct {
	store storage.CatalogStore
	newID func() (string, error)
	clock func() time.Time
}

// NewService creates a catalog service.
func NewService(store storage.CatalogStore, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, newID: id.NewID, clock: clock}
}

func (s *Service) ensure() error {
	if s == nil || s.store == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	return nil
}

func validateName(name string, limit int, kind string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > limit {
		return "", apperrors.WithMetadata(apperrors.CodeCatalogInvalidName,
			fmt.Sprintf("%s name must be 1-%d characters", kind, limit),
			map[string]string{"name": name})
	}
	return name, nil
}

func validateItem(item *storage.Item) error {
	name, err := validateName(item.Name, maxItemName, "item")
	if err != nil {
		return err
	}
	item.Name = name
	if item.Price < 0 || math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
		return apperrors.New(apperrors.CodeCatalogInvalidPrice, "price must be a non-negative number")
	}
	item.Currency = strings.ToLower(strings.TrimSpace(item.Currency))
	if item.Currency == "" {
		item.Currency = CurrencyTokens
	}
	if item.Currency != CurrencyTokens && item.Currency != CurrencyCredits {
		return apperrors.WithMetadata(apperrors.CodeCatalogInvalidCurrency,
			"currency must be tokens or credits", map[string]string{"currency": item.Currency})
	}
	if item.XPReward < 0 || item.TokenReward < 0 {
		return apperrors.New(apperrors.CodeCatalogInvalidReward, "rewards must not be negative")
	}
	item.Questions = lo.Filter(item.Questions, func(q storage.Question, _ int) bool {
		return strings.TrimSpace(q.Text) != ""
	})
	return nil
}

// CreateCategory validates and stores a new category.
func (s *Service) CreateCategory(ctx context.Context, category storage.Category) (storage.Category, error) {
	if err := s.ensure(); err != nil {
		return storage.Category{}, err
	}
	name, err := validateName(category.Name, maxCategoryName, "category")
	if err != nil {
		return storage.Category{}, err
	}
	category.Name = name
	if strings.TrimSpace(category.GuildID) == "" {
		return storage.Category{}, fmt.Errorf("guild id is required")
	}
	if err := s.checkParent(ctx, category.GuildID, category.ParentID, ""); err != nil {
		return storage.Category{}, err
	}
	category.ID, err = s.newID()
	if err != nil {
		return storage.Category{}, err
	}
	now := s.clock().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	if err := s.store.PutCategory(ctx, category); err != nil {
		return storage.Category{}, fmt.Errorf("put category: %w", err)
	}
	return category, nil
}

func (s *Service) checkParent(ctx context.Context, guildID string, parentID string, selfID string) error {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil
	}
	if parentID == selfID {
		return apperrors.New(apperrors.CodeCatalogInvalidName, "category can not be its own parent")
	}
	parent, err := s.GetCategory(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.GuildID != guildID {
		return apperrors.New(apperrors.CodeNotFound, "parent category not found")
	}
	return nil
}

// UpdateCategory applies mutate to a stored category and revalidates it.
func (s *Service) UpdateCategory(ctx context.Context, categoryID string, mutate func(*storage.Category)) (storage.Category, error) {
	if mutate == nil {
		return storage.Category{}, fmt.Errorf("mutate func is required")
	}
	category, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return storage.Category{}, err
	}
	mutate(&category)
	category.ID = categoryID
	name, err := validateName(category.Name, maxCategoryName, "category")
	if err != nil {
		return storage.Category{}, err
	}
	category.Name = name
	if err := s.checkParent(ctx, category.GuildID, category.ParentID, category.ID); err != nil {
		return storage.Category{}, err
	}
	category.UpdatedAt = s.clock().UTC()
	if err := s.store.PutCategory(ctx, category); err != nil {
		return storage.Category{}, fmt.Errorf("put category: %w", err)
	}
	return category, nil
}

// GetCategory returns one category or a NOT_FOUND error.
func (s *Service) GetCategory(ctx context.Context, categoryID string) (storage.Category, error) {
	if err := s.ensure(); err != nil {
		return storage.Category{}, err
	}
	category, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Category{}, apperrors.WithMetadata(apperrors.CodeNotFound, "category not found", map[string]string{"category_id": categoryID})
	}
	if err != nil {
		return storage.Category{}, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

// ListCategories returns the categories under parentID (top level when empty)
// ordered by rank then name.
func (s *Service) ListCategories(ctx context.Context, guildID string, parentID string, activeOnly bool) ([]storage.Category, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx, guildID, parentID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes an empty category. Categories that still hold items
// or subcategories fail with CATEGORY_NOT_EMPTY.
func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	if _, err := s.GetCategory(ctx, categoryID); err != nil {
		return err
	}
	stats, err := s.Stats(ctx, []string{categoryID})
	if err != nil {
		return err
	}
	if st := stats[categoryID]; st.Items > 0 || st.Subcategories > 0 {
		return apperrors.WithMetadata(apperrors.CodeCategoryNotEmpty,
			fmt.Sprintf("category has %d items and %d subcategories", st.Items, st.Subcategories),
			map[string]string{"category_id": categoryID})
	}
	if _, err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// Stats returns item and subcategory counts for the given categories.
func (s *Service) Stats(ctx context.Context, categoryIDs []string) (map[string]storage.CategoryStats, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	stats, err := s.store.CategoryStats(ctx, lo.Uniq(categoryIDs))
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

// CreateItem validates and stores a new item in an existing category.
func (s *Service) CreateItem(ctx context.Context, item storage.Item) (storage.Item, error) {
	if err := s.ensure(); err != nil {
		return storage.Item{}, err
	}
	if err := validateItem(&item); err != nil {
		return storage.Item{}, err
	}
	category, err := s.GetCategory(ctx, item.CategoryID)
	if err != nil {
		return storage.Item{}, err
	}
	item.GuildID = category.GuildID
	item.ID, err = s.newID()
	if err != nil {
		return storage.Item{}, err
	}
	now := s.clock().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := s.store.PutItem(ctx, item); err != nil {
		return storage.Item{}, fmt.Errorf("put item: %w", err)
	}
	return item, nil
}

// UpdateItem applies mutate to a stored item and revalidates it.
func (s *Service) UpdateItem(ctx context.Context, itemID string, mutate func(*storage.Item)) (storage.Item, error) {
	if mutate == nil {
		return storage.Item{}, fmt.Errorf("mutate func is required")
	}
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return storage.Item{}, err
	}
	categoryID := item.CategoryID
	mutate(&item)
	item.ID = itemID
	if err := validateItem(&item); err != nil {
		return storage.Item{}, err
	}
	if item.CategoryID != categoryID {
		category, err := s.GetCategory(ctx, item.CategoryID)
		if err != nil {
			return storage.Item{}, err
		}
		item.GuildID = category.GuildID
	}
	item.UpdatedAt = s.clock().UTC()
	if err := s.store.PutItem(ctx, item); err != nil {
		return storage.Item{}, fmt.Errorf("put item: %w", err)
	}
	return item, nil
}

// GetItem returns one item or a NOT_FOUND error.
func (s *Service) GetItem(ctx context.Context, itemID string) (storage.Item, error) {
	if err := s.ensure(); err != nil {
		return storage.Item{}, err
	}
	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Item{}, apperrors.WithMetadata(apperrors.CodeNotFound, "item not found", map[string]string{"item_id": itemID})
	}
	if err != nil {
		return storage.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns the items of a category ordered by name.
func (s *Service) ListItems(ctx context.Context, categoryID string, activeOnly bool) ([]storage.Item, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, categoryID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item and reports whether it existed.
func (s *Service) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	if err := s.ensure(); err != nil {
		return false, err
	}
	removed, err := s.store.DeleteItem(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return removed, nil
}
