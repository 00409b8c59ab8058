package admin

import (
	"context"

	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
)

type CreateCategoryRequest struct {
	GuildID     string `json:"guild_id"`
	ParentID    string `json:"parent_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
	ImageURL    string `json:"image_url"`
	// Active defaults to true.
	Active *bool `json:"active"`
}

type CategoryResponse struct {
	Category Category `json:"category"`
}

// CreateCategory adds a catalog category. Owner only.
func (s *Server) CreateCategory(ctx context.Context, req CreateCategoryRequest) (CategoryResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return CategoryResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return CategoryResponse{}, err
	}
	category, err := s.deps.Catalog.CreateCategory(ctx, storage.Category{
		GuildID:     req.GuildID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
		Rank:        req.Rank,
		ImageURL:    req.ImageURL,
		Active:      lo.FromPtrOr(req.Active, true),
	})
	if err != nil {
		return CategoryResponse{}, err
	}
	return CategoryResponse{Category: categoryToWire(category)}, nil
}

// UpdateCategoryRequest changes the fields that are present.
type UpdateCategoryRequest struct {
	CategoryID  string  `json:"category_id"`
	ParentID    *string `json:"parent_id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Rank        *int    `json:"rank"`
	ImageURL    *string `json:"image_url"`
	Active      *bool   `json:"active"`
}

// UpdateCategory edits a category. Owner only.
func (s *Server) UpdateCategory(ctx context.Context, req UpdateCategoryRequest) (CategoryResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return CategoryResponse{}, err
	}
	if err := required("category_id", req.CategoryID); err != nil {
		return CategoryResponse{}, err
	}
	category, err := s.deps.Catalog.UpdateCategory(ctx, req.CategoryID, func(c *storage.Category) {
		c.ParentID = lo.FromPtrOr(req.ParentID, c.ParentID)
		c.Name = lo.FromPtrOr(req.Name, c.Name)
		c.Description = lo.FromPtrOr(req.Description, c.Description)
		c.Rank = lo.FromPtrOr(req.Rank, c.Rank)
		c.ImageURL = lo.FromPtrOr(req.ImageURL, c.ImageURL)
		c.Active = lo.FromPtrOr(req.Active, c.Active)
	})
	if err != nil {
		return CategoryResponse{}, err
	}
	return CategoryResponse{Category: categoryToWire(category)}, nil
}

type ListCategoriesRequest struct {
	GuildID    string `json:"guild_id"`
	ParentID   string `json:"parent_id"`
	ActiveOnly bool   `json:"active_only"`
}

type ListCategoriesResponse struct {
	Categories []Category `json:"categories"`
}

// ListCategories lists the categories under parent_id, or the top level.
func (s *Server) ListCategories(ctx context.Context, req ListCategoriesRequest) (ListCategoriesResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return ListCategoriesResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return ListCategoriesResponse{}, err
	}
	categories, err := s.deps.Catalog.ListCategories(ctx, req.GuildID, req.ParentID, req.ActiveOnly)
	if err != nil {
		return ListCategoriesResponse{}, err
	}
	return ListCategoriesResponse{Categories: lo.Map(categories, func(c storage.Category, _ int) Category {
		return categoryToWire(c)
	})}, nil
}

type DeleteCategoryRequest struct {
	CategoryID string `json:"category_id"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteCategory removes an empty category. Owner only.
func (s *Server) DeleteCategory(ctx context.Context, req DeleteCategoryRequest) (DeleteResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return DeleteResponse{}, err
	}
	if err := required("category_id", req.CategoryID); err != nil {
		return DeleteResponse{}, err
	}
	if err := s.deps.Catalog.DeleteCategory(ctx, req.CategoryID); err != nil {
		return DeleteResponse{}, err
	}
	return DeleteResponse{Deleted: true}, nil
}

type CreateItemRequest struct {
	CategoryID     string             `json:"category_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Price          float64            `json:"price"`
	Currency       string             `json:"currency"`
	ImageURL       string             `json:"image_url"`
	Questions      []storage.Question `json:"questions"`
	RequiresTicket bool               `json:"requires_ticket"`
	XPReward       int64              `json:"xp_reward"`
	TokenReward    int64              `json:"token_reward"`
	// Active defaults to true.
	Active *bool `json:"active"`
}

type ItemResponse struct {
	Item Item `json:"item"`
}

// CreateItem adds an item to a category. Owner only.
func (s *Server) CreateItem(ctx context.Context, req CreateItemRequest) (ItemResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return ItemResponse{}, err
	}
	if err := required("category_id", req.CategoryID); err != nil {
		return ItemResponse{}, err
	}
	item, err := s.deps.Catalog.CreateItem(ctx, storage.Item{
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Currency:       req.Currency,
		ImageURL:       req.ImageURL,
		Questions:      req.Questions,
		RequiresTicket: req.RequiresTicket,
		XPReward:       req.XPReward,
		TokenReward:    req.TokenReward,
		Active:         lo.FromPtrOr(req.Active, true),
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return ItemResponse{Item: itemToWire(item)}, nil
}

// UpdateItemRequest changes the fields that are present.
type UpdateItemRequest struct {
	ItemID         string              `json:"item_id"`
	Name           *string             `json:"name"`
	Description    *string             `json:"description"`
	Price          *float64            `json:"price"`
	Currency       *string             `json:"currency"`
	ImageURL       *string             `json:"image_url"`
	Questions      *[]storage.Question `json:"questions"`
	RequiresTicket *bool               `json:"requires_ticket"`
	XPReward       *int64              `json:"xp_reward"`
	TokenReward    *int64              `json:"token_reward"`
	Active         *bool               `json:"active"`
}

// UpdateItem edits an item. Owner only.
func (s *Server) UpdateItem(ctx context.Context, req UpdateItemRequest) (ItemResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return ItemResponse{}, err
	}
	if err := required("item_id", req.ItemID); err != nil {
		return ItemResponse{}, err
	}
	item, err := s.deps.Catalog.UpdateItem(ctx, req.ItemID, func(it *storage.Item) {
		it.Name = lo.FromPtrOr(req.Name, it.Name)
		it.Description = lo.FromPtrOr(req.Description, it.Description)
		it.Price = lo.FromPtrOr(req.Price, it.Price)
		it.Currency = lo.FromPtrOr(req.Currency, it.Currency)
		it.ImageURL = lo.FromPtrOr(req.ImageURL, it.ImageURL)
		it.Questions = lo.FromPtrOr(req.Questions, it.Questions)
		it.RequiresTicket = lo.FromPtrOr(req.RequiresTicket, it.RequiresTicket)
		it.XPReward = lo.FromPtrOr(req.XPReward, it.XPReward)
		it.TokenReward = lo.FromPtrOr(req.TokenReward, it.TokenReward)
		it.Active = lo.FromPtrOr(req.Active, it.Active)
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return ItemResponse{Item: itemToWire(item)}, nil
}

type ListItemsRequest struct {
	CategoryID string `json:"category_id"`
	ActiveOnly bool   `json:"active_only"`
}

type ListItemsResponse struct {
	Items []Item `json:"items"`
}

// ListItems lists the items of a category.
func (s *Server) ListItems(ctx context.Context, req ListItemsRequest) (ListItemsResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return ListItemsResponse{}, err
	}
	if err := required("category_id", req.CategoryID); err != nil {
		return ListItemsResponse{}, err
	}
	items, err := s.deps.Catalog.ListItems(ctx, req.CategoryID, req.ActiveOnly)
	if err != nil {
		return ListItemsResponse{}, err
	}
	return ListItemsResponse{Items: lo.Map(items, func(it storage.Item, _ int) Item {
		return itemToWire(it)
	})}, nil
}

type DeleteItemRequest struct {
	ItemID string `json:"item_id"`
}

// DeleteItem removes an item. Owner only.
func (s *Server) DeleteItem(ctx context.Context, req DeleteItemRequest) (DeleteResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return DeleteResponse{}, err
	}
	if err := required("item_id", req.ItemID); err != nil {
		return DeleteResponse{}, err
	}
	deleted, err := s.deps.Catalog.DeleteItem(ctx, req.ItemID)
	if err != nil {
		return DeleteResponse{}, err
	}
	return DeleteResponse{Deleted: deleted}, nil
}
