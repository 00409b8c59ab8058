package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

const (
	categoryColumns = `id, guild_id, name, description, rank, active, image_url, parent_id, created_at, updated_at`
	itemColumns     = `id, guild_id, category_id, name, description, price, currency, image_url, questions_json, active, requires_ticket, xp_reward, token_reward, created_at, updated_at`
)

func scanCategory(row rowScanner) (storage.Category, error) {
	var (
		category  storage.Category
		active    int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&category.ID,
		&category.GuildID,
		&category.Name,
		&category.Description,
		&category.Rank,
		&active,
		&category.ImageURL,
		&category.ParentID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Category{}, err
	}
	category.Active = active != 0
	category.CreatedAt = fromMillis(createdAt)
	category.UpdatedAt = fromMillis(updatedAt)
	return category, nil
}

func scanItem(row rowScanner) (storage.Item, error) {
	var (
		item           storage.Item
		questionsJSON  string
		active         int
		requiresTicket int
		createdAt      int64
		updatedAt      int64
	)
	if err := row.Scan(
		&item.ID,
		&item.GuildID,
		&item.CategoryID,
		&item.Name,
		&item.Description,
		&item.Price,
		&item.Currency,
		&item.ImageURL,
		&questionsJSON,
		&active,
		&requiresTicket,
		&item.XPReward,
		&item.TokenReward,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Item{}, err
	}
	if strings.TrimSpace(questionsJSON) != "" {
		if err := json.Unmarshal([]byte(questionsJSON), &item.Questions); err != nil {
			return storage.Item{}, fmt.Errorf("decode item questions: %w", err)
		}
	}
	item.Active = active != 0
	item.RequiresTicket = requiresTicket != 0
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return item, nil
}

// PutCategory creates or replaces a category.
func (s *Store) PutCategory(ctx context.Context, category storage.Category) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(category.ID) == "" || strings.TrimSpace(category.GuildID) == "" {
		return fmt.Errorf("category id and guild id are required")
	}
	now := s.nowUTC()
	createdAt := category.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := category.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO categories (`+categoryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    rank = excluded.rank,
    active = excluded.active,
    image_url = excluded.image_url,
    parent_id = excluded.parent_id,
    updated_at = excluded.updated_at`,
		category.ID,
		category.GuildID,
		category.Name,
		category.Description,
		category.Rank,
		boolToInt(category.Active),
		category.ImageURL,
		category.ParentID,
		toMillis(createdAt),
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("put category: %w", err)
	}
	return nil
}

// GetCategory returns one category.
func (s *Store) GetCategory(ctx context.Context, id string) (storage.Category, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Category{}, err
	}
	category, err := scanCategory(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Category{}, storage.ErrNotFound
		}
		return storage.Category{}, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

// ListCategories returns the direct children of parentID (top level when
// empty) ordered by rank then name.
func (s *Store) ListCategories(ctx context.Context, guildID string, parentID string, activeOnly bool) ([]storage.Category, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE guild_id = ? AND parent_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY rank ASC, name ASC`
	rows, err := s.sqlDB.QueryContext(ctx, query, strings.TrimSpace(guildID), strings.TrimSpace(parentID))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []storage.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes a category and reports whether it existed.
func (s *Store) DeleteCategory(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM categories WHERE id = ?`, id)
}

// CategoryStats counts direct items and subcategories for each id.
func (s *Store) CategoryStats(ctx context.Context, ids []string) (map[string]storage.CategoryStats, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	stats := make(map[string]storage.CategoryStats, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		var entry storage.CategoryStats
		if err := s.sqlDB.QueryRowContext(ctx, `
SELECT
    (SELECT COUNT(*) FROM items WHERE category_id = ?1),
    (SELECT COUNT(*) FROM categories WHERE parent_id = ?1)`, id,
		).Scan(&entry.Items, &entry.Subcategories); err != nil {
			return nil, fmt.Errorf("category stats %s: %w", id, err)
		}
		stats[id] = entry
	}
	return stats, nil
}

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, item storage.Item) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.CategoryID) == "" {
		return fmt.Errorf("item id and category id are required")
	}
	questions := item.Questions
	if questions == nil {
		questions = []storage.Question{}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode item questions: %w", err)
	}
	now := s.nowUTC()
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO items (`+itemColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    category_id = excluded.category_id,
    name = excluded.name,
    description = excluded.description,
    price = excluded.price,
    currency = excluded.currency,
    image_url = excluded.image_url,
    questions_json = excluded.questions_json,
    active = excluded.active,
    requires_ticket = excluded.requires_ticket,
    xp_reward = excluded.xp_reward,
    token_reward = excluded.token_reward,
    updated_at = excluded.updated_at`,
		item.ID,
		item.GuildID,
		item.CategoryID,
		item.Name,
		item.Description,
		item.Price,
		item.Currency,
		item.ImageURL,
		string(questionsJSON),
		boolToInt(item.Active),
		boolToInt(item.RequiresTicket),
		item.XPReward,
		item.TokenReward,
		toMillis(createdAt),
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// GetItem returns one item.
func (s *Store) GetItem(ctx context.Context, id string) (storage.Item, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Item{}, err
	}
	item, err := scanItem(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Item{}, storage.ErrNotFound
		}
		return storage.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns a category's items ordered by name.
func (s *Store) ListItems(ctx context.Context, categoryID string, activeOnly bool) ([]storage.Item, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE category_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.sqlDB.QueryContext(ctx, query, strings.TrimSpace(categoryID))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []storage.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item and reports whether it existed.
func (s *Store) DeleteItem(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM items WHERE id = ?`, id)
}

func (s *Store) deleteByID(ctx context.Context, query string, id string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx, query, strings.TrimSpace(id))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s rows affected: %w", id, err)
	}
	return affected > 0, nil
}
