package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// PutTier creates or replaces the threshold of one tier role.
func (s *Store) PutTier(ctx context.Context, tier storage.ReputationTier) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	guildID := strings.TrimSpace(tier.GuildID)
	roleID := strings.TrimSpace(tier.RoleID)
	if guildID == "" || roleID == "" {
		return fmt.Errorf("guild id and role id are required")
	}
	createdAt := tier.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO reputation_tiers (guild_id, role_id, threshold, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(guild_id, role_id) DO UPDATE SET threshold = excluded.threshold`,
		guildID, roleID, tier.Threshold, toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("put reputation tier: %w", err)
	}
	return nil
}

// DeleteTier removes a tier and reports whether it existed.
func (s *Store) DeleteTier(ctx context.Context, guildID string, roleID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM reputation_tiers WHERE guild_id = ? AND role_id = ?`,
		strings.TrimSpace(guildID), strings.TrimSpace(roleID))
	if err != nil {
		return false, fmt.Errorf("delete reputation tier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reputation tier rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListTiers returns a guild's tiers by ascending threshold.
func (s *Store) ListTiers(ctx context.Context, guildID string) ([]storage.ReputationTier, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT guild_id, role_id, threshold, created_at
FROM reputation_tiers
WHERE guild_id = ?
ORDER BY threshold ASC, role_id ASC`, strings.TrimSpace(guildID))
	if err != nil {
		return nil, fmt.Errorf("list reputation tiers: %w", err)
	}
	defer rows.Close()

	var tiers []storage.ReputationTier
	for rows.Next() {
		var (
			tier      storage.ReputationTier
			createdAt int64
		)
		if err := rows.Scan(&tier.GuildID, &tier.RoleID, &tier.Threshold, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reputation tier: %w", err)
		}
		tier.CreatedAt = fromMillis(createdAt)
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reputation tiers: %w", err)
	}
	return tiers, nil
}

// AppendReputationLog records one reputation grant.
func (s *Store) AppendReputationLog(ctx context.Context, entry storage.ReputationLog) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(entry.ToUserID) == "" {
		return fmt.Errorf("recipient user id is required")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO reputation_logs (guild_id, from_user_id, to_user_id, amount, message, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(entry.GuildID),
		strings.TrimSpace(entry.FromUserID),
		strings.TrimSpace(entry.ToUserID),
		entry.Amount,
		entry.Message,
		toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("append reputation log: %w", err)
	}
	return nil
}

// ListReputationLogs returns the newest grants received by a user.
func (s *Store) ListReputationLogs(ctx context.Context, toUserID string, limit int) ([]storage.ReputationLog, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, guild_id, from_user_id, to_user_id, amount, message, created_at
FROM reputation_logs
WHERE to_user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, strings.TrimSpace(toUserID), limit)
	if err != nil {
		return nil, fmt.Errorf("list reputation logs: %w", err)
	}
	defer rows.Close()

	var entries []storage.ReputationLog
	for rows.Next() {
		var (
			entry     storage.ReputationLog
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.GuildID, &entry.FromUserID, &entry.ToUserID, &entry.Amount, &entry.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reputation log: %w", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reputation logs: %w", err)
	}
	return entries, nil
}
