package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// GetGuildSettings returns the settings of one guild or ErrNotFound.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, error) {
	if err := s.ready(ctx); err != nil {
		return storage.GuildSettings{}, err
	}
	var (
		settings  storage.GuildSettings
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT guild_id, seller_role_id, invite_log_channel_id, reputation_log_channel_id,
       reputation_channel_id, audit_log_channel_id, ticket_log_channel_id,
       ticket_manager_role_id, updated_at
FROM guild_settings
WHERE guild_id = ?`, strings.TrimSpace(guildID)).Scan(
		&settings.GuildID,
		&settings.SellerRoleID,
		&settings.InviteLogChannelID,
		&settings.ReputationLogChannelID,
		&settings.ReputationChannelID,
		&settings.AuditLogChannelID,
		&settings.TicketLogChannelID,
		&settings.TicketManagerRoleID,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GuildSettings{}, storage.ErrNotFound
		}
		return storage.GuildSettings{}, fmt.Errorf("get guild settings: %w", err)
	}
	settings.UpdatedAt = fromMillis(updatedAt)
	return settings, nil
}

// PutGuildSettings replaces the settings of one guild.
func (s *Store) PutGuildSettings(ctx context.Context, settings storage.GuildSettings) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	guildID := strings.TrimSpace(settings.GuildID)
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}
	updatedAt := settings.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO guild_settings (
    guild_id, seller_role_id, invite_log_channel_id, reputation_log_channel_id,
    reputation_channel_id, audit_log_channel_id, ticket_log_channel_id,
    ticket_manager_role_id, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(guild_id) DO UPDATE SET
    seller_role_id = excluded.seller_role_id,
    invite_log_channel_id = excluded.invite_log_channel_id,
    reputation_log_channel_id = excluded.reputation_log_channel_id,
    reputation_channel_id = excluded.reputation_channel_id,
    audit_log_channel_id = excluded.audit_log_channel_id,
    ticket_log_channel_id = excluded.ticket_log_channel_id,
    ticket_manager_role_id = excluded.ticket_manager_role_id,
    updated_at = excluded.updated_at`,
		guildID,
		strings.TrimSpace(settings.SellerRoleID),
		strings.TrimSpace(settings.InviteLogChannelID),
		strings.TrimSpace(settings.ReputationLogChannelID),
		strings.TrimSpace(settings.ReputationChannelID),
		strings.TrimSpace(settings.AuditLogChannelID),
		strings.TrimSpace(settings.TicketLogChannelID),
		strings.TrimSpace(settings.TicketManagerRoleID),
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("put guild settings: %w", err)
	}
	return nil
}
