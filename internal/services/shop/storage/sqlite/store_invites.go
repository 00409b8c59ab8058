package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// UpsertInvites writes the latest use count and inviter for every invite in
// one transaction.
func (s *Store) UpsertInvites(ctx context.Context, guildID string, invites []storage.InviteRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}
	if len(invites) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invite upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO guild_invites (guild_id, code, inviter_id, uses, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(guild_id, code) DO UPDATE SET
    inviter_id = excluded.inviter_id,
    uses = excluded.uses,
    updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare invite upsert: %w", err)
	}
	defer stmt.Close()

	updatedAt := toMillis(s.nowUTC())
	for _, invite := range invites {
		code := strings.TrimSpace(invite.Code)
		if code == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, guildID, code, strings.TrimSpace(invite.InviterID), invite.Uses, updatedAt); err != nil {
			return fmt.Errorf("upsert invite %s: %w", code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invite upsert: %w", err)
	}
	return nil
}

// ListInvites returns the persisted invite history for one guild ordered by code.
func (s *Store) ListInvites(ctx context.Context, guildID string) ([]storage.InviteRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT guild_id, code, inviter_id, uses, updated_at
FROM guild_invites
WHERE guild_id = ?
ORDER BY code`, strings.TrimSpace(guildID))
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var records []storage.InviteRecord
	for rows.Next() {
		var (
			record    storage.InviteRecord
			updatedAt int64
		)
		if err := rows.Scan(&record.GuildID, &record.Code, &record.InviterID, &record.Uses, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return records, nil
}

// DeleteInvite removes one persisted invite; missing rows are not an error.
func (s *Store) DeleteInvite(ctx context.Context, guildID string, code string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM guild_invites WHERE guild_id = ? AND code = ?`,
		strings.TrimSpace(guildID), strings.TrimSpace(code),
	); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// InsertJoinAttribution records the first join of a user into a guild. The
// conflict clause makes concurrent duplicate joins resolve to exactly one
// inserted row.
func (s *Store) InsertJoinAttribution(ctx context.Context, attribution storage.JoinAttribution) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	guildID := strings.TrimSpace(attribution.GuildID)
	userID := strings.TrimSpace(attribution.UserID)
	if guildID == "" || userID == "" {
		return false, fmt.Errorf("guild id and user id are required")
	}
	joinedAt := attribution.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = s.nowUTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO join_attributions (guild_id, user_id, inviter_id, joined_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(guild_id, user_id) DO NOTHING`,
		guildID, userID, nullString(attribution.InviterID), toMillis(joinedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert join attribution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("join attribution rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetJoinAttribution returns the attribution for (guild, user).
func (s *Store) GetJoinAttribution(ctx context.Context, guildID string, userID string) (storage.JoinAttribution, error) {
	if err := s.ready(ctx); err != nil {
		return storage.JoinAttribution{}, err
	}
	var (
		attribution storage.JoinAttribution
		inviterID   sql.NullString
		joinedAt    int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT guild_id, user_id, inviter_id, joined_at
FROM join_attributions
WHERE guild_id = ? AND user_id = ?`,
		strings.TrimSpace(guildID), strings.TrimSpace(userID),
	).Scan(&attribution.GuildID, &attribution.UserID, &inviterID, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.JoinAttribution{}, storage.ErrNotFound
		}
		return storage.JoinAttribution{}, fmt.Errorf("get join attribution: %w", err)
	}
	attribution.InviterID = inviterID.String
	attribution.JoinedAt = fromMillis(joinedAt)
	return attribution, nil
}

// CountJoinsByInviter counts attributed first joins credited to one inviter.
func (s *Store) CountJoinsByInviter(ctx context.Context, guildID string, inviterID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM join_attributions WHERE guild_id = ? AND inviter_id = ?`,
		strings.TrimSpace(guildID), strings.TrimSpace(inviterID),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count joins by inviter: %w", err)
	}
	return count, nil
}
