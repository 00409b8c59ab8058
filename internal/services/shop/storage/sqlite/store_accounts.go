package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

const accountColumns = `user_id, username, tokens, credits, xp, level, reputation, rep_given_counter, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (storage.Account, error) {
	var (
		account   storage.Account
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&account.UserID,
		&account.Username,
		&account.Tokens,
		&account.Credits,
		&account.XP,
		&account.Level,
		&account.Reputation,
		&account.RepGivenCounter,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Account{}, err
	}
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return account, nil
}

func (s *Store) ensureAccount(ctx context.Context, userID string, username string) error {
	now := toMillis(s.nowUTC())
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (user_id, username, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO NOTHING`, userID, username, now, now); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

func requireUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	return userID, nil
}

// EnsureAccount creates the account when missing and refreshes the stored
// username when one is supplied.
func (s *Store) EnsureAccount(ctx context.Context, userID string, username string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	userID, err := requireUserID(userID)
	if err != nil {
		return storage.Account{}, err
	}
	username = strings.TrimSpace(username)
	if err := s.ensureAccount(ctx, userID, username); err != nil {
		return storage.Account{}, err
	}
	if username != "" {
		if _, err := s.sqlDB.ExecContext(ctx,
			`UPDATE accounts SET username = ?, updated_at = ? WHERE user_id = ? AND username <> ?`,
			username, toMillis(s.nowUTC()), userID, username,
		); err != nil {
			return storage.Account{}, fmt.Errorf("update username: %w", err)
		}
	}
	return s.GetAccount(ctx, userID)
}

// GetAccount returns one account.
func (s *Store) GetAccount(ctx context.Context, userID string) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	account, err := scanAccount(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, strings.TrimSpace(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// AdjustTokens applies delta to the token balance in one conditional
// statement; a debit that would go negative returns ErrInsufficientBalance
// and leaves the balance untouched.
func (s *Store) AdjustTokens(ctx context.Context, userID string, delta int64) (storage.Account, error) {
	return s.adjustBalance(ctx, userID, `UPDATE accounts SET tokens = tokens + ?1, updated_at = ?2 WHERE user_id = ?3 AND tokens + ?1 >= 0 RETURNING `+accountColumns, delta)
}

// AdjustCredits applies delta to the credit balance with the same
// non-negative guarantee as AdjustTokens.
func (s *Store) AdjustCredits(ctx context.Context, userID string, delta float64) (storage.Account, error) {
	return s.adjustBalance(ctx, userID, `UPDATE accounts SET credits = credits + ?1, updated_at = ?2 WHERE user_id = ?3 AND credits + ?1 >= 0 RETURNING `+accountColumns, delta)
}

func (s *Store) adjustBalance(ctx context.Context, userID string, query string, delta any) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	userID, err := requireUserID(userID)
	if err != nil {
		return storage.Account{}, err
	}
	if err := s.ensureAccount(ctx, userID, ""); err != nil {
		return storage.Account{}, err
	}
	account, err := scanAccount(s.sqlDB.QueryRowContext(ctx, query, delta, toMillis(s.nowUTC()), userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrInsufficientBalance
		}
		return storage.Account{}, fmt.Errorf("adjust balance: %w", err)
	}
	return account, nil
}

// AddXP adds delta experience and returns the updated account. The stored
// level is left to SetLevel.
func (s *Store) AddXP(ctx context.Context, userID string, delta int64) (storage.Account, error) {
	return s.applyDelta(ctx, userID, `UPDATE accounts SET xp = MAX(xp + ?1, 0), updated_at = ?2 WHERE user_id = ?3 RETURNING `+accountColumns, delta)
}

// AddReputation adds delta to the reputation score and returns the updated account.
func (s *Store) AddReputation(ctx context.Context, userID string, delta int64) (storage.Account, error) {
	return s.applyDelta(ctx, userID, `UPDATE accounts SET reputation = reputation + ?1, updated_at = ?2 WHERE user_id = ?3 RETURNING `+accountColumns, delta)
}

func (s *Store) applyDelta(ctx context.Context, userID string, query string, delta int64) (storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Account{}, err
	}
	userID, err := requireUserID(userID)
	if err != nil {
		return storage.Account{}, err
	}
	if err := s.ensureAccount(ctx, userID, ""); err != nil {
		return storage.Account{}, err
	}
	account, err := scanAccount(s.sqlDB.QueryRowContext(ctx, query, delta, toMillis(s.nowUTC()), userID))
	if err != nil {
		return storage.Account{}, fmt.Errorf("apply account delta: %w", err)
	}
	return account, nil
}

// SetLevel stores a level computed from atXP. The write only applies while
// the stored xp still equals atXP and reports whether it did.
func (s *Store) SetLevel(ctx context.Context, userID string, level int, atXP int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET level = ?, updated_at = ? WHERE user_id = ? AND xp = ?`,
		level, toMillis(s.nowUTC()), strings.TrimSpace(userID), atXP,
	)
	if err != nil {
		return false, fmt.Errorf("set level: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set level rows affected: %w", err)
	}
	return affected > 0, nil
}

// IncrementRepGiven bumps the endorsement counter and returns its new value.
func (s *Store) IncrementRepGiven(ctx context.Context, userID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	userID, err := requireUserID(userID)
	if err != nil {
		return 0, err
	}
	if err := s.ensureAccount(ctx, userID, ""); err != nil {
		return 0, err
	}
	var counter int
	if err := s.sqlDB.QueryRowContext(ctx,
		`UPDATE accounts SET rep_given_counter = rep_given_counter + 1, updated_at = ? WHERE user_id = ? RETURNING rep_given_counter`,
		toMillis(s.nowUTC()), userID,
	).Scan(&counter); err != nil {
		return 0, fmt.Errorf("increment rep given: %w", err)
	}
	return counter, nil
}

// ResetRepGiven zeroes the endorsement counter.
func (s *Store) ResetRepGiven(ctx context.Context, userID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET rep_given_counter = 0, updated_at = ? WHERE user_id = ?`,
		toMillis(s.nowUTC()), strings.TrimSpace(userID),
	); err != nil {
		return fmt.Errorf("reset rep given: %w", err)
	}
	return nil
}

// ListTopAccounts orders accounts by level then experience.
func (s *Store) ListTopAccounts(ctx context.Context, limit int) ([]storage.Account, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY level DESC, xp DESC, user_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []storage.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// ListHeldTierRoles returns the tier roles the bot believes the user holds in a guild.
func (s *Store) ListHeldTierRoles(ctx context.Context, userID string, guildID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT role_id FROM held_tier_roles WHERE user_id = ? AND guild_id = ? ORDER BY role_id`,
		strings.TrimSpace(userID), strings.TrimSpace(guildID))
	if err != nil {
		return nil, fmt.Errorf("list held tier roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("scan held tier role: %w", err)
		}
		roles = append(roles, roleID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate held tier roles: %w", err)
	}
	return roles, nil
}

// AddHeldTierRole marks a tier role as held; repeated calls are no-ops.
func (s *Store) AddHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO held_tier_roles (user_id, guild_id, role_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		strings.TrimSpace(userID), strings.TrimSpace(guildID), strings.TrimSpace(roleID),
	); err != nil {
		return fmt.Errorf("add held tier role: %w", err)
	}
	return nil
}

// RemoveHeldTierRole clears a held tier role marker.
func (s *Store) RemoveHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM held_tier_roles WHERE user_id = ? AND guild_id = ? AND role_id = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(guildID), strings.TrimSpace(roleID),
	); err != nil {
		return fmt.Errorf("remove held tier role: %w", err)
	}
	return nil
}
