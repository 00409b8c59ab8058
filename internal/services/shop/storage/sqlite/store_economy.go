package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// AppendTransaction records one ledger entry.
func (s *Store) AppendTransaction(ctx context.Context, txn storage.Transaction) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(txn.ID)
	userID := strings.TrimSpace(txn.UserID)
	if id == "" || userID == "" {
		return fmt.Errorf("transaction id and user id are required")
	}
	if strings.TrimSpace(txn.Type) == "" {
		return fmt.Errorf("transaction type is required")
	}
	createdAt := txn.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO transactions (
    id, user_id, type, amount_tokens, amount_credits,
    item_id, item_name, description, performed_by, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		userID,
		txn.Type,
		txn.AmountTokens,
		txn.AmountCredits,
		txn.ItemID,
		txn.ItemName,
		txn.Description,
		txn.PerformedBy,
		toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns a user's newest ledger entries.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]storage.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, type, amount_tokens, amount_credits, item_id, item_name, description, performed_by, created_at
FROM transactions
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListTransactionsPage returns one filtered page of the ledger ordered by
// creation time then id, newest first.
func (s *Store) ListTransactionsPage(ctx context.Context, req storage.TransactionPageRequest) (storage.TransactionPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.TransactionPage{}, err
	}
	if req.PageSize <= 0 {
		return storage.TransactionPage{}, fmt.Errorf("page size must be greater than zero")
	}

	whereClause := "1 = 1"
	var params []any
	if token := strings.TrimSpace(req.PageToken); token != "" {
		whereClause += " AND (created_at, id) < (SELECT created_at, id FROM transactions WHERE id = ?)"
		params = append(params, token)
	}
	if req.FilterClause != "" {
		whereClause += " AND " + req.FilterClause
		params = append(params, req.FilterParams...)
	}
	params = append(params, req.PageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, type, amount_tokens, amount_credits, item_id, item_name, description, performed_by, created_at
FROM transactions
WHERE `+whereClause+`
ORDER BY created_at DESC, id DESC
LIMIT ?`, params...)
	if err != nil {
		return storage.TransactionPage{}, fmt.Errorf("list transactions page: %w", err)
	}
	defer rows.Close()
	txns, err := scanTransactions(rows)
	if err != nil {
		return storage.TransactionPage{}, err
	}

	page := storage.TransactionPage{Transactions: txns}
	if len(txns) > req.PageSize {
		page.Transactions = txns[:req.PageSize]
		page.NextPageToken = txns[req.PageSize-1].ID
	}
	return page, nil
}

func scanTransactions(rows *sql.Rows) ([]storage.Transaction, error) {
	var txns []storage.Transaction
	for rows.Next() {
		var (
			txn       storage.Transaction
			createdAt int64
		)
		if err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.AmountTokens,
			&txn.AmountCredits,
			&txn.ItemID,
			&txn.ItemName,
			&txn.Description,
			&txn.PerformedBy,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.CreatedAt = fromMillis(createdAt)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// GetEconomyConfig returns the saved config or the defaults.
func (s *Store) GetEconomyConfig(ctx context.Context) (storage.EconomyConfig, error) {
	if err := s.ready(ctx); err != nil {
		return storage.EconomyConfig{}, err
	}
	var (
		cfg       storage.EconomyConfig
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT tax_rate, xp_multiplier, currency_name, updated_at FROM economy_config WHERE id = 1`,
	).Scan(&cfg.TaxRate, &cfg.XPMultiplier, &cfg.CurrencyName, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DefaultEconomyConfig(), nil
	}
	if err != nil {
		return storage.EconomyConfig{}, fmt.Errorf("get economy config: %w", err)
	}
	cfg.UpdatedAt = fromMillis(updatedAt)
	return cfg, nil
}

// PutEconomyConfig replaces the economy config.
func (s *Store) PutEconomyConfig(ctx context.Context, cfg storage.EconomyConfig) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	updatedAt := cfg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO economy_config (id, tax_rate, xp_multiplier, currency_name, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    tax_rate = excluded.tax_rate,
    xp_multiplier = excluded.xp_multiplier,
    currency_name = excluded.currency_name,
    updated_at = excluded.updated_at`,
		cfg.TaxRate, cfg.XPMultiplier, cfg.CurrencyName, toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("put economy config: %w", err)
	}
	return nil
}
