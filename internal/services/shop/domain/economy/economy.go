// Package economy owns token and credit balances, transfers and the
// transaction ledger.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/platform/id"
	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// Store is the persistence the economy needs.
type Store interface {
	EnsureAccount(ctx context.Context, userID string, username string) (storage.Account, error)
	AdjustTokens(ctx context.Context, userID string, delta int64) (storage.Account, error)
	AdjustCredits(ctx context.Context, userID string, delta float64) (storage.Account, error)
	AppendTransaction(ctx context.Context, txn storage.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]storage.Transaction, error)
	GetEconomyConfig(ctx context.Context) (storage.EconomyConfig, error)
	PutEconomyConfig(ctx context.Context, cfg storage.EconomyConfig) error
}

// Service applies balance changes and records them in the ledger.
type Service struct {
	store Store
	newID func() (string, error)
	clock func() time.Time
	logf  func(string, ...any)
}

// NewService creates an economy service.
func NewService(store Store, clock func() time.Time, logf func(string, ...any)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Service{store: store, newID: id.NewID, clock: clock, logf: logf}
}

// Account returns the user's account, creating it on first access.
func (s *Service) Account(ctx context.Context, userID string, username string) (storage.Account, error) {
	if s == nil || s.store == nil {
		return storage.Account{}, fmt.Errorf("economy store is not configured")
	}
	account, err := s.store.EnsureAccount(ctx, userID, username)
	if err != nil {
		return storage.Account{}, fmt.Errorf("ensure account: %w", err)
	}
	return account, nil
}

// Balances returns the user's token and credit balances.
func (s *Service) Balances(ctx context.Context, userID string) (int64, float64, error) {
	account, err := s.Account(ctx, userID, "")
	if err != nil {
		return 0, 0, err
	}
	return account.Tokens, account.Credits, nil
}

// ModifyTokens adds amount (negative to debit) and records the change.
// Debits beyond the balance fail with INSUFFICIENT_FUNDS and change nothing.
func (s *Service) ModifyTokens(ctx context.Context, userID string, amount int64, reason string, actorID string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("economy store is not configured")
	}
	if amount == 0 {
		return 0, apperrors.New(apperrors.CodeInvalidAmount, "token amount must not be zero")
	}
	account, err := s.store.AdjustTokens(ctx, userID, amount)
	if errors.Is(err, storage.ErrInsufficientBalance) {
		return 0, apperrors.WithMetadata(apperrors.CodeInsufficientFunds, "insufficient tokens", map[string]string{"user_id": userID})
	}
	if err != nil {
		return 0, fmt.Errorf("adjust tokens: %w", err)
	}
	txnType := storage.TransactionReward
	if amount < 0 {
		txnType = storage.TransactionRedeem
	}
	s.record(ctx, storage.Transaction{
		UserID:       userID,
		Type:         txnType,
		AmountTokens: amount,
		Description:  reason,
		PerformedBy:  actorID,
	})
	return account.Tokens, nil
}

// ModifyCredits adds amount (negative to debit) to the credit balance.
func (s *Service) ModifyCredits(ctx context.Context, userID string, amount float64, reason string, actorID string) (float64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("economy store is not configured")
	}
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, apperrors.New(apperrors.CodeInvalidAmount, "credit amount must be a non-zero number")
	}
	account, err := s.store.AdjustCredits(ctx, userID, amount)
	if errors.Is(err, storage.ErrInsufficientBalance) {
		return 0, apperrors.WithMetadata(apperrors.CodeInsufficientFunds, "insufficient credits", map[string]string{"user_id": userID})
	}
	if err != nil {
		return 0, fmt.Errorf("adjust credits: %w", err)
	}
	txnType := storage.TransactionAdminAdjustment
	if amount < 0 {
		txnType = storage.TransactionRedeem
	}
	s.record(ctx, storage.Transaction{
		UserID:        userID,
		Type:          txnType,
		AmountCredits: amount,
		Description:   reason,
		PerformedBy:   actorID,
	})
	return account.Credits, nil
}

// TransferResult describes a completed transfer.
type TransferResult struct {
	Sent     int64
	Tax      float64
	Received int64
}

// Transfer moves tokens between users, withholding the configured tax. The
// receiver gets amount minus tax, truncated to whole tokens.
func (s *Service) Transfer(ctx context.Context, fromID string, toID string, amount int64) (TransferResult, error) {
	if s == nil || s.store == nil {
		return TransferResult{}, fmt.Errorf("economy store is not configured")
	}
	if amount <= 0 {
		return TransferResult{}, apperrors.New(apperrors.CodeInvalidAmount, "transfer amount must be positive")
	}
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	if fromID == toID {
		return TransferResult{}, apperrors.New(apperrors.CodeSelfTransfer, "cannot transfer to yourself")
	}
	cfg, err := s.Config(ctx)
	if err != nil {
		return TransferResult{}, err
	}
	tax := 0.0
	if cfg.TaxRate > 0 {
		tax = float64(amount) * cfg.TaxRate
	}
	received := int64(float64(amount) - tax)

	if _, err := s.ModifyTokens(ctx, fromID, -amount, "Transfer to "+toID, fromID); err != nil {
		return TransferResult{}, err
	}
	result := TransferResult{Sent: amount, Tax: tax, Received: received}
	if received <= 0 {
		return result, nil
	}
	if _, err := s.ModifyTokens(ctx, toID, received, fmt.Sprintf("Transfer from %s (Tax: %g)", fromID, tax), fromID); err != nil {
		if _, refundErr := s.ModifyTokens(ctx, fromID, amount, "Refund failed transfer to "+toID, fromID); refundErr != nil {
			s.logf("[economy] refund transfer %s -> %s: %v", fromID, toID, refundErr)
		}
		return TransferResult{}, fmt.Errorf("credit transfer receiver: %w", err)
	}
	return result, nil
}

// Config returns the economy config.
func (s *Service) Config(ctx context.Context) (storage.EconomyConfig, error) {
	if s == nil || s.store == nil {
		return storage.EconomyConfig{}, fmt.Errorf("economy store is not configured")
	}
	cfg, err := s.store.GetEconomyConfig(ctx)
	if err != nil {
		return storage.EconomyConfig{}, fmt.Errorf("get economy config: %w", err)
	}
	return cfg, nil
}

// UpdateConfig applies mutate and saves the config. Tax rate must stay in
// [0, 1) and the XP multiplier must be positive.
func (s *Service) UpdateConfig(ctx context.Context, mutate func(*storage.EconomyConfig)) (storage.EconomyConfig, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return storage.EconomyConfig{}, err
	}
	mutate(&cfg)
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return storage.EconomyConfig{}, apperrors.New(apperrors.CodeInvalidAmount, "tax rate must be between 0 and 1")
	}
	if cfg.XPMultiplier <= 0 {
		return storage.EconomyConfig{}, apperrors.New(apperrors.CodeInvalidAmount, "xp multiplier must be positive")
	}
	cfg.CurrencyName = strings.TrimSpace(cfg.CurrencyName)
	if cfg.CurrencyName == "" {
		cfg.CurrencyName = storage.DefaultEconomyConfig().CurrencyName
	}
	cfg.UpdatedAt = s.clock().UTC()
	if err := s.store.PutEconomyConfig(ctx, cfg); err != nil {
		return storage.EconomyConfig{}, fmt.Errorf("put economy config: %w", err)
	}
	return cfg, nil
}

// Transactions returns a user's newest ledger entries.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]storage.Transaction, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("economy store is not configured")
	}
	txns, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// LogTransaction appends an entry produced by another workflow.
func (s *Service) LogTransaction(ctx context.Context, txn storage.Transaction) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("economy store is not configured")
	}
	if txn.ID == "" {
		txnID, err := s.newID()
		if err != nil {
			return fmt.Errorf("generate transaction id: %w", err)
		}
		txn.ID = txnID
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.clock().UTC()
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// record logs a ledger entry for a balance change that already committed.
func (s *Service) record(ctx context.Context, txn storage.Transaction) {
	if err := s.LogTransaction(ctx, txn); err != nil {
		s.logf("[economy] record %s transaction for %s: %v", txn.Type, txn.UserID, err)
	}
}
