package admin

import (
	"context"

	"github.com/opshop/guildshop/internal/platform/grpc/pagination"
	"github.com/opshop/guildshop/internal/services/shop/core/filter"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	transactionPageSize = pagination.PageSizeConfig{Default: 20, Max: 100}
	leaderboardSize     = pagination.PageSizeConfig{Default: 10, Max: 50}
)

type GetAccountRequest struct {
	UserID string `json:"user_id"`
}

// GetAccount returns a member's account, creating it on first access.
func (s *Server) GetAccount(ctx context.Context, req GetAccountRequest) (AccountResponse, error) {
	if _, err := s.requireSelfOrOwner(ctx, req.UserID); err != nil {
		return AccountResponse{}, err
	}
	if err := required("user_id", req.UserID); err != nil {
		return AccountResponse{}, err
	}
	account, err := s.deps.Economy.Account(ctx, req.UserID, "")
	if err != nil {
		return AccountResponse{}, err
	}
	return AccountResponse{Account: accountToWire(account)}, nil
}

type ModifyTokensRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type ModifyTokensResponse struct {
	Tokens int64 `json:"tokens"`
}

// ModifyTokens adds or removes tokens. Owner only.
func (s *Server) ModifyTokens(ctx context.Context, req ModifyTokensRequest) (ModifyTokensResponse, error) {
	c, err := s.requireOwner(ctx)
	if err != nil {
		return ModifyTokensResponse{}, err
	}
	if err := required("user_id", req.UserID); err != nil {
		return ModifyTokensResponse{}, err
	}
	tokens, err := s.deps.Economy.ModifyTokens(ctx, req.UserID, req.Amount, lo.CoalesceOrEmpty(req.Reason, "Admin adjustment"), c.UserID)
	if err != nil {
		return ModifyTokensResponse{}, err
	}
	return ModifyTokensResponse{Tokens: tokens}, nil
}

type ModifyCreditsRequest struct {
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

type ModifyCreditsResponse struct {
	Credits float64 `json:"credits"`
}

// ModifyCredits adds or removes credits. Owner only.
func (s *Server) ModifyCredits(ctx context.Context, req ModifyCreditsRequest) (ModifyCreditsResponse, error) {
	c, err := s.requireOwner(ctx)
	if err != nil {
		return ModifyCreditsResponse{}, err
	}
	if err := required("user_id", req.UserID); err != nil {
		return ModifyCreditsResponse{}, err
	}
	credits, err := s.deps.Economy.ModifyCredits(ctx, req.UserID, req.Amount, lo.CoalesceOrEmpty(req.Reason, "Admin adjustment"), c.UserID)
	if err != nil {
		return ModifyCreditsResponse{}, err
	}
	return ModifyCreditsResponse{Credits: credits}, nil
}

type AddXPRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

type AddXPResponse struct {
	Added     int64 `json:"added"`
	XP        int64 `json:"xp"`
	Level     int   `json:"level"`
	LeveledUp bool  `json:"leveled_up"`
}

// AddXP grants experience. Owner only.
func (s *Server) AddXP(ctx context.Context, req AddXPRequest) (AddXPResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return AddXPResponse{}, err
	}
	if err := required("user_id", req.UserID); err != nil {
		return AddXPResponse{}, err
	}
	grant, err := s.deps.XP.AddXP(ctx, req.UserID, req.Amount, "admin")
	if err != nil {
		return AddXPResponse{}, err
	}
	return AddXPResponse{Added: grant.Added, XP: grant.XP, Level: grant.Level, LeveledUp: grant.LeveledUp}, nil
}

type TransferRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
}

type TransferResponse struct {
	Sent     int64   `json:"sent"`
	Tax      float64 `json:"tax"`
	Received int64   `json:"received"`
}

// Transfer sends tokens from the caller's account, or any account for the
// owner.
func (s *Server) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	if _, err := s.requireSelfOrOwner(ctx, req.FromUserID); err != nil {
		return TransferResponse{}, err
	}
	if err := required("from_user_id", req.FromUserID); err != nil {
		return TransferResponse{}, err
	}
	if err := required("to_user_id", req.ToUserID); err != nil {
		return TransferResponse{}, err
	}
	result, err := s.deps.Economy.Transfer(ctx, req.FromUserID, req.ToUserID, req.Amount)
	if err != nil {
		return TransferResponse{}, err
	}
	return TransferResponse{Sent: result.Sent, Tax: result.Tax, Received: result.Received}, nil
}

// ListTransactionsRequest pages through the ledger, newest first. Filter is
// an AIP-160 expression over user_id, type, item_id, performed_by,
// amount_tokens, amount_credits and created_at.
type ListTransactionsRequest struct {
	PageSize  int32  `json:"page_size"`
	PageToken string `json:"page_token"`
	Filter    string `json:"filter"`
}

type ListTransactionsResponse struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// ListTransactions returns one page of the ledger. Owner only.
func (s *Server) ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return ListTransactionsResponse{}, err
	}
	cond, err := filter.ParseTransactionFilter(req.Filter)
	if err != nil {
		return ListTransactionsResponse{}, status.Errorf(codes.InvalidArgument, "invalid filter: %v", err)
	}
	page, err := s.deps.Transactions.ListTransactionsPage(ctx, storage.TransactionPageRequest{
		PageSize:     pagination.ClampPageSize(req.PageSize, transactionPageSize),
		PageToken:    req.PageToken,
		FilterClause: cond.Clause,
		FilterParams: cond.Params,
	})
	if err != nil {
		return ListTransactionsResponse{}, err
	}
	return ListTransactionsResponse{
		Transactions: lo.Map(page.Transactions, func(txn storage.Transaction, _ int) Transaction {
			return transactionToWire(txn)
		}),
		NextPageToken: page.NextPageToken,
	}, nil
}

type EconomyConfigRequest struct{}

type EconomyConfigResponse struct {
	Config EconomyConfig `json:"config"`
}

// GetEconomyConfig returns the economy tuning.
func (s *Server) GetEconomyConfig(ctx context.Context, _ EconomyConfigRequest) (EconomyConfigResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return EconomyConfigResponse{}, err
	}
	cfg, err := s.deps.Economy.Config(ctx)
	if err != nil {
		return EconomyConfigResponse{}, err
	}
	return EconomyConfigResponse{Config: EconomyConfig{TaxRate: cfg.TaxRate, XPMultiplier: cfg.XPMultiplier, CurrencyName: cfg.CurrencyName}}, nil
}

type UpdateEconomyConfigRequest struct {
	TaxRate      *float64 `json:"tax_rate"`
	XPMultiplier *float64 `json:"xp_multiplier"`
	CurrencyName *string  `json:"currency_name"`
}

// UpdateEconomyConfig changes the economy tuning. Owner only.
func (s *Server) UpdateEconomyConfig(ctx context.Context, req UpdateEconomyConfigRequest) (EconomyConfigResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return EconomyConfigResponse{}, err
	}
	cfg, err := s.deps.Economy.UpdateConfig(ctx, func(cfg *storage.EconomyConfig) {
		cfg.TaxRate = lo.FromPtrOr(req.TaxRate, cfg.TaxRate)
		cfg.XPMultiplier = lo.FromPtrOr(req.XPMultiplier, cfg.XPMultiplier)
		cfg.CurrencyName = lo.FromPtrOr(req.CurrencyName, cfg.CurrencyName)
	})
	if err != nil {
		return EconomyConfigResponse{}, err
	}
	return EconomyConfigResponse{Config: EconomyConfig{TaxRate: cfg.TaxRate, XPMultiplier: cfg.XPMultiplier, CurrencyName: cfg.CurrencyName}}, nil
}

type LeaderboardRequest struct {
	Limit int32 `json:"limit"`
}

type LeaderboardResponse struct {
	Accounts []Account `json:"accounts"`
}

// Leaderboard returns the top accounts by level then xp.
func (s *Server) Leaderboard(ctx context.Context, req LeaderboardRequest) (LeaderboardResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return LeaderboardResponse{}, err
	}
	accounts, err := s.deps.XP.Leaderboard(ctx, pagination.ClampPageSize(req.Limit, leaderboardSize))
	if err != nil {
		return LeaderboardResponse{}, err
	}
	return LeaderboardResponse{Accounts: lo.Map(accounts, func(a storage.Account, _ int) Account {
		return accountToWire(a)
	})}, nil
}

type ExchangeTokensRequest struct {
	UserID string `json:"user_id"`
	Tokens int64  `json:"tokens"`
}

type ExchangeTokensResponse struct {
	Credits float64 `json:"credits"`
}

// ExchangeTokens converts the member's tokens into credits.
func (s *Server) ExchangeTokens(ctx context.Context, req ExchangeTokensRequest) (ExchangeTokensResponse, error) {
	if _, err := s.requireSelfOrOwner(ctx, req.UserID); err != nil {
		return ExchangeTokensResponse{}, err
	}
	if err := required("user_id", req.UserID); err != nil {
		return ExchangeTokensResponse{}, err
	}
	credits, err := s.deps.Redeem.ExchangeTokensForCredits(ctx, req.UserID, req.Tokens)
	if err != nil {
		return ExchangeTokensResponse{}, err
	}
	return ExchangeTokensResponse{Credits: credits}, nil
}

type RedeemNicknameRequest struct {
	GuildID  string `json:"guild_id"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

type RedeemNicknameResponse struct {
	Cost int64 `json:"cost"`
}

// RedeemNickname buys a nickname change for the member.
func (s *Server) RedeemNickname(ctx context.Context, req RedeemNicknameRequest) (RedeemNicknameResponse, error) {
	if _, err := s.requireSelfOrOwner(ctx, req.UserID); err != nil {
		return RedeemNicknameResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return RedeemNicknameResponse{}, err
	}
	if err := s.deps.Redeem.RedeemNickname(ctx, req.GuildID, req.UserID, req.Nickname); err != nil {
		return RedeemNicknameResponse{}, err
	}
	return RedeemNicknameResponse{Cost: s.deps.Redeem.NicknameCost()}, nil
}
