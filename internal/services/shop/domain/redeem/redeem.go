// Package redeem spends tokens on credits and cosmetic perks.
package redeem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
)

// Defaults for the redeem catalog.
const (
	DefaultExchangeRate = 1000
	DefaultNicknameCost = 5
	maxNicknameLength   = 32
)

type wallet interface {
	ModifyTokens(ctx context.Context, userID string, amount int64, reason string, actorID string) (int64, error)
	ModifyCredits(ctx context.Context, userID string, amount float64, reason string, actorID string) (float64, error)
}

type nicknameSetter interface {
	SetNickname(ctx context.Context, guildID string, userID string, nickname string) error
}

// Config prices the redeemable perks.
type Config struct {
	// ExchangeRate is the credits paid per token.
	ExchangeRate float64
	NicknameCost int64
}

// Service performs redemptions. Every redemption debits first and refunds
// when the follow-up step fails.
type Service struct {
	wallet  wallet
	members nicknameSetter
	cfg     Config
	logf    func(string, ...any)
}

// NewService creates a redeem service; zero config values fall back to the
// defaults.
func NewService(w wallet, members nicknameSetter, cfg Config, logf func(string, ...any)) *Service {
	if cfg.ExchangeRate <= 0 {
		cfg.ExchangeRate = DefaultExchangeRate
	}
	if cfg.NicknameCost <= 0 {
		cfg.NicknameCost = DefaultNicknameCost
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Service{wallet: w, members: members, cfg: cfg, logf: logf}
}

// ExchangeTokensForCredits converts tokens into credits at the configured
// rate and returns the credits paid out.
func (s *Service) ExchangeTokensForCredits(ctx context.Context, userID string, tokens int64) (float64, error) {
	if s == nil || s.wallet == nil {
		return 0, fmt.Errorf("redeem wallet is not configured")
	}
	if tokens <= 0 {
		return 0, apperrors.New(apperrors.CodeInvalidAmount, "amount must be positive")
	}
	if _, err := s.wallet.ModifyTokens(ctx, userID, -tokens, "Exchange for Credits", userID); err != nil {
		return 0, err
	}
	credits := float64(tokens) * s.cfg.ExchangeRate
	if _, err := s.wallet.ModifyCredits(ctx, userID, credits, fmt.Sprintf("Exchanged %d Tokens", tokens), userID); err != nil {
		s.refund(ctx, userID, tokens, "Refund: Failed Credit Exchange")
		return 0, err
	}
	s.logf("[redeem] user %s exchanged %d tokens for %.0f credits", userID, tokens, credits)
	return credits, nil
}

// RedeemNickname charges the nickname cost and renames the member. The cost
// is refunded when the rename fails; a missing bot permission surfaces as
// PERMISSION_DENIED.
func (s *Service) RedeemNickname(ctx context.Context, guildID string, userID string, nickname string) error {
	if s == nil || s.wallet == nil || s.members == nil {
		return fmt.Errorf("redeem service is not configured")
	}
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n == 0 || n > maxNicknameLength {
		return apperrors.WithMetadata(apperrors.CodeInvalidNickname,
			fmt.Sprintf("nickname must be 1-%d characters", maxNicknameLength),
			map[string]string{"user_id": userID})
	}
	if _, err := s.wallet.ModifyTokens(ctx, userID, -s.cfg.NicknameCost, "Nickname Change: "+nickname, userID); err != nil {
		return err
	}
	if err := s.members.SetNickname(ctx, guildID, userID, nickname); err != nil {
		s.refund(ctx, userID, s.cfg.NicknameCost, "Refund: Failed Nickname Change")
		if apperrors.IsPermissionDenied(err) {
			return apperrors.Wrap(apperrors.CodePermissionDenied, "bot can not change this nickname", err)
		}
		return fmt.Errorf("set nickname: %w", err)
	}
	s.logf("[redeem] user %s changed nickname to %q", userID, nickname)
	return nil
}

// NicknameCost reports the configured nickname price.
func (s *Service) NicknameCost() int64 {
	return s.cfg.NicknameCost
}

func (s *Service) refund(ctx context.Context, userID string, tokens int64, reason string) {
	if _, err := s.wallet.ModifyTokens(ctx, userID, tokens, reason, userID); err != nil {
		s.logf("[redeem] refund %d tokens to %s: %v", tokens, userID, err)
	}
}
