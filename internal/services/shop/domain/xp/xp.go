// Package xp computes levels and applies experience grants.
package xp

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// Level returns the level reached with xp: floor(sqrt(xp/100)) + 1.
func Level(xp int64) int {
	if xp < 100 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}

// XPForLevel returns the minimum experience for level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	step := int64(level - 1)
	return step * step * 100
}

// Progress returns how far xp is through the current level, in percent.
func Progress(xp int64) float64 {
	level := Level(xp)
	floor := XPForLevel(level)
	next := XPForLevel(level + 1)
	if next <= floor {
		return 0
	}
	return float64(xp-floor) / float64(next-floor) * 100
}

// Store is the persistence xp grants need.
type Store interface {
	AddXP(ctx context.Context, userID string, delta int64) (storage.Account, error)
	SetLevel(ctx context.Context, userID string, level int, atXP int64) (bool, error)
	GetEconomyConfig(ctx context.Context) (storage.EconomyConfig, error)
	ListTopAccounts(ctx context.Context, limit int) ([]storage.Account, error)
}

// Grant describes the effect of one AddXP call.
type Grant struct {
	Added     int64
	XP        int64
	Level     int
	LeveledUp bool
}

// Service applies experience grants.
type Service struct {
	store Store
	logf  func(string, ...any)
}

// NewService creates an xp service.
func NewService(store Store, logf func(string, ...any)) *Service {
	if logf == nil {
		logf = log.Printf
	}
	return &Service{store: store, logf: logf}
}

// AddXP applies the global multiplier to amount, persists it and
// recomputes the level.
func (s *Service) AddXP(ctx context.Context, userID string, amount int64, source string) (Grant, error) {
	if s == nil || s.store == nil {
		return Grant{}, fmt.Errorf("xp store is not configured")
	}
	cfg, err := s.store.GetEconomyConfig(ctx)
	if err != nil {
		return Grant{}, fmt.Errorf("get economy config: %w", err)
	}
	multiplier := cfg.XPMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	effective := int64(float64(amount) * multiplier)

	account, err := s.store.AddXP(ctx, userID, effective)
	if err != nil {
		return Grant{}, fmt.Errorf("add xp: %w", err)
	}
	grant := Grant{Added: effective, XP: account.XP, Level: Level(account.XP)}
	if grant.Level != account.Level {
		// A concurrent grant that moved xp past account.XP owns the level.
		applied, err := s.store.SetLevel(ctx, userID, grant.Level, account.XP)
		if err != nil {
			return Grant{}, fmt.Errorf("set level: %w", err)
		}
		grant.LeveledUp = applied && grant.Level > account.Level
	}
	if grant.LeveledUp {
		s.logf("[xp] user %s reached level %d (%s)", userID, grant.Level, source)
	}
	return grant, nil
}

// Leaderboard returns the top accounts by level then xp.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]storage.Account, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("xp store is not configured")
	}
	accounts, err := s.store.ListTopAccounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list top accounts: %w", err)
	}
	return accounts, nil
}
