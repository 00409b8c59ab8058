// Package reputation tracks reputation scores and keeps tier roles in sync
// with them.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/notify"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/opshop/guildshop/internal/services/shop/domain/reputation")

// Tier thresholds accepted by SetTier.
const (
	MinThreshold = 1
	MaxThreshold = 10000
)

// Store is the persistence the engine needs.
type Store interface {
	GetAccount(ctx context.Context, userID string) (storage.Account, error)
	AddReputation(ctx context.Context, userID string, delta int64) (storage.Account, error)
	PutTier(ctx context.Context, tier storage.ReputationTier) error
	DeleteTier(ctx context.Context, guildID string, roleID string) (bool, error)
	ListTiers(ctx context.Context, guildID string) ([]storage.ReputationTier, error)
	AppendReputationLog(ctx context.Context, entry storage.ReputationLog) error
	ListHeldTierRoles(ctx context.Context, userID string, guildID string) ([]string, error)
	AddHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error
	RemoveHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error
}

type memberRoles interface {
	GetMember(ctx context.Context, guildID string, userID string) (gateway.Member, error)
	AddRole(ctx context.Context, guildID string, userID string, roleID string) error
	RemoveRole(ctx context.Context, guildID string, userID string, roleID string) error
}

type settingsReader interface {
	Get(ctx context.Context, guildID string) (storage.GuildSettings, error)
}

// Award is one reputation change.
type Award struct {
	GuildID    string
	FromUserID string
	ToUserID   string
	Amount     int64
	Message    string
}

// Reconciliation summarizes one tier sweep.
type Reconciliation struct {
	Score   int64
	Granted []string
	Revoked []string
	Failed  []string
}

// Engine persists reputation changes and reconciles tier roles.
type Engine struct {
	store    Store
	members  memberRoles
	settings settingsReader
	notifier *notify.Notifier
	clock    func() time.Time
	logf     func(string, ...any)
}

// NewEngine creates a reputation engine. settings and notifier may be nil,
// which disables log-channel notifications.
func NewEngine(store Store, members memberRoles, settings settingsReader, notifier *notify.Notifier, clock func() time.Time, logf func(string, ...any)) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Engine{
		store:    store,
		members:  members,
		settings: settings,
		notifier: notifier,
		clock:    clock,
		logf:     logf,
	}
}

// AddReputation grants amount to userID and reconciles their tier roles.
func (e *Engine) AddReputation(ctx context.Context, userID string, guildID string, amount int64) error {
	_, err := e.Award(ctx, Award{GuildID: guildID, ToUserID: userID, Amount: amount})
	return err
}

// Award persists a reputation change and records it in the reputation log
// before reconciling the recipient's tier roles. Only a failed score change is
// returned; log and reconciliation problems are logged.
func (e *Engine) Award(ctx context.Context, award Award) (storage.Account, error) {
	if e == nil || e.store == nil {
		return storage.Account{}, fmt.Errorf("reputation store is not configured")
	}
	if strings.TrimSpace(award.ToUserID) == "" {
		return storage.Account{}, fmt.Errorf("recipient user id is required")
	}
	if award.Amount == 0 {
		return storage.Account{}, apperrors.New(apperrors.CodeInvalidAmount, "reputation amount must not be zero")
	}
	account, err := e.store.AddReputation(ctx, award.ToUserID, award.Amount)
	if err != nil {
		return storage.Account{}, fmt.Errorf("add reputation: %w", err)
	}
	if err := e.store.AppendReputationLog(ctx, storage.ReputationLog{
		GuildID:    award.GuildID,
		FromUserID: award.FromUserID,
		ToUserID:   award.ToUserID,
		Amount:     award.Amount,
		Message:    award.Message,
		CreatedAt:  e.clock().UTC(),
	}); err != nil {
		e.logf("[reputation] log award from %s to %s: %v", award.FromUserID, award.ToUserID, err)
	}
	if _, err := e.ReconcileRoles(ctx, award.ToUserID, award.GuildID); err != nil {
		e.logf("[reputation] reconcile roles for %s in guild %s: %v", award.ToUserID, award.GuildID, err)
	}
	return account, nil
}

// ReconcileRoles sweeps every tier of the guild in ascending threshold
// order, granting roles the score qualifies for and revoking the ones it
// no longer does. A member who left the guild ends the sweep silently.
// Grant and revoke failures are recorded per tier and do not stop the sweep.
func (e *Engine) ReconcileRoles(ctx context.Context, userID string, guildID string) (Reconciliation, error) {
	ctx, span := tracer.Start(ctx, "reputation.reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("guild.id", guildID), attribute.String("user.id", userID))

	if e == nil || e.store == nil || e.members == nil {
		return Reconciliation{}, fmt.Errorf("reputation engine is not configured")
	}

	var result Reconciliation
	account, err := e.store.GetAccount(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return result, fmt.Errorf("get account: %w", err)
	default:
		result.Score = account.Reputation
	}

	member, err := e.members.GetMember(ctx, guildID, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return result, nil
		}
		return result, fmt.Errorf("get member: %w", err)
	}

	tiers, err := e.store.ListTiers(ctx, guildID)
	if err != nil {
		return result, fmt.Errorf("list tiers: %w", err)
	}
	if len(tiers) == 0 {
		return result, nil
	}
	heldRoles, err := e.store.ListHeldTierRoles(ctx, userID, guildID)
	if err != nil {
		e.logf("[reputation] list held tier roles for %s in guild %s: %v", userID, guildID, err)
	}
	held := lo.SliceToMap(heldRoles, func(roleID string) (string, struct{}) { return roleID, struct{}{} })

	for _, tier := range tiers {
		qualifies := result.Score >= tier.Threshold
		has := member.HasRole(tier.RoleID)
		_, marked := held[tier.RoleID]

		switch {
		case qualifies && !has:
			if err := e.members.AddRole(ctx, guildID, userID, tier.RoleID); err != nil {
				e.logRoleFailure("grant", tier, userID, err)
				result.Failed = append(result.Failed, tier.RoleID)
				continue
			}
			result.Granted = append(result.Granted, tier.RoleID)
			e.markHeld(ctx, userID, guildID, tier.RoleID)
			e.announceGrant(ctx, guildID, userID, tier, result.Score)
		case qualifies && has && !marked:
			e.markHeld(ctx, userID, guildID, tier.RoleID)
		case !qualifies && has:
			if err := e.members.RemoveRole(ctx, guildID, userID, tier.RoleID); err != nil {
				e.logRoleFailure("revoke", tier, userID, err)
				result.Failed = append(result.Failed, tier.RoleID)
				continue
			}
			result.Revoked = append(result.Revoked, tier.RoleID)
			e.unmarkHeld(ctx, userID, guildID, tier.RoleID)
		case !qualifies && !has && marked:
			e.unmarkHeld(ctx, userID, guildID, tier.RoleID)
		}
	}
	span.SetAttributes(
		attribute.Int64("reputation.score", result.Score),
		attribute.Int("reputation.granted", len(result.Granted)),
		attribute.Int("reputation.revoked", len(result.Revoked)),
		attribute.Int("reputation.failed", len(result.Failed)),
	)
	return result, nil
}

func (e *Engine) logRoleFailure(action string, tier storage.ReputationTier, userID string, err error) {
	switch {
	case apperrors.IsPermissionDenied(err):
		e.logf("[reputation] missing permission to %s role %s for %s in guild %s", action, tier.RoleID, userID, tier.GuildID)
	case apperrors.IsNotFound(err):
		e.logf("[reputation] role %s or member %s vanished in guild %s during %s", tier.RoleID, userID, tier.GuildID, action)
	default:
		e.logf("[reputation] %s role %s for %s in guild %s: %v", action, tier.RoleID, userID, tier.GuildID, err)
	}
}

func (e *Engine) markHeld(ctx context.Context, userID string, guildID string, roleID string) {
	if err := e.store.AddHeldTierRole(ctx, userID, guildID, roleID); err != nil {
		e.logf("[reputation] record held role %s for %s: %v", roleID, userID, err)
	}
}

func (e *Engine) unmarkHeld(ctx context.Context, userID string, guildID string, roleID string) {
	if err := e.store.RemoveHeldTierRole(ctx, userID, guildID, roleID); err != nil {
		e.logf("[reputation] clear held role %s for %s: %v", roleID, userID, err)
	}
}

func (e *Engine) announceGrant(ctx context.Context, guildID string, userID string, tier storage.ReputationTier, score int64) {
	if e.settings == nil || e.notifier == nil {
		return
	}
	settings, err := e.settings.Get(ctx, guildID)
	if err != nil {
		e.logf("[reputation] load settings for guild %s: %v", guildID, err)
		return
	}
	e.notifier.Send(ctx, settings.ReputationLogChannelID, gateway.Message{
		Title:       "Reputation Tier Reached",
		Description: notify.Mention(userID) + " earned " + notify.RoleMention(tier.RoleID) + ".",
		Color:       notify.ColorGold,
		Fields: []gateway.Field{
			{Name: "Reputation", Value: e.notifier.Sprintf("%d", score), Inline: true},
			{Name: "Threshold", Value: e.notifier.Sprintf("%d", tier.Threshold), Inline: true},
		},
	})
}

// SetTier creates or updates the threshold of a tier role.
func (e *Engine) SetTier(ctx context.Context, guildID string, roleID string, threshold int64) (bool, error) {
	if e == nil || e.store == nil {
		return false, fmt.Errorf("reputation store is not configured")
	}
	if threshold < MinThreshold || threshold > MaxThreshold {
		return false, apperrors.WithMetadata(apperrors.CodeInvalidThreshold,
			fmt.Sprintf("threshold must be between %d and %d", MinThreshold, MaxThreshold),
			map[string]string{"role_id": roleID})
	}
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(roleID) == "" {
		return false, fmt.Errorf("guild id and role id are required")
	}
	if err := e.store.PutTier(ctx, storage.ReputationTier{
		GuildID:   guildID,
		RoleID:    roleID,
		Threshold: threshold,
		CreatedAt: e.clock().UTC(),
	}); err != nil {
		return false, fmt.Errorf("put tier: %w", err)
	}
	return true, nil
}

// RemoveTier deletes a tier and reports whether it existed.
func (e *Engine) RemoveTier(ctx context.Context, guildID string, roleID string) (bool, error) {
	if e == nil || e.store == nil {
		return false, fmt.Errorf("reputation store is not configured")
	}
	removed, err := e.store.DeleteTier(ctx, guildID, roleID)
	if err != nil {
		return false, fmt.Errorf("delete tier: %w", err)
	}
	return removed, nil
}

// ListTiers returns the guild's tiers by ascending threshold.
func (e *Engine) ListTiers(ctx context.Context, guildID string) ([]storage.ReputationTier, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("reputation store is not configured")
	}
	tiers, err := e.store.ListTiers(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	return tiers, nil
}
