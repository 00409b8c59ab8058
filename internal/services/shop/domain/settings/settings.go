// Package settings manages per-guild feature configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// Service reads and updates guild settings. Missing settings read as
// defaults, which leave every optional feature disabled.
type Service struct {
	store storage.SettingsStore
	clock func() time.Time

	mu sync.Mutex
}

// NewService creates a settings service.
func NewService(store storage.SettingsStore, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, clock: clock}
}

// Get returns the settings for guildID, or defaults when none are saved.
func (s *Service) Get(ctx context.Context, guildID string) (storage.GuildSettings, error) {
	if s == nil || s.store == nil {
		return storage.GuildSettings{}, fmt.Errorf("settings store is not configured")
	}
	guildID = strings.TrimSpace(guildID)
	settings, err := s.store.GetGuildSettings(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.GuildSettings{GuildID: guildID}, nil
	}
	if err != nil {
		return storage.GuildSettings{}, fmt.Errorf("get guild settings: %w", err)
	}
	return settings, nil
}

// Update applies mutate to the current settings and saves the result.
func (s *Service) Update(ctx context.Context, guildID string, mutate func(*storage.GuildSettings)) (storage.GuildSettings, error) {
	if mutate == nil {
		return storage.GuildSettings{}, fmt.Errorf("mutate func is required")
	}
	if strings.TrimSpace(guildID) == "" {
		return storage.GuildSettings{}, fmt.Errorf("guild id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.Get(ctx, guildID)
	if err != nil {
		return storage.GuildSettings{}, err
	}
	mutate(&settings)
	settings.GuildID = strings.TrimSpace(guildID)
	settings.UpdatedAt = s.clock().UTC()
	if err := s.store.PutGuildSettings(ctx, settings); err != nil {
		return storage.GuildSettings{}, fmt.Errorf("put guild settings: %w", err)
	}
	return settings, nil
}

// SetSellerRole sets the role that marks trusted sellers.
func (s *Service) SetSellerRole(ctx context.Context, guildID string, roleID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.SellerRoleID = strings.TrimSpace(roleID) })
}

// SetInviteLogChannel sets where join summaries are posted.
func (s *Service) SetInviteLogChannel(ctx context.Context, guildID string, channelID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.InviteLogChannelID = strings.TrimSpace(channelID) })
}

// SetReputationLogChannel sets where reputation grants are logged.
func (s *Service) SetReputationLogChannel(ctx context.Context, guildID string, channelID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.ReputationLogChannelID = strings.TrimSpace(channelID) })
}

// SetReputationChannel sets the channel where +rep endorsements are accepted.
func (s *Service) SetReputationChannel(ctx context.Context, guildID string, channelID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.ReputationChannelID = strings.TrimSpace(channelID) })
}

// SetAuditLogChannel sets where economy audit events are posted.
func (s *Service) SetAuditLogChannel(ctx context.Context, guildID string, channelID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.AuditLogChannelID = strings.TrimSpace(channelID) })
}

// SetTicketLogChannel sets where ticket lifecycle events are posted.
func (s *Service) SetTicketLogChannel(ctx context.Context, guildID string, channelID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.TicketLogChannelID = strings.TrimSpace(channelID) })
}

// SetTicketManagerRole sets the role allowed to manage tickets.
func (s *Service) SetTicketManagerRole(ctx context.Context, guildID string, roleID string) (storage.GuildSettings, error) {
	return s.Update(ctx, guildID, func(gs *storage.GuildSettings) { gs.TicketManagerRoleID = strings.TrimSpace(roleID) })
}
