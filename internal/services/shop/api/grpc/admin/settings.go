package admin

import (
	"context"

	"github.com/opshop/guildshop/internal/services/shop/domain/reputation"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
)

type GetSettingsRequest struct {
	GuildID string `json:"guild_id"`
}

type SettingsResponse struct {
	Settings Settings `json:"settings"`
}

// GetSettings returns the guild's stored settings.
func (s *Server) GetSettings(ctx context.Context, req GetSettingsRequest) (SettingsResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return SettingsResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return SettingsResponse{}, err
	}
	gs, err := s.deps.Settings.Get(ctx, req.GuildID)
	if err != nil {
		return SettingsResponse{}, err
	}
	return SettingsResponse{Settings: settingsToWire(gs)}, nil
}

// UpdateSettingsRequest sets every field that is present. An empty string
// clears the field.
type UpdateSettingsRequest struct {
	GuildID                string  `json:"guild_id"`
	SellerRoleID           *string `json:"seller_role_id"`
	TicketManagerRoleID    *string `json:"ticket_manager_role_id"`
	InviteLogChannelID     *string `json:"invite_log_channel_id"`
	ReputationLogChannelID *string `json:"reputation_log_channel_id"`
	ReputationChannelID    *string `json:"reputation_channel_id"`
	AuditLogChannelID      *string `json:"audit_log_channel_id"`
	TicketLogChannelID     *string `json:"ticket_log_channel_id"`
}

type settingSetter func(ctx context.Context, guildID string, id string) (storage.GuildSettings, error)

// UpdateSettings changes guild settings. Owner only.
func (s *Server) UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (SettingsResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return SettingsResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return SettingsResponse{}, err
	}
	svc := s.deps.Settings
	updates := []struct {
		value *string
		set   settingSetter
	}{
		{req.SellerRoleID, svc.SetSellerRole},
		{req.TicketManagerRoleID, svc.SetTicketManagerRole},
		{req.InviteLogChannelID, svc.SetInviteLogChannel},
		{req.ReputationLogChannelID, svc.SetReputationLogChannel},
		{req.ReputationChannelID, svc.SetReputationChannel},
		{req.AuditLogChannelID, svc.SetAuditLogChannel},
		{req.TicketLogChannelID, svc.SetTicketLogChannel},
	}
	gs, err := svc.Get(ctx, req.GuildID)
	if err != nil {
		return SettingsResponse{}, err
	}
	for _, update := range updates {
		if update.value == nil {
			continue
		}
		gs, err = update.set(ctx, req.GuildID, *update.value)
		if err != nil {
			return SettingsResponse{}, err
		}
	}
	return SettingsResponse{Settings: settingsToWire(gs)}, nil
}

type SetTierRequest struct {
	GuildID   string `json:"guild_id"`
	RoleID    string `json:"role_id"`
	Threshold int64  `json:"threshold"`
}

type SetTierResponse struct {
	Saved bool `json:"saved"`
}

// SetTier adds or replaces a reputation tier. Owner only.
func (s *Server) SetTier(ctx context.Context, req SetTierRequest) (SetTierResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return SetTierResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return SetTierResponse{}, err
	}
	if err := required("role_id", req.RoleID); err != nil {
		return SetTierResponse{}, err
	}
	saved, err := s.deps.Reputation.SetTier(ctx, req.GuildID, req.RoleID, req.Threshold)
	if err != nil {
		return SetTierResponse{}, err
	}
	return SetTierResponse{Saved: saved}, nil
}

type RemoveTierRequest struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

type RemoveTierResponse struct {
	Removed bool `json:"removed"`
}

// RemoveTier deletes a reputation tier. Owner only.
func (s *Server) RemoveTier(ctx context.Context, req RemoveTierRequest) (RemoveTierResponse, error) {
	if _, err := s.requireOwner(ctx); err != nil {
		return RemoveTierResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return RemoveTierResponse{}, err
	}
	removed, err := s.deps.Reputation.RemoveTier(ctx, req.GuildID, req.RoleID)
	if err != nil {
		return RemoveTierResponse{}, err
	}
	return RemoveTierResponse{Removed: removed}, nil
}

type ListTiersRequest struct {
	GuildID string `json:"guild_id"`
}

type ListTiersResponse struct {
	Tiers []Tier `json:"tiers"`
}

// ListTiers returns the guild's tiers in ascending threshold order.
func (s *Server) ListTiers(ctx context.Context, req ListTiersRequest) (ListTiersResponse, error) {
	if _, err := s.caller(ctx); err != nil {
		return ListTiersResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return ListTiersResponse{}, err
	}
	tiers, err := s.deps.Reputation.ListTiers(ctx, req.GuildID)
	if err != nil {
		return ListTiersResponse{}, err
	}
	return ListTiersResponse{Tiers: lo.Map(tiers, func(tier storage.ReputationTier, _ int) Tier {
		return Tier{RoleID: tier.RoleID, Threshold: tier.Threshold}
	})}, nil
}

type AwardReputationRequest struct {
	GuildID  string `json:"guild_id"`
	ToUserID string `json:"to_user_id"`
	Amount   int64  `json:"amount"`
	Message  string `json:"message"`
}

type AccountResponse struct {
	Account Account `json:"account"`
}

// AwardReputation changes a member's reputation on the owner's behalf.
func (s *Server) AwardReputation(ctx context.Context, req AwardReputationRequest) (AccountResponse, error) {
	c, err := s.requireOwner(ctx)
	if err != nil {
		return AccountResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return AccountResponse{}, err
	}
	if err := required("to_user_id", req.ToUserID); err != nil {
		return AccountResponse{}, err
	}
	account, err := s.deps.Reputation.Award(ctx, reputation.Award{
		GuildID:    req.GuildID,
		FromUserID: c.UserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Message:    req.Message,
	})
	if err != nil {
		return AccountResponse{}, err
	}
	return AccountResponse{Account: accountToWire(account)}, nil
}
