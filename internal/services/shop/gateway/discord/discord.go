// Package discord implements the shop gateway over the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
)

// rest is the subset of *discordgo.Session the adapter calls.
type rest interface {
	GuildInvites(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Invite, error)
	GuildMember(guildID string, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID string, userID string, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID string, userID string, roleID string, options ...discordgo.RequestOption) error
	GuildMemberNickname(guildID string, userID string, nickname string, options ...discordgo.RequestOption) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter implements gateway.Gateway with a discordgo session.
type Adapter struct {
	rest  rest
	state *discordgo.State
}

var _ gateway.Gateway = (*Adapter)(nil)

// New wraps an opened or unopened discordgo session.
func New(session *discordgo.Session) *Adapter {
	if session == nil {
		return &Adapter{}
	}
	return &Adapter{rest: session, state: session.State}
}

func (a *Adapter) ready() error {
	if a == nil || a.rest == nil {
		return fmt.Errorf("discord session is not configured")
	}
	return nil
}

// ListInvites returns every live invite of a guild.
func (a *Adapter) ListInvites(ctx context.Context, guildID string) ([]gateway.Invite, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	invites, err := a.rest.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list invites", err)
	}
	result := make([]gateway.Invite, 0, len(invites))
	for _, invite := range invites {
		if invite == nil {
			continue
		}
		entry := gateway.Invite{Code: invite.Code, Uses: invite.Uses}
		if invite.Inviter != nil {
			entry.InviterID = invite.Inviter.ID
		}
		result = append(result, entry)
	}
	return result, nil
}

// GetMember fetches a member; absence is reported as NOT_FOUND.
func (a *Adapter) GetMember(ctx context.Context, guildID string, userID string) (gateway.Member, error) {
	if err := a.ready(); err != nil {
		return gateway.Member{}, err
	}
	member, err := a.rest.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return gateway.Member{}, classify("get member", err)
	}
	if member == nil {
		return gateway.Member{}, apperrors.New(apperrors.CodeNotFound, "member not found")
	}
	return toMember(guildID, member), nil
}

// AddRole grants a role.
func (a *Adapter) AddRole(ctx context.Context, guildID string, userID string, roleID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.rest.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return classify("add role", err)
	}
	return nil
}

// RemoveRole revokes a role.
func (a *Adapter) RemoveRole(ctx context.Context, guildID string, userID string, roleID string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.rest.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return classify("remove role", err)
	}
	return nil
}

// SetNickname changes a member nickname.
func (a *Adapter) SetNickname(ctx context.Context, guildID string, userID string, nickname string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.rest.GuildMemberNickname(guildID, userID, nickname, discordgo.WithContext(ctx)); err != nil {
		return classify("set nickname", err)
	}
	return nil
}

// SendMessage posts a structured message as an embed.
func (a *Adapter) SendMessage(ctx context.Context, channelID string, message gateway.Message) error {
	if err := a.ready(); err != nil {
		return err
	}
	if _, err := a.rest.ChannelMessageSendEmbed(channelID, toEmbed(message), discordgo.WithContext(ctx)); err != nil {
		return classify("send message", err)
	}
	return nil
}

// ListGuilds returns the guilds present in the session state.
func (a *Adapter) ListGuilds(ctx context.Context) ([]gateway.Guild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a == nil || a.state == nil {
		return nil, fmt.Errorf("discord state is not configured")
	}
	a.state.RLock()
	defer a.state.RUnlock()

	guilds := make([]gateway.Guild, 0, len(a.state.Guilds))
	for _, guild := range a.state.Guilds {
		if guild == nil || guild.Unavailable {
			continue
		}
		guilds = append(guilds, gateway.Guild{ID: guild.ID, Name: guild.Name})
	}
	return guilds, nil
}

func toMember(guildID string, member *discordgo.Member) gateway.Member {
	result := gateway.Member{
		GuildID: guildID,
		RoleIDs: append([]string(nil), member.Roles...),
	}
	if member.GuildID != "" {
		result.GuildID = member.GuildID
	}
	if member.User != nil {
		result.UserID = member.User.ID
		result.Username = member.User.Username
		result.Bot = member.User.Bot
	}
	return result
}

func toEmbed(message gateway.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       message.Title,
		Description: message.Description,
		Color:       message.Color,
	}
	for _, field := range message.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   field.Name,
			Value:  field.Value,
			Inline: field.Inline,
		})
	}
	if strings.TrimSpace(message.Footer) != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: message.Footer}
	}
	return embed
}

// classify maps Discord REST failures onto platform error codes.
func classify(op string, err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return apperrors.Wrap(apperrors.CodeUnknown, op, err)
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return apperrors.Wrap(apperrors.CodePermissionDenied, op, err)
		case discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownRole,
			discordgo.ErrCodeUnknownInvite,
			discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownUser:
			return apperrors.Wrap(apperrors.CodeNotFound, op, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return apperrors.Wrap(apperrors.CodePermissionDenied, op, err)
		case http.StatusNotFound:
			return apperrors.Wrap(apperrors.CodeNotFound, op, err)
		case http.StatusTooManyRequests:
			return apperrors.Wrap(apperrors.CodeRateLimited, op, err)
		}
	}
	return apperrors.Wrap(apperrors.CodeUnknown, op, err)
}
