// Package rewards grants inviter rewards for attributed first joins.
package rewards

import (
	"context"
	"log"
	"strings"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/invites"
	"github.com/opshop/guildshop/internal/services/shop/domain/notify"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/opshop/guildshop/internal/services/shop/domain/rewards")

// Config holds the invite reward amounts.
type Config struct {
	TokenReward      int64
	XPReward         int64
	ReputationReward int64
}

// DefaultConfig returns the stock invite rewards.
func DefaultConfig() Config {
	return Config{TokenReward: 10, XPReward: 50, ReputationReward: 1}
}

type settingsReader interface {
	Get(ctx context.Context, guildID string) (storage.GuildSettings, error)
}

type memberGetter interface {
	GetMember(ctx context.Context, guildID string, userID string) (gateway.Member, error)
}

type tokenGranter interface {
	ModifyTokens(ctx context.Context, userID string, amount int64, reason string, actorID string) (int64, error)
}

type xpGranter interface {
	AddXP(ctx context.Context, userID string, amount int64, source string) (xp.Grant, error)
}

type reputationGranter interface {
	AddReputation(ctx context.Context, userID string, guildID string, amount int64) error
}

type inviteCounter interface {
	CountInvites(ctx context.Context, guildID string, inviterID string) (int, error)
}

// Deps are the collaborators a Fanout calls.
type Deps struct {
	Settings   settingsReader
	Members    memberGetter
	Tokens     tokenGranter
	XP         xpGranter
	Reputation reputationGranter
	Invites    inviteCounter
	Notifier   *notify.Notifier
	Logf       func(string, ...any)
}

// Fanout grants rewards for attributed joins. Every branch is isolated: a
// failed grant is logged and the remaining branches still run.
type Fanout struct {
	deps Deps
	cfg  Config
}

var _ invites.JoinSink = (*Fanout)(nil)

// NewFanout creates a reward fan-out.
func NewFanout(deps Deps, cfg Config) *Fanout {
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	return &Fanout{deps: deps, cfg: cfg}
}

// OnAttributedJoin rewards the inviter of a first join. Sellers earn
// reputation, everyone else earns tokens, and every inviter earns XP.
// Rejoins, unknown inviters and self-invites earn nothing.
func (f *Fanout) OnAttributedJoin(ctx context.Context, join invites.AttributedJoin) {
	ctx, span := tracer.Start(ctx, "rewards.fanout")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild.id", join.GuildID),
		attribute.String("user.id", join.JoinerID),
		attribute.String("inviter.id", join.InviterID),
		attribute.Bool("invites.new_join", join.IsNewJoin),
	)

	if !join.IsNewJoin {
		f.deps.Logf("[rewards] rejoin of %s in guild %s, no rewards", join.JoinerID, join.GuildID)
		return
	}

	settings := f.guildSettings(ctx, join.GuildID)
	if strings.TrimSpace(join.InviterID) == "" {
		f.deps.Notifier.Send(ctx, settings.InviteLogChannelID, gateway.Message{
			Title:       "New Member",
			Description: notify.Mention(join.JoinerID) + " joined, but the invite could not be determined.",
			Color:       notify.ColorInfo,
		})
		return
	}
	if join.InviterID == join.JoinerID {
		f.deps.Logf("[rewards] self-invite by %s in guild %s, no rewards", join.JoinerID, join.GuildID)
		return
	}

	seller := f.isSeller(ctx, join.GuildID, join.InviterID, settings.SellerRoleID)
	span.SetAttributes(attribute.Bool("rewards.seller", seller))

	var rewardLine string
	if seller {
		if f.grantReputation(ctx, join) {
			rewardLine = f.deps.Notifier.Sprintf("+%d reputation", f.cfg.ReputationReward)
		}
	} else {
		if f.grantTokens(ctx, join) {
			rewardLine = f.deps.Notifier.Sprintf("%d Shop Tokens", f.cfg.TokenReward)
		}
	}
	f.grantXP(ctx, join)

	f.announce(ctx, join, settings, rewardLine)
}

func (f *Fanout) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	if f.deps.Settings == nil {
		return storage.GuildSettings{GuildID: guildID}
	}
	settings, err := f.deps.Settings.Get(ctx, guildID)
	if err != nil {
		f.deps.Logf("[rewards] load settings for guild %s: %v", guildID, err)
		return storage.GuildSettings{GuildID: guildID}
	}
	return settings
}

// isSeller reports whether the inviter currently holds the seller role. An
// inviter who left the guild or an unconfigured role counts as non-seller.
func (f *Fanout) isSeller(ctx context.Context, guildID string, inviterID string, sellerRoleID string) bool {
	if strings.TrimSpace(sellerRoleID) == "" || f.deps.Members == nil {
		return false
	}
	member, err := f.deps.Members.GetMember(ctx, guildID, inviterID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			f.deps.Logf("[rewards] fetch inviter %s in guild %s: %v", inviterID, guildID, err)
		}
		return false
	}
	return member.HasRole(sellerRoleID)
}

func (f *Fanout) grantReputation(ctx context.Context, join invites.AttributedJoin) bool {
	if f.deps.Reputation == nil || f.cfg.ReputationReward <= 0 {
		return false
	}
	if err := f.deps.Reputation.AddReputation(ctx, join.InviterID, join.GuildID, f.cfg.ReputationReward); err != nil {
		f.deps.Logf("[rewards] reputation reward for %s in guild %s: %v", join.InviterID, join.GuildID, err)
		return false
	}
	return true
}

func (f *Fanout) grantTokens(ctx context.Context, join invites.AttributedJoin) bool {
	if f.deps.Tokens == nil || f.cfg.TokenReward <= 0 {
		return false
	}
	if _, err := f.deps.Tokens.ModifyTokens(ctx, join.InviterID, f.cfg.TokenReward, "Invite Reward", join.InviterID); err != nil {
		f.deps.Logf("[rewards] token reward for %s in guild %s: %v", join.InviterID, join.GuildID, err)
		return false
	}
	return true
}

func (f *Fanout) grantXP(ctx context.Context, join invites.AttributedJoin) {
	if f.deps.XP == nil || f.cfg.XPReward <= 0 {
		return
	}
	if _, err := f.deps.XP.AddXP(ctx, join.InviterID, f.cfg.XPReward, "Invite reward"); err != nil {
		f.deps.Logf("[rewards] xp reward for %s in guild %s: %v", join.InviterID, join.GuildID, err)
	}
}

func (f *Fanout) announce(ctx context.Context, join invites.AttributedJoin, settings storage.GuildSettings, rewardLine string) {
	if strings.TrimSpace(settings.InviteLogChannelID) == "" {
		return
	}
	fields := make([]gateway.Field, 0, 2)
	if f.deps.Invites != nil {
		count, err := f.deps.Invites.CountInvites(ctx, join.GuildID, join.InviterID)
		if err != nil {
			f.deps.Logf("[rewards] count invites for %s in guild %s: %v", join.InviterID, join.GuildID, err)
		} else {
			fields = append(fields, gateway.Field{
				Name:   "Inviter Total",
				Value:  f.deps.Notifier.Sprintf("**%d** total invites", count),
				Inline: true,
			})
		}
	}
	if rewardLine != "" {
		fields = append(fields, gateway.Field{Name: "Invite Reward", Value: rewardLine, Inline: true})
	}
	f.deps.Notifier.Send(ctx, settings.InviteLogChannelID, gateway.Message{
		Title:       "New Invite Join",
		Description: notify.Mention(join.JoinerID) + " joined using " + notify.Mention(join.InviterID) + "'s invite!",
		Color:       notify.ColorSuccess,
		Fields:      fields,
	})
}
