package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/platform/timeouts"
	"github.com/opshop/guildshop/internal/services/shop/domain/invites"
	"github.com/opshop/guildshop/internal/services/shop/domain/notify"
	"github.com/opshop/guildshop/internal/services/shop/domain/reputation"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const primeConcurrency = 4

var tracer = otel.Tracer("github.com/opshop/guildshop/internal/services/shop/app")

type handlerRegistrar interface {
	AddHandler(handler interface{}) func()
}

// ChatMessage is a guild message reduced to what the bot reacts to.
type ChatMessage struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorBot   bool
	Content     string
	MentionIDs  []string
}

// Handlers routes gateway events into the domain services. Every event runs
// under its own timeout derived from the runtime context.
type Handlers struct {
	ctx      context.Context
	services *Services
	logf     func(string, ...any)
}

// NewHandlers binds event handling to ctx; events arriving after ctx is done
// are dropped.
func NewHandlers(ctx context.Context, services *Services, logf func(string, ...any)) *Handlers {
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Handlers{ctx: ctx, services: services, logf: logf}
}

// Register attaches every event handler and returns a func that detaches them.
func (h *Handlers) Register(r handlerRegistrar) func() {
	removers := []func(){
		r.AddHandler(h.onReady),
		r.AddHandler(h.onGuildCreate),
		r.AddHandler(h.onGuildMemberAdd),
		r.AddHandler(h.onInviteCreate),
		r.AddHandler(h.onInviteDelete),
		r.AddHandler(h.onMessageCreate),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

// eventContext starts a consumer span for one gateway event. It reports
// false once the runtime context is done.
func (h *Handlers) eventContext(event string, timeout time.Duration) (context.Context, func(), bool) {
	if h.ctx.Err() != nil {
		return nil, nil, false
	}
	ctx, cancel := context.WithTimeout(h.ctx, timeout)
	ctx, span := tracer.Start(ctx, "gateway."+event, trace.WithSpanKind(trace.SpanKindConsumer))
	return ctx, func() {
		span.End()
		cancel()
	}, true
}

func (h *Handlers) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	if e == nil {
		return
	}
	guildIDs := make([]string, 0, len(e.Guilds))
	for _, guild := range e.Guilds {
		if guild != nil {
			guildIDs = append(guildIDs, guild.ID)
		}
	}
	if len(guildIDs) == 0 {
		guildIDs = h.knownGuilds()
	}
	if err := h.PrimeCaches(h.ctx, guildIDs); err != nil {
		h.logf("[invites] prime caches: %v", err)
	}
}

// knownGuilds lists guilds from the gateway when the ready payload carries
// none.
func (h *Handlers) knownGuilds() []string {
	ctx, cancel, ok := h.eventContext("list_guilds", timeouts.GatewayEvent)
	if !ok {
		return nil
	}
	defer cancel()
	guilds, err := h.services.Gateway.ListGuilds(ctx)
	if err != nil {
		h.logf("[invites] list guilds: %v", err)
		return nil
	}
	ids := make([]string, 0, len(guilds))
	for _, guild := range guilds {
		ids = append(ids, guild.ID)
	}
	return ids
}

func (h *Handlers) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if e == nil || e.Guild == nil || e.Unavailable {
		return
	}
	if h.services.Tracker.Ready(e.ID) {
		return
	}
	ctx, cancel, ok := h.eventContext("guild_create", timeouts.CachePrime)
	if !ok {
		return
	}
	defer cancel()
	if err := h.services.Tracker.CacheGuild(ctx, e.ID); err != nil {
		h.logf("[invites] cache guild %s: %v", e.ID, err)
	}
}

func (h *Handlers) onGuildMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e == nil || e.Member == nil || e.Member.User == nil {
		return
	}
	h.HandleMemberJoin(invites.MemberJoin{
		GuildID:  e.GuildID,
		UserID:   e.User.ID,
		Bot:      e.User.Bot,
		JoinedAt: e.JoinedAt,
	})
}

// HandleMemberJoin runs the attribution pipeline for one join.
func (h *Handlers) HandleMemberJoin(join invites.MemberJoin) {
	ctx, cancel, ok := h.eventContext("member_add", timeouts.GatewayEvent)
	if !ok {
		return
	}
	defer cancel()
	if !join.Bot {
		if _, err := h.services.Economy.Account(ctx, join.UserID, ""); err != nil {
			h.logf("[invites] ensure account for %s: %v", join.UserID, err)
		}
	}
	if err := h.services.Joins.HandleMemberJoin(ctx, join); err != nil {
		h.logf("[invites] member join %s in guild %s: %v", join.UserID, join.GuildID, err)
	}
}

func (h *Handlers) onInviteCreate(_ *discordgo.Session, e *discordgo.InviteCreate) {
	if e == nil || e.Invite == nil {
		return
	}
	invite := gateway.Invite{Code: e.Code, Uses: e.Uses}
	if e.Inviter != nil {
		invite.InviterID = e.Inviter.ID
	}
	ctx, cancel, ok := h.eventContext("invite_create", timeouts.GatewayEvent)
	if !ok {
		return
	}
	defer cancel()
	h.services.Tracker.InviteCreated(ctx, e.GuildID, invite)
}

func (h *Handlers) onInviteDelete(_ *discordgo.Session, e *discordgo.InviteDelete) {
	if e == nil {
		return
	}
	ctx, cancel, ok := h.eventContext("invite_delete", timeouts.GatewayEvent)
	if !ok {
		return
	}
	defer cancel()
	h.services.Tracker.InviteDeleted(ctx, e.GuildID, e.Code)
}

func (h *Handlers) onMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e == nil || e.Message == nil || e.Author == nil || e.GuildID == "" {
		return
	}
	msg := ChatMessage{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		AuthorID:  e.Author.ID,
		AuthorBot: e.Author.Bot,
		Content:   e.Content,
	}
	for _, user := range e.Mentions {
		if user != nil {
			msg.MentionIDs = append(msg.MentionIDs, user.ID)
		}
	}
	if s != nil && s.State != nil {
		if channel, err := s.State.Channel(e.ChannelID); err == nil && channel != nil {
			msg.ChannelName = channel.Name
		}
	}
	h.HandleMessage(msg)
}

// HandleMessage records ticket transcripts and processes +rep endorsements.
func (h *Handlers) HandleMessage(msg ChatMessage) {
	if msg.AuthorBot {
		return
	}
	ctx, cancel, ok := h.eventContext("message_create", timeouts.GatewayEvent)
	if !ok {
		return
	}
	defer cancel()

	if _, err := h.services.Tickets.AppendMessage(ctx, msg.ChannelID, msg.AuthorID, msg.Content); err != nil {
		h.logf("[tickets] transcript for channel %s: %v", msg.ChannelID, err)
	}
	if !reputation.IsEndorsement(msg.Content) {
		return
	}

	result, err := h.services.Endorser.Endorse(ctx, reputation.Endorsement{
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		MentionIDs:  msg.MentionIDs,
	})
	switch {
	case apperrors.HasCode(err, apperrors.CodeEndorsementRejected), apperrors.HasCode(err, apperrors.CodeConfigMissing):
		h.services.Notifier.Send(ctx, msg.ChannelID, gateway.Message{
			Title:       "Reputation Not Added",
			Description: endorsementReason(err),
			Color:       notify.ColorDanger,
		})
	case err != nil:
		h.logf("[reputation] endorsement by %s in guild %s: %v", msg.AuthorID, msg.GuildID, err)
	case result != nil:
		description := notify.Mention(msg.AuthorID) + " gave +1 reputation to " + notify.Mention(result.TargetID) + "."
		if result.Review != "" {
			description += "\n> " + result.Review
		}
		h.services.Notifier.Send(ctx, msg.ChannelID, gateway.Message{
			Title:       "Reputation Added",
			Description: description,
			Color:       notify.ColorSuccess,
		})
	}
}

func endorsementReason(err error) string {
	var message string
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if strings.TrimSpace(message) == "" {
		message = "Your endorsement could not be recorded."
	}
	return message
}

// PrimeCaches snapshots the invites of every guild concurrently. A failing
// guild does not stop the others; the first failure is returned.
func (h *Handlers) PrimeCaches(ctx context.Context, guildIDs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var g errgroup.Group
	g.SetLimit(primeConcurrency)
	for _, guildID := range guildIDs {
		g.Go(func() error {
			primeCtx, cancel := context.WithTimeout(ctx, timeouts.CachePrime)
			defer cancel()
			if err := h.services.Tracker.CacheGuild(primeCtx, guildID); err != nil {
				h.logf("[invites] cache guild %s: %v", guildID, err)
				return fmt.Errorf("cache guild %s: %w", guildID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
