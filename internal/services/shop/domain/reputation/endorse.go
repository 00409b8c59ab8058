package reputation

import (
	"context"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/samber/lo"
)

// Endorsement trigger and rewards.
const (
	EndorseKeyword         = "+rep"
	DefaultChannelName     = "trusted-feedback"
	endorseXP              = 10
	endorseGiverTokens     = 1
	endorseBonusEvery      = 3
	endorseBonusTokens     = 10
	endorseBonusReputation = 1
)

// Endorsement is a chat message that may contain a +rep.
type Endorsement struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorBot   bool
	Content     string
	MentionIDs  []string
}

// EndorseResult describes an accepted endorsement.
type EndorseResult struct {
	TargetID   string
	Review     string
	GiverBonus bool
}

type giverCounter interface {
	IncrementRepGiven(ctx context.Context, userID string) (int, error)
	ResetRepGiven(ctx context.Context, userID string) error
}

type tokenGranter interface {
	ModifyTokens(ctx context.Context, userID string, amount int64, reason string, actorID string) (int64, error)
}

type xpGranter interface {
	AddXP(ctx context.Context, userID string, amount int64, source string) (xp.Grant, error)
}

type memberGetter interface {
	GetMember(ctx context.Context, guildID string, userID string) (gateway.Member, error)
}

// Endorser turns +rep messages into reputation awards for sellers.
type Endorser struct {
	engine      *Engine
	settings    settingsReader
	members     memberGetter
	counter     giverCounter
	tokens      tokenGranter
	xp          xpGranter
	channelName string
	logf        func(string, ...any)
}

// NewEndorser creates an endorser. channelName is the fallback channel
// name accepted when a guild has not configured a reputation channel.
func NewEndorser(engine *Engine, settings settingsReader, members memberGetter, counter giverCounter, tokens tokenGranter, xpSvc xpGranter, channelName string, logf func(string, ...any)) *Endorser {
	if strings.TrimSpace(channelName) == "" {
		channelName = DefaultChannelName
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Endorser{
		engine:      engine,
		settings:    settings,
		members:     members,
		counter:     counter,
		tokens:      tokens,
		xp:          xpSvc,
		channelName: channelName,
		logf:        logf,
	}
}

// IsEndorsement reports whether content contains the +rep keyword as a word.
func IsEndorsement(content string) bool {
	return lo.Contains(strings.Fields(strings.ToLower(content)), EndorseKeyword)
}

func rejected(message string) error {
	return apperrors.New(apperrors.CodeEndorsementRejected, message)
}

// Endorse validates and applies a +rep. Messages without the keyword or from
// bots return (nil, nil). Rule violations return ENDORSEMENT_REJECTED errors
// whose message is suitable for replying to the author.
func (e *Endorser) Endorse(ctx context.Context, msg Endorsement) (*EndorseResult, error) {
	if msg.AuthorBot || !IsEndorsement(msg.Content) {
		return nil, nil
	}
	if e == nil || e.engine == nil || e.settings == nil || e.members == nil {
		return nil, fmt.Errorf("endorser is not configured")
	}

	settings, err := e.settings.Get(ctx, msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !e.inReputationChannel(msg, settings.ReputationChannelID) {
		return nil, rejected("You must be in a trusted feedback channel.")
	}
	mentions := lo.Uniq(msg.MentionIDs)
	if len(mentions) != 1 {
		return nil, rejected("You must mention exactly one user!")
	}
	targetID := mentions[0]
	if targetID == msg.AuthorID {
		return nil, rejected("You can not rep yourself!")
	}
	if strings.TrimSpace(settings.SellerRoleID) == "" {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "Seller role not configured!")
	}
	target, err := e.members.GetMember(ctx, msg.GuildID, targetID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, rejected("That user is not a member of this server.")
		}
		return nil, fmt.Errorf("get target member: %w", err)
	}
	if !target.HasRole(settings.SellerRoleID) {
		return nil, rejected("Only sellers can receive reputation!")
	}

	result := &EndorseResult{TargetID: targetID, Review: reviewText(msg.Content, targetID)}
	if _, err := e.engine.Award(ctx, Award{
		GuildID:    msg.GuildID,
		FromUserID: msg.AuthorID,
		ToUserID:   targetID,
		Amount:     1,
		Message:    result.Review,
	}); err != nil {
		return nil, fmt.Errorf("award reputation: %w", err)
	}

	e.grantXP(ctx, targetID, endorseXP)
	e.grantXP(ctx, msg.AuthorID, endorseXP)
	e.grantTokens(ctx, msg.AuthorID, endorseGiverTokens, "Reputation added")
	result.GiverBonus = e.countGiven(ctx, msg)
	return result, nil
}

func (e *Endorser) inReputationChannel(msg Endorsement, configuredID string) bool {
	if strings.TrimSpace(configuredID) != "" {
		return msg.ChannelID == configuredID
	}
	return strings.EqualFold(strings.TrimSpace(msg.ChannelName), e.channelName)
}

// countGiven bumps the giver's endorsement counter and pays the bonus on
// every third endorsement.
func (e *Endorser) countGiven(ctx context.Context, msg Endorsement) bool {
	if e.counter == nil {
		return false
	}
	count, err := e.counter.IncrementRepGiven(ctx, msg.AuthorID)
	if err != nil {
		e.logf("[reputation] count endorsement by %s: %v", msg.AuthorID, err)
		return false
	}
	if count < endorseBonusEvery {
		return false
	}
	if err := e.counter.ResetRepGiven(ctx, msg.AuthorID); err != nil {
		e.logf("[reputation] reset endorsement counter for %s: %v", msg.AuthorID, err)
	}
	if _, err := e.engine.Award(ctx, Award{GuildID: msg.GuildID, ToUserID: msg.AuthorID, Amount: endorseBonusReputation}); err != nil {
		e.logf("[reputation] giver bonus for %s: %v", msg.AuthorID, err)
	}
	e.grantTokens(ctx, msg.AuthorID, endorseBonusTokens, "Reputation added")
	return true
}

func (e *Endorser) grantXP(ctx context.Context, userID string, amount int64) {
	if e.xp == nil {
		return
	}
	if _, err := e.xp.AddXP(ctx, userID, amount, "reputation"); err != nil {
		e.logf("[reputation] xp for %s: %v", userID, err)
	}
}

func (e *Endorser) grantTokens(ctx context.Context, userID string, amount int64, reason string) {
	if e.tokens == nil {
		return
	}
	if _, err := e.tokens.ModifyTokens(ctx, userID, amount, reason, userID); err != nil {
		e.logf("[reputation] tokens for %s: %v", userID, err)
	}
}

// reviewText strips the keyword and the target mention from content.
func reviewText(content string, targetID string) string {
	words := strings.Fields(content)
	kept := lo.Reject(words, func(word string, _ int) bool {
		return strings.EqualFold(word, EndorseKeyword) ||
			word == "<@"+targetID+">" ||
			word == "<@!"+targetID+">"
	})
	return strings.Join(kept, " ")
}
