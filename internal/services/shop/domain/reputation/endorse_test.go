package reputation

import (
	"context"
	"testing"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/opshop/guildshop/internal/services/shop/storage/sqlite"
)

type grantCall struct {
	userID string
	amount int64
}

type fakeTokens struct{ calls []grantCall }

func (f *fakeTokens) ModifyTokens(_ context.Context, userID string, amount int64, _ string, _ string) (int64, error) {
	f.calls = append(f.calls, grantCall{userID: userID, amount: amount})
	return amount, nil
}

func (f *fakeTokens) total(userID string) int64 {
	var sum int64
	for _, call := range f.calls {
		if call.userID == userID {
			sum += call.amount
		}
	}
	return sum
}

type fakeXP struct{ calls []grantCall }

func (f *fakeXP) AddXP(_ context.Context, userID string, amount int64, _ string) (xp.Grant, error) {
	f.calls = append(f.calls, grantCall{userID: userID, amount: amount})
	return xp.Grant{Added: amount}, nil
}

type endorseFixture struct {
	store    *sqlite.Store
	roles    *fakeRoles
	tokens   *fakeTokens
	xp       *fakeXP
	endorser *Endorser
}

func newEndorseFixture(t *testing.T, settings storage.GuildSettings) *endorseFixture {
	t.Helper()
	fx := &endorseFixture{
		store: openStore(t),
		roles: newFakeRoles(
			gateway.Member{UserID: "seller", RoleIDs: []string{"seller-role"}},
			gateway.Member{UserID: "buyer"},
			gateway.Member{UserID: "other"},
		),
		tokens: &fakeTokens{},
		xp:     &fakeXP{},
	}
	reader := fakeSettings{settings: settings}
	engine := NewEngine(fx.store, fx.roles, reader, nil, fixedClock, quietLogf)
	fx.endorser = NewEndorser(engine, reader, fx.roles, fx.store, fx.tokens, fx.xp, "", quietLogf)
	return fx
}

func defaultSettings() storage.GuildSettings {
	return storage.GuildSettings{GuildID: "g1", SellerRoleID: "seller-role", ReputationChannelID: "feedback"}
}

func repMessage(content string, mentions ...string) Endorsement {
	return Endorsement{
		GuildID:    "g1",
		ChannelID:  "feedback",
		AuthorID:   "buyer",
		Content:    content,
		MentionIDs: mentions,
	}
}

func TestEndorseAwardsSeller(t *testing.T) {
	t.Parallel()

	fx := newEndorseFixture(t, defaultSettings())
	ctx := context.Background()

	result, err := fx.endorser.Endorse(ctx, repMessage("+rep <@seller> quick and friendly", "seller"))
	if err != nil {
		t.Fatalf("endorse: %v", err)
	}
	if result == nil || result.TargetID != "seller" {
		t.Fatalf("result = %+v, want target seller", result)
	}
	if result.Review != "quick and friendly" {
		t.Fatalf("review = %q, want %q", result.Review, "quick and friendly")
	}
	account, err := fx.store.GetAccount(ctx, "seller")
	if err != nil {
		t.Fatalf("get seller: %v", err)
	}
	if account.Reputation != 1 {
		t.Fatalf("seller reputation = %d, want 1", account.Reputation)
	}
	logs, err := fx.store.ListReputationLogs(ctx, "seller", 5)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].FromUserID != "buyer" || logs[0].Message != "quick and friendly" {
		t.Fatalf("logs = %+v, want one entry from buyer", logs)
	}
	if len(fx.xp.calls) != 2 || fx.xp.calls[0] != (grantCall{"seller", 10}) || fx.xp.calls[1] != (grantCall{"buyer", 10}) {
		t.Fatalf("xp calls = %+v, want +10 seller and +10 buyer", fx.xp.calls)
	}
	if got := fx.tokens.total("buyer"); got != 1 {
		t.Fatalf("buyer tokens = %d, want 1", got)
	}
}

func TestEndorseThirdGrantsGiverBonus(t *testing.T) {
	t.Parallel()

	fx := newEndorseFixture(t, defaultSettings())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result, err := fx.endorser.Endorse(ctx, repMessage("+rep <@seller>", "seller"))
		if err != nil {
			t.Fatalf("endorse %d: %v", i, err)
		}
		if want := i == 3; result.GiverBonus != want {
			t.Fatalf("endorse %d bonus = %v, want %v", i, result.GiverBonus, want)
		}
	}
	buyer, err := fx.store.GetAccount(ctx, "buyer")
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	if buyer.Reputation != 1 {
		t.Fatalf("buyer reputation = %d, want 1", buyer.Reputation)
	}
	if buyer.RepGivenCounter != 0 {
		t.Fatalf("counter = %d, want reset to 0", buyer.RepGivenCounter)
	}
	if got := fx.tokens.total("buyer"); got != 3+10 {
		t.Fatalf("buyer tokens = %d, want 13", got)
	}
}

func TestEndorseRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Endorsement
	}{
		{name: "wrong channel", msg: Endorsement{GuildID: "g1", ChannelID: "general", AuthorID: "buyer", Content: "+rep", MentionIDs: []string{"seller"}}},
		{name: "no mention", msg: repMessage("+rep great")},
		{name: "two mentions", msg: repMessage("+rep", "seller", "other")},
		{name: "self", msg: Endorsement{GuildID: "g1", ChannelID: "feedback", AuthorID: "seller", Content: "+rep", MentionIDs: []string{"seller"}}},
		{name: "not a seller", msg: repMessage("+rep", "other")},
		{name: "not a member", msg: repMessage("+rep", "ghost")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fx := newEndorseFixture(t, defaultSettings())
			result, err := fx.endorser.Endorse(context.Background(), tc.msg)
			if !apperrors.HasCode(err, apperrors.CodeEndorsementRejected) {
				t.Fatalf("error = %v, want ENDORSEMENT_REJECTED", err)
			}
			if result != nil {
				t.Fatalf("result = %+v, want nil", result)
			}
			if len(fx.tokens.calls)+len(fx.xp.calls) != 0 {
				t.Fatalf("rewards granted on rejection: tokens %+v xp %+v", fx.tokens.calls, fx.xp.calls)
			}
		})
	}
}

func TestEndorseIgnoresOrdinaryMessages(t *testing.T) {
	t.Parallel()

	fx := newEndorseFixture(t, defaultSettings())
	ctx := context.Background()

	for _, msg := range []Endorsement{
		repMessage("thanks <@seller>", "seller"),
		repMessage("+reputation", "seller"),
		{GuildID: "g1", ChannelID: "feedback", AuthorID: "bot", AuthorBot: true, Content: "+rep", MentionIDs: []string{"seller"}},
	} {
		result, err := fx.endorser.Endorse(ctx, msg)
		if err != nil || result != nil {
			t.Fatalf("Endorse(%q) = %+v, %v, want nil, nil", msg.Content, result, err)
		}
	}
}

func TestEndorseMissingSellerRole(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.SellerRoleID = ""
	fx := newEndorseFixture(t, settings)

	_, err := fx.endorser.Endorse(context.Background(), repMessage("+rep", "seller"))
	if !apperrors.HasCode(err, apperrors.CodeConfigMissing) {
		t.Fatalf("error = %v, want CONFIG_MISSING", err)
	}
}

func TestEndorseFallsBackToChannelName(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.ReputationChannelID = ""
	fx := newEndorseFixture(t, settings)
	ctx := context.Background()

	msg := repMessage("+rep", "seller")
	msg.ChannelID = "c9"
	msg.ChannelName = "Trusted-Feedback"
	if _, err := fx.endorser.Endorse(ctx, msg); err != nil {
		t.Fatalf("endorse by channel name: %v", err)
	}
	msg.ChannelName = "general"
	if _, err := fx.endorser.Endorse(ctx, msg); !apperrors.HasCode(err, apperrors.CodeEndorsementRejected) {
		t.Fatalf("error = %v, want ENDORSEMENT_REJECTED", err)
	}
}

func TestReviewText(t *testing.T) {
	t.Parallel()

	if got := reviewText("+REP <@!42>  solid   trade", "42"); got != "solid trade" {
		t.Fatalf("reviewText = %q, want %q", got, "solid trade")
	}
}
