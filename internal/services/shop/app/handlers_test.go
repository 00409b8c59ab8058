package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/invites"
	"github.com/opshop/guildshop/internal/services/shop/domain/rewards"
	"github.com/opshop/guildshop/internal/services/shop/domain/tickets"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/opshop/guildshop/internal/services/shop/storage/sqlite"
)

func quietLogf(string, ...any) {}

type sentMessage struct {
	channelID string
	message   gateway.Message
}

type fakeGateway struct {
	mu         sync.Mutex
	invites    map[string][]gateway.Invite
	inviteErrs map[string]error
	members    map[string]gateway.Member
	sent       []sentMessage
	nicknames  map[string]string
	guilds     []gateway.Guild
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		invites:    make(map[string][]gateway.Invite),
		inviteErrs: make(map[string]error),
		members:    make(map[string]gateway.Member),
		nicknames:  make(map[string]string),
	}
}

func (f *fakeGateway) setInvites(guildID string, invites ...gateway.Invite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[guildID] = invites
}

func (f *fakeGateway) ListInvites(_ context.Context, guildID string) ([]gateway.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.inviteErrs[guildID]; err != nil {
		return nil, err
	}
	return append([]gateway.Invite(nil), f.invites[guildID]...), nil
}

func (f *fakeGateway) GetMember(_ context.Context, guildID string, userID string) (gateway.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[userID]
	if !ok {
		return gateway.Member{}, apperrors.New(apperrors.CodeNotFound, "member not found")
	}
	member.GuildID = guildID
	return member, nil
}

func (f *fakeGateway) AddRole(_ context.Context, _ string, userID string, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member := f.members[userID]
	member.RoleIDs = append(member.RoleIDs, roleID)
	f.members[userID] = member
	return nil
}

func (f *fakeGateway) RemoveRole(context.Context, string, string, string) error { return nil }

func (f *fakeGateway) SetNickname(_ context.Context, _ string, userID string, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nicknames[userID] = nickname
	return nil
}

func (f *fakeGateway) SendMessage(_ context.Context, channelID string, message gateway.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, message: message})
	return nil
}

func (f *fakeGateway) ListGuilds(context.Context) ([]gateway.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Guild(nil), f.guilds...), nil
}

func (f *fakeGateway) titles(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var titles []string
	for _, sent := range f.sent {
		if sent.channelID == channelID {
			titles = append(titles, sent.message.Title)
		}
	}
	return titles
}

type fixture struct {
	store    *sqlite.Store
	gw       *fakeGateway
	services *Services
	handlers *Handlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRewards(t, rewards.DefaultConfig())
}

func newFixtureWithRewards(t *testing.T, rewardCfg rewards.Config) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	gw := newFakeGateway()
	services := NewServices(store, gw, ServiceConfig{
		Clock:   func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) },
		Logf:    quietLogf,
		Rewards: rewardCfg,
	})
	return &fixture{
		store:    store,
		gw:       gw,
		services: services,
		handlers: NewHandlers(context.Background(), services, quietLogf),
	}
}

func (fx *fixture) configure(t *testing.T, mutate func(*storage.GuildSettings)) {
	t.Helper()
	if _, err := fx.services.Settings.Update(context.Background(), "g1", mutate); err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func TestMemberJoinRewardsInviterOnce(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.configure(t, func(gs *storage.GuildSettings) { gs.InviteLogChannelID = "invite-log" })
	fx.gw.members["inviter"] = gateway.Member{UserID: "inviter"}
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 3, InviterID: "inviter"})
	if err := fx.handlers.PrimeCaches(context.Background(), []string{"g1"}); err != nil {
		t.Fatalf("prime caches: %v", err)
	}

	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 4, InviterID: "inviter"})
	fx.handlers.HandleMemberJoin(invites.MemberJoin{GuildID: "g1", UserID: "newbie"})
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 5, InviterID: "inviter"})
	fx.handlers.HandleMemberJoin(invites.MemberJoin{GuildID: "g1", UserID: "newbie"})

	ctx := context.Background()
	inviter, err := fx.store.GetAccount(ctx, "inviter")
	if err != nil {
		t.Fatalf("get inviter: %v", err)
	}
	if inviter.Tokens != 10 || inviter.XP != 50 {
		t.Fatalf("inviter = tokens %d xp %d, want 10 and 50", inviter.Tokens, inviter.XP)
	}
	if _, err := fx.store.GetAccount(ctx, "newbie"); err != nil {
		t.Fatalf("expected joiner account: %v", err)
	}
	attribution, err := fx.store.GetJoinAttribution(ctx, "g1", "newbie")
	if err != nil {
		t.Fatalf("get attribution: %v", err)
	}
	if attribution.InviterID != "inviter" {
		t.Fatalf("inviter = %q, want inviter", attribution.InviterID)
	}
	if titles := fx.gw.titles("invite-log"); len(titles) != 1 {
		t.Fatalf("invite log titles = %v, want one summary", titles)
	}
}

func TestZeroRewardConfigGrantsNothing(t *testing.T) {
	t.Parallel()

	fx := newFixtureWithRewards(t, rewards.Config{})
	fx.gw.members["inviter"] = gateway.Member{UserID: "inviter"}
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 3, InviterID: "inviter"})
	if err := fx.handlers.PrimeCaches(context.Background(), []string{"g1"}); err != nil {
		t.Fatalf("prime caches: %v", err)
	}
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 4, InviterID: "inviter"})
	fx.handlers.HandleMemberJoin(invites.MemberJoin{GuildID: "g1", UserID: "newbie"})

	attribution, err := fx.store.GetJoinAttribution(context.Background(), "g1", "newbie")
	if err != nil || attribution.InviterID != "inviter" {
		t.Fatalf("attribution = %+v, %v, want inviter", attribution, err)
	}
	inviter, err := fx.store.GetAccount(context.Background(), "inviter")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get inviter: %v", err)
	}
	if inviter.Tokens != 0 || inviter.XP != 0 {
		t.Fatalf("inviter = tokens %d xp %d, want nothing granted", inviter.Tokens, inviter.XP)
	}
}

func TestBotJoinCreatesNoAccount(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 1, InviterID: "inviter"})
	if err := fx.handlers.PrimeCaches(context.Background(), []string{"g1"}); err != nil {
		t.Fatalf("prime caches: %v", err)
	}
	fx.handlers.HandleMemberJoin(invites.MemberJoin{GuildID: "g1", UserID: "robot", Bot: true})

	if _, err := fx.store.GetAccount(context.Background(), "robot"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("bot account error = %v, want not found", err)
	}
}

func TestPrimeCachesReportsFailingGuild(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 1})
	fx.gw.inviteErrs["g2"] = errors.New("gateway unavailable")

	if err := fx.handlers.PrimeCaches(context.Background(), []string{"g1", "g2"}); err == nil {
		t.Fatal("expected priming error for g2")
	}
	if !fx.services.Tracker.Ready("g1") {
		t.Fatal("expected g1 snapshot to be ready")
	}
	if fx.services.Tracker.Ready("g2") {
		t.Fatal("expected g2 snapshot not ready")
	}
}

func TestReadyWithoutGuildsPrimesKnownGuilds(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.gw.guilds = []gateway.Guild{{ID: "g1", Name: "Shop"}}
	fx.gw.setInvites("g1", gateway.Invite{Code: "A", Uses: 2, InviterID: "u1"})

	fx.handlers.onReady(nil, &discordgo.Ready{})

	if !fx.services.Tracker.Ready("g1") {
		t.Fatal("expected g1 snapshot to be ready after ready event")
	}
	if got := fx.services.Tracker.Snapshot("g1")["A"]; got != 2 {
		t.Fatalf("snapshot uses = %d, want 2", got)
	}
}

func TestHandleMessageEndorsesSeller(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.configure(t, func(gs *storage.GuildSettings) {
		gs.SellerRoleID = "seller-role"
		gs.ReputationChannelID = "feedback"
	})
	fx.gw.members["seller"] = gateway.Member{UserID: "seller", RoleIDs: []string{"seller-role"}}
	fx.gw.members["buyer"] = gateway.Member{UserID: "buyer"}

	fx.handlers.HandleMessage(ChatMessage{GuildID: "g1", ChannelID: "feedback", AuthorID: "buyer", Content: "+rep <@seller> great", MentionIDs: []string{"seller"}})
	fx.handlers.HandleMessage(ChatMessage{GuildID: "g1", ChannelID: "feedback", AuthorID: "buyer", Content: "+rep <@buyer>", MentionIDs: []string{"buyer"}})

	seller, err := fx.store.GetAccount(context.Background(), "seller")
	if err != nil {
		t.Fatalf("get seller: %v", err)
	}
	if seller.Reputation != 1 {
		t.Fatalf("seller reputation = %d, want 1", seller.Reputation)
	}
	titles := fx.gw.titles("feedback")
	if len(titles) != 2 || titles[0] != "Reputation Added" || titles[1] != "Reputation Not Added" {
		t.Fatalf("feedback titles = %v", titles)
	}
}

func TestHandleMessageRecordsTicketTranscript(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()
	ticket, _, err := fx.services.Tickets.Open(ctx, tickets.OpenRequest{GuildID: "g1", UserID: "buyer", ChannelID: "ticket-chan"})
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}

	fx.handlers.HandleMessage(ChatMessage{GuildID: "g1", ChannelID: "ticket-chan", AuthorID: "buyer", Content: "hello"})
	fx.handlers.HandleMessage(ChatMessage{GuildID: "g1", ChannelID: "ticket-chan", AuthorID: "bot", AuthorBot: true, Content: "beep"})

	transcript, err := fx.services.Tickets.Transcript(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(transcript) != 1 || transcript[0].Content != "hello" {
		t.Fatalf("transcript = %+v, want one line", transcript)
	}
}

func TestGatewayEventsAreTranslated(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.gw.setInvites("g1")
	if err := fx.handlers.PrimeCaches(context.Background(), []string{"g1"}); err != nil {
		t.Fatalf("prime caches: %v", err)
	}

	fx.handlers.onInviteCreate(nil, &discordgo.InviteCreate{
		Invite:  &discordgo.Invite{Code: "NEW", Uses: 0, Inviter: &discordgo.User{ID: "inviter"}},
		GuildID: "g1",
	})
	if got := fx.services.Tracker.Snapshot("g1"); len(got) != 1 || got["NEW"] != 0 {
		t.Fatalf("snapshot = %v, want NEW:0", got)
	}

	fx.gw.setInvites("g1", gateway.Invite{Code: "NEW", Uses: 1, InviterID: "inviter"})
	fx.handlers.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: "joiner"},
	}})
	attribution, err := fx.store.GetJoinAttribution(context.Background(), "g1", "joiner")
	if err != nil {
		t.Fatalf("get attribution: %v", err)
	}
	if attribution.InviterID != "inviter" {
		t.Fatalf("inviter = %q, want inviter", attribution.InviterID)
	}

	fx.handlers.onInviteDelete(nil, &discordgo.InviteDelete{GuildID: "g1", Code: "NEW"})
	if got := fx.services.Tracker.Snapshot("g1"); len(got) != 0 {
		t.Fatalf("snapshot = %v, want empty after delete", got)
	}

	fx.handlers.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: "robot", Bot: true},
	}})
	if _, err := fx.store.GetJoinAttribution(context.Background(), "g1", "robot"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("bot attribution error = %v, want not found", err)
	}
}

func TestMessageCreateWithoutStateUsesMentions(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.configure(t, func(gs *storage.GuildSettings) {
		gs.SellerRoleID = "seller-role"
		gs.ReputationChannelID = "feedback"
	})
	fx.gw.members["seller"] = gateway.Member{UserID: "seller", RoleIDs: []string{"seller-role"}}

	fx.handlers.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   "g1",
		ChannelID: "feedback",
		Content:   "+rep <@seller>",
		Author:    &discordgo.User{ID: "buyer"},
		Mentions:  []*discordgo.User{{ID: "seller"}},
	}})
	seller, err := fx.store.GetAccount(context.Background(), "seller")
	if err != nil {
		t.Fatalf("get seller: %v", err)
	}
	if seller.Reputation != 1 {
		t.Fatalf("seller reputation = %d, want 1", seller.Reputation)
	}
}

type fakeRegistrar struct {
	added   int
	removed int
}

func (f *fakeRegistrar) AddHandler(interface{}) func() {
	f.added++
	return func() { f.removed++ }
}

func TestRegisterAttachesAndDetachesHandlers(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	registrar := &fakeRegistrar{}
	unregister := fx.handlers.Register(registrar)
	if registrar.added != 6 {
		t.Fatalf("added = %d, want 6", registrar.added)
	}
	unregister()
	if registrar.removed != 6 {
		t.Fatalf("removed = %d, want 6", registrar.removed)
	}
}

func TestEventsAfterShutdownAreDropped(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handlers := NewHandlers(ctx, fx.services, quietLogf)

	handlers.HandleMemberJoin(invites.MemberJoin{GuildID: "g1", UserID: "late"})
	if _, err := fx.store.GetJoinAttribution(context.Background(), "g1", "late"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("attribution error = %v, want not found", err)
	}
}
