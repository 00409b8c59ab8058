package admin

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/catalog"
	"github.com/opshop/guildshop/internal/services/shop/domain/economy"
	"github.com/opshop/guildshop/internal/services/shop/domain/redeem"
	"github.com/opshop/guildshop/internal/services/shop/domain/reputation"
	"github.com/opshop/guildshop/internal/services/shop/domain/settings"
	"github.com/opshop/guildshop/internal/services/shop/domain/tickets"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage/sqlite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	testGuild = "g1"
	testOwner = "owner"
)

func quietLogf(string, ...any) {}

type fakeMembers struct {
	mu        sync.Mutex
	roles     map[string][]string
	nicknames map[string]string
}

func (f *fakeMembers) GetMember(_ context.Context, guildID string, userID string) (gateway.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles, ok := f.roles[userID]
	if !ok {
		return gateway.Member{}, apperrors.New(apperrors.CodeNotFound, "member not found")
	}
	return gateway.Member{GuildID: guildID, UserID: userID, RoleIDs: append([]string(nil), roles...)}, nil
}

func (f *fakeMembers) AddRole(_ context.Context, _ string, userID string, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = append(f.roles[userID], roleID)
	return nil
}

func (f *fakeMembers) RemoveRole(_ context.Context, _ string, userID string, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.roles[userID][:0]
	for _, held := range f.roles[userID] {
		if held != roleID {
			kept = append(kept, held)
		}
	}
	f.roles[userID] = kept
	return nil
}

func (f *fakeMembers) SetNickname(_ context.Context, _ string, userID string, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nicknames[userID] = nickname
	return nil
}

func (f *fakeMembers) nickname(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nicknames[userID]
}

type fixture struct {
	addr    string
	members *fakeMembers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	members := &fakeMembers{
		roles: map[string][]string{
			testOwner: nil,
			"buyer":   nil,
			"seller":  {"role-seller"},
		},
		nicknames: map[string]string{},
	}
	settingsSvc := settings.NewService(store, nil)
	economySvc := economy.NewService(store, nil, quietLogf)
	xpSvc := xp.NewService(store, quietLogf)
	catalogSvc := catalog.NewService(store, nil)
	engine := reputation.NewEngine(store, members, settingsSvc, nil, nil, quietLogf)
	ticketSvc := tickets.NewService(tickets.Deps{
		Store:      store,
		Settings:   settingsSvc,
		Members:    members,
		Items:      catalogSvc,
		Ledger:     economySvc,
		XP:         xpSvc,
		Reputation: engine,
		OwnerID:    testOwner,
		Logf:       quietLogf,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := grpc.NewServer()
	Register(server, NewServer(Deps{
		Settings:     settingsSvc,
		Reputation:   engine,
		Catalog:      catalogSvc,
		Tickets:      ticketSvc,
		Economy:      economySvc,
		XP:           xpSvc,
		Redeem:       redeem.NewService(economySvc, members, redeem.Config{}, quietLogf),
		Transactions: store,
		OwnerID:      testOwner,
		Logf:         quietLogf,
	}))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	return &fixture{addr: listener.Addr().String(), members: members}
}

func (f *fixture) client(t *testing.T, actorID string) *Client {
	t.Helper()
	client, err := Dial(f.addr, actorID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("code = %v (%v), want %v", got, err, want)
	}
}

func TestCallWithoutActorIsUnauthenticated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.client(t, "").Call(context.Background(), "GetSettings", GetSettingsRequest{GuildID: testGuild}, nil)
	wantCode(t, err, codes.Unauthenticated)
}

func TestUnknownRequestFieldIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.client(t, testOwner).Call(context.Background(), "GetSettings",
		map[string]any{"guild_id": testGuild, "guild": "typo"}, nil)
	wantCode(t, err, codes.InvalidArgument)
}

func TestUpdateSettingsIsOwnerOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	err := f.client(t, "buyer").Call(ctx, "UpdateSettings",
		map[string]any{"guild_id": testGuild, "seller_role_id": "role-x"}, nil)
	wantCode(t, err, codes.PermissionDenied)

	owner := f.client(t, testOwner)
	var updated SettingsResponse
	if err := owner.Call(ctx, "UpdateSettings", map[string]any{
		"guild_id":             testGuild,
		"seller_role_id":       "role-seller",
		"audit_log_channel_id": "c-audit",
	}, &updated); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	var got SettingsResponse
	if err := owner.Call(ctx, "GetSettings", GetSettingsRequest{GuildID: testGuild}, &got); err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.Settings.SellerRoleID != "role-seller" || got.Settings.AuditLogChannelID != "c-audit" {
		t.Fatalf("settings = %+v, want seller role and audit channel", got.Settings)
	}
	if got.Settings.TicketManagerRoleID != "" {
		t.Fatalf("ticket manager role = %q, want untouched", got.Settings.TicketManagerRoleID)
	}
}

func TestTierLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	owner := f.client(t, testOwner)

	for _, tier := range []SetTierRequest{
		{GuildID: testGuild, RoleID: "role-gold", Threshold: 50},
		{GuildID: testGuild, RoleID: "role-bronze", Threshold: 5},
	} {
		if err := owner.Call(ctx, "SetTier", tier, nil); err != nil {
			t.Fatalf("set tier %s: %v", tier.RoleID, err)
		}
	}
	err := owner.Call(ctx, "SetTier", SetTierRequest{GuildID: testGuild, RoleID: "role-x", Threshold: 0}, nil)
	wantCode(t, err, codes.InvalidArgument)

	var listed ListTiersResponse
	if err := f.client(t, "buyer").Call(ctx, "ListTiers", ListTiersRequest{GuildID: testGuild}, &listed); err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	if len(listed.Tiers) != 2 || listed.Tiers[0].RoleID != "role-bronze" || listed.Tiers[1].RoleID != "role-gold" {
		t.Fatalf("tiers = %+v, want bronze then gold", listed.Tiers)
	}

	var removed RemoveTierResponse
	if err := owner.Call(ctx, "RemoveTier", RemoveTierRequest{GuildID: testGuild, RoleID: "role-gold"}, &removed); err != nil {
		t.Fatalf("remove tier: %v", err)
	}
	if !removed.Removed {
		t.Fatal("expected tier removed")
	}

	var award AccountResponse
	if err := owner.Call(ctx, "AwardReputation", AwardReputationRequest{GuildID: testGuild, ToUserID: "buyer", Amount: 6}, &award); err != nil {
		t.Fatalf("award reputation: %v", err)
	}
	if award.Account.Reputation != 6 {
		t.Fatalf("reputation = %d, want 6", award.Account.Reputation)
	}
	if member, _ := f.members.GetMember(ctx, testGuild, "buyer"); !member.HasRole("role-bronze") {
		t.Fatalf("roles = %v, want bronze granted", member.RoleIDs)
	}
}

func TestOrderThroughTicket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	owner := f.client(t, testOwner)
	buyer := f.client(t, "buyer")
	seller := f.client(t, "seller")

	if err := owner.Call(ctx, "UpdateSettings", map[string]any{"guild_id": testGuild, "seller_role_id": "role-seller"}, nil); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	var category CategoryResponse
	if err := owner.Call(ctx, "CreateCategory", CreateCategoryRequest{GuildID: testGuild, Name: "Boosts"}, &category); err != nil {
		t.Fatalf("create category: %v", err)
	}
	var item ItemResponse
	if err := owner.Call(ctx, "CreateItem", CreateItemRequest{
		CategoryID:     category.Category.ID,
		Name:           "Raid carry",
		Price:          20,
		RequiresTicket: true,
		TokenReward:    5,
		XPReward:       100,
	}, &item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	if !item.Item.Active || item.Item.Currency != catalog.CurrencyTokens {
		t.Fatalf("item = %+v, want active tokens item", item.Item)
	}
	err := buyer.Call(ctx, "CreateItem", CreateItemRequest{CategoryID: category.Category.ID, Name: "Nope"}, nil)
	wantCode(t, err, codes.PermissionDenied)

	err = buyer.Call(ctx, "OpenTicket", OpenTicketRequest{GuildID: testGuild, UserID: "seller"}, nil)
	wantCode(t, err, codes.PermissionDenied)
	var opened OpenTicketResponse
	if err := buyer.Call(ctx, "OpenTicket", OpenTicketRequest{GuildID: testGuild, UserID: "buyer", ItemID: item.Item.ID}, &opened); err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	if !opened.Created {
		t.Fatal("expected a new ticket")
	}
	ticket := TicketRequest{TicketID: opened.Ticket.ID}

	err = buyer.Call(ctx, "CompleteOrder", ticket, nil)
	wantCode(t, err, codes.PermissionDenied)

	var claimed TicketResponse
	if err := seller.Call(ctx, "ClaimTicket", ticket, &claimed); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Ticket.ClaimedBy != "seller" {
		t.Fatalf("claimed by = %q, want seller", claimed.Ticket.ClaimedBy)
	}

	var order CompleteOrderResponse
	if err := seller.Call(ctx, "CompleteOrder", ticket, &order); err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if order.TokensAwarded != 5 || order.XPAwarded <= 0 || !order.ReputationAdded {
		t.Fatalf("order = %+v, want tokens, xp and reputation", order)
	}
	if order.Item == nil || order.Item.ID != item.Item.ID {
		t.Fatalf("order item = %+v, want %s", order.Item, item.Item.ID)
	}
	err = seller.Call(ctx, "CompleteOrder", ticket, nil)
	wantCode(t, err, codes.FailedPrecondition)

	var account AccountResponse
	if err := buyer.Call(ctx, "GetAccount", GetAccountRequest{UserID: "buyer"}, &account); err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Account.Tokens != 5 {
		t.Fatalf("tokens = %d, want 5", account.Account.Tokens)
	}
	err = seller.Call(ctx, "GetAccount", GetAccountRequest{UserID: "buyer"}, nil)
	wantCode(t, err, codes.PermissionDenied)

	err = f.client(t, "stranger").Call(ctx, "GetTranscript", ticket, nil)
	wantCode(t, err, codes.PermissionDenied)
	if err := buyer.Call(ctx, "GetTranscript", ticket, &TranscriptResponse{}); err != nil {
		t.Fatalf("transcript: %v", err)
	}
}

func TestListTransactionsFiltersAndPages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	owner := f.client(t, testOwner)

	for _, grant := range []ModifyTokensRequest{
		{UserID: "u1", Amount: 10},
		{UserID: "u2", Amount: 7},
		{UserID: "u1", Amount: 20},
		{UserID: "u1", Amount: 30},
	} {
		if err := owner.Call(ctx, "ModifyTokens", grant, nil); err != nil {
			t.Fatalf("modify tokens: %v", err)
		}
	}

	req := ListTransactionsRequest{PageSize: 2, Filter: `user_id = "u1"`}
	var first ListTransactionsResponse
	if err := owner.Call(ctx, "ListTransactions", req, &first); err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Transactions) != 2 || first.NextPageToken == "" {
		t.Fatalf("first page = %+v, want 2 entries and a token", first)
	}
	req.PageToken = first.NextPageToken
	var second ListTransactionsResponse
	if err := owner.Call(ctx, "ListTransactions", req, &second); err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Transactions) != 1 || second.NextPageToken != "" {
		t.Fatalf("second page = %+v, want the last entry", second)
	}
	for _, txn := range append(first.Transactions, second.Transactions...) {
		if txn.UserID != "u1" {
			t.Fatalf("transaction for %q, want only u1", txn.UserID)
		}
	}

	err := owner.Call(ctx, "ListTransactions", ListTransactionsRequest{Filter: `balance > 3`}, nil)
	wantCode(t, err, codes.InvalidArgument)
	err = f.client(t, "u1").Call(ctx, "ListTransactions", ListTransactionsRequest{}, nil)
	wantCode(t, err, codes.PermissionDenied)
}

func TestMemberSpendsOwnTokens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	owner := f.client(t, testOwner)
	member := f.client(t, "u1")

	if err := owner.Call(ctx, "ModifyTokens", ModifyTokensRequest{UserID: "u1", Amount: 20}, nil); err != nil {
		t.Fatalf("modify tokens: %v", err)
	}

	err := f.client(t, "u2").Call(ctx, "Transfer", TransferRequest{FromUserID: "u1", ToUserID: "u2", Amount: 5}, nil)
	wantCode(t, err, codes.PermissionDenied)
	var sent TransferResponse
	if err := member.Call(ctx, "Transfer", TransferRequest{FromUserID: "u1", ToUserID: "u2", Amount: 5}, &sent); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if sent.Sent != 5 {
		t.Fatalf("sent = %d, want 5", sent.Sent)
	}

	var renamed RedeemNicknameResponse
	if err := member.Call(ctx, "RedeemNickname", RedeemNicknameRequest{GuildID: testGuild, UserID: "u1", Nickname: "Shopper"}, &renamed); err != nil {
		t.Fatalf("redeem nickname: %v", err)
	}
	if got := f.members.nickname("u1"); got != "Shopper" {
		t.Fatalf("nickname = %q, want Shopper", got)
	}

	err = member.Call(ctx, "ExchangeTokens", ExchangeTokensRequest{UserID: "u1", Tokens: 1000}, nil)
	wantCode(t, err, codes.FailedPrecondition)
	err = member.Call(ctx, "ModifyTokens", ModifyTokensRequest{UserID: "u1", Amount: 1000}, nil)
	wantCode(t, err, codes.PermissionDenied)
}

func TestOwnerCallsFailWithoutConfiguredOwner(t *testing.T) {
	t.Parallel()

	server := NewServer(Deps{Logf: quietLogf})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(ActorIDHeader, "anyone"))
	_, err := server.UpdateEconomyConfig(ctx, UpdateEconomyConfigRequest{})
	if !apperrors.HasCode(err, apperrors.CodeConfigMissing) {
		t.Fatalf("error = %v, want CONFIG_MISSING", err)
	}
	wantCode(t, handleDomainError(err), codes.FailedPrecondition)
}
