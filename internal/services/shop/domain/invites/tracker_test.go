package invites

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
)

type fakeInviteGateway struct {
	mu      sync.Mutex
	invites []gateway.Invite
	err     error
	calls   int
}

func (f *fakeInviteGateway) set(invites ...gateway.Invite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append([]gateway.Invite(nil), invites...)
}

func (f *fakeInviteGateway) ListInvites(context.Context, string) ([]gateway.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]gateway.Invite(nil), f.invites...), nil
}

type memoryInviteStore struct {
	mu        sync.Mutex
	records   map[string]map[string]storage.InviteRecord
	upsertErr error
}

func newMemoryInviteStore() *memoryInviteStore {
	return &memoryInviteStore{records: map[string]map[string]storage.InviteRecord{}}
}

func (m *memoryInviteStore) UpsertInvites(_ context.Context, guildID string, invites []storage.InviteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.records[guildID] == nil {
		m.records[guildID] = map[string]storage.InviteRecord{}
	}
	for _, invite := range invites {
		m.records[guildID][invite.Code] = invite
	}
	return nil
}

func (m *memoryInviteStore) ListInvites(_ context.Context, guildID string) ([]storage.InviteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.InviteRecord
	for _, record := range m.records[guildID] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryInviteStore) DeleteInvite(_ context.Context, guildID string, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[guildID], code)
	return nil
}

func (m *memoryInviteStore) uses(guildID string, code string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[guildID][code]
	return record.Uses, ok
}

func quietLogf(string, ...any) {}

func detect(t *testing.T, tracker *Tracker, guildID string) (Use, bool) {
	t.Helper()
	unlock := tracker.Lock(guildID)
	defer unlock()
	use, found, err := tracker.DetectUsedInvite(context.Background(), guildID)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return use, found
}

func TestDetectUsedInviteDiffsReadySnapshot(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	store := newMemoryInviteStore()
	tracker := NewTracker(gw, store, quietLogf)

	gw.set(gateway.Invite{Code: "A", Uses: 3, InviterID: "alice"}, gateway.Invite{Code: "B", Uses: 5, InviterID: "bob"})
	if err := tracker.CacheGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}

	gw.set(
		gateway.Invite{Code: "A", Uses: 3, InviterID: "alice"},
		gateway.Invite{Code: "B", Uses: 6, InviterID: "bob"},
		gateway.Invite{Code: "C", Uses: 1, InviterID: "carol"},
	)
	use, found := detect(t, tracker, "g1")
	if !found {
		t.Fatal("expected an invite to be detected")
	}
	if use.Code != "B" || use.Uses != 6 || use.InviterID != "bob" {
		t.Fatalf("use = %+v, want B/6/bob", use)
	}

	want := map[string]int{"A": 3, "B": 6, "C": 1}
	got := tracker.Snapshot("g1")
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for code, uses := range want {
		if got[code] != uses {
			t.Fatalf("snapshot[%s] = %d, want %d", code, got[code], uses)
		}
		if stored, ok := store.uses("g1", code); !ok || stored != uses {
			t.Fatalf("persisted[%s] = %d (%v), want %d", code, stored, ok, uses)
		}
	}
}

func TestDetectUsedInviteFirstIncreaseWins(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)
	gw.set(gateway.Invite{Code: "A", Uses: 1}, gateway.Invite{Code: "B", Uses: 1})
	if err := tracker.CacheGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}
	gw.set(gateway.Invite{Code: "B", Uses: 2}, gateway.Invite{Code: "A", Uses: 2})

	use, found := detect(t, tracker, "g1")
	if !found || use.Code != "B" {
		t.Fatalf("use = %+v (%v), want B in fetch order", use, found)
	}
}

func TestDetectUsedInviteNoIncrease(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)
	gw.set(gateway.Invite{Code: "A", Uses: 3})
	if err := tracker.CacheGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}

	if _, found := detect(t, tracker, "g1"); found {
		t.Fatal("expected no detection without an increase")
	}
}

func TestDetectUsedInviteColdStartUsesPersistedCounts(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	store := newMemoryInviteStore()
	if err := store.UpsertInvites(context.Background(), "g1", []storage.InviteRecord{{GuildID: "g1", Code: "A", Uses: 3, InviterID: "alice"}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	tracker := NewTracker(gw, store, quietLogf)
	gw.set(gateway.Invite{Code: "A", Uses: 4, InviterID: "alice"})

	if tracker.Ready("g1") {
		t.Fatal("snapshot ready before first fetch")
	}
	use, found := detect(t, tracker, "g1")
	if !found || use.Code != "A" || use.InviterID != "alice" {
		t.Fatalf("use = %+v (%v), want A/alice", use, found)
	}
	if !tracker.Ready("g1") {
		t.Fatal("snapshot not ready after detection")
	}
	if stored, _ := store.uses("g1", "A"); stored != 4 {
		t.Fatalf("persisted uses = %d, want 4", stored)
	}
}

func TestDetectUsedInviteColdStartWithoutHistory(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)
	gw.set(gateway.Invite{Code: "A", Uses: 4})

	if _, found := detect(t, tracker, "g1"); found {
		t.Fatal("expected no attribution without history")
	}
	if !tracker.Ready("g1") {
		t.Fatal("snapshot not ready after detection")
	}
	if got := tracker.Snapshot("g1"); got["A"] != 4 {
		t.Fatalf("snapshot = %v, want A:4", got)
	}
}

func TestDetectUsedInvitePermissionDenied(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{err: apperrors.New(apperrors.CodePermissionDenied, "missing manage guild")}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)

	unlock := tracker.Lock("g1")
	_, found, err := tracker.DetectUsedInvite(context.Background(), "g1")
	unlock()
	if err != nil {
		t.Fatalf("detect error = %v, want nil", err)
	}
	if found {
		t.Fatal("expected no detection")
	}
	if tracker.Ready("g1") {
		t.Fatal("snapshot must stay not ready after a failed fetch")
	}
}

func TestDetectUsedInviteOtherFetchErrors(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{err: errors.New("gateway timeout")}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)

	unlock := tracker.Lock("g1")
	_, found, err := tracker.DetectUsedInvite(context.Background(), "g1")
	unlock()
	if err == nil || found {
		t.Fatalf("detect = %v, %v; want error and no detection", found, err)
	}
}

func TestDetectUsedInviteKeepsSnapshotWhenPersistFails(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	store := newMemoryInviteStore()
	store.upsertErr = errors.New("disk full")
	tracker := NewTracker(gw, store, quietLogf)
	gw.set(gateway.Invite{Code: "A", Uses: 2})

	detect(t, tracker, "g1")
	if !tracker.Ready("g1") || tracker.Snapshot("g1")["A"] != 2 {
		t.Fatalf("snapshot = %v ready=%v, want A:2 ready", tracker.Snapshot("g1"), tracker.Ready("g1"))
	}
}

func TestCacheGuildPermissionDeniedIsNotAnError(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{err: apperrors.New(apperrors.CodePermissionDenied, "nope")}
	tracker := NewTracker(gw, newMemoryInviteStore(), quietLogf)
	if err := tracker.CacheGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}
	if tracker.Ready("g1") {
		t.Fatal("snapshot ready after permission failure")
	}
}

func TestInviteCreatedAndDeletedMaintainSnapshot(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	store := newMemoryInviteStore()
	tracker := NewTracker(gw, store, quietLogf)
	ctx := context.Background()
	gw.set(gateway.Invite{Code: "A", Uses: 1})
	if err := tracker.CacheGuild(ctx, "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}

	tracker.InviteCreated(ctx, "g1", gateway.Invite{Code: "N", InviterID: "nina"})
	if got := tracker.Snapshot("g1"); got["N"] != 0 || len(got) != 2 {
		t.Fatalf("snapshot = %v, want A and N", got)
	}
	gw.set(gateway.Invite{Code: "A", Uses: 1}, gateway.Invite{Code: "N", Uses: 1, InviterID: "nina"})
	use, found := detect(t, tracker, "g1")
	if !found || use.Code != "N" {
		t.Fatalf("use = %+v (%v), want N", use, found)
	}

	tracker.InviteDeleted(ctx, "g1", "A")
	if _, ok := tracker.Snapshot("g1")["A"]; ok {
		t.Fatal("deleted invite still in snapshot")
	}
	if _, ok := store.uses("g1", "A"); ok {
		t.Fatal("deleted invite still persisted")
	}
}

func TestInviteCreatedBeforeReadyWithoutHistoryIsNotPersisted(t *testing.T) {
	t.Parallel()

	store := newMemoryInviteStore()
	tracker := NewTracker(&fakeInviteGateway{}, store, quietLogf)
	tracker.InviteCreated(context.Background(), "g1", gateway.Invite{Code: "N"})
	if tracker.Ready("g1") {
		t.Fatal("created invite must not mark snapshot ready")
	}
	if _, ok := store.uses("g1", "N"); ok {
		t.Fatal("created invite persisted without prior history")
	}
}

func TestInviteCreatedBeforeReadyExtendsExistingHistory(t *testing.T) {
	t.Parallel()

	store := newMemoryInviteStore()
	if err := store.UpsertInvites(context.Background(), "g1", []storage.InviteRecord{{GuildID: "g1", Code: "A", Uses: 3}}); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	tracker := NewTracker(&fakeInviteGateway{}, store, quietLogf)
	tracker.InviteCreated(context.Background(), "g1", gateway.Invite{Code: "N"})
	if uses, ok := store.uses("g1", "N"); !ok || uses != 0 {
		t.Fatalf("created invite uses = %d (persisted %v), want 0 persisted", uses, ok)
	}
}

func TestFailedPrimingThenCreatedInviteAttributesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryInviteStore()
	gw := &fakeInviteGateway{err: errors.New("gateway unavailable")}
	tracker := NewTracker(gw, store, quietLogf)
	if err := tracker.CacheGuild(ctx, "g1"); err == nil {
		t.Fatal("expected priming error")
	}
	tracker.InviteCreated(ctx, "g1", gateway.Invite{Code: "NEW", InviterID: "bob"})

	gw.mu.Lock()
	gw.err = nil
	gw.mu.Unlock()
	gw.set(
		gateway.Invite{Code: "OLD", Uses: 57, InviterID: "alice"},
		gateway.Invite{Code: "NEW", Uses: 1, InviterID: "bob"},
	)
	if use, found := detect(t, tracker, "g1"); found {
		t.Fatalf("detected %+v, want nothing on first observation", use)
	}
	if !tracker.Ready("g1") {
		t.Fatal("snapshot not ready after first observation")
	}
}

func TestLockSerializesPerGuild(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(&fakeInviteGateway{}, nil, quietLogf)
	unlock := tracker.Lock("g1")

	acquired := make(chan struct{})
	go func() {
		release := tracker.Lock("g1")
		close(acquired)
		release()
	}()
	otherGuild := make(chan struct{})
	go func() {
		release := tracker.Lock("g2")
		close(otherGuild)
		release()
	}()

	select {
	case <-otherGuild:
	case <-time.After(time.Second):
		t.Fatal("other guild blocked by g1 lock")
	}
	select {
	case <-acquired:
		t.Fatal("second g1 lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("g1 lock not released")
	}
}

func TestTrackersAreIndependent(t *testing.T) {
	t.Parallel()

	gw := &fakeInviteGateway{}
	gw.set(gateway.Invite{Code: "A", Uses: 1})
	first := NewTracker(gw, nil, quietLogf)
	second := NewTracker(gw, nil, quietLogf)
	if err := first.CacheGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("cache guild: %v", err)
	}
	if second.Ready("g1") {
		t.Fatal("snapshot leaked between trackers")
	}
}
