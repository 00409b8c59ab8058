// Package invites attributes guild joins to the invite that produced them.
//
// A Tracker keeps one invite-use snapshot per guild and a per-guild lock.
// Joins in the same guild are serialized through the lock around the
// fetch-diff-replace step so no two joins diff against the same snapshot;
// joins in different guilds proceed independently.
package invites

import (
	"context"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/opshop/guildshop/internal/services/shop/domain/invites")

type inviteLister interface {
	ListInvites(ctx context.Context, guildID string) ([]gateway.Invite, error)
}

// Use identifies the invite credited with a join.
type Use struct {
	Code      string
	InviterID string
	Uses      int
}

type snapshot struct {
	ready bool
	uses  map[string]int
}

// Tracker owns the per-guild invite snapshots and locks.
type Tracker struct {
	gateway inviteLister
	store   storage.InviteStore
	logf    func(string, ...any)

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	snapshots map[string]*snapshot
}

// NewTracker creates a tracker with empty, not-ready snapshots.
func NewTracker(gw inviteLister, store storage.InviteStore, logf func(string, ...any)) *Tracker {
	if logf == nil {
		logf = log.Printf
	}
	return &Tracker{
		gateway:   gw,
		store:     store,
		logf:      logf,
		locks:     make(map[string]*sync.Mutex),
		snapshots: make(map[string]*snapshot),
	}
}

// Lock acquires the guild's lock, creating it on first use, and returns
// the matching unlock func.
func (t *Tracker) Lock(guildID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[guildID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[guildID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Ready reports whether the guild's snapshot reflects a successful fetch.
func (t *Tracker) Ready(guildID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[guildID]
	return ok && snap.ready
}

// Snapshot returns a copy of the guild's cached use counts.
func (t *Tracker) Snapshot(guildID string) map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[guildID]
	if !ok {
		return map[string]int{}
	}
	out := make(map[string]int, len(snap.uses))
	for code, uses := range snap.uses {
		out[code] = uses
	}
	return out
}

func (t *Tracker) loadSnapshot(guildID string) (map[string]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[guildID]
	if !ok || !snap.ready {
		return nil, false
	}
	return snap.uses, true
}

func (t *Tracker) storeSnapshot(guildID string, uses map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[guildID] = &snapshot{ready: true, uses: uses}
}

// DetectUsedInvite fetches the guild's live invites, finds the first one
// whose use count increased, then replaces the snapshot and persists the
// fresh counts. The caller must hold the guild lock.
//
// A permission failure while fetching yields no result and no error. When
// the snapshot is not ready the persisted counts are the baseline; with no
// persisted history either, nothing can be attributed.
func (t *Tracker) DetectUsedInvite(ctx context.Context, guildID string) (Use, bool, error) {
	ctx, span := tracer.Start(ctx, "invites.detect")
	defer span.End()
	span.SetAttributes(attribute.String("guild.id", guildID))

	live, err := t.gateway.ListInvites(ctx, guildID)
	if err != nil {
		if apperrors.IsPermissionDenied(err) {
			t.logf("[invites] missing permission to list invites for guild %s", guildID)
			span.SetAttributes(attribute.Bool("invites.permission_denied", true))
			return Use{}, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "list invites")
		return Use{}, false, fmt.Errorf("list invites for guild %s: %w", guildID, err)
	}

	baseline, ready := t.loadSnapshot(guildID)
	if !ready {
		baseline, err = t.persistedBaseline(ctx, guildID)
		if err != nil {
			t.logf("[invites] load persisted invites for guild %s: %v", guildID, err)
		}
	}

	use, found := Use{}, false
	if baseline != nil {
		var increased int
		for _, invite := range live {
			if invite.Uses <= baseline[invite.Code] {
				continue
			}
			increased++
			if !found {
				use = Use{Code: invite.Code, InviterID: invite.InviterID, Uses: invite.Uses}
				found = true
			}
		}
		if increased > 1 {
			t.logf("[invites] %d invites increased in guild %s, crediting %s", increased, guildID, use.Code)
		}
	} else {
		t.logf("[invites] no invite history for guild %s, join cannot be attributed", guildID)
	}

	t.replace(ctx, guildID, live)
	span.SetAttributes(attribute.Bool("invites.found", found), attribute.Bool("invites.cold_start", !ready))
	return use, found, nil
}

// persistedBaseline returns the stored counts, or nil when the guild has
// no stored history.
func (t *Tracker) persistedBaseline(ctx context.Context, guildID string) (map[string]int, error) {
	if t.store == nil {
		return nil, nil
	}
	records, err := t.store.ListInvites(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	baseline := make(map[string]int, len(records))
	for _, record := range records {
		baseline[record.Code] = record.Uses
	}
	return baseline, nil
}

// replace swaps in the live counts, marks the snapshot ready and persists
// every live invite. Persistence failures are logged; the in-memory
// snapshot stays authoritative.
func (t *Tracker) replace(ctx context.Context, guildID string, live []gateway.Invite) {
	uses := make(map[string]int, len(live))
	records := make([]storage.InviteRecord, 0, len(live))
	for _, invite := range live {
		uses[invite.Code] = invite.Uses
		records = append(records, storage.InviteRecord{
			GuildID:   guildID,
			Code:      invite.Code,
			InviterID: invite.InviterID,
			Uses:      invite.Uses,
		})
	}
	t.storeSnapshot(guildID, uses)

	if t.store == nil || len(records) == 0 {
		return
	}
	if err := t.store.UpsertInvites(ctx, guildID, records); err != nil {
		t.logf("[invites] persist invite snapshot for guild %s: %v", guildID, err)
	}
}

// CacheGuild primes the guild snapshot without attributing anything.
func (t *Tracker) CacheGuild(ctx context.Context, guildID string) error {
	unlock := t.Lock(guildID)
	defer unlock()

	live, err := t.gateway.ListInvites(ctx, guildID)
	if err != nil {
		if apperrors.IsPermissionDenied(err) {
			t.logf("[invites] missing permission to cache invites for guild %s", guildID)
			return nil
		}
		return fmt.Errorf("list invites for guild %s: %w", guildID, err)
	}
	t.replace(ctx, guildID, live)
	return nil
}

// InviteCreated records a new invite. A ready snapshot gains the code so a
// later join through it is detected as an increase. Before the snapshot is
// ready the invite is persisted only when the guild already has stored
// history; a lone record would otherwise become a baseline of zero for
// every other invite.
func (t *Tracker) InviteCreated(ctx context.Context, guildID string, invite gateway.Invite) {
	unlock := t.Lock(guildID)
	defer unlock()

	t.mu.Lock()
	snap, ok := t.snapshots[guildID]
	ready := ok && snap.ready
	if ready {
		snap.uses[invite.Code] = invite.Uses
	}
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if !ready {
		baseline, err := t.persistedBaseline(ctx, guildID)
		if err != nil {
			t.logf("[invites] load invite history for guild %s: %v", guildID, err)
			return
		}
		if baseline == nil {
			return
		}
	}
	if err := t.store.UpsertInvites(ctx, guildID, []storage.InviteRecord{{
		GuildID:   guildID,
		Code:      invite.Code,
		InviterID: invite.InviterID,
		Uses:      invite.Uses,
	}}); err != nil {
		t.logf("[invites] persist created invite %s for guild %s: %v", invite.Code, guildID, err)
	}
}

// InviteDeleted drops a revoked or expired invite from the snapshot and
// from persisted history.
func (t *Tracker) InviteDeleted(ctx context.Context, guildID string, code string) {
	unlock := t.Lock(guildID)
	defer unlock()

	t.mu.Lock()
	if snap, ok := t.snapshots[guildID]; ok {
		delete(snap.uses, code)
	}
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.DeleteInvite(ctx, guildID, code); err != nil {
		t.logf("[invites] delete invite %s for guild %s: %v", code, guildID, err)
	}
}
