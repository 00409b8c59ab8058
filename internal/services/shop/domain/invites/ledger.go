package invites

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// Ledger records at most one join attribution per (guild, user).
type Ledger struct {
	store storage.AttributionStore
	clock func() time.Time
}

// NewLedger creates a join attribution ledger.
func NewLedger(store storage.AttributionStore, clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{store: store, clock: clock}
}

// RecordJoin inserts the attribution when the user has never joined the
// guild before and reports whether this call created it. Rejoins keep the
// original inviter. An empty InviterID records an unattributed join.
func (l *Ledger) RecordJoin(ctx context.Context, attribution storage.JoinAttribution) (bool, error) {
	if l == nil || l.store == nil {
		return false, fmt.Errorf("attribution store is not configured")
	}
	attribution.GuildID = strings.TrimSpace(attribution.GuildID)
	attribution.UserID = strings.TrimSpace(attribution.UserID)
	attribution.InviterID = strings.TrimSpace(attribution.InviterID)
	if attribution.JoinedAt.IsZero() {
		attribution.JoinedAt = l.clock()
	}
	attribution.JoinedAt = attribution.JoinedAt.UTC()
	isNew, err := l.store.InsertJoinAttribution(ctx, attribution)
	if err != nil {
		return false, fmt.Errorf("record join: %w", err)
	}
	return isNew, nil
}

// CountInvites returns how many first joins are credited to inviterID.
func (l *Ledger) CountInvites(ctx context.Context, guildID string, inviterID string) (int, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("attribution store is not configured")
	}
	count, err := l.store.CountJoinsByInviter(ctx, guildID, inviterID)
	if err != nil {
		return 0, fmt.Errorf("count invites: %w", err)
	}
	return count, nil
}
