package invites

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opshop/guildshop/internal/services/shop/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MemberJoin is a member-added event.
type MemberJoin struct {
	GuildID  string
	UserID   string
	Bot      bool
	JoinedAt time.Time
}

// AttributedJoin is the outcome of attribution handed to reward fan-out.
type AttributedJoin struct {
	GuildID    string
	JoinerID   string
	InviterID  string
	InviteCode string
	IsNewJoin  bool
}

// JoinSink consumes attributed joins.
type JoinSink interface {
	OnAttributedJoin(ctx context.Context, join AttributedJoin)
}

// JoinHandler runs the detect, record and fan-out steps for each join.
type JoinHandler struct {
	tracker *Tracker
	ledger  *Ledger
	sink    JoinSink
	logf    func(string, ...any)
}

// NewJoinHandler wires the join pipeline.
func NewJoinHandler(tracker *Tracker, ledger *Ledger, sink JoinSink, logf func(string, ...any)) *JoinHandler {
	if logf == nil {
		logf = log.Printf
	}
	return &JoinHandler{tracker: tracker, ledger: ledger, sink: sink, logf: logf}
}

// HandleMemberJoin attributes one join. The guild lock is held only for
// detection; recording relies on the ledger's insert-if-absent and fan-out
// runs unlocked. Bot members are ignored.
func (h *JoinHandler) HandleMemberJoin(ctx context.Context, join MemberJoin) error {
	if join.Bot {
		return nil
	}
	if h == nil || h.tracker == nil || h.ledger == nil {
		return fmt.Errorf("join handler is not configured")
	}

	unlock := h.tracker.Lock(join.GuildID)
	use, found, err := h.tracker.DetectUsedInvite(ctx, join.GuildID)
	unlock()
	if err != nil {
		h.logf("[invites] detect invite for %s in guild %s: %v", join.UserID, join.GuildID, err)
	}

	ctx, span := tracer.Start(ctx, "invites.attribute")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild.id", join.GuildID),
		attribute.String("user.id", join.UserID),
		attribute.Bool("invites.found", found),
	)

	inviterID := ""
	if found {
		inviterID = use.InviterID
	}
	recordedInviter := inviterID
	if recordedInviter == join.UserID {
		h.logf("[invites] %s joined guild %s through their own invite", join.UserID, join.GuildID)
		recordedInviter = ""
	}
	isNew, err := h.ledger.RecordJoin(ctx, storage.JoinAttribution{
		GuildID:   join.GuildID,
		UserID:    join.UserID,
		InviterID: recordedInviter,
		JoinedAt:  join.JoinedAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record join")
		return fmt.Errorf("attribute join of %s in guild %s: %w", join.UserID, join.GuildID, err)
	}
	span.SetAttributes(attribute.Bool("invites.new_join", isNew))

	if h.sink != nil {
		h.sink.OnAttributedJoin(ctx, AttributedJoin{
			GuildID:    join.GuildID,
			JoinerID:   join.UserID,
			InviterID:  inviterID,
			InviteCode: use.Code,
			IsNewJoin:  isNew,
		})
	}
	return nil
}
