// Package tickets runs the order ticket workflow: opening, claiming,
// transcripts, order completion and closing.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/platform/id"
	"github.com/opshop/guildshop/internal/services/shop/domain/catalog"
	"github.com/opshop/guildshop/internal/services/shop/domain/notify"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// DefaultOrderReward is the token reward for completing an order that is not
// tied to a catalog item.
const DefaultOrderReward = 10

type settingsReader interface {
	Get(ctx context.Context, guildID string) (storage.GuildSettings, error)
}

type memberGetter interface {
	GetMember(ctx context.Context, guildID string, userID string) (gateway.Member, error)
}

type itemGetter interface {
	GetItem(ctx context.Context, itemID string) (storage.Item, error)
}

type ledger interface {
	LogTransaction(ctx context.Context, txn storage.Transaction) error
	ModifyTokens(ctx context.Context, userID string, amount int64, reason string, actorID string) (int64, error)
}

type xpGranter interface {
	AddXP(ctx context.Context, userID string, amount int64, source string) (xp.Grant, error)
}

type reputationGranter interface {
	AddReputation(ctx context.Context, userID string, guildID string, amount int64) error
}

// Deps wires the collaborators of the ticket service.
type Deps struct {
	Store      storage.TicketStore
	Settings   settingsReader
	Members    memberGetter
	Items      itemGetter
	Ledger     ledger
	XP         xpGranter
	Reputation reputationGranter
	Notifier   *notify.Notifier
	// OwnerID is the bot owner, who may act as staff in any guild.
	OwnerID string
	Clock   func() time.Time
	Logf    func(string, ...any)
}

// Actor is the user performing a ticket action. Admin is resolved by the
// caller from guild permissions.
type Actor struct {
	UserID string
	Admin  bool
}

// Service coordinates ticket state changes.
type Service struct {
	deps  Deps
	newID func() (string, error)
	// openMu serializes Open so a user never ends up with two open tickets.
	openMu sync.Mutex
}

// NewService creates a ticket service.
func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	return &Service{deps: deps, newID: id.NewID}
}

// OpenRequest describes a new ticket.
type OpenRequest struct {
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	Topic     string
	ItemID    string
}

// Open creates a ticket for the user, or returns their existing open ticket
// in the guild with created set to false.
func (s *Service) Open(ctx context.Context, req OpenRequest) (storage.Ticket, bool, error) {
	if s == nil || s.deps.Store == nil {
		return storage.Ticket{}, false, fmt.Errorf("ticket store is not configured")
	}
	req.GuildID = strings.TrimSpace(req.GuildID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.GuildID == "" || req.UserID == "" {
		return storage.Ticket{}, false, fmt.Errorf("guild id and user id are required")
	}

	s.openMu.Lock()
	defer s.openMu.Unlock()

	existing, err := s.deps.Store.GetOpenTicket(ctx, req.GuildID, req.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, false, fmt.Errorf("get open ticket: %w", err)
	}

	ticketID, err := s.newID()
	if err != nil {
		return storage.Ticket{}, false, err
	}
	ticket := storage.Ticket{
		ID:            ticketID,
		GuildID:       req.GuildID,
		UserID:        req.UserID,
		ChannelID:     strings.TrimSpace(req.ChannelID),
		MessageID:     strings.TrimSpace(req.MessageID),
		Status:        storage.TicketOpen,
		Topic:         strings.TrimSpace(req.Topic),
		RelatedItemID: strings.TrimSpace(req.ItemID),
		CreatedAt:     s.deps.Clock().UTC(),
	}
	ticket.UpdatedAt = ticket.CreatedAt
	if err := s.deps.Store.CreateTicket(ctx, ticket); err != nil {
		return storage.Ticket{}, false, fmt.Errorf("create ticket: %w", err)
	}
	s.audit(ctx, ticket.GuildID, "Ticket Opened",
		fmt.Sprintf("Ticket %s opened by %s.", ticket.ID, notify.Mention(ticket.UserID)), notify.ColorSuccess)
	return ticket, true, nil
}

// Get returns one ticket or a NOT_FOUND error.
func (s *Service) Get(ctx context.Context, ticketID string) (storage.Ticket, error) {
	if s == nil || s.deps.Store == nil {
		return storage.Ticket{}, fmt.Errorf("ticket store is not configured")
	}
	ticket, err := s.deps.Store.GetTicket(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, apperrors.WithMetadata(apperrors.CodeNotFound, "ticket not found", map[string]string{"ticket_id": ticketID})
	}
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func notOpen(ticket storage.Ticket) error {
	return apperrors.WithMetadata(apperrors.CodeTicketNotOpen,
		"ticket status is "+ticket.Status, map[string]string{"ticket_id": ticket.ID})
}

func forbidden(message string, ticket storage.Ticket) error {
	return apperrors.WithMetadata(apperrors.CodeTicketForbidden, message, map[string]string{"ticket_id": ticket.ID})
}

// Claim assigns an open ticket to a seller or admin. Only one claim wins;
// later claimers get TICKET_ALREADY_CLAIMED.
func (s *Service) Claim(ctx context.Context, ticketID string, actor Actor) (storage.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if ticket.Status != storage.TicketOpen {
		return storage.Ticket{}, notOpen(ticket)
	}
	if actor.UserID == ticket.UserID {
		return storage.Ticket{}, forbidden("you can not claim your own ticket", ticket)
	}
	settings, err := s.settings(ctx, ticket.GuildID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if !actor.Admin {
		if settings.SellerRoleID == "" {
			return storage.Ticket{}, apperrors.New(apperrors.CodeConfigMissing, "seller role not configured")
		}
		if !s.hasAnyRole(ctx, ticket.GuildID, actor.UserID, settings.SellerRoleID) {
			return storage.Ticket{}, forbidden("to claim a ticket you must be an admin or a seller", ticket)
		}
	}
	won, err := s.deps.Store.ClaimTicket(ctx, ticket.ID, actor.UserID)
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("claim ticket: %w", err)
	}
	if !won {
		return storage.Ticket{}, apperrors.WithMetadata(apperrors.CodeTicketAlreadyClaimed,
			"ticket already claimed", map[string]string{"ticket_id": ticket.ID})
	}
	ticket.ClaimedBy = actor.UserID
	s.audit(ctx, ticket.GuildID, "Ticket Claimed",
		fmt.Sprintf("%s was claimed by %s!", ticket.ID, notify.Mention(actor.UserID)), notify.ColorInfo)
	return ticket, nil
}

// Unclaim releases a claimed ticket. Only the claimer or an admin may do so.
func (s *Service) Unclaim(ctx context.Context, ticketID string, actor Actor) (storage.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if ticket.ClaimedBy == "" {
		return ticket, nil
	}
	if !actor.Admin && actor.UserID != ticket.ClaimedBy {
		return storage.Ticket{}, forbidden("you did not claim this ticket and you are not an administrator", ticket)
	}
	if err := s.deps.Store.UnclaimTicket(ctx, ticket.ID); err != nil {
		return storage.Ticket{}, fmt.Errorf("unclaim ticket: %w", err)
	}
	ticket.ClaimedBy = ""
	s.audit(ctx, ticket.GuildID, "Ticket Unclaimed",
		fmt.Sprintf("Ticket %s was unclaimed!", ticket.ID), notify.ColorWarning)
	return ticket, nil
}

// Close closes an open ticket. Admins and ticket managers may close.
func (s *Service) Close(ctx context.Context, ticketID string, actor Actor) (storage.Ticket, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if ticket.Status != storage.TicketOpen {
		return storage.Ticket{}, notOpen(ticket)
	}
	settings, err := s.settings(ctx, ticket.GuildID)
	if err != nil {
		return storage.Ticket{}, err
	}
	if !actor.Admin && !s.hasAnyRole(ctx, ticket.GuildID, actor.UserID, settings.TicketManagerRoleID) {
		return storage.Ticket{}, forbidden("only admins and ticket managers can close tickets", ticket)
	}
	return s.close(ctx, ticket, actor.UserID)
}

func (s *Service) close(ctx context.Context, ticket storage.Ticket, byUserID string) (storage.Ticket, error) {
	now := s.deps.Clock().UTC()
	won, err := s.deps.Store.CloseTicket(ctx, ticket.ID, byUserID, now)
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("close ticket: %w", err)
	}
	if !won {
		if current, err := s.deps.Store.GetTicket(ctx, ticket.ID); err == nil {
			ticket = current
		}
		return storage.Ticket{}, notOpen(ticket)
	}
	ticket.Status = storage.TicketClosed
	ticket.ClosedBy = byUserID
	ticket.ClosedAt = now
	s.audit(ctx, ticket.GuildID, "Ticket Closed",
		fmt.Sprintf("Ticket %s closed by %s.", ticket.ID, notify.Mention(byUserID)), notify.ColorDanger)
	return ticket, nil
}

// Delete soft-deletes a ticket. Admins and ticket managers may delete.
func (s *Service) Delete(ctx context.Context, ticketID string, actor Actor) error {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status == storage.TicketDeleted {
		return nil
	}
	settings, err := s.settings(ctx, ticket.GuildID)
	if err != nil {
		return err
	}
	if !actor.Admin && !s.hasAnyRole(ctx, ticket.GuildID, actor.UserID, settings.TicketManagerRoleID) {
		return forbidden("only admins and ticket managers can delete tickets", ticket)
	}
	if err := s.deps.Store.UpdateTicketStatus(ctx, ticket.ID, storage.TicketDeleted, actor.UserID, s.deps.Clock().UTC()); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	s.audit(ctx, ticket.GuildID, "Ticket Deleted",
		fmt.Sprintf("Ticket **%s** has been deleted by %s!", ticket.ID, notify.Mention(actor.UserID)), notify.ColorDanger)
	return nil
}

// AppendMessage records a chat line posted in a ticket channel. Messages in
// channels without a ticket are ignored and report false.
func (s *Service) AppendMessage(ctx context.Context, channelID string, userID string, content string) (bool, error) {
	if s == nil || s.deps.Store == nil {
		return false, fmt.Errorf("ticket store is not configured")
	}
	if strings.TrimSpace(content) == "" {
		return false, nil
	}
	ticket, err := s.deps.Store.GetTicketByChannel(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get ticket by channel: %w", err)
	}
	if err := s.deps.Store.AppendTicketMessage(ctx, storage.TicketMessage{
		TicketID:  ticket.ID,
		UserID:    userID,
		Content:   content,
		IsStaff:   userID != ticket.UserID,
		CreatedAt: s.deps.Clock().UTC(),
	}); err != nil {
		return false, fmt.Errorf("append ticket message: %w", err)
	}
	return true, nil
}

// Transcript returns the recorded messages of a ticket.
func (s *Service) Transcript(ctx context.Context, ticketID string) ([]storage.TicketMessage, error) {
	if s == nil || s.deps.Store == nil {
		return nil, fmt.Errorf("ticket store is not configured")
	}
	messages, err := s.deps.Store.ListTicketMessages(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	return messages, nil
}

// OrderResult describes a completed order.
type OrderResult struct {
	Ticket          storage.Ticket
	Item            *storage.Item
	TokensAwarded   int64
	XPAwarded       int64
	ReputationAdded bool
}

// CompleteOrder finalizes the purchase behind an open ticket. The ticket is
// closed first and only the call that closes it logs the purchase, rewards
// the buyer and credits the completing staff member with reputation. Reward
// failures are logged and do not block completion.
func (s *Service) CompleteOrder(ctx context.Context, ticketID string, actor Actor) (OrderResult, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return OrderResult{}, err
	}
	settings, err := s.settings(ctx, ticket.GuildID)
	if err != nil {
		return OrderResult{}, err
	}
	if !s.isStaff(ctx, ticket.GuildID, actor, settings) {
		return OrderResult{}, forbidden("you are not allowed to complete orders", ticket)
	}
	if ticket.Status != storage.TicketOpen {
		return OrderResult{}, notOpen(ticket)
	}
	closed, err := s.close(ctx, ticket, actor.UserID)
	if err != nil {
		return OrderResult{}, err
	}

	result := OrderResult{Ticket: closed}
	if ticket.RelatedItemID != "" && s.deps.Items != nil {
		item, err := s.deps.Items.GetItem(ctx, ticket.RelatedItemID)
		if err != nil {
			s.deps.Logf("[tickets] load item %s for ticket %s: %v", ticket.RelatedItemID, ticket.ID, err)
		} else {
			result.Item = &item
		}
	}

	txn := storage.Transaction{
		UserID:      ticket.UserID,
		Type:        storage.TransactionPurchase,
		ItemName:    "Custom Order",
		PerformedBy: actor.UserID,
	}
	reward := int64(DefaultOrderReward)
	reason := "Reward for purchasing"
	if result.Item != nil {
		txn.ItemID = result.Item.ID
		txn.ItemName = result.Item.Name
		if result.Item.Currency == catalog.CurrencyTokens {
			txn.AmountTokens = int64(result.Item.Price)
		} else {
			txn.AmountCredits = result.Item.Price
		}
		reward = result.Item.TokenReward
		reason = "Reward for purchasing " + result.Item.Name
	}
	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.LogTransaction(ctx, txn); err != nil {
			s.deps.Logf("[tickets] log purchase for ticket %s: %v", ticket.ID, err)
		}
		if reward > 0 {
			if _, err := s.deps.Ledger.ModifyTokens(ctx, ticket.UserID, reward, reason, actor.UserID); err != nil {
				s.deps.Logf("[tickets] reward buyer %s for ticket %s: %v", ticket.UserID, ticket.ID, err)
			} else {
				result.TokensAwarded = reward
			}
		}
	}
	if result.Item != nil && result.Item.XPReward > 0 && s.deps.XP != nil {
		grant, err := s.deps.XP.AddXP(ctx, ticket.UserID, result.Item.XPReward, "purchase")
		if err != nil {
			s.deps.Logf("[tickets] xp for buyer %s on ticket %s: %v", ticket.UserID, ticket.ID, err)
		} else {
			result.XPAwarded = grant.Added
		}
	}
	if s.deps.Reputation != nil {
		if err := s.deps.Reputation.AddReputation(ctx, actor.UserID, ticket.GuildID, 1); err != nil {
			s.deps.Logf("[tickets] reputation for %s on ticket %s: %v", actor.UserID, ticket.ID, err)
		} else {
			result.ReputationAdded = true
		}
	}
	return result, nil
}

func (s *Service) settings(ctx context.Context, guildID string) (storage.GuildSettings, error) {
	if s.deps.Settings == nil {
		return storage.GuildSettings{GuildID: guildID}, nil
	}
	settings, err := s.deps.Settings.Get(ctx, guildID)
	if err != nil {
		return storage.GuildSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// isStaff reports whether actor may complete orders: the bot owner, an admin,
// a ticket manager or a seller.
func (s *Service) isStaff(ctx context.Context, guildID string, actor Actor, settings storage.GuildSettings) bool {
	if actor.Admin || (s.deps.OwnerID != "" && actor.UserID == s.deps.OwnerID) {
		return true
	}
	return s.hasAnyRole(ctx, guildID, actor.UserID, settings.TicketManagerRoleID, settings.SellerRoleID)
}

func (s *Service) hasAnyRole(ctx context.Context, guildID string, userID string, roleIDs ...string) bool {
	if s.deps.Members == nil {
		return false
	}
	wanted := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if strings.TrimSpace(roleID) != "" {
			wanted = append(wanted, roleID)
		}
	}
	if len(wanted) == 0 {
		return false
	}
	member, err := s.deps.Members.GetMember(ctx, guildID, userID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.deps.Logf("[tickets] get member %s in guild %s: %v", userID, guildID, err)
		}
		return false
	}
	for _, roleID := range wanted {
		if member.HasRole(roleID) {
			return true
		}
	}
	return false
}

func (s *Service) audit(ctx context.Context, guildID string, title string, description string, color int) {
	if s.deps.Notifier == nil || s.deps.Settings == nil {
		return
	}
	settings, err := s.deps.Settings.Get(ctx, guildID)
	if err != nil {
		s.deps.Logf("[tickets] load settings for guild %s: %v", guildID, err)
		return
	}
	s.deps.Notifier.Send(ctx, settings.TicketLogChannelID, gateway.Message{
		Title:       title,
		Description: description,
		Color:       color,
	})
}
