package admin

import (
	"context"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/tickets"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/samber/lo"
)

type OpenTicketRequest struct {
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Topic     string `json:"topic"`
	ItemID    string `json:"item_id"`
}

type OpenTicketResponse struct {
	Ticket  Ticket `json:"ticket"`
	Created bool   `json:"created"`
}

// OpenTicket opens a ticket for user_id, or returns the one already open.
func (s *Server) OpenTicket(ctx context.Context, req OpenTicketRequest) (OpenTicketResponse, error) {
	if _, err := s.requireSelfOrOwner(ctx, req.UserID); err != nil {
		return OpenTicketResponse{}, err
	}
	if err := required("guild_id", req.GuildID); err != nil {
		return OpenTicketResponse{}, err
	}
	ticket, created, err := s.deps.Tickets.Open(ctx, tickets.OpenRequest{
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		MessageID: req.MessageID,
		Topic:     req.Topic,
		ItemID:    req.ItemID,
	})
	if err != nil {
		return OpenTicketResponse{}, err
	}
	return OpenTicketResponse{Ticket: ticketToWire(ticket), Created: created}, nil
}

type TicketRequest struct {
	TicketID string `json:"ticket_id"`
}

type TicketResponse struct {
	Ticket Ticket `json:"ticket"`
}

// ticketCall runs a ticket state change as the caller. Role checks happen in
// the tickets service.
func (s *Server) ticketCall(ctx context.Context, req TicketRequest, change func(context.Context, string, tickets.Actor) (storage.Ticket, error)) (TicketResponse, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return TicketResponse{}, err
	}
	if err := required("ticket_id", req.TicketID); err != nil {
		return TicketResponse{}, err
	}
	ticket, err := change(ctx, req.TicketID, c.ticketActor())
	if err != nil {
		return TicketResponse{}, err
	}
	return TicketResponse{Ticket: ticketToWire(ticket)}, nil
}

// ClaimTicket assigns the ticket to the caller.
func (s *Server) ClaimTicket(ctx context.Context, req TicketRequest) (TicketResponse, error) {
	return s.ticketCall(ctx, req, s.deps.Tickets.Claim)
}

// UnclaimTicket releases the caller's claim.
func (s *Server) UnclaimTicket(ctx context.Context, req TicketRequest) (TicketResponse, error) {
	return s.ticketCall(ctx, req, s.deps.Tickets.Unclaim)
}

// CloseTicket closes an open ticket.
func (s *Server) CloseTicket(ctx context.Context, req TicketRequest) (TicketResponse, error) {
	return s.ticketCall(ctx, req, s.deps.Tickets.Close)
}

// DeleteTicket soft-deletes a ticket.
func (s *Server) DeleteTicket(ctx context.Context, req TicketRequest) (DeleteResponse, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return DeleteResponse{}, err
	}
	if err := required("ticket_id", req.TicketID); err != nil {
		return DeleteResponse{}, err
	}
	if err := s.deps.Tickets.Delete(ctx, req.TicketID, c.ticketActor()); err != nil {
		return DeleteResponse{}, err
	}
	return DeleteResponse{Deleted: true}, nil
}

type CompleteOrderResponse struct {
	Ticket          Ticket `json:"ticket"`
	Item            *Item  `json:"item,omitempty"`
	TokensAwarded   int64  `json:"tokens_awarded"`
	XPAwarded       int64  `json:"xp_awarded"`
	ReputationAdded bool   `json:"reputation_added"`
}

// CompleteOrder closes the ticket and pays out the order rewards.
func (s *Server) CompleteOrder(ctx context.Context, req TicketRequest) (CompleteOrderResponse, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return CompleteOrderResponse{}, err
	}
	if err := required("ticket_id", req.TicketID); err != nil {
		return CompleteOrderResponse{}, err
	}
	result, err := s.deps.Tickets.CompleteOrder(ctx, req.TicketID, c.ticketActor())
	if err != nil {
		return CompleteOrderResponse{}, err
	}
	resp := CompleteOrderResponse{
		Ticket:          ticketToWire(result.Ticket),
		TokensAwarded:   result.TokensAwarded,
		XPAwarded:       result.XPAwarded,
		ReputationAdded: result.ReputationAdded,
	}
	if result.Item != nil {
		item := itemToWire(*result.Item)
		resp.Item = &item
	}
	return resp, nil
}

type TranscriptResponse struct {
	Messages []TranscriptLine `json:"messages"`
}

// GetTranscript returns a ticket's messages to the owner, the ticket's opener
// or the member who claimed it.
func (s *Server) GetTranscript(ctx context.Context, req TicketRequest) (TranscriptResponse, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return TranscriptResponse{}, err
	}
	if err := required("ticket_id", req.TicketID); err != nil {
		return TranscriptResponse{}, err
	}
	ticket, err := s.deps.Tickets.Get(ctx, req.TicketID)
	if err != nil {
		return TranscriptResponse{}, err
	}
	if !c.Owner && c.UserID != ticket.UserID && c.UserID != ticket.ClaimedBy {
		return TranscriptResponse{}, apperrors.WithMetadata(apperrors.CodeTicketForbidden,
			"you can not read this transcript", map[string]string{"ticket_id": ticket.ID})
	}
	messages, err := s.deps.Tickets.Transcript(ctx, ticket.ID)
	if err != nil {
		return TranscriptResponse{}, err
	}
	return TranscriptResponse{Messages: lo.Map(messages, func(m storage.TicketMessage, _ int) TranscriptLine {
		return TranscriptLine{UserID: m.UserID, Content: m.Content, IsStaff: m.IsStaff, CreatedAt: m.CreatedAt}
	})}, nil
}
