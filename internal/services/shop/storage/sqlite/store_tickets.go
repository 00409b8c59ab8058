package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

const ticketColumns = `id, guild_id, user_id, channel_id, message_id, status, topic, related_item_id, claimed_by, closed_by, closed_at, created_at, updated_at`

func scanTicket(row rowScanner) (storage.Ticket, error) {
	var (
		ticket    storage.Ticket
		claimedBy sql.NullString
		closedAt  sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.UserID,
		&ticket.ChannelID,
		&ticket.MessageID,
		&ticket.Status,
		&ticket.Topic,
		&ticket.RelatedItemID,
		&claimedBy,
		&ticket.ClosedBy,
		&closedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Ticket{}, err
	}
	ticket.ClaimedBy = claimedBy.String
	if closedAt.Valid {
		ticket.ClosedAt = fromMillis(closedAt.Int64)
	}
	ticket.CreatedAt = fromMillis(createdAt)
	ticket.UpdatedAt = fromMillis(updatedAt)
	return ticket, nil
}

// CreateTicket inserts a new ticket.
func (s *Store) CreateTicket(ctx context.Context, ticket storage.Ticket) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(ticket.ID) == "" || strings.TrimSpace(ticket.GuildID) == "" || strings.TrimSpace(ticket.UserID) == "" {
		return fmt.Errorf("ticket id, guild id and user id are required")
	}
	status := ticket.Status
	if status == "" {
		status = storage.TicketOpen
	}
	createdAt := ticket.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tickets (`+ticketColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', NULL, ?, ?)`,
		ticket.ID,
		ticket.GuildID,
		ticket.UserID,
		ticket.ChannelID,
		ticket.MessageID,
		status,
		ticket.Topic,
		ticket.RelatedItemID,
		nullString(ticket.ClaimedBy),
		toMillis(createdAt),
		toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *Store) getTicket(ctx context.Context, where string, args ...any) (storage.Ticket, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Ticket{}, err
	}
	ticket, err := scanTicket(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE `+where+` ORDER BY created_at DESC LIMIT 1`, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Ticket{}, storage.ErrNotFound
		}
		return storage.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// GetTicket returns one ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (storage.Ticket, error) {
	return s.getTicket(ctx, `id = ?`, strings.TrimSpace(id))
}

// GetTicketByChannel returns the ticket bound to a channel.
func (s *Store) GetTicketByChannel(ctx context.Context, channelID string) (storage.Ticket, error) {
	return s.getTicket(ctx, `channel_id = ? AND status <> ?`, strings.TrimSpace(channelID), storage.TicketDeleted)
}

// GetOpenTicket returns the open ticket a user owns in a guild.
func (s *Store) GetOpenTicket(ctx context.Context, guildID string, userID string) (storage.Ticket, error) {
	return s.getTicket(ctx, `guild_id = ? AND user_id = ? AND status = ?`,
		strings.TrimSpace(guildID), strings.TrimSpace(userID), storage.TicketOpen)
}

// ClaimTicket assigns claimerID only when the ticket is unclaimed.
func (s *Store) ClaimTicket(ctx context.Context, id string, claimerID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tickets SET claimed_by = ?, updated_at = ? WHERE id = ? AND claimed_by IS NULL`,
		strings.TrimSpace(claimerID), toMillis(s.nowUTC()), strings.TrimSpace(id))
	if err != nil {
		return false, fmt.Errorf("claim ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim ticket rows affected: %w", err)
	}
	return affected == 1, nil
}

// UnclaimTicket clears the claimer.
func (s *Store) UnclaimTicket(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tickets SET claimed_by = NULL, updated_at = ? WHERE id = ?`,
		toMillis(s.nowUTC()), strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("unclaim ticket: %w", err)
	}
	return nil
}

// UpdateTicketStatus moves a ticket to status. Closing statuses also record
// who closed it and when.
func (s *Store) UpdateTicketStatus(ctx context.Context, id string, status string, byUserID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if at.IsZero() {
		at = s.nowUTC()
	}
	var err error
	if status == storage.TicketOpen {
		_, err = s.sqlDB.ExecContext(ctx,
			`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
			status, toMillis(at), strings.TrimSpace(id))
	} else {
		_, err = s.sqlDB.ExecContext(ctx,
			`UPDATE tickets SET status = ?, closed_by = ?, closed_at = COALESCE(closed_at, ?), updated_at = ? WHERE id = ?`,
			status, strings.TrimSpace(byUserID), toMillis(at), toMillis(at), strings.TrimSpace(id))
	}
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return nil
}

// CloseTicket closes id only while it is still open.
func (s *Store) CloseTicket(ctx context.Context, id string, byUserID string, at time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if at.IsZero() {
		at = s.nowUTC()
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tickets SET status = ?, closed_by = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		storage.TicketClosed, strings.TrimSpace(byUserID), toMillis(at), toMillis(at), strings.TrimSpace(id), storage.TicketOpen)
	if err != nil {
		return false, fmt.Errorf("close ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close ticket rows affected: %w", err)
	}
	return affected == 1, nil
}

// AppendTicketMessage adds one transcript line.
func (s *Store) AppendTicketMessage(ctx context.Context, message storage.TicketMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ticket_messages (ticket_id, user_id, content, is_staff, created_at)
VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(message.TicketID),
		strings.TrimSpace(message.UserID),
		message.Content,
		boolToInt(message.IsStaff),
		toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("append ticket message: %w", err)
	}
	return nil
}

// ListTicketMessages returns a ticket transcript in insertion order.
func (s *Store) ListTicketMessages(ctx context.Context, ticketID string) ([]storage.TicketMessage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT ticket_id, user_id, content, is_staff, created_at
FROM ticket_messages
WHERE ticket_id = ?
ORDER BY id ASC`, strings.TrimSpace(ticketID))
	if err != nil {
		return nil, fmt.Errorf("list ticket messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.TicketMessage
	for rows.Next() {
		var (
			message   storage.TicketMessage
			isStaff   int
			createdAt int64
		)
		if err := rows.Scan(&message.TicketID, &message.UserID, &message.Content, &isStaff, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ticket message: %w", err)
		}
		message.IsStaff = isStaff != 0
		message.CreatedAt = fromMillis(createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket messages: %w", err)
	}
	return messages, nil
}
