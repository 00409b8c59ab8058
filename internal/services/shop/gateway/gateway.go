// Package gateway describes the chat platform operations the shop bot
// depends on. Implementations classify failures with platform/errors codes
// so callers can branch on permission-denied and not-found without knowing
// the transport.
package gateway

import (
	"context"
	"slices"
)

// Invite is the live state of one invite code.
type Invite struct {
	Code      string
	Uses      int
	InviterID string
}

// Member is a guild member as seen by the gateway.
type Member struct {
	GuildID  string
	UserID   string
	Username string
	RoleIDs  []string
	Bot      bool
}

// HasRole reports whether the member currently holds roleID.
func (m Member) HasRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	return slices.Contains(m.RoleIDs, roleID)
}

// Field is one name/value pair of a structured message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a structured notification.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
}

// Guild identifies one guild the bot is a member of.
type Guild struct {
	ID   string
	Name string
}

// Gateway is the set of platform calls the shop bot makes.
type Gateway interface {
	ListInvites(ctx context.Context, guildID string) ([]Invite, error)
	// GetMember returns a NOT_FOUND coded error when the user is not in the guild.
	GetMember(ctx context.Context, guildID string, userID string) (Member, error)
	AddRole(ctx context.Context, guildID string, userID string, roleID string) error
	RemoveRole(ctx context.Context, guildID string, userID string, roleID string) error
	SetNickname(ctx context.Context, guildID string, userID string, nickname string) error
	SendMessage(ctx context.Context, channelID string, message Message) error
	ListGuilds(ctx context.Context) ([]Guild, error)
}
