package admin

import (
	"time"

	"github.com/opshop/guildshop/internal/services/shop/storage"
)

// Settings is the wire form of storage.GuildSettings.
type Settings struct {
	GuildID                string    `json:"guild_id"`
	SellerRoleID           string    `json:"seller_role_id"`
	TicketManagerRoleID    string    `json:"ticket_manager_role_id"`
	InviteLogChannelID     string    `json:"invite_log_channel_id"`
	ReputationLogChannelID string    `json:"reputation_log_channel_id"`
	ReputationChannelID    string    `json:"reputation_channel_id"`
	AuditLogChannelID      string    `json:"audit_log_channel_id"`
	TicketLogChannelID     string    `json:"ticket_log_channel_id"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func settingsToWire(gs storage.GuildSettings) Settings {
	return Settings{
		GuildID:                gs.GuildID,
		SellerRoleID:           gs.SellerRoleID,
		TicketManagerRoleID:    gs.TicketManagerRoleID,
		InviteLogChannelID:     gs.InviteLogChannelID,
		ReputationLogChannelID: gs.ReputationLogChannelID,
		ReputationChannelID:    gs.ReputationChannelID,
		AuditLogChannelID:      gs.AuditLogChannelID,
		TicketLogChannelID:     gs.TicketLogChannelID,
		UpdatedAt:              gs.UpdatedAt,
	}
}

// Tier is the wire form of storage.ReputationTier.
type Tier struct {
	RoleID    string `json:"role_id"`
	Threshold int64  `json:"threshold"`
}

// Account is the wire form of storage.Account.
type Account struct {
	UserID     string  `json:"user_id"`
	Username   string  `json:"username,omitempty"`
	Tokens     int64   `json:"tokens"`
	Credits    float64 `json:"credits"`
	XP         int64   `json:"xp"`
	Level      int     `json:"level"`
	Reputation int64   `json:"reputation"`
}

func accountToWire(account storage.Account) Account {
	return Account{
		UserID:     account.UserID,
		Username:   account.Username,
		Tokens:     account.Tokens,
		Credits:    account.Credits,
		XP:         account.XP,
		Level:      account.Level,
		Reputation: account.Reputation,
	}
}

// Category is the wire form of storage.Category.
type Category struct {
	ID          string `json:"id"`
	GuildID     string `json:"guild_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rank        int    `json:"rank"`
	Active      bool   `json:"active"`
	ImageURL    string `json:"image_url,omitempty"`
}

func categoryToWire(category storage.Category) Category {
	return Category{
		ID:          category.ID,
		GuildID:     category.GuildID,
		ParentID:    category.ParentID,
		Name:        category.Name,
		Description: category.Description,
		Rank:        category.Rank,
		Active:      category.Active,
		ImageURL:    category.ImageURL,
	}
}

// Item is the wire form of storage.Item.
type Item struct {
	ID             string             `json:"id"`
	GuildID        string             `json:"guild_id"`
	CategoryID     string             `json:"category_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Price          float64            `json:"price"`
	Currency       string             `json:"currency"`
	ImageURL       string             `json:"image_url,omitempty"`
	Questions      []storage.Question `json:"questions,omitempty"`
	Active         bool               `json:"active"`
	RequiresTicket bool               `json:"requires_ticket"`
	XPReward       int64              `json:"xp_reward"`
	TokenReward    int64              `json:"token_reward"`
}

func itemToWire(item storage.Item) Item {
	return Item{
		ID:             item.ID,
		GuildID:        item.GuildID,
		CategoryID:     item.CategoryID,
		Name:           item.Name,
		Description:    item.Description,
		Price:          item.Price,
		Currency:       item.Currency,
		ImageURL:       item.ImageURL,
		Questions:      item.Questions,
		Active:         item.Active,
		RequiresTicket: item.RequiresTicket,
		XPReward:       item.XPReward,
		TokenReward:    item.TokenReward,
	}
}

// Ticket is the wire form of storage.Ticket.
type Ticket struct {
	ID            string    `json:"id"`
	GuildID       string    `json:"guild_id"`
	UserID        string    `json:"user_id"`
	ChannelID     string    `json:"channel_id"`
	Status        string    `json:"status"`
	Topic         string    `json:"topic,omitempty"`
	RelatedItemID string    `json:"related_item_id,omitempty"`
	ClaimedBy     string    `json:"claimed_by,omitempty"`
	ClosedBy      string    `json:"closed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func ticketToWire(ticket storage.Ticket) Ticket {
	return Ticket{
		ID:            ticket.ID,
		GuildID:       ticket.GuildID,
		UserID:        ticket.UserID,
		ChannelID:     ticket.ChannelID,
		Status:        ticket.Status,
		Topic:         ticket.Topic,
		RelatedItemID: ticket.RelatedItemID,
		ClaimedBy:     ticket.ClaimedBy,
		ClosedBy:      ticket.ClosedBy,
		CreatedAt:     ticket.CreatedAt,
	}
}

// TranscriptLine is one recorded ticket message.
type TranscriptLine struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is the wire form of storage.Transaction.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	AmountTokens  int64     `json:"amount_tokens,omitempty"`
	AmountCredits float64   `json:"amount_credits,omitempty"`
	ItemID        string    `json:"item_id,omitempty"`
	ItemName      string    `json:"item_name,omitempty"`
	Description   string    `json:"description,omitempty"`
	PerformedBy   string    `json:"performed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func transactionToWire(txn storage.Transaction) Transaction {
	return Transaction{
		ID:            txn.ID,
		UserID:        txn.UserID,
		Type:          txn.Type,
		AmountTokens:  txn.AmountTokens,
		AmountCredits: txn.AmountCredits,
		ItemID:        txn.ItemID,
		ItemName:      txn.ItemName,
		Description:   txn.Description,
		PerformedBy:   txn.PerformedBy,
		CreatedAt:     txn.CreatedAt,
	}
}

// EconomyConfig is the wire form of storage.EconomyConfig.
type EconomyConfig struct {
	TaxRate      float64 `json:"tax_rate"`
	XPMultiplier float64 `json:"xp_multiplier"`
	CurrencyName string  `json:"currency_name"`
}
