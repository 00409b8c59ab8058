// Package storage defines persistence contracts for the shop bot.
//
// Records are keyed by platform snowflake strings (guild, user, role,
// channel) and by opaque ids from platform/id for rows the bot creates.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientBalance indicates a debit would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InviteRecord is the last observed state of one invite code in a guild.
type InviteRecord struct {
	GuildID   string
	Code      string
	InviterID string
	Uses      int
	UpdatedAt time.Time
}

// InviteStore persists per-guild invite use counters.
type InviteStore interface {
	UpsertInvites(ctx context.Context, guildID string, invites []InviteRecord) error
	ListInvites(ctx context.Context, guildID string) ([]InviteRecord, error)
	DeleteInvite(ctx context.Context, guildID string, code string) error
}

// JoinAttribution records who invited a member into a guild. InviterID is
// empty when the inviter could not be resolved.
type JoinAttribution struct {
	GuildID   string
	UserID    string
	InviterID string
	JoinedAt  time.Time
}

// AttributionStore persists join attributions, at most one per (guild, user).
type AttributionStore interface {
	// InsertJoinAttribution inserts the record only when no record exists
	// for (guild, user) and reports whether the insert happened.
	InsertJoinAttribution(ctx context.Context, attribution JoinAttribution) (bool, error)
	GetJoinAttribution(ctx context.Context, guildID string, userID string) (JoinAttribution, error)
	CountJoinsByInviter(ctx context.Context, guildID string, inviterID string) (int, error)
}

// Account is the lazily created per-user economy, XP and reputation record.
type Account struct {
	UserID          string
	Username        string
	Tokens          int64
	Credits         float64
	XP              int64
	Level           int
	Reputation      int64
	RepGivenCounter int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccountStore persists user accounts. Every mutator creates the account
// when it does not exist yet.
type AccountStore interface {
	EnsureAccount(ctx context.Context, userID string, username string) (Account, error)
	GetAccount(ctx context.Context, userID string) (Account, error)
	AdjustTokens(ctx context.Context, userID string, delta int64) (Account, error)
	AdjustCredits(ctx context.Context, userID string, delta float64) (Account, error)
	AddXP(ctx context.Context, userID string, delta int64) (Account, error)
	SetLevel(ctx context.Context, userID string, level int, atXP int64) (bool, error)
	AddReputation(ctx context.Context, userID string, delta int64) (Account, error)
	IncrementRepGiven(ctx context.Context, userID string) (int, error)
	ResetRepGiven(ctx context.Context, userID string) error
	ListTopAccounts(ctx context.Context, limit int) ([]Account, error)
	ListHeldTierRoles(ctx context.Context, userID string, guildID string) ([]string, error)
	AddHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error
	RemoveHeldTierRole(ctx context.Context, userID string, guildID string, roleID string) error
}

// ReputationTier maps a role to the reputation score that earns it.
type ReputationTier struct {
	GuildID   string
	RoleID    string
	Threshold int64
	CreatedAt time.Time
}

// ReputationLog is one reputation grant.
type ReputationLog struct {
	ID         int64
	GuildID    string
	FromUserID string
	ToUserID   string
	Amount     int64
	Message    string
	CreatedAt  time.Time
}

// ReputationStore persists tiers and the reputation grant log.
type ReputationStore interface {
	PutTier(ctx context.Context, tier ReputationTier) error
	DeleteTier(ctx context.Context, guildID string, roleID string) (bool, error)
	ListTiers(ctx context.Context, guildID string) ([]ReputationTier, error)
	AppendReputationLog(ctx context.Context, entry ReputationLog) error
	ListReputationLogs(ctx context.Context, toUserID string, limit int) ([]ReputationLog, error)
}

// Transaction types.
const (
	TransactionPurchase        = "purchase"
	TransactionRefund          = "refund"
	TransactionReward          = "reward"
	TransactionAdminAdjustment = "admin_adjustment"
	TransactionRedeem          = "redeem"
)

// Transaction is one economy ledger entry.
type Transaction struct {
	ID            string
	UserID        string
	Type          string
	AmountTokens  int64
	AmountCredits float64
	ItemID        string
	ItemName      string
	Description   string
	PerformedBy   string
	CreatedAt     time.Time
}

// EconomyConfig holds process-wide economy tuning.
type EconomyConfig struct {
	TaxRate      float64
	XPMultiplier float64
	CurrencyName string
	UpdatedAt    time.Time
}

// DefaultEconomyConfig is used until an administrator saves a config.
func DefaultEconomyConfig() EconomyConfig {
	return EconomyConfig{
		TaxRate:      0,
		XPMultiplier: 1,
		CurrencyName: "Credits",
	}
}

// TransactionPageRequest selects one page of the ledger, newest first.
// FilterClause is a SQL fragment over the transactions columns whose
// placeholders are bound from FilterParams. PageToken is the id of the last
// transaction of the previous page.
type TransactionPageRequest struct {
	PageSize     int
	PageToken    string
	FilterClause string
	FilterParams []any
}

// TransactionPage is a page of ledger entries.
type TransactionPage struct {
	Transactions  []Transaction
	NextPageToken string
}

// EconomyStore persists the transaction ledger and economy config.
type EconomyStore interface {
	AppendTransaction(ctx context.Context, txn Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	ListTransactionsPage(ctx context.Context, req TransactionPageRequest) (TransactionPage, error)
	GetEconomyConfig(ctx context.Context) (EconomyConfig, error)
	PutEconomyConfig(ctx context.Context, cfg EconomyConfig) error
}

// GuildSettings holds per-guild feature configuration. Empty ids mean the
// feature is disabled for the guild.
type GuildSettings struct {
	GuildID                string
	SellerRoleID           string
	InviteLogChannelID     string
	ReputationLogChannelID string
	ReputationChannelID    string
	AuditLogChannelID      string
	TicketLogChannelID     string
	TicketManagerRoleID    string
	UpdatedAt              time.Time
}

// SettingsStore persists guild settings.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, error)
	PutGuildSettings(ctx context.Context, settings GuildSettings) error
}

// Category groups catalog items; categories nest through ParentID.
type Category struct {
	ID          string
	GuildID     string
	Name        string
	Description string
	Rank        int
	Active      bool
	ImageURL    string
	ParentID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Question is asked to a buyer when ordering an item.
type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

// Item is one purchasable catalog entry.
type Item struct {
	ID             string
	GuildID        string
	CategoryID     string
	Name           string
	Description    string
	Price          float64
	Currency       string
	ImageURL       string
	Questions      []Question
	Active         bool
	RequiresTicket bool
	XPReward       int64
	TokenReward    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CategoryStats counts direct children of a category.
type CategoryStats struct {
	Items         int
	Subcategories int
}

// CatalogStore persists categories and items.
type CatalogStore interface {
	PutCategory(ctx context.Context, category Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context, guildID string, parentID string, activeOnly bool) ([]Category, error)
	DeleteCategory(ctx context.Context, id string) (bool, error)
	CategoryStats(ctx context.Context, ids []string) (map[string]CategoryStats, error)
	PutItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, categoryID string, activeOnly bool) ([]Item, error)
	DeleteItem(ctx context.Context, id string) (bool, error)
}

// Ticket statuses.
const (
	TicketOpen     = "open"
	TicketClosed   = "closed"
	TicketArchived = "archived"
	TicketDeleted  = "deleted"
)

// Ticket is one order or support conversation.
type Ticket struct {
	ID            string
	GuildID       string
	UserID        string
	ChannelID     string
	MessageID     string
	Status        string
	Topic         string
	RelatedItemID string
	ClaimedBy     string
	ClosedBy      string
	ClosedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TicketMessage is one transcript line.
type TicketMessage struct {
	TicketID  string
	UserID    string
	Content   string
	IsStaff   bool
	CreatedAt time.Time
}

// TicketStore persists tickets and their transcripts.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket Ticket) error
	GetTicket(ctx context.Context, id string) (Ticket, error)
	GetTicketByChannel(ctx context.Context, channelID string) (Ticket, error)
	GetOpenTicket(ctx context.Context, guildID string, userID string) (Ticket, error)
	// ClaimTicket sets ClaimedBy only when the ticket is unclaimed and
	// reports whether this call won the claim.
	ClaimTicket(ctx context.Context, id string, claimerID string) (bool, error)
	UnclaimTicket(ctx context.Context, id string) error
	UpdateTicketStatus(ctx context.Context, id string, status string, byUserID string, at time.Time) error
	// CloseTicket moves an open ticket to closed and reports whether this
	// call performed the transition.
	CloseTicket(ctx context.Context, id string, byUserID string, at time.Time) (bool, error)
	AppendTicketMessage(ctx context.Context, message TicketMessage) error
	ListTicketMessages(ctx context.Context, ticketID string) ([]TicketMessage, error)
}
