package app

import (
	"log"
	"time"

	"github.com/opshop/guildshop/internal/services/shop/api/grpc/admin"
	"github.com/opshop/guildshop/internal/services/shop/domain/catalog"
	"github.com/opshop/guildshop/internal/services/shop/domain/economy"
	"github.com/opshop/guildshop/internal/services/shop/domain/invites"
	"github.com/opshop/guildshop/internal/services/shop/domain/notify"
	"github.com/opshop/guildshop/internal/services/shop/domain/redeem"
	"github.com/opshop/guildshop/internal/services/shop/domain/reputation"
	"github.com/opshop/guildshop/internal/services/shop/domain/rewards"
	"github.com/opshop/guildshop/internal/services/shop/domain/settings"
	"github.com/opshop/guildshop/internal/services/shop/domain/tickets"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/gateway"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"golang.org/x/text/language"
)

// Store is every collection the bot persists.
type Store interface {
	storage.InviteStore
	storage.AttributionStore
	storage.AccountStore
	storage.ReputationStore
	storage.EconomyStore
	storage.SettingsStore
	storage.CatalogStore
	storage.TicketStore
}

// ServiceConfig tunes reward amounts and redeem prices.
type ServiceConfig struct {
	OwnerID               string
	Rewards               rewards.Config
	ExchangeRate          float64
	NicknameCost          int64
	ReputationChannelName string
	Language              language.Tag
	Clock                 func() time.Time
	Logf                  func(string, ...any)
}

// Services is the wired domain layer of the bot.
type Services struct {
	Gateway    gateway.Gateway
	Settings   *settings.Service
	Economy    *economy.Service
	XP         *xp.Service
	Notifier   *notify.Notifier
	Tracker    *invites.Tracker
	Ledger     *invites.Ledger
	Joins      *invites.JoinHandler
	Rewards    *rewards.Fanout
	Reputation *reputation.Engine
	Endorser   *reputation.Endorser
	Catalog    *catalog.Service
	Tickets    *tickets.Service
	Redeem     *redeem.Service
}

// NewServices wires every domain service over one store and gateway.
func NewServices(store Store, gw gateway.Gateway, cfg ServiceConfig) *Services {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Language == language.Und {
		cfg.Language = language.English
	}

	s := &Services{Gateway: gw}
	s.Settings = settings.NewService(store, cfg.Clock)
	s.Economy = economy.NewService(store, cfg.Clock, cfg.Logf)
	s.XP = xp.NewService(store, cfg.Logf)
	s.Notifier = notify.New(gw, cfg.Language, cfg.Logf)
	s.Reputation = reputation.NewEngine(store, gw, s.Settings, s.Notifier, cfg.Clock, cfg.Logf)
	s.Endorser = reputation.NewEndorser(s.Reputation, s.Settings, gw, store, s.Economy, s.XP, cfg.ReputationChannelName, cfg.Logf)

	s.Tracker = invites.NewTracker(gw, store, cfg.Logf)
	s.Ledger = invites.NewLedger(store, cfg.Clock)
	s.Rewards = rewards.NewFanout(rewards.Deps{
		Settings:   s.Settings,
		Members:    gw,
		Tokens:     s.Economy,
		XP:         s.XP,
		Reputation: s.Reputation,
		Invites:    s.Ledger,
		Notifier:   s.Notifier,
		Logf:       cfg.Logf,
	}, cfg.Rewards)
	s.Joins = invites.NewJoinHandler(s.Tracker, s.Ledger, s.Rewards, cfg.Logf)

	s.Catalog = catalog.NewService(store, cfg.Clock)
	s.Tickets = tickets.NewService(tickets.Deps{
		Store:      store,
		Settings:   s.Settings,
		Members:    gw,
		Items:      s.Catalog,
		Ledger:     s.Economy,
		XP:         s.XP,
		Reputation: s.Reputation,
		Notifier:   s.Notifier,
		OwnerID:    cfg.OwnerID,
		Clock:      cfg.Clock,
		Logf:       cfg.Logf,
	})
	s.Redeem = redeem.NewService(s.Economy, gw, redeem.Config{
		ExchangeRate: cfg.ExchangeRate,
		NicknameCost: cfg.NicknameCost,
	}, cfg.Logf)
	return s
}

// AdminServer exposes the services through the admin gRPC API. ownerID is
// the only actor allowed to change configuration, balances and the catalog.
func (s *Services) AdminServer(transactions admin.TransactionLister, ownerID string, logf func(string, ...any)) *admin.Server {
	return admin.NewServer(admin.Deps{
		Settings:     s.Settings,
		Reputation:   s.Reputation,
		Catalog:      s.Catalog,
		Tickets:      s.Tickets,
		Economy:      s.Economy,
		XP:           s.XP,
		Redeem:       s.Redeem,
		Transactions: transactions,
		OwnerID:      ownerID,
		Logf:         logf,
	})
}
