// Package guildshop parses bot command flags and launches the shop runtime.
package guildshop

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	entrypoint "github.com/opshop/guildshop/internal/platform/cmd"
	platformgrpc "github.com/opshop/guildshop/internal/platform/grpc"
	"github.com/opshop/guildshop/internal/platform/timeouts"
	"github.com/opshop/guildshop/internal/services/shop/api/grpc/admin"
	shopapp "github.com/opshop/guildshop/internal/services/shop/app"
	"github.com/opshop/guildshop/internal/services/shop/domain/rewards"
	"github.com/samber/lo"
)

// Config holds bot command configuration.
type Config struct {
	DiscordToken          string  `env:"DISCORD_TOKEN"`
	DBPath                string  `env:"DB_PATH" envDefault:"data/guildshop.db"`
	Host                  string  `env:"HOST" envDefault:"127.0.0.1"`
	Port                  int     `env:"PORT" envDefault:"8095"`
	OwnerID               string  `env:"OWNER_ID"`
	InviteTokenReward     int64   `env:"INVITE_TOKEN_REWARD" envDefault:"10"`
	InviteXPReward        int64   `env:"INVITE_XP_REWARD" envDefault:"50"`
	InviteRepReward       int64   `env:"INVITE_REP_REWARD" envDefault:"1"`
	ExchangeRate          float64 `env:"EXCHANGE_RATE" envDefault:"1000"`
	NicknameCost          int64   `env:"NICKNAME_COST" envDefault:"5"`
	ReputationChannelName string  `env:"REP_CHANNEL_NAME" envDefault:"trusted-feedback"`
	Locale                string  `env:"LOCALE" envDefault:"en"`

	// Healthcheck probes a running bot instead of starting one.
	Healthcheck bool `env:"-"`
	// AdminMethod calls one admin API method on a running bot instead of
	// starting one. AdminData is the JSON request body.
	AdminMethod string `env:"-"`
	AdminData   string `env:"-"`
	// AdminActor is the user the admin call acts as; it defaults to OwnerID.
	AdminActor string `env:"-"`
}

// ErrMissingToken reports a start without gateway credentials.
var ErrMissingToken = errors.New("discord token is required (GUILDSHOP_DISCORD_TOKEN or -discord-token)")

// ErrMissingActor reports an admin call with neither -actor nor an owner id.
var ErrMissingActor = errors.New("admin calls need -actor or GUILDSHOP_OWNER_ID")

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DiscordToken, "discord-token", cfg.DiscordToken, "The Discord bot token")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shop SQLite database path")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "The interface the health and admin gRPC server binds")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The shop health and admin gRPC server port")
	fs.StringVar(&cfg.OwnerID, "owner-id", cfg.OwnerID, "User id of the bot owner")
	fs.Int64Var(&cfg.InviteTokenReward, "invite-token-reward", cfg.InviteTokenReward, "Tokens granted to non-seller inviters")
	fs.Int64Var(&cfg.InviteXPReward, "invite-xp-reward", cfg.InviteXPReward, "XP granted to every inviter")
	fs.Int64Var(&cfg.InviteRepReward, "invite-rep-reward", cfg.InviteRepReward, "Reputation granted to seller inviters")
	fs.Float64Var(&cfg.ExchangeRate, "exchange-rate", cfg.ExchangeRate, "Credits paid per exchanged token")
	fs.Int64Var(&cfg.NicknameCost, "nickname-cost", cfg.NicknameCost, "Token cost of a nickname change")
	fs.StringVar(&cfg.ReputationChannelName, "rep-channel-name", cfg.ReputationChannelName, "Channel name accepted for +rep when none is configured")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale used to format numbers in notifications")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "Probe the local health server and exit")
	fs.StringVar(&cfg.AdminMethod, "admin", "", "Call an admin API method on the running bot and exit")
	fs.StringVar(&cfg.AdminData, "data", "{}", "JSON request body for -admin")
	fs.StringVar(&cfg.AdminActor, "actor", "", "User id the -admin call acts as (default: owner id)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.AdminActor = lo.CoalesceOrEmpty(strings.TrimSpace(cfg.AdminActor), strings.TrimSpace(cfg.OwnerID))
	if cfg.AdminMethod != "" && cfg.AdminActor == "" {
		return Config{}, ErrMissingActor
	}
	if !cfg.Healthcheck && cfg.AdminMethod == "" && strings.TrimSpace(cfg.DiscordToken) == "" {
		return Config{}, ErrMissingToken
	}
	return cfg, nil
}

// localAddr is the address a client on this host uses to reach the bot.
func (cfg Config) localAddr() string {
	host := strings.TrimSpace(cfg.Host)
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

func (cfg Config) runtimeConfig() shopapp.RuntimeConfig {
	return shopapp.RuntimeConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		DBPath:       cfg.DBPath,
		DiscordToken: cfg.DiscordToken,
		OwnerID:      cfg.OwnerID,
		Rewards: rewards.Config{
			TokenReward:      cfg.InviteTokenReward,
			XPReward:         cfg.InviteXPReward,
			ReputationReward: cfg.InviteRepReward,
		},
		ExchangeRate:          cfg.ExchangeRate,
		NicknameCost:          cfg.NicknameCost,
		ReputationChannelName: cfg.ReputationChannelName,
		Locale:                cfg.Locale,
	}
}

// Run starts the shop runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceShop, func(ctx context.Context) error {
		return shopapp.Run(ctx, cfg.runtimeConfig())
	})
}

// Probe checks that a bot listening on cfg.Port has an open gateway session.
func Probe(ctx context.Context, cfg Config) error {
	return platformgrpc.Probe(ctx, cfg.localAddr(), shopapp.HealthService, timeouts.HealthProbe, log.Printf)
}

// Admin calls cfg.AdminMethod on the running bot and writes the JSON reply
// to out.
func Admin(ctx context.Context, cfg Config, out io.Writer) error {
	client, err := admin.Dial(cfg.localAddr(), cfg.AdminActor)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeouts.AdminCall)
	defer cancel()
	reply, err := client.CallJSON(ctx, cfg.AdminMethod, []byte(cfg.AdminData))
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.AdminMethod, err)
	}
	_, err = fmt.Fprintln(out, string(reply))
	return err
}
