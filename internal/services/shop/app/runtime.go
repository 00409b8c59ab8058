// Package app wires the shop bot: storage, gateway session, domain services,
// event handlers and the health and admin gRPC endpoints.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/opshop/guildshop/internal/platform/timeouts"
	"github.com/opshop/guildshop/internal/services/shop/api/grpc/admin"
	"github.com/opshop/guildshop/internal/services/shop/domain/rewards"
	"github.com/opshop/guildshop/internal/services/shop/gateway/discord"
	"github.com/opshop/guildshop/internal/services/shop/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/text/language"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls bot startup and reward tuning.
type RuntimeConfig struct {
	// Host is the interface the health and admin gRPC server binds. The
	// admin service trusts its actor header, so keep it off public networks.
	Host                  string
	Port                  int
	DBPath                string
	DiscordToken          string
	OwnerID               string
	Rewards               rewards.Config
	ExchangeRate          float64
	NicknameCost          int64
	ReputationChannelName string
	Locale                string
}

const (
	defaultShopHost = "127.0.0.1"
	defaultShopPort = 8095
	defaultShopDB   = "data/guildshop.db"

	// HealthService is reported SERVING while the gateway session is open.
	HealthService = "shop.gateway"
)

// Intents are the gateway events the bot subscribes to.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildInvites |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent

func (cfg RuntimeConfig) normalized() (RuntimeConfig, error) {
	cfg.DiscordToken = strings.TrimSpace(cfg.DiscordToken)
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("discord token is required")
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = defaultShopHost
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultShopPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultShopDB
	}
	return cfg, nil
}

func (cfg RuntimeConfig) serviceConfig() ServiceConfig {
	tag := language.English
	if locale := strings.TrimSpace(cfg.Locale); locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			log.Printf("[app] unknown locale %q, using en: %v", locale, err)
		} else {
			tag = parsed
		}
	}
	return ServiceConfig{
		OwnerID:               cfg.OwnerID,
		Rewards:               cfg.Rewards,
		ExchangeRate:          cfg.ExchangeRate,
		NicknameCost:          cfg.NicknameCost,
		ReputationChannelName: cfg.ReputationChannelName,
		Language:              tag,
	}
}

// Run opens storage and the gateway session, serves health checks and
// handles gateway events until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open shop sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close shop sqlite store: %v", closeErr)
		}
	}()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true

	services := NewServices(store, discord.New(session), cfg.serviceConfig())
	handlers := NewHandlers(ctx, services, log.Printf)
	unregister := handlers.Register(session)
	defer unregister()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on shop address %s: %w", addr, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	admin.Register(grpcServer, services.AdminServer(store, cfg.OwnerID, log.Printf))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()
	log.Printf("shop health and admin server listening at %v", listener.Addr())

	if err := openSession(ctx, session); err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Printf("close discord session: %v", closeErr)
		}
	}()
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	log.Printf("shop gateway session open")

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return nil
	case err := <-serveErr:
		serveErr <- err
		return fmt.Errorf("health server stopped: %w", err)
	}
}

// openSession performs the gateway handshake, giving up after
// timeouts.GatewayOpen or when ctx ends.
func openSession(ctx context.Context, session *discordgo.Session) error {
	opened := make(chan error, 1)
	go func() {
		opened <- session.Open()
	}()
	openCtx, cancel := context.WithTimeout(ctx, timeouts.GatewayOpen)
	defer cancel()
	select {
	case err := <-opened:
		if err != nil {
			return fmt.Errorf("open discord session: %w", err)
		}
		return nil
	case <-openCtx.Done():
		go func() {
			if err := <-opened; err == nil {
				_ = session.Close()
			}
		}()
		return fmt.Errorf("open discord session: %w", openCtx.Err())
	}
}
