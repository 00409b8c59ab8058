// Package main starts the guild shop bot process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	shopcmd "github.com/opshop/guildshop/internal/cmd/guildshop"
	"github.com/opshop/guildshop/internal/platform/config"
)

func main() {
	cfg, err := shopcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[GUILDSHOP] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Healthcheck {
		if err := shopcmd.Probe(ctx, cfg); err != nil {
			config.Exitf("healthcheck: %v", err)
		}
		return
	}
	if cfg.AdminMethod != "" {
		if err := shopcmd.Admin(ctx, cfg, os.Stdout); err != nil {
			config.Exitf("admin: %v", err)
		}
		return
	}
	if err := shopcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
