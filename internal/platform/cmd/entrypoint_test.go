package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"

	"github.com/opshop/guildshop/internal/platform/otel"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"server"`
}

func TestParseConfigReadsEnvThenFlags(t *testing.T) {
	t.Setenv("GUILDSHOP_CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("GUILDSHOP_CMD_TEST_MODE", "env-mode")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "mode")

	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Address != "flag:9001" {
		t.Fatalf("address = %q, want flag value", cfg.Address)
	}
	if cfg.Mode != "env-mode" {
		t.Fatalf("mode = %q, want env value", cfg.Mode)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected nil target error")
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceShop, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("run failed")
	err := RunWithTelemetryAndOptions(context.Background(), ServiceShop, RunOptions{
		Telemetry: &otel.Settings{},
	}, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
