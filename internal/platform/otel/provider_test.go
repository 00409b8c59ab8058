package otel_test

import (
	"context"
	"testing"

	"github.com/opshop/guildshop/internal/platform/otel"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "test-service", otel.Settings{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "test-service", otel.Settings{
		Endpoint: "http://localhost:4318",
		Enabled:  "FALSE",
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestLoadSettingsReadsPrefixedEnv(t *testing.T) {
	t.Setenv("GUILDSHOP_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("GUILDSHOP_OTEL_ENABLED", "true")

	settings, err := otel.LoadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Endpoint != "http://collector:4318" {
		t.Fatalf("endpoint = %q", settings.Endpoint)
	}
	if settings.Enabled != "true" {
		t.Fatalf("enabled = %q", settings.Enabled)
	}
}
