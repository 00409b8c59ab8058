package config

import (
	"bytes"
	"strings"
	"testing"
)

type envTestConfig struct {
	Port  int    `env:"TEST_PORT" envDefault:"123"`
	Token string `env:"TEST_TOKEN"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("port = %d, want 123", cfg.Port)
	}
}

func TestParseEnvUsesPrefix(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("GUILDSHOP_TEST_TOKEN", "secret")
	t.Setenv("TEST_TOKEN", "unprefixed")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Token != "secret" {
		t.Fatalf("token = %q, want %q", cfg.Token, "secret")
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("GUILDSHOP_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestExitfWritesAndExits(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	prevWriter, prevExit := exitWriter, exitFunc
	exitWriter = &buf
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		exitWriter, exitFunc = prevWriter, prevExit
	})

	Exitf("fatal: %s", "something broke")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got := buf.String(); got != "fatal: something broke\n" {
		t.Fatalf("output = %q", got)
	}
}
