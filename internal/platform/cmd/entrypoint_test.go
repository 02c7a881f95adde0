package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
	"time"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"server"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("CMD_TEST_MODE", "env-mode")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.Address, "address", cfg.Address, "address")

	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Address != "flag:9001" {
		t.Fatalf("expected flag value for address, got %q", cfg.Address)
	}
	if cfg.Mode != "env-mode" {
		t.Fatalf("expected env mode, got %q", cfg.Mode)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected nil target to be rejected")
	}
}

func TestParseConfigWithPrefixScopesVariables(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "unprefixed:1")
	t.Setenv("APP_CMD_TEST_ADDRESS", "prefixed:2")

	cfg := testConfig{}
	if err := ParseConfigWithPrefix(&cfg, "APP_"); err != nil {
		t.Fatalf("parse prefixed config: %v", err)
	}
	if cfg.Address != "prefixed:2" {
		t.Fatalf("expected prefixed address, got %q", cfg.Address)
	}
	if cfg.Mode != "server" {
		t.Fatalf("expected default mode, got %q", cfg.Mode)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetryAndOptions(context.Background(), "", RunOptions{}, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetryAndOptions(context.Background(), ServiceInterview, RunOptions{}, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryReturnsRunError(t *testing.T) {
	t.Setenv("MOCKINTERVIEW_OTEL_ENDPOINT", "")
	want := errors.New("boom")
	err := RunWithTelemetryAndOptions(context.Background(), ServiceInterview, RunOptions{}, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}

func TestRunWithTelemetryAndOptionsPassesContext(t *testing.T) {
	t.Setenv("MOCKINTERVIEW_OTEL_ENDPOINT", "")
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	var got any
	err := RunWithTelemetryAndOptions(ctx, ServiceInterview, RunOptions{ShutdownTimeout: time.Second}, func(runCtx context.Context) error {
		got = runCtx.Value(ctxKey{})
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "marker" {
		t.Fatalf("expected caller context, got %v", got)
	}
}
