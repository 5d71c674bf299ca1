package config

import (
	"context"
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDRESS", "RPC_ADDRESS", "DATABASE_URL", "PUBLIC_GATEWAY",
		"AUTH_ACCESS_KEY", "AUTH_SECRET_KEY", "REGION", "MODE", "IP_EXTRACTION",
		"EXPERIMENTAL_TRIM_EMPTY_FOLDERS", "EXPERIMENTAL_AUTO_MIME",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_MissingRequiredFails(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for missing RPC_ADDRESS")
	}
}

func TestLoad_AnonymousWhenAuthKeysUnset(t *testing.T) {
	clearEnv(t)
	os.Setenv("RPC_ADDRESS", "http://127.0.0.1:5001")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthAccessKey != "" || cfg.AuthSecretKey != "" {
		t.Fatalf("want anonymous (empty) credentials, got %q/%q", cfg.AuthAccessKey, cfg.AuthSecretKey)
	}
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("RPC_ADDRESS", "http://127.0.0.1:5001")
	os.Setenv("AUTH_ACCESS_KEY", "AKIA_TEST")
	os.Setenv("AUTH_SECRET_KEY", "secret")
	os.Setenv("MODE", "redirect")
	os.Setenv("EXPERIMENTAL_TRIM_EMPTY_FOLDERS", "true")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "[::]:3000" {
		t.Fatalf("want default listen address, got %q", cfg.ListenAddress)
	}
	if cfg.Mode != ModeRedirect {
		t.Fatalf("want redirect mode, got %q", cfg.Mode)
	}
	if cfg.IPExtraction != IPExtractionPeer {
		t.Fatalf("want default peer extraction, got %q", cfg.IPExtraction)
	}
	if !cfg.ExperimentalTrimEmptyFolders {
		t.Fatalf("want trim-empty-folders enabled")
	}
}

func TestConfig_Validate_RejectsBadMode(t *testing.T) {
	cfg := Config{
		ListenAddress: ":8080",
		RPCAddress:    "http://127.0.0.1:5001",
		DatabaseURL:   "file:x.db",
		AuthAccessKey: "a",
		AuthSecretKey: "b",
		Region:        "us-east-1",
		Mode:          "bogus",
		IPExtraction:  IPExtractionPeer,
	}
	if err := cfg.Validate(context.Background()); err == nil {
		t.Fatalf("expected validation error for bogus mode")
	}
}
