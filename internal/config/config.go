// Package config loads gateway configuration from environment variables
// into a validated Config, following the validator.New(WithRequiredStructEnabled)
// pattern used throughout the pack for struct-level validation.
package config

import (
	"context"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// Mode controls how a GetObject is served: proxied from IPFS, redirected to
// the public gateway, or chosen by the caller's IP (auto). HeadObject is not
// affected by it.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeProxy    Mode = "proxy"
	ModeRedirect Mode = "redirect"
)

// IPExtraction selects the client-IP resolution policy used by
// internal/clientip when a request arrives through a proxy.
type IPExtraction string

const (
	IPExtractionPeer               IPExtraction = "peer"
	IPExtractionRightmostXFF       IPExtraction = "rightmost_xff"
	IPExtractionLeftmostTrustedXFF IPExtraction = "leftmost_trusted_xff"
)

// Config is the full set of gateway settings, loaded from the environment
// and validated before use. CLI flag parsing is intentionally absent.
type Config struct {
	ListenAddress string `validate:"required"`
	RPCAddress    string `validate:"required,url"`
	DatabaseURL   string `validate:"required"`

	PublicGateway string `validate:"omitempty,url"`

	// VirtualHostDomain is the base domain under which "{bucket}.{domain}"
	// Host headers are recognized as virtual-hosted addressing (spec.md
	// §4.1). Empty disables virtual-hosted parsing; path-style still works.
	VirtualHostDomain string

	// AuthAccessKey/AuthSecretKey are optional: if either is unset, the
	// gateway serves anonymously and skips SigV4 verification entirely.
	AuthAccessKey string
	AuthSecretKey string
	Region        string `validate:"required"`

	Mode         Mode         `validate:"required,oneof=auto proxy redirect"`
	IPExtraction IPExtraction `validate:"required,oneof=peer rightmost_xff leftmost_trusted_xff"`

	ExperimentalTrimEmptyFolders bool
	ExperimentalAutoMIME         bool
}

// Load reads the gateway configuration from the process environment and
// validates it. It never parses os.Args.
func Load() (Config, error) {
	cfg := Config{
		ListenAddress:     getenv("LISTEN_ADDRESS", "[::]:3000"),
		RPCAddress:        os.Getenv("RPC_ADDRESS"),
		DatabaseURL:       getenv("DATABASE_URL", "file:gateway.db"),
		PublicGateway:     getenv("PUBLIC_GATEWAY", "https://dweb.link"),
		VirtualHostDomain: os.Getenv("VIRTUAL_HOST_DOMAIN"),
		AuthAccessKey:     os.Getenv("AUTH_ACCESS_KEY"),
		AuthSecretKey:     os.Getenv("AUTH_SECRET_KEY"),
		Region:            getenv("REGION", "us-east-1"),
		Mode:              Mode(getenv("MODE", string(ModeAuto))),
		IPExtraction:      IPExtraction(getenv("IP_EXTRACTION", string(IPExtractionPeer))),
	}

	cfg.ExperimentalTrimEmptyFolders = getenvBool("EXPERIMENTAL_TRIM_EMPTY_FOLDERS", true)
	cfg.ExperimentalAutoMIME = getenvBool("EXPERIMENTAL_AUTO_MIME", true)

	if err := cfg.Validate(context.Background()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation against cfg.
func (cfg Config) Validate(ctx context.Context) error {
	return validate.StructCtx(ctx, cfg)
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
