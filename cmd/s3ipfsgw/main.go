// Command s3ipfsgw runs the S3-to-IPFS gateway: it loads configuration
// from the environment and serves the S3-compatible HTTP surface until
// SIGINT or SIGTERM, then drains in-flight requests before exiting.
// Flag parsing, container packaging, and migration tooling are out of
// scope (spec.md §1); this is the minimal wiring the gateway needs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bltavares/aricanduva/internal/config"
	"github.com/bltavares/aricanduva/internal/gateway"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "s3ipfsgw: invalid configuration:", err)
		return 1
	}

	srv, err := gateway.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "s3ipfsgw: startup failed:", err)
		return 1
	}
	defer srv.Close()

	if err := srv.Run(); err != nil {
		slog.Error("s3ipfsgw: server exited with error", "error", err)
		return 1
	}
	return 0
}
