// Package gateway assembles the S3 dispatcher, SigV4 verifier, lifecycle
// engine, multipart registry, and metadata store into one HTTP handler,
// the way the teacher's blueprint app/web packages assemble their own
// feature handlers around a *mizu.App (see e.g.
// blueprints/bi/app/web/server.go's Server/New/Run/Close/setupRoutes
// shape, reproduced here with S3-specific routes and handlers instead of
// BI's REST API).
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bltavares/aricanduva/internal/config"
	"github.com/bltavares/aricanduva/internal/httpkit"
	"github.com/bltavares/aricanduva/internal/ipfsrpc"
	"github.com/bltavares/aricanduva/internal/lifecycle"
	"github.com/bltavares/aricanduva/internal/metadata"
	"github.com/bltavares/aricanduva/internal/multipart"
	"github.com/bltavares/aricanduva/internal/sigv4"
)

// Server owns the gateway's HTTP lifecycle and its collaborators: the
// metadata store, the IPFS RPC client, the multipart registry, and the
// lifecycle engine built on top of them.
type Server struct {
	app    *httpkit.App
	cfg    config.Config
	store  *metadata.Store
	engine *lifecycle.Engine
	auth   *sigv4.Verifier // nil when the gateway serves anonymously
}

// New builds a Server from cfg: opens the metadata database, constructs
// the IPFS client and multipart registry, wires the lifecycle engine, and
// registers routes. It does not start listening; call Run for that.
func New(cfg config.Config) (*Server, error) {
	store, err := metadata.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: open metadata store: %w", err)
	}
	if err := store.Ensure(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("gateway: ensure metadata schema: %w", err)
	}

	ipfs := ipfsrpc.New(cfg.RPCAddress)
	uploads := multipart.NewRegistry()
	app := httpkit.New()

	engine := &lifecycle.Engine{
		Store:            store,
		IPFS:             ipfs,
		Uploads:          uploads,
		Mode:             cfg.Mode,
		Region:           cfg.Region,
		PublicGW:         cfg.PublicGateway,
		TrimEmptyFolders: cfg.ExperimentalTrimEmptyFolders,
		AutoMIME:         cfg.ExperimentalAutoMIME,
		Log:              app.Logger(),
	}

	s := &Server{
		app:    app,
		cfg:    cfg,
		store:  store,
		engine: engine,
	}

	if cfg.AuthAccessKey != "" && cfg.AuthSecretKey != "" {
		s.auth = &sigv4.Verifier{
			Region:  cfg.Region,
			Service: "s3",
			Lookup: func(accessKey string) (string, bool) {
				if accessKey == cfg.AuthAccessKey {
					return cfg.AuthSecretKey, true
				}
				return "", false
			},
		}
	}

	s.setupRoutes()
	s.checkIPFS()
	return s, nil
}

// checkIPFS probes the configured RPC endpoint once at startup. Per
// spec.md §6, an unreachable IPFS node is not a fatal startup condition
// (unlike an unreachable database): the gateway still starts and simply
// returns 5xx for object operations until IPFS recovers.
func (s *Server) checkIPFS() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.engine.IPFS.FilesLS(ctx, "/"); err != nil {
		s.app.Logger().Warn("ipfs rpc endpoint unreachable at startup", "rpc_address", s.cfg.RPCAddress, "error", err)
	}
}

// Handler returns the assembled http.Handler, primarily for tests that
// drive the server through httptest without binding a socket.
func (s *Server) Handler() *httpkit.App { return s.app }

// Run starts the server and blocks until it receives SIGINT/SIGTERM and
// drains gracefully.
func (s *Server) Run() error {
	return s.app.Listen(s.cfg.ListenAddress)
}

// Close releases the metadata store's database handle.
func (s *Server) Close() error {
	return s.store.Close()
}

func (s *Server) setupRoutes() {
	s.app.Use(httpkit.Logger(httpkit.LoggerOptions{RequestIDHeader: "X-Amz-Request-Id"}))
	s.app.ErrorHandler(s.writeError)

	s.app.Get("/healthz", func(c *httpkit.Ctx) error {
		return c.Text(200, "OK")
	})

	// Every other path is classified by the S3 dispatcher itself: method,
	// key presence, and query flags decide the operation, not the route
	// pattern, matching spec.md §4.1's table. A single catch-all handler
	// covers path-style and virtual-hosted addressing alike; net/http's
	// ServeMux wildcards just need to exist so requests reach it.
	s.app.Any("/", s.dispatch)
	s.app.Any("/{bucket}", s.dispatch)
	s.app.Any("/{bucket}/{key...}", s.dispatch)
}
