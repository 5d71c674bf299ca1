//go:build windows

package httpkit

import (
	"context"
	"net/http"
)

func (a *App) serveWithSignals(srv *http.Server, serveFn func() error) error {
	// Signals not reliably injectable on this platform. Run under a plain context.
	return a.serveContext(context.Background(), srv, serveFn)
}
