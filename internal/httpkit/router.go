// Package httpkit is a small net/http substrate: a Router that chains
// error-returning handlers through middleware, and an App that owns the
// server lifecycle (graceful shutdown, structured logging).
//
// It is deliberately narrow — only what the S3 gateway dispatcher needs —
// rather than a general-purpose web framework.
package httpkit

import (
	"log/slog"
	"net/http"
	"strings"
)

// Handler is an HTTP handler that can return an error instead of writing
// one itself. Errors flow to the Router's ErrorHandler.
type Handler func(c *Ctx) error

// Middleware wraps a Handler to produce a new Handler.
type Middleware func(Handler) Handler

// ErrorHandlerFunc serializes an error from a Handler into a response.
type ErrorHandlerFunc func(c *Ctx, err error)

// Router dispatches requests through a chain of middleware to method/path
// routed handlers registered on an underlying http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	base   string
	global []Middleware // middleware applied to every request reaching ServeHTTP
	scoped []Middleware // middleware applied only to routes registered through this scope
	errFn  ErrorHandlerFunc
	log    *slog.Logger
}

// NewRouter creates an empty Router with default error handling and logger.
func NewRouter() *Router {
	return &Router{
		mux:   http.NewServeMux(),
		errFn: defaultErrorHandler,
		log:   slog.Default(),
	}
}

// Use appends global middleware, run for every request regardless of scope.
func (r *Router) Use(mws ...Middleware) {
	r.global = append(r.global, mws...)
}

// ErrorHandler overrides how handler errors are serialized.
func (r *Router) ErrorHandler(fn ErrorHandlerFunc) {
	if fn != nil {
		r.errFn = fn
	}
}

// Logger returns the router's logger.
func (r *Router) Logger() *slog.Logger { return r.log }

// SetLogger replaces the logger, ignoring a nil argument.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.log = l
	}
}

// Prefix returns a scoped Router that registers routes under base, sharing
// this Router's mux but not its scoped (With) middleware.
func (r *Router) Prefix(base string) *Router {
	return &Router{
		mux:   r.mux,
		base:  joinPath(r.base, base),
		errFn: r.errFn,
		log:   r.log,
	}
}

// With returns a scoped Router that applies extra middleware only to routes
// registered through it, without affecting routes registered on the parent.
func (r *Router) With(mws ...Middleware) *Router {
	scoped := make([]Middleware, 0, len(r.scoped)+len(mws))
	scoped = append(scoped, r.scoped...)
	scoped = append(scoped, mws...)
	return &Router{
		mux:    r.mux,
		base:   r.base,
		scoped: scoped,
		errFn:  r.errFn,
		log:    r.log,
	}
}

func (r *Router) handle(method, path string, h Handler) {
	full := r.fullPath(path)
	wrapped := r.wrap(h)
	pattern := full
	if method != "" {
		pattern = method + " " + full
	}
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		c := newCtx(w, req, r.log)
		if err := wrapped(c); err != nil {
			r.errFn(c, err)
		}
	})
}

// Get, Post, Put, Delete, Head register a handler for one HTTP method.
func (r *Router) Get(path string, h Handler)    { r.handle(http.MethodGet, path, h) }
func (r *Router) Post(path string, h Handler)   { r.handle(http.MethodPost, path, h) }
func (r *Router) Put(path string, h Handler)    { r.handle(http.MethodPut, path, h) }
func (r *Router) Delete(path string, h Handler) { r.handle(http.MethodDelete, path, h) }
func (r *Router) Head(path string, h Handler)   { r.handle(http.MethodHead, path, h) }

// Any registers a handler for every HTTP method, used for routes (like the
// S3 object dispatcher) that decide the operation from the method, query
// string, and headers rather than from the route pattern.
func (r *Router) Any(path string, h Handler) { r.handle("", path, h) }

// Static serves files from fsys under prefix.
func (r *Router) Static(prefix string, fsys http.FileSystem) {
	full := r.fullPath(prefix)
	fileServer := http.FileServer(fsys)
	stripped := http.StripPrefix(strings.TrimSuffix(full, "/"), fileServer)
	r.mux.Handle(full, stripped)
	if !strings.HasSuffix(full, "/") {
		r.mux.Handle(full+"/", stripped)
	}
}

func (r *Router) wrap(h Handler) Handler {
	wrapped := h
	for i := len(r.scoped) - 1; i >= 0; i-- {
		wrapped = r.scoped[i](wrapped)
	}
	return wrapped
}

// ServeHTTP implements http.Handler, running the global middleware chain
// before delegating to the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	final := Handler(func(c *Ctx) error {
		r.mux.ServeHTTP(c.w, c.r)
		return nil
	})
	for i := len(r.global) - 1; i >= 0; i-- {
		final = r.global[i](final)
	}
	final = recoverMiddleware(final)

	c := newCtx(w, req, r.log)
	if err := final(c); err != nil {
		r.errFn(c, err)
	}
}

func (r *Router) fullPath(rel string) string {
	return joinPath(r.base, rel)
}

func cleanLeading(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func joinPath(base, rel string) string {
	base = strings.TrimSuffix(base, "/")
	rel = cleanLeading(rel)
	if base == "" {
		return rel
	}
	if rel == "/" {
		return base
	}
	return base + rel
}

func defaultErrorHandler(c *Ctx, err error) {
	http.Error(c.w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
