package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func mustReq(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, nil)
}

func TestJoinPathAndCleanLeading(t *testing.T) {
	if got := cleanLeading(""); got != "/" {
		t.Fatalf("cleanLeading(\"\") = %q", got)
	}
	if got := joinPath("/api", "v1"); got != "/api/v1" {
		t.Fatalf("joinPath = %q", got)
	}
	if got := joinPath("/api", "/"); got != "/api" {
		t.Fatalf("joinPath = %q", got)
	}
}

func TestServeHTTP_RunsGlobalChainAndRoutes(t *testing.T) {
	r := NewRouter()

	var order []string
	r.Use(func(next Handler) Handler {
		return func(c *Ctx) error {
			order = append(order, "mw")
			return next(c)
		}
	})
	r.Get("/ok", func(c *Ctx) error {
		order = append(order, "handler")
		return c.Text(http.StatusOK, "hi")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "http://example/ok"))

	if rr.Code != http.StatusOK || rr.Body.String() != "hi" {
		t.Fatalf("unexpected response: %d %q", rr.Code, rr.Body.String())
	}
	if strings.Join(order, ",") != "mw,handler" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestErrorHandling_CustomErrorHandler(t *testing.T) {
	r := NewRouter()
	r.ErrorHandler(func(c *Ctx, err error) {
		c.w.WriteHeader(499)
		_, _ = c.w.Write([]byte("custom: " + err.Error()))
	})
	r.Get("/err", func(c *Ctx) error { return errors.New("boom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "http://example/err"))

	if rr.Code != 499 || rr.Body.String() != "custom: boom" {
		t.Fatalf("unexpected response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestPanicRecovery(t *testing.T) {
	r := NewRouter()
	var seen *PanicError
	r.ErrorHandler(func(c *Ctx, err error) {
		errors.As(err, &seen)
		c.w.WriteHeader(599)
	})
	r.Get("/panic", func(c *Ctx) error { panic("x") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "http://example/panic"))

	if rr.Code != 599 {
		t.Fatalf("expected 599, got %d", rr.Code)
	}
	if seen == nil || len(seen.Stack) == 0 {
		t.Fatalf("expected PanicError with captured stack")
	}
}

func TestPrefixAndWith(t *testing.T) {
	r := NewRouter()
	api := r.Prefix("/api")

	var tags []string
	scoped := api.With(func(next Handler) Handler {
		return func(c *Ctx) error {
			tags = append(tags, "scoped")
			return next(c)
		}
	})
	scoped.Get("/ping", func(c *Ctx) error {
		tags = append(tags, "handler")
		return c.Text(http.StatusOK, "pong")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, mustReq(t, http.MethodGet, "http://example/api/ping"))

	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Fatalf("unexpected response: %d %q", rr.Code, rr.Body.String())
	}
	if strings.Join(tags, ",") != "scoped,handler" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestAny_MatchesEveryMethod(t *testing.T) {
	r := NewRouter()
	r.Any("/dispatch", func(c *Ctx) error {
		return c.Text(http.StatusOK, c.Request().Method)
	})

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, mustReq(t, m, "http://example/dispatch"))
		if rr.Code != http.StatusOK || rr.Body.String() != m {
			t.Fatalf("method %s: got %d %q", m, rr.Code, rr.Body.String())
		}
	}
}
