package httpkit

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogger_EmitsRequestLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRouter()
	r.Use(Logger(LoggerOptions{Output: &buf, UserAgent: true, RequestIDHeader: "X-Request-Id"}))
	r.Get("/thing", func(c *Ctx) error {
		return c.Text(http.StatusCreated, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "http://example/thing", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rr.Code)
	}
	out := buf.String()
	for _, want := range []string{`"status":201`, `"method":"GET"`, `"user_agent":"test-agent"`, `"request_id":"req-123"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %q: %s", want, out)
		}
	}
}

func TestLogger_RecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	r := NewRouter()
	r.Use(Logger(LoggerOptions{Output: &buf}))
	r.Get("/boom", func(c *Ctx) error {
		c.Status(http.StatusInternalServerError)
		return errors.New("boom")
	})
	r.ErrorHandler(func(c *Ctx, err error) {
		c.w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "http://example/boom", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Fatalf("expected error level log line: %s", buf.String())
	}
}

