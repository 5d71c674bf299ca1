package httpkit

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Ctx carries the request/response pair for a single HTTP exchange through
// a Handler chain.
type Ctx struct {
	w      http.ResponseWriter
	r      *http.Request
	log    *slog.Logger
	status int
}

func newCtx(w http.ResponseWriter, r *http.Request, log *slog.Logger) *Ctx {
	if log == nil {
		log = slog.Default()
	}
	return &Ctx{w: w, r: r, log: log, status: http.StatusOK}
}

// Request returns the underlying *http.Request.
func (c *Ctx) Request() *http.Request { return c.r }

// Writer returns the underlying http.ResponseWriter.
func (c *Ctx) Writer() http.ResponseWriter { return c.w }

// Header returns the response header map.
func (c *Ctx) Header() http.Header { return c.w.Header() }

// Context returns the request's context.
func (c *Ctx) Context() context.Context {
	if c.r == nil {
		return context.Background()
	}
	return c.r.Context()
}

// Logger returns the request-scoped logger.
func (c *Ctx) Logger() *slog.Logger { return c.log }

// Status records the status code that will be (or was) written, without
// writing it itself. StatusCode reports the last value recorded this way.
func (c *Ctx) Status(code int) *Ctx {
	c.status = code
	return c
}

// StatusCode returns the last status recorded via Status, or 200 by default.
func (c *Ctx) StatusCode() int { return c.status }

// Param returns a routed path value (net/http ServeMux wildcard or one set
// manually via Request().SetPathValue).
func (c *Ctx) Param(name string) string {
	if c.r == nil {
		return ""
	}
	return c.r.PathValue(name)
}

// Query returns the first value of a query parameter.
func (c *Ctx) Query(name string) string {
	if c.r == nil || c.r.URL == nil {
		return ""
	}
	return c.r.URL.Query().Get(name)
}

// QueryValues returns the full parsed query string.
func (c *Ctx) QueryValues() url.Values {
	if c.r == nil || c.r.URL == nil {
		return url.Values{}
	}
	return c.r.URL.Query()
}

// HasQuery reports whether a query flag is present at all (distinguishing
// "?uploads" from an absent parameter).
func (c *Ctx) HasQuery(name string) bool {
	if c.r == nil || c.r.URL == nil {
		return false
	}
	_, ok := c.r.URL.Query()[name]
	return ok
}

// Text writes a plain-text response.
func (c *Ctx) Text(status int, body string) error {
	c.Status(status)
	c.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.w.WriteHeader(status)
	_, err := io.WriteString(c.w, body)
	return err
}

// JSON writes a JSON response.
func (c *Ctx) JSON(status int, v any) error {
	c.Status(status)
	c.w.Header().Set("Content-Type", "application/json")
	c.w.WriteHeader(status)
	return json.NewEncoder(c.w).Encode(v)
}

// XML writes an S3-style XML response: UTF-8, no DOCTYPE, with the
// standard <?xml ...?> prolog S3 clients expect.
func (c *Ctx) XML(status int, v any) error {
	c.Status(status)
	c.w.Header().Set("Content-Type", "application/xml")
	c.w.WriteHeader(status)
	if _, err := io.WriteString(c.w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(c.w).Encode(v)
}

// NoContent writes a status code with no body.
func (c *Ctx) NoContent(status int) error {
	c.Status(status)
	c.w.WriteHeader(status)
	return nil
}

// Redirect writes a redirect response.
func (c *Ctx) Redirect(status int, location string) error {
	c.Status(status)
	http.Redirect(c.w, c.r, location, status)
	return nil
}

// Stream copies src to the response body after writing status and
// Content-Type, flushing incrementally so large bodies don't buffer.
func (c *Ctx) Stream(status int, contentType string, src io.Reader) error {
	c.Status(status)
	if contentType != "" {
		c.w.Header().Set("Content-Type", contentType)
	}
	c.w.WriteHeader(status)
	_, err := io.Copy(c.w, src)
	return err
}
