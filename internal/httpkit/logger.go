package httpkit

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// LoggerOptions configures the request logging middleware.
type LoggerOptions struct {
	Output          io.Writer    // defaults to os.Stderr via slog.Default if nil
	UserAgent       bool         // include the User-Agent header
	RequestIDHeader string       // echo this inbound header as request_id, if present
	Logger          *slog.Logger // overrides the router logger entirely if set
}

// Logger returns middleware that emits one structured log line per request:
// method, path, status, bytes written, duration, and optionally user agent
// and a request id lifted from an inbound header. The line is logged at
// error level when the chain returns an error or the status written is 5xx.
func Logger(opts LoggerOptions) Middleware {
	return func(next Handler) Handler {
		return func(c *Ctx) error {
			log := opts.Logger
			if log == nil {
				log = c.Logger()
			}
			if opts.Output != nil {
				log = slog.New(slog.NewJSONHandler(opts.Output, nil))
			}

			start := time.Now()
			sw := &statusWriter{ResponseWriter: c.w, status: http.StatusOK}
			c.w = sw

			err := next(c)

			fields := []any{
				slog.String("method", c.r.Method),
				slog.String("path", c.r.URL.Path),
				slog.Int("status", sw.status),
				slog.Int("bytes", sw.bytes),
				slog.Duration("duration", time.Since(start)),
			}
			if opts.UserAgent {
				fields = append(fields, slog.String("user_agent", c.r.UserAgent()))
			}
			if opts.RequestIDHeader != "" {
				if id := c.r.Header.Get(opts.RequestIDHeader); id != "" {
					fields = append(fields, slog.String("request_id", id))
				}
			}
			if err != nil {
				fields = append(fields, slog.Any("error", err))
			}
			if err != nil || sw.status >= http.StatusInternalServerError {
				log.Error("request", fields...)
			} else {
				log.Info("request", fields...)
			}
			return err
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
