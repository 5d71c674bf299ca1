package gateway

import (
	"errors"

	"github.com/bltavares/aricanduva/internal/httpkit"
	"github.com/bltavares/aricanduva/internal/lifecycle"
	"github.com/bltavares/aricanduva/internal/multipart"
	"github.com/bltavares/aricanduva/internal/s3api"
	"github.com/bltavares/aricanduva/internal/sigv4"
)

// writeError is the Router's ErrorHandler: it maps any error a handler
// returned (including a recovered panic's *httpkit.PanicError) to the S3
// <Error> XML envelope and writes it with the matching HTTP status.
func (s *Server) writeError(c *httpkit.Ctx, err error) {
	var panicErr *httpkit.PanicError
	if errors.As(err, &panicErr) {
		s.engine.Log.Error("panic recovered", "value", panicErr.Value, "stack", string(panicErr.Stack))
	}

	e := mapError(err, c.Request().URL.Path)
	_ = c.XML(e.HTTPStatus, e)
}

// mapError translates an error returned by the lifecycle engine, the
// multipart registry, or the SigV4 verifier into the S3 error envelope and
// HTTP status spec.md §7's taxonomy assigns it. Resource is echoed into
// the envelope's <Resource> element.
func mapError(err error, resource string) *s3api.Error {
	if err == nil {
		return nil
	}

	var existing *s3api.Error
	if errors.As(err, &existing) {
		return existing
	}

	switch {
	case errors.Is(err, lifecycle.ErrNoSuchKey):
		return s3api.ErrNoSuchKey(resource)
	case errors.Is(err, multipart.ErrNoSuchUpload):
		return s3api.ErrNoSuchUpload(resource)
	case errors.Is(err, multipart.ErrInvalidPart):
		return s3api.ErrInvalidPart(resource)
	case errors.Is(err, multipart.ErrInvalidPartOrder):
		return s3api.ErrInvalidPartOrder(resource)
	case errors.Is(err, sigv4.ErrMissingAuth), errors.Is(err, sigv4.ErrMalformedAuth):
		return s3api.ErrAccessDenied(resource, "")
	case errors.Is(err, sigv4.ErrBadSignature), errors.Is(err, sigv4.ErrChunkSignature):
		return s3api.ErrSignatureDoesNotMatch(resource)
	case errors.Is(err, sigv4.ErrUnknownKey):
		return s3api.ErrInvalidAccessKeyID(resource)
	case errors.Is(err, sigv4.ErrClockSkew):
		return s3api.ErrRequestTimeTooSkewed(resource)
	case errors.Is(err, sigv4.ErrExpired):
		return s3api.ErrAccessDenied(resource, "Request has expired")
	}

	var upstream *lifecycle.UpstreamError
	if errors.As(err, &upstream) {
		return s3api.ErrServiceUnavailable(resource)
	}

	return s3api.ErrInternal(resource, "")
}
