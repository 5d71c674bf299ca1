package s3api

import (
	"encoding/xml"
	"net/http"

	"github.com/oklog/ulid/v2"
)

// Error is the S3-shaped error envelope. It implements error and is
// recognized by the dispatcher's error handler via errors.As, mirroring
// the teacher's Router.ErrorHandler + PanicError/errors.As pattern.
type Error struct {
	XMLName    xml.Name `xml:"Error"`
	Code       string   `xml:"Code"`
	Message    string   `xml:"Message"`
	Resource   string   `xml:"Resource"`
	RequestID  string   `xml:"RequestId"`
	HTTPStatus int      `xml:"-"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func newError(code string, status int, message, resource string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Resource:   resource,
		RequestID:  ulid.Make().String(),
		HTTPStatus: status,
	}
}

func ErrNoSuchKey(resource string) *Error {
	return newError("NoSuchKey", http.StatusNotFound, "The specified key does not exist.", resource)
}

func ErrNoSuchBucket(resource string) *Error {
	return newError("NoSuchBucket", http.StatusNotFound, "The specified bucket does not exist.", resource)
}

func ErrNoSuchUpload(resource string) *Error {
	return newError("NoSuchUpload", http.StatusNotFound, "The specified multipart upload does not exist.", resource)
}

func ErrAccessDenied(resource, message string) *Error {
	if message == "" {
		message = "Access Denied"
	}
	return newError("AccessDenied", http.StatusForbidden, message, resource)
}

func ErrSignatureDoesNotMatch(resource string) *Error {
	return newError("SignatureDoesNotMatch", http.StatusForbidden,
		"The request signature we calculated does not match the signature you provided.", resource)
}

func ErrInvalidAccessKeyID(resource string) *Error {
	return newError("InvalidAccessKeyId", http.StatusForbidden,
		"The access key ID you provided does not exist in our records.", resource)
}

func ErrRequestTimeTooSkewed(resource string) *Error {
	return newError("RequestTimeTooSkewed", http.StatusForbidden,
		"The difference between the request time and the server's time is too large.", resource)
}

func ErrInvalidRequest(resource, message string) *Error {
	return newError("InvalidRequest", http.StatusBadRequest, message, resource)
}

func ErrInvalidArgument(resource, message string) *Error {
	return newError("InvalidArgument", http.StatusBadRequest, message, resource)
}

func ErrMalformedXML(resource string) *Error {
	return newError("MalformedXML", http.StatusBadRequest, "The XML you provided was not well-formed.", resource)
}

func ErrInvalidPart(resource string) *Error {
	return newError("InvalidPart", http.StatusBadRequest,
		"One or more of the specified parts could not be found.", resource)
}

func ErrInvalidPartOrder(resource string) *Error {
	return newError("InvalidPartOrder", http.StatusBadRequest,
		"The list of parts was not in ascending order.", resource)
}

func ErrInternal(resource, message string) *Error {
	if message == "" {
		message = "We encountered an internal error. Please try again."
	}
	return newError("InternalError", http.StatusInternalServerError, message, resource)
}

func ErrServiceUnavailable(resource string) *Error {
	return newError("ServiceUnavailable", http.StatusServiceUnavailable,
		"Please reduce your request rate, or try again once the upstream IPFS node recovers.", resource)
}
