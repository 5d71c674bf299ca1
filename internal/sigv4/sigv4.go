// Package sigv4 verifies AWS Signature Version 4 authenticated requests:
// header-based, query-string (pre-signed URL), and streaming-chunked
// bodies. The HMAC derivation chain (kDate -> kRegion -> kService ->
// kSigning) mirrors Aerosane-edgeoci/src/s3auth.go's calculateSignature,
// read in the opposite direction: that file signs outgoing requests to
// S3-compatible storage, this package verifies incoming ones against a
// stored secret.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm   = "AWS4-HMAC-SHA256"
	dateHeader  = "X-Amz-Date"
	shortDate   = "20060102"
	longDate    = "20060102T150405Z"
	maxSkew     = 15 * time.Minute
	UnsignedTag = "UNSIGNED-PAYLOAD"
)

// CredentialLookup resolves an access key to its secret. It returns ok=false
// when the access key is unknown.
type CredentialLookup func(accessKey string) (secret string, ok bool)

// Verifier checks SigV4 signatures against a single region/service scope.
type Verifier struct {
	Region  string
	Service string // always "s3"
	Lookup  CredentialLookup
	Now     func() time.Time // overridable for tests; defaults to time.Now
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// AuthHeader is the parsed content of an Authorization header value.
type AuthHeader struct {
	AccessKey     string
	Date          string // yyyymmdd
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

var (
	ErrMissingAuth   = errors.New("sigv4: missing authentication")
	ErrMalformedAuth = errors.New("sigv4: malformed authorization")
	ErrBadSignature  = errors.New("sigv4: signature mismatch")
	ErrClockSkew     = errors.New("sigv4: request timestamp outside allowed skew")
	ErrExpired       = errors.New("sigv4: pre-signed URL expired")
	ErrUnknownKey    = errors.New("sigv4: unknown access key")
)

// ParseAuthorizationHeader parses the "AWS4-HMAC-SHA256 Credential=.../...,
// SignedHeaders=..., Signature=..." header value.
func ParseAuthorizationHeader(header string) (*AuthHeader, error) {
	if !strings.HasPrefix(header, Algorithm+" ") {
		return nil, ErrMalformedAuth
	}
	rest := strings.TrimPrefix(header, Algorithm+" ")

	fields := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, ErrMalformedAuth
		}
		fields[kv[0]] = kv[1]
	}

	cred, ok := fields["Credential"]
	if !ok {
		return nil, ErrMalformedAuth
	}
	credParts := strings.Split(cred, "/")
	if len(credParts) != 5 || credParts[4] != "aws4_request" {
		return nil, ErrMalformedAuth
	}

	signedHeadersRaw, ok := fields["SignedHeaders"]
	if !ok {
		return nil, ErrMalformedAuth
	}
	signature, ok := fields["Signature"]
	if !ok || signature == "" {
		return nil, ErrMalformedAuth
	}

	return &AuthHeader{
		AccessKey:     credParts[0],
		Date:          credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeadersRaw, ";"),
		Signature:     signature,
	}, nil
}

// VerifyHeader verifies a header-authenticated request (Authorization
// header, X-Amz-Date, X-Amz-Content-Sha256).
func (v *Verifier) VerifyHeader(r *http.Request, payloadHash string) error {
	authVal := r.Header.Get("Authorization")
	if authVal == "" {
		return ErrMissingAuth
	}
	auth, err := ParseAuthorizationHeader(authVal)
	if err != nil {
		return err
	}

	amzDate := r.Header.Get(dateHeader)
	if amzDate == "" {
		return ErrMalformedAuth
	}
	ts, err := time.Parse(longDate, amzDate)
	if err != nil {
		return ErrMalformedAuth
	}
	if skew := v.now().Sub(ts); skew > maxSkew || skew < -maxSkew {
		return ErrClockSkew
	}

	secret, ok := v.Lookup(auth.AccessKey)
	if !ok {
		return ErrUnknownKey
	}

	canonical := CanonicalRequest(r.Method, r.URL.Path, r.URL.Query(), r.Header, auth.SignedHeaders, payloadHash)
	scope := Scope(auth.Date, v.Region, v.Service)
	sts := StringToSign(amzDate, scope, canonical)
	expected := Sign(secret, auth.Date, v.Region, v.Service, sts)

	if !hmac.Equal([]byte(expected), []byte(auth.Signature)) {
		return ErrBadSignature
	}
	return nil
}

// VerifyPresigned verifies a query-string (pre-signed URL) authenticated
// request: X-Amz-Algorithm, X-Amz-Credential, X-Amz-Date, X-Amz-Expires,
// X-Amz-SignedHeaders, X-Amz-Signature.
func (v *Verifier) VerifyPresigned(r *http.Request) error {
	q := r.URL.Query()
	if q.Get("X-Amz-Algorithm") != Algorithm {
		return ErrMissingAuth
	}
	cred := q.Get("X-Amz-Credential")
	credParts := strings.Split(cred, "/")
	if len(credParts) != 5 || credParts[4] != "aws4_request" {
		return ErrMalformedAuth
	}
	accessKey, date, region, service := credParts[0], credParts[1], credParts[2], credParts[3]

	amzDate := q.Get("X-Amz-Date")
	ts, err := time.Parse(longDate, amzDate)
	if err != nil {
		return ErrMalformedAuth
	}

	expiresRaw := q.Get("X-Amz-Expires")
	var expiresSec int
	if _, err := fmt.Sscanf(expiresRaw, "%d", &expiresSec); err != nil || expiresSec <= 0 {
		return ErrMalformedAuth
	}
	if v.now().After(ts.Add(time.Duration(expiresSec) * time.Second)) {
		return ErrExpired
	}

	signedHeaders := strings.Split(q.Get("X-Amz-SignedHeaders"), ";")
	signature := q.Get("X-Amz-Signature")
	if signature == "" {
		return ErrMalformedAuth
	}

	secret, ok := v.Lookup(accessKey)
	if !ok {
		return ErrUnknownKey
	}

	// The signature itself is excluded from the canonical query string.
	unsigned := url.Values{}
	for k, vals := range q {
		if k == "X-Amz-Signature" {
			continue
		}
		unsigned[k] = vals
	}

	canonical := canonicalRequestWithQuery(r.Method, r.URL.Path, unsigned, r.Header, signedHeaders, UnsignedTag)
	scope := Scope(date, region, service)
	sts := StringToSign(amzDate, scope, canonical)
	expected := Sign(secret, date, region, service, sts)

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// CanonicalRequest builds the canonical request string from the request's
// own query string.
func CanonicalRequest(method, path string, query url.Values, headers http.Header, signedHeaders []string, payloadHash string) string {
	return canonicalRequestWithQuery(method, path, query, headers, signedHeaders, payloadHash)
}

func canonicalRequestWithQuery(method, path string, query url.Values, headers http.Header, signedHeaders []string, payloadHash string) string {
	canonicalQuery := canonicalQueryString(query)
	canonicalHeaders, signedHeadersJoined := canonicalHeaderBlock(headers, signedHeaders)

	return strings.Join([]string{
		strings.ToUpper(method),
		canonicalURI(path),
		canonicalQuery,
		canonicalHeaders,
		signedHeadersJoined,
		payloadHash,
	}, "\n")
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func canonicalQueryString(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for j, val := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

func canonicalHeaderBlock(headers http.Header, signedHeaders []string) (block string, joined string) {
	sorted := append([]string(nil), signedHeaders...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, h := range sorted {
		var val string
		if strings.EqualFold(h, "host") {
			val = headers.Get("Host")
		} else {
			val = headers.Get(h)
		}
		b.WriteString(strings.ToLower(h))
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(val))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(sorted, ";")
}

// Scope returns the credential scope "date/region/service/aws4_request".
func Scope(date, region, service string) string {
	return fmt.Sprintf("%s/%s/%s/aws4_request", date, region, service)
}

// StringToSign builds the string-to-sign for a canonical request.
func StringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return fmt.Sprintf("%s\n%s\n%s\n%s", Algorithm, amzDate, scope, hex.EncodeToString(hash[:]))
}

// Sign derives the signing key and returns the hex-encoded signature over
// stringToSign, following the kDate -> kRegion -> kService -> kSigning chain.
func Sign(secret, date, region, service, stringToSign string) string {
	key := signingKey(secret, date, region, service)
	return hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
}

func signingKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data, used for
// the x-amz-content-sha256 payload hash of non-streaming bodies.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
