// Package lifecycle implements the object lifecycle engine: PUT/GET/HEAD/
// DELETE orchestration against IPFS and the metadata store, bucket
// listing, and multipart completion. It is the business-logic core the
// S3 dispatcher calls into; it returns plain Go errors (sentinel errors
// for not-found/validation cases, *UpstreamError for IPFS failures) and
// leaves S3 error-code mapping to the dispatcher, matching spec.md's
// split between "Object Lifecycle Engine" and "S3 Dispatcher".
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	units "github.com/docker/go-units"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/bltavares/aricanduva/internal/clientip"
	"github.com/bltavares/aricanduva/internal/config"
	"github.com/bltavares/aricanduva/internal/ipfsrpc"
	"github.com/bltavares/aricanduva/internal/metadata"
	"github.com/bltavares/aricanduva/internal/multipart"
)

// ErrNoSuchKey is returned when a (bucket, key) has no metadata row.
var ErrNoSuchKey = errors.New("lifecycle: no such key")

// UpstreamError wraps a failure from the IPFS RPC collaborator, letting
// the dispatcher distinguish "IPFS is unhappy" (502/503) from other
// internal failures (500).
type UpstreamError struct{ Err error }

func (e *UpstreamError) Error() string { return fmt.Sprintf("lifecycle: upstream ipfs: %v", e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Engine wires the metadata store, IPFS client, and multipart registry
// into the PUT/GET/HEAD/DELETE/list/multipart operations spec.md §4.3-4.4
// describe. It holds no connections of its own; all of its collaborators
// own their respective resources.
type Engine struct {
	Store    *metadata.Store
	IPFS     *ipfsrpc.Client
	Uploads  *multipart.Registry
	Mode     config.Mode
	Region   string
	PublicGW string

	TrimEmptyFolders bool
	AutoMIME         bool

	Log *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// GetResult is the outcome of a GetObject call: exactly one of Stream or
// RedirectLocation is set, mirroring the mode policy's proxy/redirect split.
type GetResult struct {
	Object          *metadata.Object
	Stream          io.ReadCloser // set in proxy-like resolution
	RedirectLocation string       // set in redirect-like resolution
}

// PutObject streams body into IPFS and upserts its metadata row. On an
// IPFS add failure, no metadata is written. On a metadata write failure
// after a successful add, the CID is already pinned in IPFS but invisible
// through the gateway, per spec.md §4.3's documented trade-off.
func (e *Engine) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentType string) (*metadata.Object, error) {
	if contentType == "" {
		contentType = e.guessContentType(key)
	}

	counted := &countingReader{r: body}
	cid, err := e.IPFS.Add(ctx, counted, path.Base(key), contentType)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("add: %w", err)}
	}

	obj := metadata.Object{
		Bucket:      bucket,
		Key:         key,
		CID:         cid,
		ContentType: contentType,
		Size:        counted.n,
	}
	if err := e.Store.Put(ctx, obj); err != nil {
		return nil, fmt.Errorf("lifecycle: put metadata for cid %s: %w", cid, err)
	}

	stored, err := e.Store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reload metadata: %w", err)
	}
	return stored, nil
}

func (e *Engine) guessContentType(key string) string {
	if e.AutoMIME {
		if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// GetObject resolves (bucket, key) to either a proxied IPFS stream or a
// redirect location, per the configured mode and the caller's IP.
func (e *Engine) GetObject(ctx context.Context, bucket, key, callerIP string) (*GetResult, error) {
	obj, err := e.Store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: lookup metadata: %w", err)
	}
	if obj == nil {
		return nil, ErrNoSuchKey
	}

	if e.serveByRedirect(callerIP) {
		return &GetResult{Object: obj, RedirectLocation: e.redirectURL(obj.CID)}, nil
	}

	rc, err := e.IPFS.Cat(ctx, obj.CID)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("cat: %w", err)}
	}
	return &GetResult{Object: obj, Stream: rc}, nil
}

// HeadObject returns the metadata row without touching IPFS.
func (e *Engine) HeadObject(ctx context.Context, bucket, key string) (*metadata.Object, error) {
	obj, err := e.Store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: lookup metadata: %w", err)
	}
	if obj == nil {
		return nil, ErrNoSuchKey
	}
	return obj, nil
}

func (e *Engine) serveByRedirect(callerIP string) bool {
	switch e.Mode {
	case config.ModeProxy:
		return false
	case config.ModeRedirect:
		return true
	default: // auto
		return !clientip.IsPrivate(callerIP)
	}
}

func (e *Engine) redirectURL(cid string) string {
	return strings.TrimSuffix(e.PublicGW, "/") + "/ipfs/" + cid
}

// DeleteObject removes the metadata row (idempotently — a missing key is
// not an error), unpins the CID from IPFS if no other row references it,
// and optionally trims now-empty MFS directory segments.
func (e *Engine) DeleteObject(ctx context.Context, bucket, key string) error {
	obj, err := e.Store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("lifecycle: lookup metadata: %w", err)
	}
	if obj == nil {
		return nil
	}

	if err := e.Store.Delete(ctx, bucket, key); err != nil {
		return fmt.Errorf("lifecycle: delete metadata: %w", err)
	}

	if n, err := e.Store.CountByCID(ctx, obj.CID); err == nil && n == 0 {
		_ = e.IPFS.PinRM(ctx, obj.CID)
		_ = e.IPFS.FilesRM(ctx, "/"+bucket+"/"+key, false)
		e.logger().Info("unpinned orphaned object", slog.String("cid", obj.CID), slog.String("size", humanSize(obj.Size)))
	}

	if e.TrimEmptyFolders {
		e.trimEmptyFolders(ctx, bucket, key)
	}
	return nil
}

// trimEmptyFolders walks key's directory segments deepest-first, removing
// MFS directories that no longer have any metadata row beneath them. It
// stops at the first non-empty segment: once one level has surviving
// content, every shallower prefix shares that content and is non-empty too.
func (e *Engine) trimEmptyFolders(ctx context.Context, bucket, key string) {
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return
	}
	segments := strings.Split(dir, "/")

	for i := len(segments); i > 0; i-- {
		prefix := strings.Join(segments[:i], "/")
		empty, err := e.Store.HasAnyWithPrefix(ctx, bucket, prefix)
		if err != nil {
			return
		}
		if empty {
			return
		}
		mfsPath := "/" + bucket + "/" + prefix
		if err := e.IPFS.FilesRM(ctx, mfsPath, true); err != nil {
			e.logger().Warn("mfs trim failed", slog.String("path", mfsPath), slog.Any("error", err))
			return
		}
		e.logger().Info("trimmed empty mfs directory", slog.String("path", mfsPath))
	}
}

// DeletedKey is one result entry of a bulk DeleteObjects call.
type DeletedKey struct {
	Key   string
	Error error
}

// DeleteObjects applies DeleteObject to each key concurrently (bounded),
// collecting per-key errors instead of failing the whole batch.
func (e *Engine) DeleteObjects(ctx context.Context, bucket string, keys []string) []DeletedKey {
	results := make([]DeletedKey, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			err := e.DeleteObject(gctx, bucket, key)
			results[i] = DeletedKey{Key: key, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HasBucket reports whether any object exists under bucket.
func (e *Engine) HasBucket(ctx context.Context, bucket string) (bool, error) {
	return e.Store.HasBucket(ctx, bucket)
}

// ListObjects returns one ListObjectsV2-style page.
func (e *Engine) ListObjects(ctx context.Context, bucket string, opts metadata.ListOptions) (*metadata.ListPage, error) {
	return e.Store.List(ctx, bucket, opts)
}

// CreateMultipartUpload starts a new staged upload.
func (e *Engine) CreateMultipartUpload(bucket, key, contentType string) (string, error) {
	if contentType == "" {
		contentType = e.guessContentType(key)
	}
	return e.Uploads.Create(bucket, key, contentType)
}

// UploadPart buffers one part's bytes fully in memory and returns its ETag.
// Part numbers must fall in AWS's 1..10000 range.
func (e *Engine) UploadPart(uploadID string, partNumber int, body io.Reader) (string, error) {
	if partNumber < 1 || partNumber > 10000 {
		return "", fmt.Errorf("lifecycle: part number %d out of range 1-10000", partNumber)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("lifecycle: read part body: %w", err)
	}
	return e.Uploads.UploadPart(uploadID, partNumber, data)
}

// AbortMultipartUpload discards a staged upload.
func (e *Engine) AbortMultipartUpload(uploadID string) error {
	return e.Uploads.Abort(uploadID)
}

// ListedPart is one part in a ListParts response.
type ListedPart struct {
	PartNumber int
	ETag       string
	Size       int
}

// ListParts returns the target object and staged parts in ascending order.
func (e *Engine) ListParts(uploadID string) (bucket, key string, parts []ListedPart, err error) {
	up, err := e.Uploads.ListParts(uploadID)
	if err != nil {
		return "", "", nil, err
	}
	nums := multipart.SortedPartNumbers(up)
	parts = lo.Map(nums, func(n int, _ int) ListedPart {
		p := up.Parts[n]
		return ListedPart{PartNumber: n, ETag: p.ETag, Size: len(p.Data)}
	})
	return up.Bucket, up.Key, parts, nil
}

// CompleteMultipartUpload validates the declared parts, concatenates the
// staged bytes, adds the result to IPFS, and upserts metadata.
func (e *Engine) CompleteMultipartUpload(ctx context.Context, uploadID string, declared []multipart.DeclaredPart) (*metadata.Object, error) {
	up, payload, err := e.Uploads.Complete(uploadID, declared)
	if err != nil {
		return nil, err
	}

	cid, err := e.IPFS.Add(ctx, bytes.NewReader(payload), path.Base(up.Key), up.ContentType)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("add: %w", err)}
	}

	obj := metadata.Object{
		Bucket:      up.Bucket,
		Key:         up.Key,
		CID:         cid,
		ContentType: up.ContentType,
		Size:        int64(len(payload)),
	}
	if err := e.Store.Put(ctx, obj); err != nil {
		return nil, fmt.Errorf("lifecycle: put metadata for cid %s: %w", cid, err)
	}
	return e.Store.Get(ctx, up.Bucket, up.Key)
}

// humanSize formats a byte count for operator-facing logs, e.g. the unpin
// log line in DeleteObject; kept as a small wrapper so call sites read naturally.
func humanSize(n int64) string {
	return units.HumanSize(float64(n))
}

// countingReader tracks how many bytes have passed through Read, used to
// recover the body size PutObject needs for its metadata row without
// buffering the (possibly large) body itself.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
