// Package metadata is the relational store mapping (bucket, key) to the
// IPFS CID and object attributes the gateway serves. Grounded on the
// teacher's blueprints/bi/store/sqlite package: a *sql.DB opened with WAL
// and a busy timeout, an explicit Ensure(ctx) schema migration, and plain
// database/sql query methods rather than an ORM.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Object is one (bucket, key) row: the content it resolves to and the
// attributes surfaced on GetObject/HeadObject/ListObjectsV2.
type Object struct {
	Bucket      string
	Key         string
	CID         string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the SQLite-backed metadata store.
type Store struct {
	db *sql.DB
}

// New opens the metadata database at dataSourceURL (a sqlite3 DSN, e.g.
// "file:gateway.db"). WAL mode and a busy timeout match the teacher's
// store.New, since the gateway is a single-process multi-goroutine server
// rather than a multi-process one.
func New(dataSourceURL string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceURL+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	return &Store{db: db}, nil
}

// Ensure creates the metadata schema if it does not already exist.
func (s *Store) Ensure(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS metadata (
		bucket TEXT NOT NULL,
		object_key TEXT NOT NULL,
		cid TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (bucket, object_key)
	);
	CREATE INDEX IF NOT EXISTS idx_metadata_cid ON metadata(cid);
	CREATE INDEX IF NOT EXISTS idx_metadata_bucket_key ON metadata(bucket, object_key);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Put upserts the metadata row for (bucket, key).
func (s *Store) Put(ctx context.Context, obj Object) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (bucket, object_key, cid, content_type, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, object_key) DO UPDATE SET
			cid=excluded.cid, content_type=excluded.content_type, size=excluded.size, updated_at=excluded.updated_at
	`, obj.Bucket, obj.Key, obj.CID, obj.ContentType, obj.Size, now, now)
	return err
}

// Get returns the metadata row for (bucket, key), or nil if absent.
func (s *Store) Get(ctx context.Context, bucket, key string) (*Object, error) {
	var o Object
	err := s.db.QueryRowContext(ctx, `
		SELECT bucket, object_key, cid, content_type, size, created_at, updated_at
		FROM metadata WHERE bucket = ? AND object_key = ?
	`, bucket, key).Scan(&o.Bucket, &o.Key, &o.CID, &o.ContentType, &o.Size, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Delete removes the metadata row for (bucket, key).
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE bucket = ? AND object_key = ?`, bucket, key)
	return err
}

// CountByCID reports how many rows (across any bucket) reference cid,
// used to decide whether an IPFS object can be safely unpinned on delete.
func (s *Store) CountByCID(ctx context.Context, cid string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE cid = ?`, cid).Scan(&n)
	return n, err
}

// HasAnyWithPrefix reports whether any row's key starts with prefix+"/",
// used by the MFS trim walk's per-segment emptiness check.
func (s *Store) HasAnyWithPrefix(ctx context.Context, bucket, prefix string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM metadata WHERE bucket = ? AND object_key LIKE ? ESCAPE '\' LIMIT 1
	`, bucket, escapeLike(prefix)+"/%").Scan(&n)
	return n > 0, err
}

// HasBucket reports whether any metadata row exists for bucket; buckets
// are not created explicitly, so existence is implicit in having objects.
func (s *Store) HasBucket(ctx context.Context, bucket string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE bucket = ? LIMIT 1`, bucket).Scan(&n)
	return n > 0, err
}

// ListPage is one page of a ListObjectsV2-style listing.
type ListPage struct {
	Objects               []Object
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// ListOptions configures a listing query.
type ListOptions struct {
	Prefix            string
	Delimiter         string // only "/" is meaningfully supported
	ContinuationToken string
	MaxKeys           int
}

const defaultMaxKeys = 1000

// List returns one lexicographically ordered page of objects under
// prefix, grouping keys under a common prefix when delimiter is "/".
func (s *Store) List(ctx context.Context, bucket string, opts ListOptions) (*ListPage, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > defaultMaxKeys {
		maxKeys = defaultMaxKeys
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, object_key, cid, content_type, size, created_at, updated_at
		FROM metadata
		WHERE bucket = ? AND object_key LIKE ? ESCAPE '\' AND object_key > ?
		ORDER BY object_key
	`, bucket, escapeLike(opts.Prefix)+"%", opts.ContinuationToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &ListPage{}
	seenPrefixes := map[string]bool{}

	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Bucket, &o.Key, &o.CID, &o.ContentType, &o.Size, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}

		if opts.Delimiter != "" {
			rest := strings.TrimPrefix(o.Key, opts.Prefix)
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				commonPrefix := opts.Prefix + rest[:idx+len(opts.Delimiter)]
				if !seenPrefixes[commonPrefix] {
					seenPrefixes[commonPrefix] = true
					page.CommonPrefixes = append(page.CommonPrefixes, commonPrefix)
				}
				continue
			}
		}

		if len(page.Objects) >= maxKeys {
			page.IsTruncated = true
			page.NextContinuationToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, o)
	}
	return page, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
