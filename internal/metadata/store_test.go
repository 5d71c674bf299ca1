package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New("file:" + filepath.Join(dir, "gateway.db"))
	require.NoError(t, err)
	require.NoError(t, s.Ensure(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	obj := Object{Bucket: "b", Key: "a/one.txt", CID: "cid1", ContentType: "text/plain", Size: 5}
	require.NoError(t, s.Put(ctx, obj))

	got, err := s.Get(ctx, "b", "a/one.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cid1", got.CID)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, "b", "a/one.txt"))
	got, err = s.Get(ctx, "b", "a/one.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_PutUpsertsOnConflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: "k", CID: "cid1", ContentType: "text/plain", Size: 1}))
	require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: "k", CID: "cid2", ContentType: "text/plain", Size: 2}))

	got, err := s.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "cid2", got.CID)
	assert.Equal(t, int64(2), got.Size)
}

func TestStore_CountByCID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: "k1", CID: "shared", ContentType: "text/plain", Size: 1}))
	require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: "k2", CID: "shared", ContentType: "text/plain", Size: 1}))

	n, err := s.CountByCID(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_HasBucketAndHasAnyWithPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.HasBucket(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: "photos/a.jpg", ContentType: "image/jpeg", CID: "cid", Size: 1}))

	ok, err = s.HasBucket(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasAnyWithPrefix(ctx, "b", "photos")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasAnyWithPrefix(ctx, "b", "videos")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListWithDelimiter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"photos/a.jpg", "photos/b.jpg", "videos/c.mp4", "readme.txt"} {
		require.NoError(t, s.Put(ctx, Object{Bucket: "b", Key: key, CID: "cid", ContentType: "application/octet-stream", Size: 1}))
	}

	page, err := s.List(ctx, "b", ListOptions{Delimiter: "/"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"photos/", "videos/"}, page.CommonPrefixes)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "readme.txt", page.Objects[0].Key)
}

func TestStore_ListPaginates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, Object{Bucket: "bucket", Key: key, CID: "cid", ContentType: "application/octet-stream", Size: 1}))
	}

	page, err := s.List(ctx, "bucket", ListOptions{MaxKeys: 2})
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	assert.True(t, page.IsTruncated)
	assert.Equal(t, "b", page.NextContinuationToken)

	next, err := s.List(ctx, "bucket", ListOptions{MaxKeys: 2, ContinuationToken: page.NextContinuationToken})
	require.NoError(t, err)
	require.Len(t, next.Objects, 1)
	assert.False(t, next.IsTruncated)
}
