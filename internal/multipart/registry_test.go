package multipart

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"testing"
)

func TestCreateUploadPartComplete(t *testing.T) {
	r := NewRegistry()

	id, err := r.Create("bucket", "key", "text/plain")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("want 32 hex chars (128 bits), got %d: %q", len(id), id)
	}

	etag1, err := r.UploadPart(id, 1, []byte("hello "))
	if err != nil {
		t.Fatalf("UploadPart 1: %v", err)
	}
	etag2, err := r.UploadPart(id, 2, []byte("world"))
	if err != nil {
		t.Fatalf("UploadPart 2: %v", err)
	}

	up, payload, err := r.Complete(id, []DeclaredPart{{PartNumber: 1, ETag: etag1}, {PartNumber: 2, ETag: etag2}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if string(payload) != "hello world" {
		t.Fatalf("want %q, got %q", "hello world", payload)
	}
	if up.Bucket != "bucket" || up.Key != "key" {
		t.Fatalf("unexpected upload: %+v", up)
	}

	if _, _, err := r.Complete(id, nil); err != ErrNoSuchUpload {
		t.Fatalf("want ErrNoSuchUpload on double-complete, got %v", err)
	}
}

func TestUploadPart_OverwriteIsLastWriterWins(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("b", "k", "")

	if _, err := r.UploadPart(id, 1, []byte("first")); err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	etag, err := r.UploadPart(id, 1, []byte("second"))
	if err != nil {
		t.Fatalf("UploadPart overwrite: %v", err)
	}

	want := md5.Sum([]byte("second"))
	if etag != hex.EncodeToString(want[:]) {
		t.Fatalf("unexpected etag after overwrite: %q", etag)
	}
}

func TestComplete_InvalidPartAndOrder(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("b", "k", "")
	if _, err := r.UploadPart(id, 1, []byte("x")); err != nil {
		t.Fatalf("UploadPart: %v", err)
	}

	if _, _, err := r.Complete(id, []DeclaredPart{{PartNumber: 1, ETag: "deadbeef"}}); err != ErrInvalidPart {
		t.Fatalf("want ErrInvalidPart for mismatched etag, got %v", err)
	}

	id2, _ := r.Create("b", "k2", "")
	etagA, _ := r.UploadPart(id2, 1, []byte("a"))
	etagB, _ := r.UploadPart(id2, 2, []byte("b"))
	if _, _, err := r.Complete(id2, []DeclaredPart{{PartNumber: 2, ETag: etagB}, {PartNumber: 1, ETag: etagA}}); err != ErrInvalidPartOrder {
		t.Fatalf("want ErrInvalidPartOrder, got %v", err)
	}
}

func TestAbort_RemovesEntryAndIsIdempotentlyRejected(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("b", "k", "")

	if err := r.Abort(id); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := r.Abort(id); err != ErrNoSuchUpload {
		t.Fatalf("want ErrNoSuchUpload on double-abort, got %v", err)
	}
}

func TestCompleteAbortRace_OnlyOneWinsEachID(t *testing.T) {
	r := NewRegistry()

	const n = 100
	ids := make([]string, n)
	for i := range ids {
		id, _ := r.Create("b", "k", "")
		ids[i] = id
	}

	var wg sync.WaitGroup
	results := make([]int, n) // 0 = neither done yet, 1 = complete won, 10 = abort won
	var mu sync.Mutex

	for i, id := range ids {
		id := id
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := r.Complete(id, nil); err == nil {
				mu.Lock()
				results[i]++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			if err := r.Abort(id); err == nil {
				mu.Lock()
				results[i] += 10
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, r := range results {
		if r != 1 && r != 10 {
			t.Fatalf("upload %d: expected exactly one of complete/abort to win, got sum %d", i, r)
		}
	}
}
