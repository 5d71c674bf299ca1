// Package multipart is the process-wide staging area for multipart
// uploads: a single mutex-guarded map from upload ID to its in-progress
// parts. It intentionally avoids a transactional in-memory database (the
// pack includes hashicorp/go-memdb via moby-moby) because the registry's
// only invariant is atomic removal on Complete/Abort, which a bare map and
// mutex already provide without extra machinery.
package multipart

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Part is one staged part: its raw bytes and the ETag computed over them.
type Part struct {
	ETag string
	Data []byte
}

// Upload is an in-progress multipart upload: the target object and its
// staged parts, keyed by part number.
type Upload struct {
	Bucket      string
	Key         string
	ContentType string
	Parts       map[int]Part
}

// DeclaredPart is one entry of a CompleteMultipartUpload request.
type DeclaredPart struct {
	PartNumber int
	ETag       string
}

var (
	// ErrNoSuchUpload is returned when the upload ID is unknown, including
	// the case where a concurrent Complete/Abort already removed it.
	ErrNoSuchUpload = fmt.Errorf("multipart: no such upload")
	// ErrInvalidPart is returned when a declared part is missing or its
	// ETag does not match the staged part.
	ErrInvalidPart = fmt.Errorf("multipart: invalid part")
	// ErrInvalidPartOrder is returned when declared parts are not in
	// strictly ascending part-number order.
	ErrInvalidPartOrder = fmt.Errorf("multipart: invalid part order")
)

// Registry is the process-wide multipart upload table.
type Registry struct {
	mu      sync.Mutex
	uploads map[string]*Upload
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{uploads: make(map[string]*Upload)}
}

// Create starts a new multipart upload and returns its hex-encoded,
// 128-bit random upload ID.
func (r *Registry) Create(bucket, key, contentType string) (string, error) {
	id, err := newUploadID()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[id] = &Upload{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Parts:       make(map[int]Part),
	}
	return id, nil
}

// UploadPart stages bytes for (uploadID, partNumber), computing its ETag
// as the hex MD5 of the bytes. Overwriting a part number is last-writer-wins.
func (r *Registry) UploadPart(uploadID string, partNumber int, data []byte) (etag string, err error) {
	sum := md5.Sum(data)
	etag = hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.uploads[uploadID]
	if !ok {
		return "", ErrNoSuchUpload
	}
	up.Parts[partNumber] = Part{ETag: etag, Data: data}
	return etag, nil
}

// Abort removes the upload. ErrNoSuchUpload if it is already gone.
func (r *Registry) Abort(uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.uploads[uploadID]; !ok {
		return ErrNoSuchUpload
	}
	delete(r.uploads, uploadID)
	return nil
}

// ListParts returns the upload for uploadID, with its staged parts keyed by
// part number, without removing it. The parts map is unordered; see
// SortedPartNumbers for ascending order.
func (r *Registry) ListParts(uploadID string) (*Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.uploads[uploadID]
	if !ok {
		return nil, ErrNoSuchUpload
	}
	return up, nil
}

// Complete atomically removes the upload (so a racing Abort/Complete sees
// ErrNoSuchUpload), validates the declared parts against what was staged,
// and returns the concatenated payload in declared order for the caller to
// hand to IPFS add.
func (r *Registry) Complete(uploadID string, declared []DeclaredPart) (*Upload, []byte, error) {
	up := r.remove(uploadID)
	if up == nil {
		return nil, nil, ErrNoSuchUpload
	}

	for i := 1; i < len(declared); i++ {
		if declared[i].PartNumber <= declared[i-1].PartNumber {
			return nil, nil, ErrInvalidPartOrder
		}
	}

	var total int
	ordered := make([][]byte, len(declared))
	for i, d := range declared {
		part, ok := up.Parts[d.PartNumber]
		if !ok || part.ETag != d.ETag {
			return nil, nil, ErrInvalidPart
		}
		ordered[i] = part.Data
		total += len(part.Data)
	}

	payload := make([]byte, 0, total)
	for _, b := range ordered {
		payload = append(payload, b...)
	}
	return up, payload, nil
}

func (r *Registry) remove(uploadID string) *Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.uploads[uploadID]
	if !ok {
		return nil
	}
	delete(r.uploads, uploadID)
	return up
}

// SortedPartNumbers returns up's part numbers in ascending order, used by
// ListParts responses.
func SortedPartNumbers(up *Upload) []int {
	nums := make([]int, 0, len(up.Parts))
	for n := range up.Parts {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// newUploadID returns a 128-bit random token, hex-encoded without dashes.
func newUploadID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("multipart: generate upload id: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
