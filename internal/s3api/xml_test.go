package s3api

import (
	"encoding/xml"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestListBucketResult_XMLRoundTrip(t *testing.T) {
	want := ListBucketResult{
		Name:     "mybucket",
		Prefix:   "photos/",
		MaxKeys:  1000,
		KeyCount: 2,
		Contents: []Object{
			{Key: "photos/a.jpg", ETag: "\"cid1\"", Size: 100, StorageClass: "STANDARD"},
			{Key: "photos/b.jpg", ETag: "\"cid2\"", Size: 200, StorageClass: "STANDARD"},
		},
	}

	data, err := xml.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got ListBucketResult
	if err := xml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestError_ImplementsErrorAndMarshalsXML(t *testing.T) {
	e := ErrNoSuchKey("/mybucket/missing.txt")
	if e.HTTPStatus != 404 {
		t.Fatalf("want 404, got %d", e.HTTPStatus)
	}
	if e.Error() != "NoSuchKey: The specified key does not exist." {
		t.Fatalf("unexpected Error() string: %q", e.Error())
	}

	data, err := xml.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Error
	if err := xml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Code != "NoSuchKey" || got.Resource != "/mybucket/missing.txt" {
		t.Fatalf("unexpected round-trip: %+v", got)
	}
}
