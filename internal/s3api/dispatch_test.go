package s3api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func req(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, nil)
}

func TestParse_PathStyle(t *testing.T) {
	cases := []struct {
		method, target string
		wantBucket     string
		wantKey        string
		wantOp         Operation
	}{
		{http.MethodGet, "http://gw.example.com/", "", "", OpListBuckets},
		{http.MethodHead, "http://gw.example.com/mybucket", "mybucket", "", OpHeadBucket},
		{http.MethodGet, "http://gw.example.com/mybucket?location", "mybucket", "", OpGetBucketLocation},
		{http.MethodGet, "http://gw.example.com/mybucket?list-type=2", "mybucket", "", OpGetBucket},
		{http.MethodHead, "http://gw.example.com/mybucket/obj.txt", "mybucket", "obj.txt", OpHeadObject},
		{http.MethodGet, "http://gw.example.com/mybucket/obj.txt", "mybucket", "obj.txt", OpGetObject},
		{http.MethodPut, "http://gw.example.com/mybucket/obj.txt", "mybucket", "obj.txt", OpPutObject},
		{http.MethodPut, "http://gw.example.com/mybucket/obj.txt?uploadId=abc&partNumber=1", "mybucket", "obj.txt", OpUploadPart},
		{http.MethodPost, "http://gw.example.com/mybucket/obj.txt?uploads", "mybucket", "obj.txt", OpCreateMultipartUpload},
		{http.MethodPost, "http://gw.example.com/mybucket/obj.txt?uploadId=abc", "mybucket", "obj.txt", OpCompleteMultipartUpload},
		{http.MethodGet, "http://gw.example.com/mybucket/obj.txt?uploadId=abc", "mybucket", "obj.txt", OpListParts},
		{http.MethodDelete, "http://gw.example.com/mybucket/obj.txt?uploadId=abc", "mybucket", "obj.txt", OpAbortMultipartUpload},
		{http.MethodDelete, "http://gw.example.com/mybucket/obj.txt", "mybucket", "obj.txt", OpDeleteObject},
		{http.MethodPost, "http://gw.example.com/mybucket?delete", "mybucket", "", OpDeleteObjects},
	}

	for _, c := range cases {
		t.Run(c.method+" "+c.target, func(t *testing.T) {
			got := Parse(req(t, c.method, c.target), "")
			if got.Bucket != c.wantBucket || got.Key != c.wantKey || got.Op != c.wantOp {
				t.Errorf("Parse() = {%q %q %v}, want {%q %q %v}",
					got.Bucket, got.Key, got.Op, c.wantBucket, c.wantKey, c.wantOp)
			}
		})
	}
}

func TestParse_VirtualHosted(t *testing.T) {
	r := req(t, http.MethodGet, "http://mybucket.gw.example.com/obj.txt")
	r.Host = "mybucket.gw.example.com"

	got := Parse(r, "gw.example.com")
	if got.Bucket != "mybucket" || got.Key != "obj.txt" || got.Op != OpGetObject {
		t.Fatalf("Parse() virtual-hosted = %+v", got)
	}
}
