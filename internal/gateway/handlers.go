package gateway

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bltavares/aricanduva/internal/clientip"
	"github.com/bltavares/aricanduva/internal/httpkit"
	"github.com/bltavares/aricanduva/internal/metadata"
	"github.com/bltavares/aricanduva/internal/multipart"
	"github.com/bltavares/aricanduva/internal/s3api"
)

// dispatch is the single entry point for every S3 operation: it parses
// bucket/key/operation from the request (path-style or virtual-hosted),
// authenticates it if SigV4 is enabled, and routes to the matching
// handler method. Errors returned from here flow to the Router's
// ErrorHandler, which serializes them as the S3 <Error> XML envelope.
func (s *Server) dispatch(c *httpkit.Ctx) error {
	r := c.Request()
	req := s3api.Parse(r, s.cfg.VirtualHostDomain)
	resource := "/" + req.Bucket
	if req.Key != "" {
		resource += "/" + req.Key
	}

	body, err := s.authenticate(r)
	if err != nil {
		return mapError(err, resource)
	}

	switch req.Op {
	case s3api.OpListBuckets:
		return s.listBuckets(c)
	case s3api.OpHeadBucket:
		return s.headBucket(c, req.Bucket)
	case s3api.OpGetBucketLocation:
		return s.getBucketLocation(c)
	case s3api.OpGetBucket:
		return s.getBucket(c, req.Bucket, resource)
	case s3api.OpHeadObject:
		return s.headObject(c, req.Bucket, req.Key, resource)
	case s3api.OpGetObject:
		return s.getObject(c, req.Bucket, req.Key, resource)
	case s3api.OpPutObject:
		return s.putObject(c, req.Bucket, req.Key, body, resource)
	case s3api.OpUploadPart:
		return s.uploadPart(c, body, resource)
	case s3api.OpCreateMultipartUpload:
		return s.createMultipartUpload(c, req.Bucket, req.Key)
	case s3api.OpCompleteMultipartUpload:
		return s.completeMultipartUpload(c, req.Bucket, req.Key, resource)
	case s3api.OpListParts:
		return s.listParts(c, req.Bucket, req.Key, resource)
	case s3api.OpAbortMultipartUpload:
		return s.abortMultipartUpload(c, resource)
	case s3api.OpDeleteObject:
		return s.deleteObject(c, req.Bucket, req.Key)
	case s3api.OpDeleteObjects:
		return s.deleteObjects(c, req.Bucket)
	default:
		return s3api.ErrInvalidRequest(resource, "unsupported operation")
	}
}

func (s *Server) listBuckets(c *httpkit.Ctx) error {
	var result s3api.ListAllMyBucketsResult
	result.Owner = s3api.Owner{ID: "gateway", DisplayName: "gateway"}
	return c.XML(http.StatusOK, result)
}

func (s *Server) headBucket(c *httpkit.Ctx, bucket string) error {
	ok, err := s.engine.HasBucket(c.Context(), bucket)
	if err != nil {
		return mapError(err, "/"+bucket)
	}
	if !ok {
		return s3api.ErrNoSuchBucket("/" + bucket)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) getBucketLocation(c *httpkit.Ctx) error {
	return c.XML(http.StatusOK, s3api.LocationConstraint{Location: s.cfg.Region})
}

func (s *Server) getBucket(c *httpkit.Ctx, bucket, resource string) error {
	q := c.QueryValues()
	maxKeys := 0
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxKeys = n
		}
	}

	page, err := s.engine.ListObjects(c.Context(), bucket, metadata.ListOptions{
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		ContinuationToken: q.Get("continuation-token"),
		MaxKeys:           maxKeys,
	})
	if err != nil {
		return mapError(err, resource)
	}

	result := s3api.ListBucketResult{
		Name:                  bucket,
		Prefix:                q.Get("prefix"),
		Delimiter:             q.Get("delimiter"),
		MaxKeys:               maxKeys,
		KeyCount:              len(page.Objects),
		IsTruncated:           page.IsTruncated,
		ContinuationToken:     q.Get("continuation-token"),
		NextContinuationToken: page.NextContinuationToken,
	}
	for _, o := range page.Objects {
		result.Contents = append(result.Contents, s3api.Object{
			Key:          o.Key,
			LastModified: o.UpdatedAt.UTC().Format(time.RFC3339),
			ETag:         `"` + o.CID + `"`,
			Size:         o.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range page.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, struct {
			Prefix string `xml:"Prefix"`
		}{Prefix: p})
	}
	return c.XML(http.StatusOK, result)
}

func objectHeaders(c *httpkit.Ctx, obj *metadata.Object) {
	c.Header().Set("Content-Type", obj.ContentType)
	c.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	c.Header().Set("ETag", `"`+obj.CID+`"`)
	c.Header().Set("x-ipfs-path", "/ipfs/"+obj.CID)
	c.Header().Set("x-ipfs-roots", obj.CID)
}

func (s *Server) headObject(c *httpkit.Ctx, bucket, key, resource string) error {
	obj, err := s.engine.HeadObject(c.Context(), bucket, key)
	if err != nil {
		return mapError(err, resource)
	}
	objectHeaders(c, obj)
	return c.NoContent(http.StatusOK)
}

func (s *Server) getObject(c *httpkit.Ctx, bucket, key, resource string) error {
	callerIP := clientip.Resolve(c.Request(), clientip.Options{Policy: s.cfg.IPExtraction})

	result, err := s.engine.GetObject(c.Context(), bucket, key, callerIP)
	if err != nil {
		return mapError(err, resource)
	}

	objectHeaders(c, result.Object)
	if result.RedirectLocation != "" {
		return c.Redirect(http.StatusTemporaryRedirect, result.RedirectLocation)
	}

	defer result.Stream.Close()
	return c.Stream(http.StatusOK, result.Object.ContentType, result.Stream)
}

func (s *Server) putObject(c *httpkit.Ctx, bucket, key string, body io.Reader, resource string) error {
	contentType := c.Request().Header.Get("Content-Type")
	obj, err := s.engine.PutObject(c.Context(), bucket, key, body, contentType)
	if err != nil {
		return mapError(err, resource)
	}
	objectHeaders(c, obj)
	return c.NoContent(http.StatusOK)
}

func (s *Server) uploadPart(c *httpkit.Ctx, body io.Reader, resource string) error {
	uploadID := c.Query("uploadId")
	partNumber, err := strconv.Atoi(c.Query("partNumber"))
	if err != nil {
		return s3api.ErrInvalidArgument(resource, "partNumber must be an integer")
	}

	etag, err := s.engine.UploadPart(uploadID, partNumber, body)
	if err != nil {
		return mapError(err, resource)
	}
	c.Header().Set("ETag", `"`+etag+`"`)
	return c.NoContent(http.StatusOK)
}

func (s *Server) createMultipartUpload(c *httpkit.Ctx, bucket, key string) error {
	contentType := c.Request().Header.Get("Content-Type")
	uploadID, err := s.engine.CreateMultipartUpload(bucket, key, contentType)
	if err != nil {
		return mapError(err, "/"+bucket+"/"+key)
	}
	return c.XML(http.StatusOK, s3api.InitiateMultipartUploadResult{
		Bucket: bucket, Key: key, UploadID: uploadID,
	})
}

func (s *Server) completeMultipartUpload(c *httpkit.Ctx, bucket, key, resource string) error {
	uploadID := c.Query("uploadId")

	var declaredXML s3api.CompleteMultipartUpload
	if err := xml.NewDecoder(c.Request().Body).Decode(&declaredXML); err != nil {
		return s3api.ErrMalformedXML(resource)
	}

	declared := make([]multipart.DeclaredPart, len(declaredXML.Parts))
	for i, p := range declaredXML.Parts {
		declared[i] = multipart.DeclaredPart{PartNumber: p.PartNumber, ETag: strings.Trim(p.ETag, `"`)}
	}

	obj, err := s.engine.CompleteMultipartUpload(c.Context(), uploadID, declared)
	if err != nil {
		return mapError(err, resource)
	}

	return c.XML(http.StatusOK, s3api.CompleteMultipartUploadResult{
		Location: fmt.Sprintf("/%s/%s", bucket, key),
		Bucket:   bucket,
		Key:      key,
		ETag:     `"` + obj.CID + `"`,
	})
}

func (s *Server) listParts(c *httpkit.Ctx, bucket, key, resource string) error {
	uploadID := c.Query("uploadId")
	actualBucket, actualKey, parts, err := s.engine.ListParts(uploadID)
	if err != nil {
		return mapError(err, resource)
	}
	if actualBucket != "" {
		bucket, key = actualBucket, actualKey
	}

	result := s3api.ListPartsResult{Bucket: bucket, Key: key, UploadID: uploadID}
	for _, p := range parts {
		result.Parts = append(result.Parts, struct {
			PartNumber   int    `xml:"PartNumber"`
			ETag         string `xml:"ETag"`
			Size         int64  `xml:"Size"`
			LastModified string `xml:"LastModified"`
		}{PartNumber: p.PartNumber, ETag: `"` + p.ETag + `"`, Size: int64(p.Size)})
	}
	return c.XML(http.StatusOK, result)
}

func (s *Server) abortMultipartUpload(c *httpkit.Ctx, resource string) error {
	uploadID := c.Query("uploadId")
	if err := s.engine.AbortMultipartUpload(uploadID); err != nil {
		return mapError(err, resource)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteObject(c *httpkit.Ctx, bucket, key string) error {
	if err := s.engine.DeleteObject(c.Context(), bucket, key); err != nil {
		return mapError(err, "/"+bucket+"/"+key)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteObjects(c *httpkit.Ctx, bucket string) error {
	var req s3api.Delete
	if err := xml.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return s3api.ErrMalformedXML("/" + bucket)
	}

	keys := make([]string, len(req.Objects))
	for i, o := range req.Objects {
		keys[i] = o.Key
	}

	results := s.engine.DeleteObjects(c.Context(), bucket, keys)

	var resp s3api.DeleteResult
	for _, r := range results {
		if r.Error != nil {
			e := mapError(r.Error, "/"+bucket+"/"+r.Key)
			resp.Errors = append(resp.Errors, struct {
				Key     string `xml:"Key"`
				Code    string `xml:"Code"`
				Message string `xml:"Message"`
			}{Key: r.Key, Code: e.Code, Message: e.Message})
			continue
		}
		if !req.Quiet {
			resp.Deleted = append(resp.Deleted, struct {
				Key string `xml:"Key"`
			}{Key: r.Key})
		}
	}
	return c.XML(http.StatusOK, resp)
}
