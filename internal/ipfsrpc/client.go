// Package ipfsrpc is a minimal client for the Kubo HTTP RPC API
// (add/cat/pin_rm/files_ls/files_rm). No Kubo client library appears
// anywhere in the pack, so this is implemented directly against the
// documented RPC surface with stdlib net/http and mime/multipart, the
// gateway's one genuinely external collaborator.
package ipfsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Client talks to a single Kubo RPC endpoint (e.g. http://127.0.0.1:5001/api/v0).
type Client struct {
	baseURL    string
	httpClient *http.Client

	// ControlTimeout bounds idempotent control operations (pin_rm,
	// files_ls, files_rm). It does not apply to add or cat, whose body
	// streaming is bounded by the caller's context instead.
	ControlTimeout time.Duration
}

// New returns a Client against baseURL, the RPC endpoint including
// "/api/v0".
func New(baseURL string) *Client {
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{},
		ControlTimeout: 30 * time.Second,
	}
}

type addResponse struct {
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Add streams r into IPFS as a single file, returning its CID. Not
// retried: retrying a non-idempotent add risks double-pinning if the
// first attempt actually succeeded upstream but the response was lost.
func (c *Client) Add(ctx context.Context, r io.Reader, filename, contentType string) (cid string, err error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/add", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfsrpc: add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfsrpc: add: unexpected status %d", resp.StatusCode)
	}

	var out addResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ipfsrpc: add: decode response: %w", err)
	}
	return out.Hash, nil
}

// Cat streams the content of cid. The returned ReadCloser must be closed
// by the caller; closing it before EOF cancels the upstream request.
func (c *Client) Cat(ctx context.Context, cid string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cat?arg="+url.QueryEscape(cid), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfsrpc: cat: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ipfsrpc: cat: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// PinRM unpins cid. Idempotent, so wrapped with retry for transient
// upstream failures.
func (c *Client) PinRM(ctx context.Context, cid string) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.postDiscard(ctx, "/pin/rm?arg="+url.QueryEscape(cid))
	})
}

// FilesEntry is one entry returned by FilesLS.
type FilesEntry struct {
	Name string `json:"Name"`
	Type int    `json:"Type"`
	Size int64  `json:"Size"`
}

type filesLSResponse struct {
	Entries []FilesEntry `json:"Entries"`
}

// FilesLS lists the MFS directory at path. Idempotent, wrapped with retry.
func (c *Client) FilesLS(ctx context.Context, path string) ([]FilesEntry, error) {
	var out []FilesEntry
	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/files/ls?arg="+url.QueryEscape(path)+"&long=true", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("ipfsrpc: files/ls: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ipfsrpc: files/ls: unexpected status %d", resp.StatusCode)
		}
		var parsed filesLSResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("ipfsrpc: files/ls: decode response: %w", err)
		}
		out = parsed.Entries
		return nil
	})
	return out, err
}

// FilesRM removes the MFS entry at path. Idempotent, wrapped with retry.
func (c *Client) FilesRM(ctx context.Context, path string, recursive bool) error {
	q := url.Values{"arg": {path}, "force": {"true"}}
	if recursive {
		q.Set("recursive", "true")
	}
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.postDiscard(ctx, "/files/rm?"+q.Encode())
	})
}

func (c *Client) postDiscard(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfsrpc: unexpected status %d for %s", resp.StatusCode, path)
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.ControlTimeout)
	defer cancel()
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
	)
}
