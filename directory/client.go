// Package directory implements the HTTP client for a did:plc directory
// service: the five operations spec.md §4.7/§6 names, and the error/wire
// shapes that make their responses usable by package manager.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Client talks to a single PLC directory over HTTP. The zero value is not
// usable; construct with New.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *slog.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client, e.g. to set
// timeouts or a custom transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a request timeout on the underlying *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger overrides the logger used for request-level diagnostics. The
// default discards everything, since this is a client library and must not
// write to a caller's stdout/stderr unasked.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEnv reads PLC_DIRECTORY_URL and, if set, overrides the base URL New
// was constructed with — matching the teacher's xrpc.WithEnv convention of
// layering environment config over explicit construction arguments.
func WithEnv() Option {
	return func(c *Client) {
		if v, ok := os.LookupEnv("PLC_DIRECTORY_URL"); ok {
			if u, err := url.Parse(v); err == nil {
				c.baseURL = u
			}
		}
	}
}

// New constructs a Client against baseURL (e.g. "https://plc.directory").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "directory: invalid base url")
	}
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    u,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) url(path string) *url.URL {
	u := *c.baseURL
	u.Path = joinPath(u.Path, path)
	return &u
}

// withRequestID stamps req with a fresh google/uuid request-correlation
// header and logs the outgoing call, giving an operator something to grep
// logs by.
func (c *Client) withRequestID(req *http.Request) {
	id := uuid.New().String()
	req.Header.Set("X-Request-Id", id)
	c.logger.Debug("directory request", "method", req.Method, "path", req.URL.Path, "request_id", id)
}

func joinPath(base, rel string) string {
	if base == "" || base == "/" {
		return rel
	}
	if rel == "" {
		return base
	}
	return base + rel
}

// CreateDID submits a signed genesis operation (spec.md §6 "Submit
// genesis"). opJSON is the exact bytes of operation.Wire's JSON encoding.
func (c *Client) CreateDID(ctx context.Context, opJSON []byte) error {
	return c.submit(ctx, "/", opJSON)
}

// UpdateDID submits a signed non-genesis operation (spec.md §6 "Submit
// update").
func (c *Client) UpdateDID(ctx context.Context, did string, opJSON []byte) error {
	return c.submit(ctx, "/"+did, opJSON)
}

func (c *Client) submit(ctx context.Context, path string, opJSON []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path).String(), bytes.NewReader(opJSON))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.withRequestID(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(&Error{Message: err.Error(), Inner: err})
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return errorFromResponse(res)
	}
	return nil
}

// ResolveDID fetches the current DID document (spec.md §6 "Resolve").
func (c *Client) ResolveDID(ctx context.Context, did string) (*Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "/"+did, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetLastOperation fetches the head CID and operation for did, or nil if
// the DID has no operations yet (spec.md §6 "Last op").
func (c *Client) GetLastOperation(ctx context.Context, did string) (*LastOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/"+did+"/log/last").String(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	c.withRequestID(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(&Error{Message: err.Error(), Inner: err})
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, errorFromResponse(res)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	var last LastOperation
	if err := json.Unmarshal(trimmed, &last); err != nil {
		return nil, errors.Wrap(err, "directory: decode last operation")
	}
	return &last, nil
}

// GetOpLog fetches the raw operation log for did (spec.md §6 "Op log").
func (c *Client) GetOpLog(ctx context.Context, did string) ([]map[string]any, error) {
	var entries []map[string]any
	if err := c.getJSON(ctx, "/"+did+"/log", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAuditLog fetches the full audit log for did (spec.md §6 "Audit log").
func (c *Client) GetAuditLog(ctx context.Context, did string) ([]map[string]any, error) {
	var entries []map[string]any
	if err := c.getJSON(ctx, "/"+did+"/log/audit", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path).String(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	c.withRequestID(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(&Error{Message: err.Error(), Inner: err})
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return errorFromResponse(res)
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "directory: decode response")
	}
	return nil
}

func errorFromResponse(res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			msg = parsed.Error
		} else if parsed.Message != "" {
			msg = parsed.Message
		}
	}
	return errors.WithStack(&Error{Status: res.StatusCode, Message: msg})
}
