package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
)

// DefaultProbeTimeout bounds the reachability check.
const DefaultProbeTimeout = 5 * time.Second

// Client is a docstore.Database backed by a remote Server.
type Client struct {
	base   *url.URL
	name   string
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger

	probeTimeout time.Duration
}

var _ docstore.Database = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProbeTimeout sets the reachability timeout used by Ping.
func WithProbeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// NewClient returns a client for database name on the server at baseURL.
func NewClient(baseURL, name string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	if name == "" {
		return nil, errors.New("remote database name is required")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:         u,
		name:         name,
		http:         &http.Client{},
		dialer:       websocket.DefaultDialer,
		logger:       slog.Default(),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the database URL.
func (c *Client) URL() string {
	return c.dbURL(nil)
}

// Ping checks that the server answers within the probe timeout.
func (c *Client) Ping(ctx context.Context) error {
	return Probe(ctx, c.http, c.base.String()+"/", c.probeTimeout)
}

// Close is a no-op; the client holds no connections between calls.
func (c *Client) Close() error {
	return nil
}

// dbURL builds the URL of a path below the database. Each segment is
// escaped on its own, so ids containing "/" stay one segment.
func (c *Client) dbURL(q url.Values, segments ...string) string {
	u := *c.base
	raw := c.base.EscapedPath() + "/" + url.PathEscape(c.name)
	plain := c.base.Path + "/" + c.name
	for _, seg := range segments {
		raw += "/" + url.PathEscape(seg)
		plain += "/" + seg
	}
	u.Path = plain
	u.RawPath = raw
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return docstore.ErrNotFound
		case http.StatusConflict:
			return docstore.ErrConflict
		default:
			return fmt.Errorf("%s %s: status %d: %s %s", method, target, resp.StatusCode, eb.Error, eb.Reason)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Info returns the remote database info.
func (c *Client) Info(ctx context.Context) (docstore.Info, error) {
	var info docstore.Info
	err := c.do(ctx, http.MethodGet, c.dbURL(nil), nil, &info)
	return info, wrap("info", "", err)
}

// Get reads a remote document.
func (c *Client) Get(ctx context.Context, id string) (doc.Document, error) {
	var d doc.Document
	if err := c.do(ctx, http.MethodGet, c.dbURL(nil, id), nil, &d); err != nil {
		return doc.Document{}, wrap("get", id, err)
	}
	return d, nil
}

// Put writes a remote document under revision control.
func (c *Client) Put(ctx context.Context, d doc.Document) (doc.Document, error) {
	if d.Deleted {
		return c.Remove(ctx, d)
	}
	var out doc.Document
	if err := c.do(ctx, http.MethodPut, c.dbURL(nil, d.ID), d, &out); err != nil {
		return doc.Document{}, wrap("put", d.ID, err)
	}
	return out, nil
}

// Remove deletes a remote document.
func (c *Client) Remove(ctx context.Context, d doc.Document) (doc.Document, error) {
	var out doc.Document
	q := url.Values{"rev": {d.Rev}}
	if err := c.do(ctx, http.MethodDelete, c.dbURL(q, d.ID), nil, &out); err != nil {
		return doc.Document{}, wrap("remove", d.ID, err)
	}
	return out, nil
}

// AllDocuments lists live remote documents.
func (c *Client) AllDocuments(ctx context.Context) ([]doc.Document, error) {
	var res allDocsResponse
	if err := c.do(ctx, http.MethodGet, c.dbURL(nil, "_all_docs"), nil, &res); err != nil {
		return nil, wrap("all documents", "", err)
	}
	if res.Docs == nil {
		res.Docs = make([]doc.Document, 0)
	}
	return res.Docs, nil
}

// Changes reads one page of the remote change feed.
func (c *Client) Changes(ctx context.Context, opts docstore.ChangesOptions) (docstore.ChangesResult, error) {
	q := url.Values{"since": {strconv.FormatInt(opts.Since, 10)}}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.IncludeDocs {
		q.Set("include_docs", "true")
	}

	var res docstore.ChangesResult
	if err := c.do(ctx, http.MethodGet, c.dbURL(q, "_changes"), nil, &res); err != nil {
		return docstore.ChangesResult{}, wrap("changes", "", err)
	}
	return res, nil
}

// BulkWrite sends replicated revisions.
func (c *Client) BulkWrite(ctx context.Context, docs []doc.Document) ([]string, error) {
	var res bulkDocsResponse
	req := bulkDocsRequest{Docs: docs, NewEdits: false}
	if err := c.do(ctx, http.MethodPost, c.dbURL(nil, "_bulk_docs"), req, &res); err != nil {
		return nil, wrap("bulk write", "", err)
	}
	return res.Applied, nil
}

// RevsDiff asks the remote which revisions it lacks.
func (c *Client) RevsDiff(ctx context.Context, revs map[string]string) ([]string, error) {
	var res revsDiffResponse
	if err := c.do(ctx, http.MethodPost, c.dbURL(nil, "_revs_diff"), revs, &res); err != nil {
		return nil, wrap("revs diff", "", err)
	}
	return res.Missing, nil
}

// GetLocal reads a remote local document.
func (c *Client) GetLocal(ctx context.Context, id string, v any) error {
	err := c.do(ctx, http.MethodGet, c.dbURL(nil, "_local", strings.TrimPrefix(id, "_local/")), nil, v)
	return wrap("get local", id, err)
}

// PutLocal writes a remote local document.
func (c *Client) PutLocal(ctx context.Context, id string, v any) error {
	err := c.do(ctx, http.MethodPut, c.dbURL(nil, "_local", strings.TrimPrefix(id, "_local/")), v, nil)
	return wrap("put local", id, err)
}

// Watch follows the remote change feed over a websocket.
func (c *Client) Watch(ctx context.Context, since int64) (*docstore.Feed, error) {
	q := url.Values{}
	if since == docstore.SinceNow {
		q.Set("since", "now")
	} else {
		q.Set("since", strconv.FormatInt(since, 10))
	}

	wsURL, err := url.Parse(c.dbURL(q, "_changes", "ws"))
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, wrap("watch", "", err)
	}

	return docstore.NewFeed(ctx, func(ctx context.Context, emit func(docstore.Change) bool) error {
		// Closing the connection unblocks ReadJSON on cancel.
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()
		defer conn.Close()

		for {
			var ch docstore.Change
			if err := conn.ReadJSON(&ch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("read remote change: %w", err)
			}
			if !emit(ch) {
				return ctx.Err()
			}
		}
	}), nil
}

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &docstore.Error{Op: "remote " + op, ID: id, Err: err}
}
