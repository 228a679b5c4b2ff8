package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/backoff"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/bytedance/sonic"
)

const maxResponseSize = 1 << 20

type Options struct {
	URL           string          `toml:"url" validate:"required,url"`
	AnonKey       string          `toml:"-" validate:"required"`
	ProfilesTable string          `toml:"profiles-table"`
	Timeout       time.Duration   `toml:"timeout"`
	Retry         backoff.Options `toml:"retry"`
}

func (o *Options) FillDefaults() {
	if o.ProfilesTable == "" {
		o.ProfilesTable = "profiles"
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Retry.Min == 0 {
		o.Retry.Min = 200 * time.Millisecond
	}
	if o.Retry.Max == 0 {
		o.Retry.Max = 2 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = 3
	}
}

// Client talks to a hosted Supabase project: the GoTrue auth API under /auth/v1
// and the PostgREST data API under /rest/v1.
type Client struct {
	o       Options
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
}

var _ account.Backend = (*Client)(nil)

func New(log *slog.Logger, o Options, httpClient *http.Client) (*Client, error) {
	o.FillDefaults()
	if err := o.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry options: %w", err)
	}
	base, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(o.URL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("bad url scheme %q", base.Scheme)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		o:       o,
		baseURL: base,
		http:    httpClient,
		log:     log,
	}, nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	token  string
	accept string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) doOnce(ctx context.Context, r *request, body []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.o.AnonKey)
	token := r.token
	if token == "" {
		token = c.o.AnonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	rsp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &transientError{err: err}
	}
	defer rsp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(rsp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &transientError{err: fmt.Errorf("read response: %w", err)}
	}
	if rsp.StatusCode >= 500 {
		return rsp.StatusCode, data, &transientError{err: parseAPIError(rsp.StatusCode, data)}
	}
	return rsp.StatusCode, data, nil
}

// do performs the request. Idempotent requests are retried on network errors and
// server-side failures.
func (c *Client) do(ctx context.Context, r *request) (int, []byte, error) {
	var body []byte
	if r.body != nil {
		var err error
		body, err = sonic.Marshal(r.body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
	}
	if r.method != http.MethodGet {
		status, data, err := c.doOnce(ctx, r, body)
		return status, data, unwrapTransient(err)
	}
	b, err := backoff.New(c.o.Retry)
	if err != nil {
		return 0, nil, fmt.Errorf("create backoff: %w", err)
	}
	for {
		status, data, err := c.doOnce(ctx, r, body)
		var tErr *transientError
		if !errors.As(err, &tErr) {
			return status, data, err
		}
		c.log.Warn("supabase request failed, retrying",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slogx.Err(tErr.err),
		)
		if rErr := b.Retry(ctx, tErr.err); rErr != nil {
			return status, data, rErr
		}
	}
}

func decode(data []byte, out any) error {
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
