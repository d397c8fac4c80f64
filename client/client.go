package client

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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/session"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

// maxResponseSize bounds every response body read.
const maxResponseSize int64 = 16 << 20

// RequestIDHeader carries a per-call correlation id.
const RequestIDHeader = "X-Request-ID"

// Client is the transmission client for the tracking backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Store
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL that authenticates from store.
func NewClient(baseURL string, store *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		session:    store,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = session.NewStore(c.logger)
	}
	return c
}

// Session returns the token store this client reads from.
func (c *Client) Session() *session.Store { return c.session }

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// do issues one request. The credential is read here, per request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encoding body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	if token, ok := c.session.Current(); ok {
		req.Header.Set("Authorization", string(token))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return response{}, fmt.Errorf("reading response body: %w", err)
	}
	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return response{status: resp.StatusCode, body: data}, nil
}

// Login authenticates username/password. On success the credential is
// installed in the session store; on any failure the store is cleared so a
// rejected credential is never attached to later requests.
func (c *Client) Login(ctx context.Context, username, password string) (session.Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/login", nil, model.LoginRequest{Username: username, Password: password})
	if err != nil {
		c.session.Clear()
		return session.Session{}, &AuthError{Err: err}
	}

	var lr model.LoginResponse
	var decodeErr error
	if len(resp.body) > 0 {
		decodeErr = json.Unmarshal(resp.body, &lr)
	} else {
		decodeErr = errors.New("empty body")
	}
	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		c.session.Clear()
		return session.Session{}, &AuthError{Status: resp.status, Rejected: true, Message: lr.Message}
	case !resp.ok():
		c.session.Clear()
		return session.Session{}, &AuthError{Status: resp.status, Message: lr.Message}
	case decodeErr != nil:
		c.session.Clear()
		return session.Session{}, &AuthError{Status: resp.status, Err: fmt.Errorf("decoding login response: %w", decodeErr)}
	case !lr.Success:
		c.session.Clear()
		return session.Session{}, &AuthError{Status: resp.status, Rejected: true, Message: lr.Message}
	case lr.Surveyor == nil:
		c.session.Clear()
		return session.Session{}, &AuthError{Status: resp.status, Message: "invalid response data"}
	}

	c.session.Set(username, password)
	token, _ := c.session.Current()
	c.logger.Info("logged in", "username", username, "surveyor_id", lr.Surveyor.ID)
	return session.Session{Username: username, Token: token, Surveyor: *lr.Surveyor}, nil
}

// Logout drops the credential. Later requests go out unauthenticated.
func (c *Client) Logout() {
	c.session.Clear()
}

// PushFix sends one fix to POST /api/location/update.
func (c *Client) PushFix(ctx context.Context, fix model.LocationFix) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/location/update", nil, fix.Message())
	if err != nil {
		return &TransmitError{Err: err}
	}
	if !resp.ok() {
		return &TransmitError{Status: resp.status, Body: string(resp.body)}
	}
	return nil
}

// FetchSurveyors returns GET /api/surveyors.
func (c *Client) FetchSurveyors(ctx context.Context) ([]model.Surveyor, error) {
	var out []model.Surveyor
	if err := c.getJSON(ctx, "fetch surveyors", "/api/surveyors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchStatusAll returns GET /api/surveyors/status.
func (c *Client) FetchStatusAll(ctx context.Context) (map[string]model.OnlineState, error) {
	out := map[string]model.OnlineState{}
	if err := c.getJSON(ctx, "fetch status", "/api/surveyors/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchLatestAll returns the latest fix of every surveyor.
func (c *Client) FetchLatestAll(ctx context.Context) ([]model.LocationFix, error) {
	var out []model.LocationFix
	if err := c.getJSON(ctx, "fetch latest", "/api/location/latest/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchLatest returns the most recent fix of one surveyor, or nil when the
// backend has none.
func (c *Client) FetchLatest(ctx context.Context, surveyorID string) (*model.LocationFix, error) {
	var out *model.LocationFix
	path := "/api/location/" + url.PathEscape(surveyorID) + "/latest"
	if err := c.getJSON(ctx, "fetch live fix", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchTrack returns the fixes of surveyorID within [from, to], oldest
// first. An empty range is an empty slice, not an error.
func (c *Client) FetchTrack(ctx context.Context, surveyorID string, from, to time.Time) ([]model.LocationFix, error) {
	q := url.Values{}
	q.Set("start", utils.FormatRangeBound(from))
	q.Set("end", utils.FormatRangeBound(to))
	path := "/api/location/" + url.PathEscape(surveyorID) + "/track"

	out := []model.LocationFix{}
	if err := c.getJSON(ctx, "fetch track", path, q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.LocationFix{}
	}
	return out, nil
}

// getJSON decodes a 2xx body into v. 204 and empty bodies leave v untouched.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	if !resp.ok() {
		return &FetchError{Op: op, Status: resp.status, Body: string(resp.body)}
	}
	if resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, v); err != nil {
		return &FetchError{Op: op, Status: resp.status, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
