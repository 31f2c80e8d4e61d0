// Package proxmox implements a minimal REST client for the Proxmox VE
// management API.
//
// The client covers the endpoints this server consumes: node/VM listing, VM
// lifecycle control, clone/resize, snapshots and backups, task status, and
// the QEMU guest agent endpoints. Responses are the usual PVE envelope
// {"data": ...}; request bodies are form-encoded.
//
// GET requests are idempotent and may be issued freely; POST/PUT/DELETE are
// at-most-once per call; the client never retries a write on a 5xx.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vmforge/proxmox-mcp/internal/log"
)

// ErrAgentNotRunning indicates the QEMU guest agent endpoint reported the
// agent as not installed or not responding. The guest executor treats this
// as a channel-availability failure.
var ErrAgentNotRunning = errors.New("guest agent not running")

// readTimeout is the per-request deadline against the management API.
const readTimeout = 60 * time.Second

// Request pacing. The management API is shared with the PVE web UI and
// other operators; agent polling must not starve it.
const (
	rateLimit = 10 // requests per second
	rateBurst = 20
)

// APIError is a non-2xx response from the management API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("proxmox API: %d %s", e.Status, e.Message)
}

// Config holds client construction parameters.
type Config struct {
	// URL is the API endpoint, e.g. https://pve.example.com:8006.
	URL string

	// Password authentication (ticket + CSRF token, lazily acquired).
	User     string
	Password string

	// API token authentication; preferred over password when both are set.
	TokenID     string
	TokenSecret string

	VerifySSL bool
	Logger    log.Logger
}

// Client talks to a single Proxmox VE API endpoint.
type Client struct {
	base    string
	httpc   *http.Client
	limiter *rate.Limiter
	logger  log.Logger

	user     string
	password string
	token    string // "PVEAPIToken=<id>=<secret>" or empty

	mu     sync.Mutex
	ticket string
	csrf   string
}

// New creates a Client. No network traffic happens until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("proxmox URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid proxmox URL %q", cfg.URL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, // #nosec G402 -- self-signed PVE certs are the common case, opt-in via config
	}

	c := &Client{
		base:     strings.TrimRight(cfg.URL, "/") + "/api2/json",
		httpc:    &http.Client{Timeout: readTimeout, Transport: transport},
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		logger:   logger,
		user:     cfg.User,
		password: cfg.Password,
	}
	if cfg.TokenID != "" && cfg.TokenSecret != "" {
		c.token = fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.TokenSecret)
	}
	return c, nil
}

// login acquires a ticket + CSRF token for password auth.
// Callers must hold c.mu.
func (c *Client) login(ctx context.Context) error {
	if c.user == "" || c.password == "" {
		return fmt.Errorf("no proxmox credentials configured")
	}

	form := url.Values{}
	form.Set("username", c.user)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/access/ticket", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: "authentication failed"}
	}

	var out struct {
		Data struct {
			Ticket string `json:"ticket"`
			CSRF   string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding ticket response: %w", err)
	}

	c.ticket = out.Data.Ticket
	c.csrf = out.Data.CSRF
	c.logger.Debug("acquired API ticket", "user", c.user)
	return nil
}

// do performs one API request and decodes the "data" field into out (which
// may be nil when the caller does not need the response).
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	return c.doAttempt(ctx, method, path, form, out, false)
}

func (c *Client) doAttempt(ctx context.Context, method, path string, form url.Values, out any, retried bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	target := c.base + path
	if form != nil {
		if method == http.MethodGet {
			target += "?" + form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.token == "" && !retried {
		// Ticket expired (PVE tickets live two hours). Re-login and retry
		// once; a 401 means the request was never executed, so the retry
		// keeps the at-most-once guarantee for writes.
		c.mu.Lock()
		c.ticket = ""
		c.mu.Unlock()
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.doAttempt(ctx, method, path, form, out, true)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding %s %s data: %w", method, path, err)
	}
	return nil
}

// authorize attaches either the API token header or the ticket cookie (and
// CSRF token for writes), logging in first when no ticket is cached.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticket == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}
	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: c.ticket})
	if req.Method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", c.csrf)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, form, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, form, out)
}

func (c *Client) put(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPut, path, form, out)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}
