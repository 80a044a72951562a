package collabsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab/internal/logging"
)

// DefaultTimeout bounds every call made through a Client.
const DefaultTimeout = 10 * time.Second

// HealthTimeout bounds the connectivity probe.
const HealthTimeout = 5 * time.Second

const maxErrorBody = 1 << 20

// SessionStore is the credential source the client reads on every call and
// clears when the server stops accepting the credential.
type SessionStore interface {
	Token() string
	Clear() error
}

// Client is the single point through which the collab HTTP API is called.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	session  SessionStore
	authLost func()
	log      *zap.Logger

	Auth        *AuthService
	Projects    *ProjectService
	Tasks       *TaskService
	Invitations *InvitationService
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.Timeout = d }
}

// WithSession attaches the bearer credential of s to authenticated calls.
func WithSession(s SessionStore) Option {
	return func(c *Client) { c.session = s }
}

// WithAuthLost registers fn to run after the session was cleared because the
// server refused its credential.
func WithAuthLost(fn func()) Option {
	return func(c *Client) { c.authLost = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client with sane defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	} else if c.HTTPClient.Timeout <= 0 {
		hc := *c.HTTPClient
		hc.Timeout = c.Timeout
		c.HTTPClient = &hc
	}
	c.log = logging.OrNop(c.log)
	c.Auth = &AuthService{client: c}
	c.Projects = &ProjectService{client: c}
	c.Tasks = &TaskService{client: c}
	c.Invitations = &InvitationService{client: c}
	return c
}

// do sends an authenticated call: the session's bearer token is attached when
// present, and a 401 on such a call ends the session.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	return c.send(ctx, method, endpoint, body, out, true)
}

// doAnonymous never attaches a credential and never ends the session.
func (c *Client) doAnonymous(ctx context.Context, method, endpoint string, body any, out any) error {
	return c.send(ctx, method, endpoint, body, out, false)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, out any, authenticated bool) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	var token string
	if authenticated && c.session != nil {
		token = c.session.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.With(zap.String("request_id", requestID), zap.String("method", method), zap.String("path", endpoint))
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Debug("request canceled by caller")
			return context.Canceled
		}
		log.Warn("api unreachable", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	log = log.With(zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		rejected := newRejected(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized && token != "" {
			rejected.SessionLost = true
			c.endSession(log)
		}
		log.Warn("api rejected request", zap.String("code", rejected.Code), zap.String("message", rejected.Message))
		return rejected
	}
	log.Debug("api request")
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
		return &UnreachableError{Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) endSession(log *zap.Logger) {
	if c.session != nil {
		if err := c.session.Clear(); err != nil {
			log.Error("clear session after 401", zap.Error(err))
		}
	}
	log.Info("credential refused; session cleared")
	if c.authLost != nil {
		c.authLost()
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
