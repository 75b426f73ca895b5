// Package api is the JSON-over-HTTP client for the trivia backend. It
// implements session.Backend and the operation initiator and status source.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/trivia-terminal/internal/logbook"
	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 << 10

// Category is a playable question category.
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"questionCount"`
}

// Error is a non-2xx response or a transport failure.
type Error struct {
	Op        string
	Status    int
	Code      string
	Message   string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api: %s: %v", e.Op, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api: %s: %d %s: %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api: %s: %d: %s", e.Op, e.Status, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call may succeed.
func (e *Error) Temporary() bool {
	return e.Err != nil || e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to one backend.
type Client struct {
	baseURL   *url.URL
	token     string
	http      *http.Client
	requestID func() string
	log       logbook.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRequestIDs overrides the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

// WithLogger routes request diagnostics.
func WithLogger(l logbook.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:   parsed,
		http:      &http.Client{Timeout: 10 * time.Second},
		requestID: uuid.NewString,
		log:       logbook.Nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Health pings /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
}

// ListCategories returns the playable categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := c.do(ctx, "list categories", http.MethodGet, "/api/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// StartSession creates a session for categoryID.
func (c *Client) StartSession(ctx context.Context, categoryID string) (session.Session, error) {
	body := map[string]string{"categoryId": categoryID}
	var out session.Session
	if err := c.do(ctx, "start session", http.MethodPost, "/api/sessions", body, &out); err != nil {
		return session.Session{}, err
	}
	return out, nil
}

// SubmitAnswer records one answer and returns the verdict.
func (c *Client) SubmitAnswer(ctx context.Context, req session.AnswerRequest) (session.AnswerResult, error) {
	var out session.AnswerResult
	path := "/api/sessions/" + url.PathEscape(req.SessionID) + "/answers"
	if err := c.do(ctx, "submit answer", http.MethodPost, path, req, &out); err != nil {
		return session.AnswerResult{}, err
	}
	return out, nil
}

// CompleteSession finalizes the session and returns its result.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (session.Result, error) {
	var out session.Result
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/complete"
	if err := c.do(ctx, "complete session", http.MethodPost, path, struct{}{}, &out); err != nil {
		return session.Result{}, err
	}
	return out, nil
}

// InitiateMint starts minting the reward unlocked by an eligibility.
func (c *Client) InitiateMint(ctx context.Context, req operation.MintRequest) (operation.Operation, error) {
	return c.initiate(ctx, operation.KindMint, req)
}

// InitiateForge starts a forge.
func (c *Client) InitiateForge(ctx context.Context, req operation.ForgeRequest) (operation.Operation, error) {
	return c.initiate(ctx, operation.KindForge, req)
}

// OperationStatus reads the current state of a mint or forge.
func (c *Client) OperationStatus(ctx context.Context, kind operation.Kind, id string) (operation.Operation, error) {
	var out operation.Operation
	path := operationsPath(kind) + "/" + url.PathEscape(id)
	if err := c.do(ctx, string(kind)+" status", http.MethodGet, path, nil, &out); err != nil {
		return operation.Operation{}, err
	}
	return normalizeOperation(out, kind), nil
}

func (c *Client) initiate(ctx context.Context, kind operation.Kind, req any) (operation.Operation, error) {
	var out operation.Operation
	if err := c.do(ctx, "initiate "+string(kind), http.MethodPost, operationsPath(kind), req, &out); err != nil {
		return operation.Operation{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return operation.Operation{}, &Error{Op: "initiate " + string(kind), Err: errors.New("response has no operation id")}
	}
	return normalizeOperation(out, kind), nil
}

func operationsPath(kind operation.Kind) string {
	if kind == operation.KindForge {
		return "/api/forges"
	}
	return "/api/mints"
}

func normalizeOperation(op operation.Operation, kind operation.Kind) operation.Operation {
	if op.Kind == "" {
		op.Kind = kind
	}
	op.Status = operation.NormalizeStatus(op.Status)
	return op
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	requestID := c.requestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("%s %s failed (%s): %v", method, path, requestID, err)
		return &Error{Op: op, RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Op: op, Status: resp.StatusCode, RequestID: requestID}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var parsed errorBody
		if json.Unmarshal(raw, &parsed) == nil {
			apiErr.Code, apiErr.Message = parsed.Code, parsed.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		c.log.Warn("%s %s -> %d (%s): %s", method, path, resp.StatusCode, requestID, apiErr.Message)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, RequestID: requestID, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
