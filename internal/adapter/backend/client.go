// Package backend provides the HTTP client for the question generation backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// Client talks to the generation backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client
	log          *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client used for both request kinds.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client rooted at baseURL, for example
// http://localhost:8080/api/v1/question-generator.
func NewClient(baseURL string, requestTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: requestTimeout},
		streamClient: &http.Client{},
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "backend.Client")
	return c
}

// GenerateStream opens a generation stream. The caller owns the returned body.
func (c *Client) GenerateStream(ctx context.Context, req *domain.GenerateRequest) (io.ReadCloser, error) {
	const op = "generate"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal generate request")
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		rej := rejection(op, resp)
		return nil, &domain.TransportError{Op: op, Err: rej}
	}
	c.log.Debug("generation stream opened", "status", resp.StatusCode)
	return resp.Body, nil
}

// ListSessions fetches the session history, newest first as the backend
// orders it. Sessions may embed their question lists.
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list sessions", http.MethodGet, "/sessions-with-questions", nil, &raw); err != nil {
		return nil, err
	}
	return decodeSessions(raw)
}

func decodeSessions(raw json.RawMessage) ([]domain.Session, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.Session{}, nil
	}
	if raw[0] == '[' {
		var sessions []domain.Session
		if err := json.Unmarshal(raw, &sessions); err != nil {
			return nil, errors.Wrap(err, "decode sessions")
		}
		return sessions, nil
	}
	var env struct {
		Sessions []domain.Session `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode sessions")
	}
	if env.Sessions == nil {
		env.Sessions = []domain.Session{}
	}
	return env.Sessions, nil
}

// ApproveQuestion asks the backend to approve a question.
func (c *Client) ApproveQuestion(ctx context.Context, sessionID, questionID string) error {
	return c.do(ctx, "approve", http.MethodPost, questionPath(sessionID, questionID)+"/approve", nil, nil)
}

// RejectQuestion asks the backend to reject a question.
func (c *Client) RejectQuestion(ctx context.Context, sessionID, questionID string) error {
	return c.do(ctx, "reject", http.MethodPost, questionPath(sessionID, questionID)+"/reject", nil, nil)
}

// UpdateQuestion sends the changed fields of a question. The returned
// question is nil when the backend answers without a body.
func (c *Client) UpdateQuestion(ctx context.Context, sessionID, questionID string, patch domain.QuestionPatch) (*domain.Question, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "edit", http.MethodPut, questionPath(sessionID, questionID), patch, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, errors.Wrap(err, "decode edited question")
	}
	if q.QuestionID == "" && q.Text == "" {
		return nil, nil
	}
	return &q, nil
}

// DeleteSession removes a session and its questions.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "delete session", http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func questionPath(sessionID, questionID string) string {
	return "/sessions/" + url.PathEscape(sessionID) + "/questions/" + url.PathEscape(questionID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do performs a JSON request. Network failures become TransportError,
// non-2xx answers become BackendRejection.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "marshal %s request", op)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := rejection(op, resp)
		c.log.Warn("backend rejected request", "op", op, "status", rej.Status, "message", rej.Message)
		return rej
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
		*raw = b
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", op)
	}
	return nil
}

func rejection(op string, resp *http.Response) *domain.BackendRejection {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	rej := &domain.BackendRejection{Op: op, Status: resp.StatusCode}

	var payload struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil {
		rej.Code = payload.Code
		rej.Message = firstNonEmpty(payload.Message, payload.Error, payload.Detail)
	}
	if rej.Message == "" {
		rej.Message = strings.TrimSpace(string(b))
	}
	if rej.Message == "" {
		rej.Message = http.StatusText(resp.StatusCode)
	}
	return rej
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
