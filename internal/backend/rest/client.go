// Package rest is the production backend client. Rows go through PostgREST
// under /rest/v1 and auth through GoTrue under /auth/v1, using the
// supabase-community clients for both wires.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"stockroom/internal/backend"
	"stockroom/internal/logger"

	gotrue "github.com/supabase-community/gotrue-go"
	postgrest "github.com/supabase-community/postgrest-go"
)

type Client struct {
	baseURL     string
	anonKey     string
	httpClient  *http.Client
	log         *logger.Logger
	sessionFile string
	autoRefresh bool

	auth     gotrue.Client
	sessions *backend.SessionKeeper
}

var _ backend.Client = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient sets the client used for auth calls and the transport used
// for row calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionFile persists the session to path between runs.
func WithSessionFile(path string) Option {
	return func(c *Client) { c.sessionFile = path }
}

func WithAutoRefresh(enabled bool) Option {
	return func(c *Client) { c.autoRefresh = enabled }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client for the project at baseURL. It never fails: bad or
// placeholder values surface as request errors.
func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		anonKey:     anonKey,
		autoRefresh: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.GetLogger()
	}

	c.auth = gotrue.New("", anonKey).WithCustomGoTrueURL(c.baseURL + "/auth/v1")
	if c.httpClient != nil {
		c.auth = c.auth.WithClient(*c.httpClient)
	}

	c.sessions = backend.NewSessionKeeper(c.sessionFile, c.log)
	if c.autoRefresh {
		c.sessions.StartAutoRefresh(c.refresh)
	}
	return c
}

// Close stops background token refresh.
func (c *Client) Close() {
	c.sessions.Close()
}

// statusRecorder keeps the status of the last response so row failures can
// be reported with it.
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// rows returns a PostgREST client bearing token. The client's headers are
// shared by every request it makes, so each call gets its own.
func (c *Client) rows(token string) (*postgrest.Client, *statusRecorder) {
	pg := postgrest.NewClient(c.baseURL+"/rest/v1", "public", map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + token,
	})

	rec := &statusRecorder{next: http.DefaultTransport}
	if c.httpClient != nil && c.httpClient.Transport != nil {
		rec.next = c.httpClient.Transport
	}
	if pg.Transport != nil {
		pg.Transport.Parent = rec
	}
	return pg, rec
}

// rowError turns a PostgREST failure, formatted as "(code) message", back
// into an APIError.
func rowError(rec *statusRecorder, err error) error {
	if rec.status < 300 {
		return err
	}
	apiErr := &backend.APIError{Status: rec.status}
	msg := err.Error()
	if tail, ok := strings.CutPrefix(msg, "("); ok {
		if code, text, found := strings.Cut(tail, ") "); found {
			apiErr.Code, apiErr.Message = code, text
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(rec.status)
	}
	return apiErr
}

const authStatusPrefix = "response status code "

// authError turns a GoTrue failure, formatted as "response status code N:
// body", back into an APIError. Transport failures are returned unchanged.
func authError(err error) error {
	tail, ok := strings.CutPrefix(err.Error(), authStatusPrefix)
	if !ok {
		return err
	}
	code, body, _ := strings.Cut(tail, ": ")
	status, convErr := strconv.Atoi(code)
	if convErr != nil {
		return err
	}
	return decodeError(status, []byte(body))
}

// errorBody covers both PostgREST and GoTrue error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
}

func decodeError(status int, data []byte) *backend.APIError {
	apiErr := &backend.APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		var code string
		if len(body.Code) > 0 && body.Code[0] == '"' {
			_ = json.Unmarshal(body.Code, &code)
		}
		switch {
		case body.ErrorCode != "":
			apiErr.Code = body.ErrorCode
		case code != "":
			apiErr.Code = code
		case body.Error != "":
			apiErr.Code = body.Error
		}

		for _, msg := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
			if msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// accessToken returns the bearer for row requests: the user's token when
// signed in, refreshed if it has expired, otherwise the anon key. A failed
// refresh is returned rather than downgrading to anonymous access.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return c.anonKey, nil
	}
	return session.AccessToken, nil
}
