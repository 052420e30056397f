package mt5bridge

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

	"mt5dash/internal/ports"
)

const defaultHTTPTimeout = 15 * time.Second

// Client implements ports.TerminalClient against an MT5 terminal bridge:
// a small HTTP/WebSocket service colocated with the terminals that exposes
// the terminal API as JSON.
type Client struct {
	baseURL              *url.URL
	httpClient           *http.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the bridge client adapter.
type Config struct {
	BaseURL              string // e.g. http://127.0.0.1:8228
	Logger               ports.Logger
	HTTPTimeout          time.Duration
	ReconnectDelay       time.Duration // snapshot stream reconnect delay
	MaxReconnectAttempts int           // max stream reconnect attempts before giving up
}

// New creates a new bridge client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for bridge client")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: bridge base URL is required", ports.ErrConfigurationError)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bridge base URL %q: %w", ports.ErrConfigurationError, cfg.BaseURL, err)
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		baseURL:              base,
		httpClient:           &http.Client{Timeout: timeout},
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// bridgeError is the JSON error body the bridge returns on failures. The
// code field carries the terminal's own result code.
type bridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *bridgeError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// Terminal result codes surfaced by the bridge.
const (
	codeFail                = -1
	codeInvalidParams       = -2
	codeNotFound            = -5
	codeInvalidVersion      = -6
	codeAuthFailed          = -7
	codeUnsupported         = -8
	codeAutoTradeDisabled   = -9
	codeInternalFail        = -10000
	codeInternalFailInit    = -10003
	codeInternalFailConn    = -10004
	codeInternalFailTimeout = -10005
)

// handleError translates bridge and transport errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var brErr *bridgeError
	if errors.As(err, &brErr) {
		fields["bridgeErrorCode"] = brErr.Code
		fields["bridgeErrorMessage"] = brErr.Message

		var mappedErr error
		switch brErr.Code {
		case codeInvalidParams:
			mappedErr = ports.ErrInvalidRequest
		case codeNotFound:
			mappedErr = ports.ErrNotFound
		case codeAuthFailed:
			mappedErr = ports.ErrAuthenticationFailed
		case codeInvalidVersion, codeUnsupported, codeAutoTradeDisabled:
			mappedErr = ports.ErrInvalidRequest
		case codeInternalFailInit, codeInternalFailConn:
			mappedErr = ports.ErrTerminalUnavailable
		case codeInternalFailTimeout:
			mappedErr = ports.ErrTimeout
		case codeFail, codeInternalFail:
			mappedErr = ports.ErrUnknown
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with bridge error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// doJSON issues a request against the bridge and decodes the JSON response
// into out. Non-2xx responses are decoded into a bridgeError.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var wrapper struct {
			Error bridgeError `json:"error"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&wrapper); decErr != nil || wrapper.Error.Message == "" {
			return &bridgeError{Code: codeFail, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
		}
		return &wrapper.Error
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Ping checks connectivity to the bridge.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.doJSON(ctx, http.MethodGet, "/ping", nil, nil, nil); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Connect authenticates the account on the bridge and returns a bound session.
func (c *Client) Connect(ctx context.Context, creds ports.AccountCredentials) (ports.TerminalSession, error) {
	op := "Connect"

	reqBody := struct {
		Login    int64  `json:"login"`
		Password string `json:"password"`
		Server   string `json:"server"`
	}{Login: creds.Login, Password: creds.Password, Server: creds.Server}

	var loginResp struct {
		Login int64  `json:"login"`
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/login", nil, reqBody, &loginResp); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if loginResp.Login != creds.Login {
		err := fmt.Errorf("%w: requested login %d but terminal reports %d",
			ports.ErrAccountMismatch, creds.Login, loginResp.Login)
		c.logger.Error(ctx, err, op+" returned a different account", map[string]interface{}{
			"requestedLogin": creds.Login,
			"terminalLogin":  loginResp.Login,
		})
		return nil, err
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"login":  creds.Login,
		"server": creds.Server,
	})
	return &session{
		client: c,
		login:  creds.Login,
		token:  loginResp.Token,
	}, nil
}

var _ ports.TerminalClient = (*Client)(nil)
