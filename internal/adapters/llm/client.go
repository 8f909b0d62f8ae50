package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// ClientConfig configures an OpenAI-compatible backend.
type ClientConfig struct {
	Name string
	// BaseURLs are tried in order until one answers.
	BaseURLs    []string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *logging.Logger
}

// NewClient creates a client. Base URLs are normalized to end in /v1.
func NewClient(cfg ClientConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	urls := make([]string, 0, len(cfg.BaseURLs))
	seen := make(map[string]bool, len(cfg.BaseURLs))
	for _, u := range cfg.BaseURLs {
		n := normalizeBaseURL(u)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		urls = append(urls, n)
	}
	cfg.BaseURLs = urls
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		cfg:    cfg,
		logger: logger.WithBackend(cfg.Name),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.cfg.Name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Execute sends one chat completion. Endpoints are tried in order; an
// authentication failure stops the failover.
func (c *Client) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	if len(c.cfg.BaseURLs) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("backend %s has no base URL", c.cfg.Name))
	}

	req := chatRequest{
		Model:       firstNonEmpty(opts.Model, c.cfg.Model),
		MaxTokens:   firstPositive(opts.MaxTokens, c.cfg.MaxTokens),
		Temperature: opts.Temperature,
	}
	if req.Temperature == 0 {
		req.Temperature = c.cfg.Temperature
	}
	if opts.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: opts.Prompt})

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var failures []string
	var lastErr error
	for _, baseURL := range c.cfg.BaseURLs {
		res, err := c.chatAtEndpoint(ctx, baseURL+"/chat/completions", payload)
		if err == nil {
			res.Duration = time.Since(start)
			if res.Model == "" {
				res.Model = req.Model
			}
			return res, nil
		}
		lastErr = err
		failures = append(failures, fmt.Sprintf("%s (%v)", baseURL, err))
		c.logger.Debug("llm: endpoint failed", "url", baseURL, "error", err)

		if ctx.Err() != nil || core.IsCategory(err, core.ErrCatAuth) {
			break
		}
	}

	if len(failures) > 1 {
		var domErr *core.DomainError
		if errors.As(lastErr, &domErr) {
			return nil, domErr.WithDetail("endpoints", strings.Join(failures, " | "))
		}
	}
	return nil, lastErr
}

func (c *Client) chatAtEndpoint(ctx context.Context, endpoint string, payload []byte) (*core.ExecuteResult, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("create request: %v", err))
	}
	request.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, core.ErrNetwork(fmt.Sprintf("reading response: %v", err)).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, malformed(fmt.Sprintf("decode response: %v", err))
	}
	if len(decoded.Choices) == 0 {
		return nil, malformed("response missing choices")
	}

	res := &core.ExecuteResult{
		Output:       decoded.Choices[0].Message.Content,
		Model:        decoded.Model,
		FinishReason: strings.TrimSpace(decoded.Choices[0].FinishReason),
	}
	if decoded.Usage != nil {
		res.TokensIn = decoded.Usage.PromptTokens
		res.TokensOut = decoded.Usage.CompletionTokens
	}
	return res, nil
}

// Ping lists models on the first reachable endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if len(c.cfg.BaseURLs) == 0 {
		return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("backend %s has no base URL", c.cfg.Name))
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var lastErr error
	for _, baseURL := range c.cfg.BaseURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
		if err != nil {
			return err
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = classifyTransportError(ctx, err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = classifyStatus(resp.StatusCode, body)
		if core.IsCategory(lastErr, core.ErrCatAuth) {
			break
		}
	}
	return lastErr
}

// classifyStatus maps an HTTP failure to a domain error.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	msg = fmt.Sprintf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuth(msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.ErrTimeout(msg)
	case status >= 500:
		return core.ErrNetwork(msg)
	default:
		return &core.DomainError{
			Category: core.ErrCatExecution,
			Code:     "BAD_REQUEST",
			Message:  msg,
		}
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrTimeout(fmt.Sprintf("request timed out: %v", err)).WithCause(err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return core.ErrState(core.CodeCancelled, "request cancelled").WithCause(err)
	}
	return core.ErrNetwork(fmt.Sprintf("request failed: %v", err)).WithCause(err)
}

func malformed(msg string) error {
	return &core.DomainError{
		Category: core.ErrCatExecution,
		Code:     "MALFORMED_RESPONSE",
		Message:  msg,
	}
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
