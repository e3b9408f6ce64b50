// ABOUTME: HTTP client for the call-control API
// ABOUTME: JSON request/response helpers plus prompt audio download
package callctl

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

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/prompt"
	"github.com/charmbracelet/log"
)

// defaultMaxPromptBytes bounds a prompt download
const defaultMaxPromptBytes = 16 << 20

var (
	// ErrCallRejected is returned when the server declines to place a call
	ErrCallRejected = errors.New("call rejected")

	// ErrPromptTooLarge is returned when a prompt exceeds MaxPromptBytes
	ErrPromptTooLarge = errors.New("prompt too large")
)

// Config holds client configuration
type Config struct {
	// BaseURL is the API root, e.g. https://bridge.example.com
	BaseURL string

	// PartialTTSInterval is forwarded with each call request (0 omits it)
	PartialTTSInterval int

	// Timeout bounds each request (default: 15s)
	Timeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client

	// MaxPromptBytes caps a prompt download (default: 16 MiB)
	MaxPromptBytes int64

	// UserAgent is sent with every request (optional)
	UserAgent string

	// Logger receives client logs
	Logger *log.Logger
}

// CallRequest is the body of POST /call
type CallRequest struct {
	To                 string `json:"to"`
	CallerLanguage     string `json:"callerLanguage"`
	ReceiverLanguage   string `json:"receiverLanguage"`
	PartialTTSInterval int    `json:"partialTtsInterval,omitempty"`
}

// CallResponse is the body returned by POST /call
type CallResponse struct {
	Success bool   `json:"success"`
	CallSid string `json:"callSid"`
	Error   string `json:"error,omitempty"`
}

// statusResponse is the body returned by GET /call-status
type statusResponse struct {
	Status string `json:"status"`
}

// Client is a call-control API client
type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

// New creates a client for the API at config.BaseURL
func New(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", config.BaseURL)
	}

	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPromptBytes == 0 {
		config.MaxPromptBytes = defaultMaxPromptBytes
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("callctl")
	}

	return &Client{
		config: config,
		base:   base,
		http:   httpClient,
		logger: logger,
	}, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.base.String()
}

// StartCall asks the server to dial destination. It returns the call SID,
// or an error wrapping ErrCallRejected with the server's message.
func (c *Client) StartCall(ctx context.Context, destination, callerLang, receiverLang string) (string, error) {
	req := CallRequest{
		To:                 destination,
		CallerLanguage:     callerLang,
		ReceiverLanguage:   receiverLang,
		PartialTTSInterval: c.config.PartialTTSInterval,
	}

	var resp CallResponse
	if err := c.postJSON(ctx, "/call", req, &resp); err != nil {
		return "", fmt.Errorf("start call: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "no reason given"
		}
		return "", fmt.Errorf("%w: %s", ErrCallRejected, msg)
	}
	if resp.CallSid == "" {
		return "", fmt.Errorf("%w: missing callSid", ErrCallRejected)
	}

	c.logger.Info("Call started", "call_sid", resp.CallSid, "to", destination)
	return resp.CallSid, nil
}

// EndCall asks the server to hang up callSid
func (c *Client) EndCall(ctx context.Context, callSid string) error {
	body := map[string]string{"callSid": callSid}
	if err := c.postJSON(ctx, "/end-call", body, nil); err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	c.logger.Info("Call ended", "call_sid", callSid)
	return nil
}

// CallStatus returns the telephony status of callSid, lowercased
func (c *Client) CallStatus(ctx context.Context, callSid string) (string, error) {
	q := url.Values{"callSid": {callSid}}
	resp, err := c.get(ctx, "/call-status", q)
	if err != nil {
		return "", fmt.Errorf("call status: %w", err)
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("call status: failed to parse response: %w", err)
	}
	return strings.ToLower(status.Status), nil
}

// FetchPrompt downloads a welcome or waiting prompt as container audio
func (c *Client) FetchPrompt(ctx context.Context, language string, kind prompt.Kind) (audio.Payload, error) {
	q := url.Values{"language": {language}, "type": {string(kind)}}
	resp, err := c.get(ctx, "/audio-messages", q)
	if err != nil {
		return audio.Payload{}, fmt.Errorf("fetch %s prompt: %w", kind, err)
	}
	defer resp.Body.Close()

	limit := c.config.MaxPromptBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return audio.Payload{}, fmt.Errorf("fetch %s prompt: %w", kind, err)
	}
	if int64(len(data)) > limit {
		return audio.Payload{}, fmt.Errorf("fetch %s prompt: %w: more than %d bytes", kind, ErrPromptTooLarge, limit)
	}

	c.logger.Debug("Fetched prompt", "kind", kind, "language", language, "bytes", len(data))
	return audio.Payload{Data: data, Encoding: audio.EncodingContainer}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		if resp == nil {
			return err
		}
		defer resp.Body.Close()
		// POST /call reports rejections in the body with a 4xx/5xx status
		if out != nil && json.NewDecoder(resp.Body).Decode(out) == nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do sends req. On a non-2xx status it returns the response (body unread)
// along with an error.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Request failed", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return resp, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}
