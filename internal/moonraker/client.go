package moonraker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrQuery is returned when the file status query fails.
	ErrQuery = errors.New("moonraker: status query failed")

	// ErrNoActiveFile is returned when no file is loaded on the virtual SD card.
	ErrNoActiveFile = errors.New("moonraker: no file loaded")
)

// Config configures a Client.
type Config struct {
	// BaseURL is the Moonraker HTTP endpoint, e.g. http://printer.local.
	BaseURL string

	// WebsocketURL overrides the status channel endpoint.
	// Default: BaseURL with a ws/wss scheme and path /websocket.
	WebsocketURL string

	// APIKey is sent as X-Api-Key when set.
	APIKey string

	// Timeout bounds the status query.
	// Default: 10 seconds
	Timeout time.Duration
}

// Client is a Moonraker API client.
type Client struct {
	baseURL *url.URL
	wsURL   string
	apiKey  string
	http    *http.Client
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid moonraker url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid moonraker url %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid moonraker url %q: missing host", cfg.BaseURL)
	}

	wsURL := cfg.WebsocketURL
	if wsURL == "" {
		wsURL = websocketURL(base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		wsURL:   wsURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// websocketURL derives the status channel endpoint from the HTTP base URL.
func websocketURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/websocket"
	u.RawQuery = ""
	return u.String()
}

// WebsocketURL returns the status channel endpoint.
func (c *Client) WebsocketURL() string {
	return c.wsURL
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("X-Api-Key", c.apiKey)
	}
	return h
}

// QueryFile asks Moonraker which file is loaded on the virtual SD card.
func (c *Client) QueryFile(ctx context.Context) (*FileDetails, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/printer/objects/query"
	u.RawQuery = objectVirtualSDCard

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrQuery, err)
	}
	req.Header = c.header()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrQuery, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrQuery, err)
	}
	return qr.details()
}

func (qr queryResponse) details() (*FileDetails, error) {
	if qr.Result == nil || qr.Result.Status.VirtualSDCard == nil {
		return nil, fmt.Errorf("%w: response has no virtual_sdcard status", ErrQuery)
	}
	sd := qr.Result.Status.VirtualSDCard
	if sd.FilePath == nil || *sd.FilePath == "" {
		return nil, fmt.Errorf("%w: %w", ErrQuery, ErrNoActiveFile)
	}

	d := &FileDetails{FilePath: *sd.FilePath}
	if sd.FileSize != nil {
		d.FileSize = *sd.FileSize
	}
	if sd.FilePosition != nil {
		d.FilePosition = *sd.FilePosition
	}
	if sd.IsActive != nil {
		d.IsActive = *sd.IsActive
	}
	if sd.Progress != nil {
		d.Progress = *sd.Progress
	}
	return d, nil
}
