package client

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

	"github.com/Manny1440/DreamScapers/internal/imagedata"
)

// DefaultIdentity is used when the caller has not signed in.
const DefaultIdentity = "demo@dreamscapers.app"

const snippetLen = 200

// Request is the generate payload as posted by the browser.
type Request struct {
	Email         string `json:"email"`
	Prompt        string `json:"prompt"`
	StyleModifier string `json:"styleModifier"`
	ImageBase64   string `json:"imageBase64"`
}

// Result is a successful generate response.
type Result struct {
	Image    string    `json:"image"`
	MIMEType string    `json:"mimeType"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	WeekKey  string    `json:"weekKey"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Decode returns the generated image.
func (r *Result) Decode() (imagedata.Image, error) {
	return imagedata.Decode(r.Image)
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Kind    string
	Message string
	Limit   int
	Used    int
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("gateway: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway: %s (%d): %s", e.Kind, e.Status, e.Message)
}

// NewRequest assembles a generate payload. An empty identity falls back to
// DefaultIdentity.
func NewRequest(identity, prompt, styleModifier string, img imagedata.Image) Request {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = DefaultIdentity
	}
	return Request{
		Email:         identity,
		Prompt:        prompt,
		StyleModifier: styleModifier,
		ImageBase64:   imagedata.Encode(img),
	}
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the generation gateway over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: hc,
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
	}
}

// Generate posts req to the gateway. Gateway failures are *APIError.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	// Proxies in front of the gateway can answer with plain text or HTML.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out struct {
		Result
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: "server returned non-JSON: " + snippet(raw),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{
			Status:  resp.StatusCode,
			Kind:    out.Kind,
			Message: msg,
			Limit:   out.Limit,
			Used:    out.Used,
		}
	}

	if out.Image == "" {
		return nil, errors.New("gateway returned no image")
	}
	return &out.Result, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > snippetLen {
		s = s[:snippetLen]
	}
	return s
}
