// Package gemini adapts the Gemini image model to generation.Model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/Manny1440/DreamScapers/internal/config"
	"github.com/Manny1440/DreamScapers/internal/generation"
	"github.com/Manny1440/DreamScapers/internal/imagedata"
)

const DefaultModel = "gemini-2.5-flash-image"

// Client calls models.generateContent with one user turn holding the
// instruction text and the source photo.
type Client struct {
	models *genai.Models
	model  string
}

// NewClient builds a Client. An empty API key yields
// generation.ErrMissingCredential so callers can run without a model.
func NewClient(ctx context.Context, cfg config.GeminiConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, generation.ErrMissingCredential
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	slog.Info("gemini client ready", "model", cfg.Model)
	return &Client{models: gc.Models, model: cfg.Model}, nil
}

func (c *Client) Name() string {
	return c.model
}

// Generate sends a single-turn request. There is no retry; every attempt is
// already paid for by the caller's quota.
func (c *Client) Generate(ctx context.Context, in generation.Instruction) (*generation.Response, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(in.Text),
		{InlineData: &genai.Blob{MIMEType: in.Image.MIMEType, Data: in.Image.Data}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	res, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, describe(err)
	}
	return convert(res), nil
}

func convert(res *genai.GenerateContentResponse) *generation.Response {
	out := &generation.Response{}
	if res == nil {
		return out
	}
	for _, cand := range res.Candidates {
		var gc generation.Candidate
		if cand != nil && cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p == nil {
					continue
				}
				part := generation.Part{Text: p.Text}
				if p.InlineData != nil {
					part.Image = &imagedata.Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
				}
				gc.Parts = append(gc.Parts, part)
			}
		}
		out.Candidates = append(out.Candidates, gc)
	}
	return out
}

// describe adds the upstream HTTP status to err.
func describe(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("gemini rejected the API key (%d %s): %w", apiErr.Code, apiErr.Status, err)
		}
		return fmt.Errorf("gemini returned %d %s: %w", apiErr.Code, apiErr.Status, err)
	}
	return fmt.Errorf("calling gemini: %w", err)
}
