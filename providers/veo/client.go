// Package veo wraps the Veo video model behind the gen.VideoProvider
// interface. Video generation is a long-running operation; GenerateVideo
// polls until the operation completes or ctx is done.
package veo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/adcraftlabs/adcraft/gen"
	"github.com/adcraftlabs/adcraft/resilience"
)

const (
	defaultModel        = "veo-3.0-generate-001"
	defaultPollInterval = 10 * time.Second
)

type Client struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	c := &Client{model: defaultModel, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create veo client: %w", err)
	}
	c.client = gc
	return c, nil
}

func (c *Client) Name() string { return "veo" }

func (c *Client) GenerateVideo(ctx context.Context, req gen.VideoRequest) (gen.Asset, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	config := &genai.GenerateVideosConfig{}
	if req.AspectRatio != "" {
		config.AspectRatio = req.AspectRatio
	}
	var image *genai.Image
	if req.Image != nil {
		image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}

	op, err := c.client.Models.GenerateVideos(ctx, model, req.Prompt, image, config)
	if err != nil {
		return gen.Asset{}, fmt.Errorf("veo generation failed: %w", gen.MapError(err))
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return gen.Asset{}, fmt.Errorf("veo generation: %w: %v", resilience.ErrTimeout, ctx.Err())
		case <-time.After(c.pollInterval):
		}
		op, err = c.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return gen.Asset{}, fmt.Errorf("veo generation failed: %w", gen.MapError(err))
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return gen.Asset{}, fmt.Errorf("veo generation failed: no video returned")
	}

	video := op.Response.GeneratedVideos[0].Video
	mime := video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return gen.Asset{
		ID:        uuid.NewString(),
		Kind:      gen.AssetVideo,
		URL:       video.URI,
		MIMEType:  mime,
		Model:     model,
		Prompt:    req.Prompt,
		CreatedAt: time.Now().UTC(),
		Data:      video.VideoBytes,
	}, nil
}
