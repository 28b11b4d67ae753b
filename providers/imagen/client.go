// Package imagen wraps the Imagen still-image model behind the
// gen.ImageProvider interface.
package imagen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/adcraftlabs/adcraft/gen"
)

const defaultModel = "imagen-4.0-generate-001"

type Client struct {
	client *genai.Client
	model  string
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	c := &Client{model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create imagen client: %w", err)
	}
	c.client = gc
	return c, nil
}

func (c *Client) Name() string { return "imagen" }

func (c *Client) GenerateImages(ctx context.Context, req gen.ImageRequest) ([]gen.Asset, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	}
	if req.AspectRatio != "" {
		config.AspectRatio = req.AspectRatio
	}

	resp, err := c.client.Models.GenerateImages(ctx, model, req.Prompt, config)
	if err != nil {
		return nil, fmt.Errorf("imagen generation failed: %w", gen.MapError(err))
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("imagen generation failed: no images returned")
	}

	assets := make([]gen.Asset, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil {
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		assets = append(assets, gen.Asset{
			ID:        uuid.NewString(),
			Kind:      gen.AssetImage,
			MIMEType:  mime,
			Model:     model,
			Prompt:    req.Prompt,
			CreatedAt: time.Now().UTC(),
			Data:      img.Image.ImageBytes,
		})
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("imagen generation failed: empty image payloads")
	}
	return assets, nil
}
