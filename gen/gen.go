// Package gen defines the provider-neutral generation surface the agents
// call: text and vision analysis, image generation, and video generation.
// Concrete clients live under providers/ and translate their SDK failures
// through MapError so the resilience layer sees typed boundary errors.
package gen

import (
	"context"
	"time"
)

type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// Asset is one generated artifact. Data holds the raw bytes until the
// object store uploads them; URL is set once the asset is addressable.
type Asset struct {
	ID        string    `json:"id"`
	Kind      AssetKind `json:"kind"`
	URL       string    `json:"url,omitempty"`
	MIMEType  string    `json:"mimeType,omitempty"`
	Model     string    `json:"model,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	Data []byte `json:"-"`
}

// InlineImage is image input for vision analysis.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

type TextRequest struct {
	Model  string
	System string
	Prompt string
	Images []InlineImage
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

type TextResult struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

type ImageRequest struct {
	Model       string
	Prompt      string
	Count       int
	AspectRatio string
}

type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	// Image, when set, seeds image-to-video generation.
	Image *InlineImage
}

// TextProvider produces text from a prompt, optionally grounded on images.
type TextProvider interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)
}

// ImageProvider produces still images.
type ImageProvider interface {
	Name() string
	GenerateImages(ctx context.Context, req ImageRequest) ([]Asset, error)
}

// VideoProvider produces video clips. Implementations block until the
// underlying long-running operation completes or ctx is done.
type VideoProvider interface {
	Name() string
	GenerateVideo(ctx context.Context, req VideoRequest) (Asset, error)
}
