package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manash/pixshop/pkg/models"
)

var (
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrRequestBlocked    = errors.New("request was blocked")
	ErrGenerationStopped = errors.New("generation stopped unexpectedly")
	ErrNoImageReturned   = errors.New("the AI model did not return an image")
	ErrNoTextReturned    = errors.New("the AI model did not return valid text content")
	ErrAPI               = errors.New("API request failed")
)

// Editor turns an artifact and an instruction into a new artifact. Every
// method validates its inputs before any network call.
type Editor interface {
	Name() models.ProviderType
	Retouch(ctx context.Context, img *models.Artifact, prompt string, spot models.Hotspot) (*models.Artifact, error)
	Filter(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error)
	Adjust(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error)
	RemoveBackground(ctx context.Context, img *models.Artifact) (*models.Artifact, error)
	Upscale(ctx context.Context, img *models.Artifact) (*models.Artifact, error)
	GenerateFromText(ctx context.Context, prompt string) (*models.Artifact, error)
	GenerateFromImage(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error)
	StyleTransfer(ctx context.Context, content, style *models.Artifact) (*models.Artifact, error)
	Generate3DModel(ctx context.Context, img *models.Artifact) (*models.Mesh, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	TimeoutSec  int
	ImageModel  string
	TextModel   string
	ImagenModel string
}

// Request is one AI edit expressed as data, used by the batch runner and
// the HTTP API.
type Request struct {
	Operation models.Operation
	Prompt    string
	Image     *models.Artifact
	Style     *models.Artifact
	Hotspot   *models.Hotspot
}

// Apply dispatches req to the matching Editor method.
func Apply(ctx context.Context, e Editor, req Request) (*models.Artifact, error) {
	switch req.Operation {
	case models.OpRetouch:
		if req.Hotspot == nil {
			return nil, models.ErrMissingHotspot
		}
		return e.Retouch(ctx, req.Image, req.Prompt, *req.Hotspot)
	case models.OpFilter:
		return e.Filter(ctx, req.Image, req.Prompt)
	case models.OpAdjust:
		return e.Adjust(ctx, req.Image, req.Prompt)
	case models.OpRemoveBackground:
		return e.RemoveBackground(ctx, req.Image)
	case models.OpUpscale:
		return e.Upscale(ctx, req.Image)
	case models.OpGenerateFromText:
		return e.GenerateFromText(ctx, req.Prompt)
	case models.OpGenerateFromImage:
		return e.GenerateFromImage(ctx, req.Image, req.Prompt)
	case models.OpStyleTransfer:
		return e.StyleTransfer(ctx, req.Image, req.Style)
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownOperation, req.Operation)
}

func ValidateImage(img *models.Artifact) error {
	if img == nil || img.Size() == 0 {
		return models.ErrNoImageData
	}
	return nil
}

func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return models.ErrEmptyPrompt
	}
	return nil
}
