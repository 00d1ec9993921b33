package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrNoImageData      = errors.New("image data is required")
	ErrInvalidHotspot   = errors.New("hotspot must be inside the image")
	ErrMissingHotspot   = errors.New("select a point on the image to edit")
	ErrUnknownOperation = errors.New("unknown operation")
)

type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
)

// Operation names an edit that produces a new artifact. The string value is
// also the prefix of the generated artifact's file name.
type Operation string

const (
	OpUpload            Operation = "upload"
	OpRetouch           Operation = "edited"
	OpFilter            Operation = "filter"
	OpAdjust            Operation = "adjustment"
	OpRemoveBackground  Operation = "background-removal"
	OpUpscale           Operation = "upscale"
	OpGenerateFromText  Operation = "generated"
	OpGenerateFromImage Operation = "image-generation"
	OpStyleTransfer     Operation = "styled"
	OpCrop              Operation = "cropped"
	OpRotate            Operation = "rotated"

	// OpModel3D produces a mesh, not an artifact, so it never enters history.
	OpModel3D Operation = "model3d"
)

func AIOperations() []Operation {
	return []Operation{
		OpRetouch, OpFilter, OpAdjust, OpRemoveBackground,
		OpUpscale, OpGenerateFromText, OpGenerateFromImage, OpStyleTransfer,
	}
}

func (o Operation) String() string {
	return string(o)
}

// NeedsPrompt reports whether the operation requires a user prompt.
func (o Operation) NeedsPrompt() bool {
	switch o {
	case OpRetouch, OpFilter, OpAdjust, OpGenerateFromText, OpGenerateFromImage:
		return true
	}
	return false
}

// ParseOperation accepts both the canonical names and the short command
// spellings used on the command line.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "retouch", "edit", string(OpRetouch):
		return OpRetouch, nil
	case "filter":
		return OpFilter, nil
	case "adjust", string(OpAdjust):
		return OpAdjust, nil
	case "background", "bg", string(OpRemoveBackground):
		return OpRemoveBackground, nil
	case "upscale":
		return OpUpscale, nil
	case "generate", "text", string(OpGenerateFromText):
		return OpGenerateFromText, nil
	case "reimagine", "image", string(OpGenerateFromImage):
		return OpGenerateFromImage, nil
	case "style", string(OpStyleTransfer):
		return OpStyleTransfer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Hotspot is a pixel coordinate in the image's native resolution.
type Hotspot struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (h Hotspot) Validate() error {
	if h.X < 0 || h.Y < 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidHotspot, h.X, h.Y)
	}
	return nil
}

type CostInfo struct {
	PerImage float64
	Total    float64
	Currency string
}

type ModelCapabilities struct {
	Name           string
	Provider       ProviderType
	OutputsImage   bool
	OutputsText    bool
	MaxInputImages int
	Description    string
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ImageModels lists models able to return image parts.
func (r *ModelRegistry) ImageModels() []string {
	var names []string
	for name, cap := range r.models {
		if cap.OutputsImage {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) Supports(name string, provider ProviderType) bool {
	cap, ok := r.models[name]
	return ok && cap.Provider == provider
}

const (
	DefaultImageModel  = "gemini-2.5-flash-image-preview"
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultImagenModel = "imagen-4.0-generate-001"
)

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           DefaultImageModel,
		Provider:       ProviderGemini,
		OutputsImage:   true,
		OutputsText:    true,
		MaxInputImages: 3,
		Description:    "image editing and image-to-image",
	})

	r.Register(&ModelCapabilities{
		Name:           "gemini-2.5-flash-image",
		Provider:       ProviderGemini,
		OutputsImage:   true,
		OutputsText:    true,
		MaxInputImages: 3,
		Description:    "image editing (GA)",
	})

	r.Register(&ModelCapabilities{
		Name:           DefaultTextModel,
		Provider:       ProviderGemini,
		OutputsImage:   false,
		OutputsText:    true,
		MaxInputImages: 16,
		Description:    "text output, used for 3D mesh generation",
	})

	r.Register(&ModelCapabilities{
		Name:           DefaultImagenModel,
		Provider:       ProviderGemini,
		OutputsImage:   true,
		OutputsText:    false,
		MaxInputImages: 0,
		Description:    "text-to-image",
	})

	return r
}

// IsImageMimeType reports whether the MIME type is one the editor accepts.
func IsImageMimeType(mimeType string) bool {
	return slices.Contains([]string{MimePNG, MimeJPEG, MimeWebP, MimeGIF}, mimeType)
}
