package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/pkg/models"
)

// Call records one invocation of the fake editor.
type Call struct {
	Operation models.Operation
	Prompt    string
	Input     string
	Hotspot   *models.Hotspot
}

// Editor returns a deterministic artifact for every call, named after the
// operation and the call number. Err, when set, is returned instead.
type Editor struct {
	Err  error
	Mesh string

	mu    sync.Mutex
	calls []Call
}

var _ provider.Editor = (*Editor)(nil)

func New() *Editor {
	return &Editor{Mesh: "# fake\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"}
}

func (e *Editor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *Editor) Name() models.ProviderType { return "fake" }

func (e *Editor) record(op models.Operation, img *models.Artifact, prompt string, spot *models.Hotspot) (*models.Artifact, error) {
	e.mu.Lock()
	input := ""
	if img != nil {
		input = img.Name()
	}
	e.calls = append(e.calls, Call{Operation: op, Prompt: prompt, Input: input, Hotspot: spot})
	n := len(e.calls)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	data := []byte(fmt.Sprintf("%s:%d:%s", op, n, prompt))
	return models.NewArtifact(fmt.Sprintf("%s-%d.png", op, n), models.MimePNG, data)
}

func (e *Editor) Retouch(_ context.Context, img *models.Artifact, prompt string, spot models.Hotspot) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	return e.record(models.OpRetouch, img, prompt, &spot)
}

func (e *Editor) Filter(_ context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return e.record(models.OpFilter, img, prompt, nil)
}

func (e *Editor) Adjust(_ context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return e.record(models.OpAdjust, img, prompt, nil)
}

func (e *Editor) RemoveBackground(_ context.Context, img *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return e.record(models.OpRemoveBackground, img, "", nil)
}

func (e *Editor) Upscale(_ context.Context, img *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return e.record(models.OpUpscale, img, "", nil)
}

func (e *Editor) GenerateFromText(_ context.Context, prompt string) (*models.Artifact, error) {
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	return e.record(models.OpGenerateFromText, nil, prompt, nil)
}

func (e *Editor) GenerateFromImage(_ context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return e.record(models.OpGenerateFromImage, img, prompt, nil)
}

func (e *Editor) StyleTransfer(_ context.Context, content, style *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(content); err != nil {
		return nil, err
	}
	if err := provider.ValidateImage(style); err != nil {
		return nil, err
	}
	return e.record(models.OpStyleTransfer, content, style.Name(), nil)
}

func (e *Editor) Generate3DModel(_ context.Context, img *models.Artifact) (*models.Mesh, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if _, err := e.record(models.OpModel3D, img, "", nil); err != nil {
		return nil, err
	}
	return models.NewMesh("model.obj", e.Mesh)
}
