package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/pkg/models"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTimeout = 120 * time.Second
	apiKeyHeader   = "x-goog-api-key"
)

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason        string `json:"blockReason,omitempty"`
	BlockReasonMessage string `json:"blockReasonMessage,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

type apiErrorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Provider talks to the Gemini REST API.
type Provider struct {
	apiKey      string
	baseURL     string
	imageModel  string
	textModel   string
	imagenModel string
	httpClient  *http.Client
}

var _ provider.Editor = (*Provider)(nil)

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	if registry == nil {
		registry = models.DefaultRegistry()
	}

	p := &Provider{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		imageModel:  orDefault(cfg.ImageModel, models.DefaultImageModel),
		textModel:   orDefault(cfg.TextModel, models.DefaultTextModel),
		imagenModel: orDefault(cfg.ImagenModel, models.DefaultImagenModel),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	for _, m := range []string{p.imageModel, p.textModel, p.imagenModel} {
		if !registry.Supports(m, models.ProviderGemini) {
			log.Warn().Str("model", m).Msg("model is not in the registry, sending anyway")
		}
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
}

func imagePart(a *models.Artifact) part {
	return part{InlineData: &inlineData{
		MimeType: a.MimeType(),
		Data:     base64.StdEncoding.EncodeToString(a.Bytes()),
	}}
}

// generateContent posts parts to model:generateContent and decodes the reply.
func (p *Provider) generateContent(ctx context.Context, model string, parts []part) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Role: "user", Parts: parts}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := p.post(ctx, "/models/"+model+":generateContent", body)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

func (p *Provider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	url := p.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, p.apiKey)

	logRequest(http.MethodPost, url, httpReq.Header, body)
	start := time.Now()

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logResponse(resp.StatusCode, time.Since(start), respBody)

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s (status %d)", provider.ErrAPI, apiErr.Error.Message, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", provider.ErrAPI, resp.StatusCode)
	}

	return respBody, nil
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

func (r *generateResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

func (r *generateResponse) blocked() error {
	if r.PromptFeedback == nil || r.PromptFeedback.BlockReason == "" {
		return nil
	}
	return fmt.Errorf("%w. Reason: %s. %s", provider.ErrRequestBlocked,
		r.PromptFeedback.BlockReason, r.PromptFeedback.BlockReasonMessage)
}

// imageResult pulls the first inline image out of a response. The checks
// run in order: prompt block, image part, finish reason, text feedback.
func imageResult(resp *generateResponse, op models.Operation) (*models.Artifact, error) {
	if err := resp.blocked(); err != nil {
		return nil, err
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, pt := range resp.Candidates[0].Content.Parts {
			if pt.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(pt.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image for %s: %w", op, err)
			}
			log.Debug().Str("operation", op.String()).Str("mime", pt.InlineData.MimeType).Int("bytes", len(data)).Msg("received image")
			return models.NewOperationArtifact(op, pt.InlineData.MimeType, data)
		}
	}

	if reason := resp.finishReason(); reason != "" && reason != "STOP" {
		return nil, fmt.Errorf("%w: image generation for %s stopped. Reason: %s. This often relates to safety settings",
			provider.ErrGenerationStopped, op, reason)
	}

	if text := resp.text(); text != "" {
		return nil, fmt.Errorf("%w for the %s. The model responded with text: %q", provider.ErrNoImageReturned, op, text)
	}
	return nil, fmt.Errorf("%w for the %s. This can happen due to safety filters or if the request is too complex. Please try rephrasing your prompt to be more direct",
		provider.ErrNoImageReturned, op)
}

func (p *Provider) editImage(ctx context.Context, op models.Operation, prompt string, images ...*models.Artifact) (*models.Artifact, error) {
	parts := make([]part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, imagePart(img))
	}
	parts = append(parts, part{Text: prompt})

	log.Debug().Str("operation", op.String()).Str("model", p.imageModel).Msg("sending edit")
	resp, err := p.generateContent(ctx, p.imageModel, parts)
	if err != nil {
		return nil, err
	}
	return imageResult(resp, op)
}

func (p *Provider) Retouch(ctx context.Context, img *models.Artifact, prompt string, spot models.Hotspot) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if err := spot.Validate(); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpRetouch, retouchPrompt(prompt, spot.X, spot.Y), img)
}

func (p *Provider) Filter(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpFilter, filterPrompt(prompt), img)
}

func (p *Provider) Adjust(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpAdjust, adjustPrompt(prompt), img)
}

func (p *Provider) RemoveBackground(ctx context.Context, img *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpRemoveBackground, removeBackgroundPrompt, img)
}

func (p *Provider) Upscale(ctx context.Context, img *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpUpscale, upscalePrompt, img)
}

func (p *Provider) GenerateFromImage(ctx context.Context, img *models.Artifact, prompt string) (*models.Artifact, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	return p.editImage(ctx, models.OpGenerateFromImage, reimaginePrompt(prompt), img)
}

func (p *Provider) StyleTransfer(ctx context.Context, contentImg, styleImg *models.Artifact) (*models.Artifact, error) {
	if err := provider.ValidateImage(contentImg); err != nil {
		return nil, err
	}
	if err := provider.ValidateImage(styleImg); err != nil {
		return nil, fmt.Errorf("style image: %w", err)
	}
	return p.editImage(ctx, models.OpStyleTransfer, styleTransferPrompt, contentImg, styleImg)
}

// GenerateFromText calls the Imagen predict endpoint for a single PNG.
func (p *Provider) GenerateFromText(ctx context.Context, prompt string) (*models.Artifact, error) {
	if err := provider.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1, OutputMimeType: models.MimePNG},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Debug().Str("model", p.imagenModel).Msg("sending text-to-image")
	respBody, err := p.post(ctx, "/models/"+p.imagenModel+":predict", body)
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return nil, fmt.Errorf("%w. This could be due to safety filters or an issue with the prompt", provider.ErrNoImageReturned)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}
	return models.NewOperationArtifact(models.OpGenerateFromText, orDefault(resp.Predictions[0].MimeType, models.MimePNG), data)
}

// Generate3DModel asks the text model for a Wavefront OBJ description of img.
func (p *Provider) Generate3DModel(ctx context.Context, img *models.Artifact) (*models.Mesh, error) {
	if err := provider.ValidateImage(img); err != nil {
		return nil, err
	}

	log.Debug().Str("model", p.textModel).Msg("sending 3d model request")
	resp, err := p.generateContent(ctx, p.textModel, []part{imagePart(img), {Text: meshPrompt}})
	if err != nil {
		return nil, err
	}

	if err := resp.blocked(); err != nil {
		return nil, err
	}

	text := resp.text()
	if text != "" {
		mesh, err := models.NewMesh(fmt.Sprintf("model-%d.obj", time.Now().UnixMilli()), text)
		if err == nil {
			return mesh, nil
		}
	}

	if reason := resp.finishReason(); reason != "" && reason != "STOP" {
		return nil, fmt.Errorf("%w: text generation for 3d-model stopped. Reason: %s", provider.ErrGenerationStopped, reason)
	}
	if text != "" {
		return nil, fmt.Errorf("%w: response does not start with a vertex or comment line", models.ErrInvalidMesh)
	}
	return nil, fmt.Errorf("%w for the 3d-model. This can happen due to safety filters or if the request is too complex", provider.ErrNoTextReturned)
}
