package cost

import (
	"github.com/manash/pixshop/pkg/models"
)

const (
	CurrencyUSD = "USD"

	// An input image is billed as a fixed token count by Gemini.
	imageInputTokens = 1290
	charsPerToken    = 4
)

// PriceLookup returns a price overriding the built-in table, if any.
type PriceLookup func(model string) (float64, bool)

type Calculator struct {
	override PriceLookup
}

func NewCalculator() *Calculator {
	return &Calculator{override: GetCachedPrice}
}

// WithOverride replaces the cached-price lookup; nil disables overrides.
func (c *Calculator) WithOverride(lookup PriceLookup) *Calculator {
	c.override = lookup
	return c
}

// Calculate prices count images from an image or Imagen model.
func (c *Calculator) Calculate(provider models.ProviderType, model string, count int) *models.CostInfo {
	var perImage float64

	switch provider {
	case models.ProviderGemini:
		perImage = c.imagePrice(model)
	default:
		perImage = 0
	}

	return &models.CostInfo{
		PerImage: perImage,
		Total:    perImage * float64(count),
		Currency: CurrencyUSD,
	}
}

func (c *Calculator) imagePrice(model string) float64 {
	if c.override != nil {
		if price, ok := c.override(model); ok {
			return price
		}
	}
	if price, ok := GetImagePrice(model); ok {
		return price
	}
	// Unknown image models are priced like the default preview model.
	price, _ := GetImagePrice(models.DefaultImageModel)
	return price
}

// CalculateText prices a text-model call from its token usage.
func (c *Calculator) CalculateText(model string, inputTokens, outputTokens int) *models.CostInfo {
	price, ok := GetTextPrice(model)
	if !ok {
		price, _ = GetTextPrice(models.DefaultTextModel)
	}

	total := float64(inputTokens)/1_000_000*price.InputPer1M +
		float64(outputTokens)/1_000_000*price.OutputPer1M

	return &models.CostInfo{
		PerImage: total,
		Total:    total,
		Currency: CurrencyUSD,
	}
}

// CalculateMesh estimates a 3D model call: one image in, an OBJ text out.
func (c *Calculator) CalculateMesh(model string, mesh *models.Mesh) *models.CostInfo {
	out := 0
	if mesh != nil {
		out = len(mesh.Content) / charsPerToken
	}
	return c.CalculateText(model, imageInputTokens, out)
}
