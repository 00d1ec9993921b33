package cost

import "github.com/manash/pixshop/pkg/models"

// Gemini API pricing (USD). Image models are billed per output image, text
// models per million tokens.
// Source: https://ai.google.dev/gemini-api/docs/pricing

var imagePricing = map[string]float64{
	models.DefaultImageModel:        0.039,
	"gemini-2.5-flash-image":        0.039,
	models.DefaultImagenModel:       0.040,
	"imagen-4.0-fast-generate-001":  0.020,
	"imagen-4.0-ultra-generate-001": 0.060,
	"imagen-3.0-generate-002":       0.030,
}

type TokenPrice struct {
	InputPer1M  float64
	OutputPer1M float64
}

var textPricing = map[string]TokenPrice{
	models.DefaultTextModel: {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-2.5-pro":        {InputPer1M: 1.25, OutputPer1M: 10.00},
	"gemini-2.5-flash-lite": {InputPer1M: 0.10, OutputPer1M: 0.40},
}

func GetImagePrice(model string) (float64, bool) {
	price, ok := imagePricing[model]
	return price, ok
}

func GetTextPrice(model string) (TokenPrice, bool) {
	price, ok := textPricing[model]
	return price, ok
}
