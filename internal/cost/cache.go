package cost

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/manash/pixshop/internal/session"
)

// LocalPricing holds user-set per-image prices that override the built-in
// table, keyed by model name.
type LocalPricing struct {
	UpdatedAt time.Time          `json:"updated_at"`
	Source    string             `json:"source"`
	Image     map[string]float64 `json:"image"`
}

// PricingCachePath returns ~/.pixshop/pricing.json.
func PricingCachePath() (string, error) {
	dir, err := session.DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pricing.json"), nil
}

func SavePricing(pricing *LocalPricing) error {
	path, err := PricingCachePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(pricing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pricing cache: %w", err)
	}
	return nil
}

// LoadPricing returns nil, nil when no overrides were ever saved.
func LoadPricing() (*LocalPricing, error) {
	path, err := PricingCachePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pricing cache: %w", err)
	}

	var pricing LocalPricing
	if err := json.Unmarshal(data, &pricing); err != nil {
		return nil, fmt.Errorf("failed to parse pricing cache: %w", err)
	}
	return &pricing, nil
}

func DeletePricing() error {
	path, err := PricingCachePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete pricing cache: %w", err)
	}
	return nil
}

// SetPrice records a manual per-image price for model.
func SetPrice(model string, price float64) error {
	if price < 0 {
		return fmt.Errorf("price for %s cannot be negative", model)
	}

	pricing, err := LoadPricing()
	if err != nil {
		return err
	}
	if pricing == nil {
		pricing = &LocalPricing{}
	}
	if pricing.Image == nil {
		pricing.Image = make(map[string]float64)
	}

	pricing.Image[model] = price
	pricing.UpdatedAt = time.Now()
	pricing.Source = "manual"

	return SavePricing(pricing)
}

// GetCachedPrice looks up a manual price for model.
func GetCachedPrice(model string) (float64, bool) {
	pricing, err := LoadPricing()
	if err != nil || pricing == nil {
		return 0, false
	}
	price, ok := pricing.Image[model]
	return price, ok
}
