package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/manash/pixshop/internal/config"
)

// DefaultEnvVars are consulted in order when no key is stored.
var DefaultEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

var ErrKeyNotFound = errors.New("no key stored")

// Store handles API key storage and retrieval
type Store struct {
	configDir string
}

// KeyEntry represents a stored API key
type KeyEntry struct {
	Key string `json:"key"`
}

// Keys represents the keys.json structure
type Keys map[string]KeyEntry

// NewStore creates a key store in the pixshop config directory.
func NewStore() (*Store, error) {
	configDir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: configDir}, nil
}

// NewStoreAt creates a key store rooted at dir.
func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

// Path returns the path to the keys.json file
func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// Owner read/write only.
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

// Set stores a key for the given provider
func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key for %s is empty", provider)
	}

	keys, err := s.load()
	if err != nil {
		return err
	}

	keys[provider] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get retrieves a key for the given provider. A missing key yields "" and
// no error.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	return keys[provider].Key, nil
}

// Delete removes a key for the given provider
func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := keys[provider]; !ok {
		return fmt.Errorf("%w for %s", ErrKeyNotFound, provider)
	}

	delete(keys, provider)
	return s.save(keys)
}

// List returns all stored provider names, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(keys))
	for provider := range keys {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers, nil
}

func (s *Store) Exists(provider string) (bool, error) {
	keys, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := keys[provider]
	return ok, nil
}

// MaskKey returns a masked version of the key for display
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolver finds the API key to use. Lookup order:
//  1. explicit key (the --api-key flag)
//  2. stored key in keys.json
//  3. the first non-empty environment variable in EnvVars
type Resolver struct {
	Store   *Store
	EnvVars []string
	GetEnv  func(string) string
}

// Resolve returns the key and a human description of where it came from.
func (r *Resolver) Resolve(explicitKey, provider string) (string, string, error) {
	if explicitKey != "" {
		return explicitKey, "command-line flag", nil
	}

	if r.Store != nil {
		if stored, err := r.Store.Get(provider); err == nil && stored != "" {
			return stored, fmt.Sprintf("stored key (%s)", r.Store.Path()), nil
		}
	}

	getEnv := r.GetEnv
	if getEnv == nil {
		getEnv = os.Getenv
	}
	envVars := r.EnvVars
	if len(envVars) == 0 {
		envVars = DefaultEnvVars
	}
	for _, name := range envVars {
		if v := getEnv(name); v != "" {
			return v, fmt.Sprintf("environment variable (%s)", name), nil
		}
	}

	return "", "", fmt.Errorf("API key required: run 'pixshop keys set' or set %s", strings.Join(envVars, " or "))
}
