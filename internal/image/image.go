package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manash/pixshop/internal/security"
	"github.com/manash/pixshop/pkg/models"
)

// MaxImageBytes caps downloads and file reads.
const MaxImageBytes = 50 << 20

var (
	ErrTooLarge    = errors.New("image exceeds size limit")
	ErrNotAnImage  = errors.New("file is not a supported image")
	ErrNothingToDo = errors.New("no image data available")
)

type Saver struct {
	httpClient *http.Client
	strictURLs bool
}

func NewSaver() *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithStrictURLs limits downloads to the allow-listed image hosts.
func (s *Saver) WithStrictURLs(strict bool) *Saver {
	s.strictURLs = strict
	return s
}

// Save writes the artifact's bytes to path, creating parent directories.
func (s *Saver) Save(a *models.Artifact, path string) error {
	if a == nil || a.Size() == 0 {
		return ErrNothingToDo
	}
	return s.write(path, a.Bytes())
}

func (s *Saver) SaveMesh(m *models.Mesh, path string) error {
	if m == nil || m.Content == "" {
		return ErrNothingToDo
	}
	return s.write(path, []byte(m.Content+"\n"))
}

// SaveAll writes every artifact into dir as NN-name and returns the paths.
func (s *Saver) SaveAll(entries []*models.Artifact, dir string) ([]string, error) {
	paths := make([]string, 0, len(entries))
	for i, a := range entries {
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s", i, GenerateFilename(a)))
		if err := s.Save(a, path); err != nil {
			return paths, fmt.Errorf("failed to save image %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *Saver) write(path string, data []byte) error {
	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Load reads an image from a local path, an https URL or a data URL.
func (s *Saver) Load(ctx context.Context, source string) (*models.Artifact, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		return loadDataURL(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if err := security.ValidateImageURL(source, s.strictURLs); err != nil {
			return nil, err
		}
		data, err := s.downloadFromURL(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		return newImageArtifact(nameFromURL(source), data)
	default:
		data, err := readFile(source)
		if err != nil {
			return nil, err
		}
		return newImageArtifact(filepath.Base(source), data)
	}
}

func newImageArtifact(name string, data []byte) (*models.Artifact, error) {
	mime := models.DetectMimeType(data)
	if !models.IsImageMimeType(mime) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotAnImage, name, mime)
	}
	return models.NewArtifact(name, mime, data)
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func nameFromURL(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := security.SanitizeFilename(u[strings.LastIndex(u, "/")+1:])
	if name == "file" {
		return "download"
	}
	return name
}

// loadDataURL applies the same size cap and content sniffing as file and
// URL loads. The declared MIME type is not trusted.
func loadDataURL(dataURL string) (*models.Artifact, error) {
	_, payload, _ := strings.Cut(dataURL, ",")
	if len(payload) > base64.StdEncoding.EncodedLen(MaxImageBytes) {
		return nil, ErrTooLarge
	}
	a, err := models.ArtifactFromDataURL("upload", dataURL)
	if err != nil {
		return nil, err
	}
	data := a.Bytes()
	return newImageArtifact("upload."+models.ExtensionFor(models.DetectMimeType(data)), data)
}

// GenerateFilename returns a safe file name for the artifact, adding the
// extension its MIME type implies when missing.
func GenerateFilename(a *models.Artifact) string {
	name := security.SanitizeFilename(a.Name())
	if filepath.Ext(name) == "" {
		name += "." + a.Extension()
	}
	return name
}

// GenerateFilenameWithTime names an unsaved export, e.g. pixshop-20240309-140507.png.
func GenerateFilenameWithTime(a *models.Artifact, t time.Time) string {
	return fmt.Sprintf("pixshop-%s.%s", t.Format("20060102-150405"), a.Extension())
}
