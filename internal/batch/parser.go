package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/manash/pixshop/pkg/models"
)

// Item is one independent edit: an operation applied to an input image.
type Item struct {
	Index     int
	Operation models.Operation
	Prompt    string
	Image     string
	Style     string
	Hotspot   *models.Hotspot
}

type jsonItem struct {
	Operation string `json:"operation"`
	Prompt    string `json:"prompt,omitempty"`
	Image     string `json:"image,omitempty"`
	Style     string `json:"style,omitempty"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
}

func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

// ParseText reads one item per line:
//
//	operation | prompt | image [| extra]
//
// extra is "x,y" for retouch and the style image for style. Blank lines and
// lines starting with # are skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "|")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		for len(fields) < 4 {
			fields = append(fields, "")
		}
		if len(fields) > 4 {
			return nil, fmt.Errorf("line %d: too many fields", lineNo)
		}

		item := Item{Index: len(items) + 1, Prompt: fields[1], Image: fields[2]}
		op, err := parseOperation(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		item.Operation = op

		switch op {
		case models.OpRetouch:
			if fields[3] != "" {
				spot, err := parseHotspot(fields[3])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				item.Hotspot = &spot
			}
		case models.OpStyleTransfer:
			item.Style = fields[3]
		}

		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no items found in file")
	}

	return items, nil
}

func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jsonItems []jsonItem
	if err := json.Unmarshal(data, &jsonItems); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if len(jsonItems) == 0 {
		return nil, fmt.Errorf("no items found in file")
	}

	items := make([]Item, len(jsonItems))
	for i, ji := range jsonItems {
		op, err := parseOperation(ji.Operation)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items[i] = Item{
			Index:     i + 1,
			Operation: op,
			Prompt:    strings.TrimSpace(ji.Prompt),
			Image:     ji.Image,
			Style:     ji.Style,
		}
		if ji.X != nil && ji.Y != nil {
			items[i].Hotspot = &models.Hotspot{X: *ji.X, Y: *ji.Y}
		}
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	return items, nil
}

// Validate checks the item is complete enough to send.
func (it Item) Validate() error {
	if it.Operation.NeedsPrompt() && it.Prompt == "" {
		return models.ErrEmptyPrompt
	}
	if it.Operation != models.OpGenerateFromText && it.Image == "" {
		return fmt.Errorf("%s needs an input image", it.Operation)
	}
	if it.Operation == models.OpRetouch {
		if it.Hotspot == nil {
			return models.ErrMissingHotspot
		}
		if err := it.Hotspot.Validate(); err != nil {
			return err
		}
	}
	if it.Operation == models.OpStyleTransfer && it.Style == "" {
		return fmt.Errorf("style needs a style image")
	}
	return nil
}

func parseOperation(s string) (models.Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "3d" || s == string(models.OpModel3D) {
		return models.OpModel3D, nil
	}
	return models.ParseOperation(s)
}

func parseHotspot(s string) (models.Hotspot, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return models.Hotspot{}, fmt.Errorf("%w: want x,y, got %q", models.ErrInvalidHotspot, s)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return models.Hotspot{}, fmt.Errorf("%w: want x,y, got %q", models.ErrInvalidHotspot, s)
	}
	return models.Hotspot{X: x, Y: y}, nil
}
