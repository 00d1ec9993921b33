package models

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrInvalidDataURL = errors.New("invalid data URL")

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
	MimeGIF  = "image/gif"
)

// Artifact is one immutable image payload held in an edit history.
// The byte slice is copied on the way in and on the way out.
type Artifact struct {
	name     string
	mimeType string
	data     []byte
}

func NewArtifact(name, mimeType string, data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, ErrNoImageData
	}
	if mimeType == "" {
		mimeType = DetectMimeType(data)
	}
	return &Artifact{
		name:     name,
		mimeType: mimeType,
		data:     bytes.Clone(data),
	}, nil
}

// NewOperationArtifact names the artifact after the operation that made it,
// e.g. "filter-1718000000000.png".
func NewOperationArtifact(op Operation, mimeType string, data []byte) (*Artifact, error) {
	if mimeType == "" {
		mimeType = DetectMimeType(data)
	}
	name := fmt.Sprintf("%s-%d.%s", op, time.Now().UnixMilli(), ExtensionFor(mimeType))
	return NewArtifact(name, mimeType, data)
}

func (a *Artifact) Name() string     { return a.name }
func (a *Artifact) MimeType() string { return a.mimeType }
func (a *Artifact) Size() int        { return len(a.data) }

// Bytes returns a copy of the payload.
func (a *Artifact) Bytes() []byte {
	return bytes.Clone(a.data)
}

// Equal reports whether two artifacts carry the same name, type and bytes.
func (a *Artifact) Equal(b *Artifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.name == b.name && a.mimeType == b.mimeType && bytes.Equal(a.data, b.data)
}

func (a *Artifact) Extension() string {
	return ExtensionFor(a.mimeType)
}

func (a *Artifact) DataURL() string {
	return "data:" + a.mimeType + ";base64," + base64.StdEncoding.EncodeToString(a.data)
}

// ArtifactFromDataURL parses "data:<mime>;base64,<payload>".
func ArtifactFromDataURL(name, dataURL string) (*Artifact, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	if !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: unsupported header %q", ErrInvalidDataURL, header)
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mimeType == "" {
		return nil, fmt.Errorf("%w: could not parse MIME type", ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return NewArtifact(name, mimeType, data)
}

func DetectMimeType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}

func ExtensionFor(mimeType string) string {
	switch mimeType {
	case MimeJPEG:
		return "jpeg"
	case MimeWebP:
		return "webp"
	case MimeGIF:
		return "gif"
	default:
		return "png"
	}
}
