package models

import (
	"bufio"
	"errors"
	"strings"
)

var ErrInvalidMesh = errors.New("response is not a Wavefront OBJ mesh")

// Mesh is the raw text of a Wavefront OBJ file returned by image-to-3D.
type Mesh struct {
	Name    string
	Content string
}

func NewMesh(name, content string) (*Mesh, error) {
	m := &Mesh{Name: name, Content: strings.TrimSpace(content)}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate accepts content that starts with a vertex line or a comment.
func (m *Mesh) Validate() error {
	if strings.HasPrefix(m.Content, "v ") || strings.HasPrefix(m.Content, "#") {
		return nil
	}
	return ErrInvalidMesh
}

func (m *Mesh) VertexCount() int {
	return m.countPrefix("v ")
}

func (m *Mesh) FaceCount() int {
	return m.countPrefix("f ")
}

func (m *Mesh) countPrefix(prefix string) int {
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(m.Content))
	for scanner.Scan() {
		if strings.HasPrefix(strings.TrimSpace(scanner.Text()), prefix) {
			n++
		}
	}
	return n
}
