package session

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/manash/pixshop/pkg/models"
)

// SessionKey is the slot key the active session is persisted under.
const SessionKey = "pixshopSession"

// CurrentSnapshotVersion is written into every persisted snapshot. Snapshots
// without a version field are read as version 1.
const CurrentSnapshotVersion = 1

var ErrMalformedSnapshot = errors.New("malformed session snapshot")

// Session is a point-in-time copy of the edit history.
type Session struct {
	Entries []*models.Artifact
	Cursor  int
}

func EmptySession() Session {
	return Session{Cursor: -1}
}

func (s Session) IsEmpty() bool {
	return len(s.Entries) == 0
}

func (s Session) Current() (*models.Artifact, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Entries) {
		return nil, false
	}
	return s.Entries[s.Cursor], true
}

func (s Session) Original() (*models.Artifact, bool) {
	if len(s.Entries) == 0 {
		return nil, false
	}
	return s.Entries[0], true
}

func (s Session) Valid() bool {
	if len(s.Entries) == 0 {
		return s.Cursor == -1
	}
	return s.Cursor >= 0 && s.Cursor < len(s.Entries)
}

type snapshotEntry struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// snapshot is the persisted JSON form. Pointer fields tell a missing key
// apart from a zero value.
type snapshot struct {
	Version *int             `json:"version,omitempty"`
	Entries *[]snapshotEntry `json:"entries"`
	Cursor  *int             `json:"cursor"`
}

// Encode serializes a session to the persisted JSON text form.
func Encode(s Session) ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot encode session: cursor %d out of range for %d entries", s.Cursor, len(s.Entries))
	}

	entries := make([]snapshotEntry, 0, len(s.Entries))
	for _, a := range s.Entries {
		entries = append(entries, snapshotEntry{
			Name:     a.Name(),
			MimeType: a.MimeType(),
			Data:     a.Bytes(),
		})
	}

	version := CurrentSnapshotVersion
	cursor := s.Cursor
	return json.MarshalIndent(snapshot{
		Version: &version,
		Entries: &entries,
		Cursor:  &cursor,
	}, "", "  ")
}

// Decode parses persisted JSON. Anything that does not describe a valid
// session yields ErrMalformedSnapshot.
func Decode(data []byte) (Session, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return EmptySession(), fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	if snap.Version != nil && (*snap.Version < 1 || *snap.Version > CurrentSnapshotVersion) {
		return EmptySession(), fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, *snap.Version)
	}
	if snap.Entries == nil {
		return EmptySession(), fmt.Errorf("%w: missing entries", ErrMalformedSnapshot)
	}
	if snap.Cursor == nil {
		return EmptySession(), fmt.Errorf("%w: missing cursor", ErrMalformedSnapshot)
	}

	s := Session{
		Entries: make([]*models.Artifact, 0, len(*snap.Entries)),
		Cursor:  *snap.Cursor,
	}
	for i, e := range *snap.Entries {
		if e.MimeType == "" {
			return EmptySession(), fmt.Errorf("%w: entry %d has no mimeType", ErrMalformedSnapshot, i)
		}
		a, err := models.NewArtifact(e.Name, e.MimeType, e.Data)
		if err != nil {
			return EmptySession(), fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
		}
		s.Entries = append(s.Entries, a)
	}

	if !s.Valid() {
		return EmptySession(), fmt.Errorf("%w: cursor %d out of range for %d entries", ErrMalformedSnapshot, s.Cursor, len(s.Entries))
	}
	if len(s.Entries) == 0 {
		s.Entries = nil
	}
	return s, nil
}
