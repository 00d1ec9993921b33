package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/pkg/models"
)

var (
	ErrNoSession     = errors.New("no active session")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrPersist wraps slot failures. The in-memory change it reports on
	// has already been applied.
	ErrPersist = errors.New("failed to persist session")
)

// Manager owns the linear edit history: a list of artifacts plus a cursor.
// Every mutation is persisted to the slot before the lock is released.
type Manager struct {
	mu      sync.Mutex
	slot    Slot
	key     string
	entries []*models.Artifact
	cursor  int
}

func NewManager(slot Slot) *Manager {
	return &Manager{
		slot:   slot,
		key:    SessionKey,
		cursor: -1,
	}
}

// LoadInitial restores the persisted session. An absent, unreadable or
// malformed slot yields an empty session; malformed values are removed.
func (m *Manager) LoadInitial(ctx context.Context) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	m.cursor = -1

	data, err := m.slot.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, ErrSlotEmpty) {
			log.Warn().Err(err).Str("key", m.key).Msg("could not read saved session")
		}
		return m.snapshotLocked()
	}

	s, err := Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("key", m.key).Msg("discarding saved session")
		if derr := m.slot.Delete(ctx, m.key); derr != nil {
			log.Warn().Err(derr).Str("key", m.key).Msg("could not delete malformed session")
		}
		return m.snapshotLocked()
	}

	m.entries = s.Entries
	m.cursor = s.Cursor
	log.Debug().Int("entries", len(m.entries)).Int("cursor", m.cursor).Msg("session restored")
	return m.snapshotLocked()
}

// StartNew discards the current history and begins a new one at a.
func (m *Manager) StartNew(ctx context.Context, a *models.Artifact) error {
	if a == nil {
		return models.ErrNoImageData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = []*models.Artifact{a}
	m.cursor = 0
	return m.persistLocked(ctx)
}

// Append drops every entry after the cursor, then adds a as the new current
// entry.
func (m *Manager) Append(ctx context.Context, a *models.Artifact) error {
	if a == nil {
		return models.ErrNoImageData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		m.entries = []*models.Artifact{a}
		m.cursor = 0
		return m.persistLocked(ctx)
	}

	kept := make([]*models.Artifact, m.cursor+1, m.cursor+2)
	copy(kept, m.entries[:m.cursor+1])
	m.entries = append(kept, a)
	m.cursor = len(m.entries) - 1
	return m.persistLocked(ctx)
}

func (m *Manager) Undo(ctx context.Context) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor <= 0 {
		return nil, ErrNothingToUndo
	}
	m.cursor--
	return m.entries[m.cursor], m.persistLocked(ctx)
}

func (m *Manager) Redo(ctx context.Context) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor < 0 || m.cursor >= len(m.entries)-1 {
		return nil, ErrNothingToRedo
	}
	m.cursor++
	return m.entries[m.cursor], m.persistLocked(ctx)
}

// ResetToOriginal moves the cursor to the first entry. Later entries stay
// available for redo.
func (m *Manager) ResetToOriginal(ctx context.Context) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return nil, ErrNoSession
	}
	m.cursor = 0
	return m.entries[0], m.persistLocked(ctx)
}

func (m *Manager) Current() (*models.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().Current()
}

func (m *Manager) Original() (*models.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().Original()
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor >= 0 && m.cursor < len(m.entries)-1
}

func (m *Manager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries) > 0
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Entries returns a copy of the history slice.
func (m *Manager) Entries() []*models.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().Entries
}

func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Persist writes the current state to the slot. An empty history removes
// the slot value.
func (m *Manager) Persist(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked(ctx)
}

// Clear empties the history and removes it from the slot.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	m.cursor = -1
	if err := m.slot.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (m *Manager) snapshotLocked() Session {
	if len(m.entries) == 0 {
		return EmptySession()
	}
	entries := make([]*models.Artifact, len(m.entries))
	copy(entries, m.entries)
	return Session{Entries: entries, Cursor: m.cursor}
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if len(m.entries) == 0 {
		if err := m.slot.Delete(ctx, m.key); err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return nil
	}

	data, err := Encode(Session{Entries: m.entries, Cursor: m.cursor})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := m.slot.Put(ctx, m.key, data); err != nil {
		log.Warn().Err(err).Str("key", m.key).Msg("session save failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	log.Debug().Int("entries", len(m.entries)).Int("cursor", m.cursor).Int("bytes", len(data)).Msg("session saved")
	return nil
}
