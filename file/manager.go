package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/limits"
)

// ErrTransferActive indicates a second transfer was registered under a key
// that already has an active one.
var ErrTransferActive = errors.New("an active transfer already exists for this key")

// ErrTransferNotFound indicates no transfer is registered under the key.
var ErrTransferNotFound = errors.New("transfer not found")

// transferKey uniquely identifies a transfer in the registry.
type transferKey struct {
	direction Direction
	sid       string
}

// Manager is the registry of transfer records, keyed by (direction,
// session id). It enforces the invariant that at most one active record
// exists per key and routes byte-progress callbacks into the matching
// record.
type Manager struct {
	mu        sync.RWMutex
	transfers map[transferKey]*Transfer
}

// NewManager creates an empty transfer registry.
func NewManager() *Manager {
	return &Manager{
		transfers: make(map[transferKey]*Transfer),
	}
}

// NewSend creates and registers an outgoing transfer for the file at path.
// The file is stat'ed for size and modification date; empty files are
// rejected. A fresh session id is generated for the record.
func (m *Manager) NewSend(path, desc string) (*Transfer, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, ErrEmptyFile
	}

	name := filepath.Base(path)
	if err := limits.ValidateFileName(name); err != nil {
		return nil, err
	}
	if err := limits.ValidateDescription(desc); err != nil {
		return nil, err
	}

	t := NewTransfer(uuid.NewString(), name, path, uint64(fi.Size()), DirectionSend)
	t.Desc = desc
	t.Date = fi.ModTime().UTC().Format(time.RFC3339)

	if err := m.Add(t); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSend",
		"sid":      t.SID,
		"name":     name,
		"size":     t.Size,
	}).Info("Outgoing file transfer registered")

	return t, nil
}

// NewReceive creates and registers an incoming transfer for an approved
// file offer. destPath is where the received bytes will be written; hash
// and algo carry the sender's expected digest when one was offered.
func (m *Manager) NewReceive(sid, name, destPath string, size uint64, digest []byte, algo Algorithm) (*Transfer, error) {
	if err := limits.ValidateFileName(name); err != nil {
		return nil, err
	}

	t := NewTransfer(sid, name, destPath, size, DirectionReceive)
	if len(digest) > 0 {
		t.SetHash(digest, algo)
	}

	if err := m.Add(t); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewReceive",
		"sid":      sid,
		"name":     name,
		"size":     size,
		"hashed":   len(digest) > 0,
	}).Info("Incoming file transfer registered")

	return t, nil
}

// Add registers a transfer. A finished record under the same key is
// replaced; an active one is an invariant violation and is rejected.
func (m *Manager) Add(t *Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := transferKey{direction: t.Direction, sid: t.SID}
	if existing, ok := m.transfers[key]; ok && existing.IsActive() {
		return fmt.Errorf("%w: %s/%s", ErrTransferActive, t.Direction, t.SID)
	}
	m.transfers[key] = t
	return nil
}

// Get retrieves a registered transfer.
func (m *Manager) Get(direction Direction, sid string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transfers[transferKey{direction: direction, sid: sid}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrTransferNotFound, direction, sid)
	}
	return t, nil
}

// Remove discards a transfer from the registry. Removing an unknown key is
// a no-op; completion, cancellation and cleanup may race benignly.
func (m *Manager) Remove(direction Direction, sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transfers, transferKey{direction: direction, sid: sid})
}

// Count returns the number of registered transfers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transfers)
}

// OnProgress routes a byte-progress callback from the bytestream layer
// into the matching record. Unknown transfers are dropped with a warning;
// stale callbacks legitimately race with cleanup.
func (m *Manager) OnProgress(direction Direction, sid string, transferred uint64, now time.Time) {
	t, err := m.Get(direction, sid)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "OnProgress",
			"direction": direction.String(),
			"sid":       sid,
		}).Warn("Dropping progress update for unknown transfer")
		return
	}
	t.UpdateProgress(transferred, now)
}
