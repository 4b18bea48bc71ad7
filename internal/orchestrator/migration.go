package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/apto-as/trinitas-core/internal/session"
)

// HandoffStore is spec §4.9's shared handoff store: a bounded-TTL,
// file-backed mailbox holding one file per key "migration:<session_id>:<target>",
// named migration_<session_id>_<target>.json (see migrationKey),
// grounded on the teacher's store.FileLock (gofrs/flock) for exclusive
// access to the store directory and store.worker's use of
// natefinch/atomic for crash-safe writes.
type HandoffStore struct {
	dir      string
	lockPath string
}

func NewHandoffStore(dir string) (*HandoffStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &HandoffStore{dir: dir, lockPath: filepath.Join(dir, ".handoff.lock")}, nil
}

type handoffEntry struct {
	Snapshot  session.Snapshot
	ExpiresAt time.Time
}

func migrationKey(sessionID, target string) string {
	return fmt.Sprintf("migration_%s_%s.json", sessionID, target)
}

// Put serialises snap to the file migration_<sessionID>_<target>.json with the given
// TTL (spec §4.9 step 3, default 300s).
func (h *HandoffStore) Put(sessionID, target string, snap session.Snapshot, ttl time.Duration) error {
	lock := flock.New(h.lockPath)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	entry := handoffEntry{Snapshot: snap, ExpiresAt: time.Now().Add(ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := filepath.Join(h.dir, migrationKey(sessionID, target))
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Get polls for a handoff entry, returning (snapshot, true, nil) once
// present and unexpired; (zero, false, nil) if absent or expired. Callers
// (the target orchestrator's restore path) poll this until it returns
// true or their own deadline elapses.
func (h *HandoffStore) Get(sessionID, target string) (session.Snapshot, bool, error) {
	path := filepath.Join(h.dir, migrationKey(sessionID, target))

	lock := flock.New(h.lockPath)
	if err := lock.Lock(); err != nil {
		return session.Snapshot{}, false, err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return session.Snapshot{}, false, nil
		}
		return session.Snapshot{}, false, err
	}

	var entry handoffEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return session.Snapshot{}, false, err
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return session.Snapshot{}, false, nil
	}

	_ = os.Remove(path)
	return entry.Snapshot, true, nil
}
