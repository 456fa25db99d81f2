package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// VersionedStore persists one JSON record per id under a base directory
// and enforces the optimistic-concurrency contract: an update is applied
// only if the caller's expected version equals the stored version at the
// moment the update runs.
//
// Updates to the same id are strictly serialized through a lazily
// created per-id lock; updates to different ids proceed concurrently.
// Lock entries are evicted once no operation holds or waits on them, so
// the lock table does not grow with the number of ever-seen ids.
type VersionedStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewVersionedStore creates the store, ensuring baseDir exists.
func NewVersionedStore(baseDir string) (*VersionedStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &StorageError{Op: "create record directory", Err: err}
	}
	return &VersionedStore{
		baseDir: baseDir,
		locks:   make(map[string]*recordLock),
	}, nil
}

func (s *VersionedStore) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// acquire blocks until this goroutine holds the per-id lock. Waiters are
// served roughly first-come-first-served by the mutex.
func (s *VersionedStore) acquire(id string) *recordLock {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &recordLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *VersionedStore) release(id string, l *recordLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
	s.mu.Unlock()
}

// Get reads the current record for id. A missing record is not an
// error: it returns (nil, nil), meaning logical version 0.
func (s *VersionedStore) Get(ctx context.Context, id string) (*models.Record, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read record", Err: err}
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &StorageError{Op: "decode record", Err: err}
	}
	return &rec, nil
}

// Update applies an optimistic-concurrency update. The version check and
// the durable write happen under the id's lock, so of two concurrent
// updates that observed the same pre-update version exactly one
// succeeds; the loser gets a ConflictError carrying the version that
// won.
func (s *VersionedStore) Update(ctx context.Context, id string, expectedVersion int64, data json.RawMessage) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.acquire(id)
	defer s.release(id, l)

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var currentVersion int64
	if current != nil {
		currentVersion = current.Version
	}
	if currentVersion != expectedVersion {
		return nil, &ConflictError{ExpectedVersion: expectedVersion, CurrentVersion: currentVersion}
	}

	rec := &models.Record{
		ID:        id,
		Version:   currentVersion + 1,
		Data:      data,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := s.writeAtomic(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// writeAtomic replaces the record file via write-temp-then-rename so a
// reader never observes a partially written record, even across a crash
// mid-write.
func (s *VersionedStore) writeAtomic(rec *models.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode record", Err: err}
	}

	tmp, err := os.CreateTemp(s.baseDir, rec.ID+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create temp record", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Op: "write record", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "flush record", Err: err}
	}
	if err := os.Rename(tmpName, s.path(rec.ID)); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "replace record", Err: err}
	}
	return nil
}
