package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process [Storage]. All records are lost when the
// process exits, so it only suits tests and single-replica hosts.
type MemoryStorage struct {
	lk      sync.Mutex
	records map[string]Record
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]Record)}
}

func (m *MemoryStorage) Read(ctx context.Context, keys []string) (map[string]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.lk.Lock()
	defer m.lk.Unlock()

	out := make(map[string]Record, len(keys))
	for _, key := range keys {
		rec, ok := m.records[key]
		if !ok {
			continue
		}
		out[key] = Record{Data: cloneBytes(rec.Data), Version: rec.Version}
	}
	return out, nil
}

// Write applies all changes atomically: either every version check passes
// and all records are stored, or nothing changes.
func (m *MemoryStorage) Write(ctx context.Context, changes map[string]Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lk.Lock()
	defer m.lk.Unlock()

	for key, rec := range changes {
		cur, exists := m.records[key]
		if !versionMatches(rec.Version, exists, cur.Version) {
			return ErrPreconditionFailed
		}
	}
	for key, rec := range changes {
		m.records[key] = Record{
			Data:    cloneBytes(rec.Data),
			Version: Version(uuid.NewString()),
		}
	}
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lk.Lock()
	defer m.lk.Unlock()

	for _, key := range keys {
		delete(m.records, key)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStorage) Len() int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return len(m.records)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
