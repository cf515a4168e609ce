package memory

import (
	"context"
	"sync"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// RecordStore keeps normalized process records keyed by ProcessID.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]seace.ProcessRecord
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]seace.ProcessRecord)}
}

// Upsert inserts the record or replaces an existing one with the same
// ProcessID. Last writer wins.
func (s *RecordStore) Upsert(_ context.Context, record seace.ProcessRecord) (seace.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.records[record.ProcessID]
	s.records[record.ProcessID] = record
	return seace.UpsertResult{Created: !exists}, nil
}

// Refresh replaces the record only if one is already stored.
func (s *RecordStore) Refresh(_ context.Context, record seace.ProcessRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ProcessID]; !exists {
		return false, nil
	}
	s.records[record.ProcessID] = record
	return true, nil
}

// Get fetches a record by ProcessID. Exposed for tests and debugging.
func (s *RecordStore) Get(processID string) (seace.ProcessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[processID]
	return record, ok
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
