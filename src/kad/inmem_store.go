package kad

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	cm "github.com/safenetwork/safenode/src/common"
)

// InmemRecordStore keeps at most maxRecords records in memory. It refuses new
// keys once full.
type InmemRecordStore struct {
	sync.Mutex
	records    *lru.Cache[string, Record]
	maxRecords int
	closed     bool
}

// NewInmemRecordStore ...
func NewInmemRecordStore(maxRecords int) *InmemRecordStore {
	// lru.New only fails on a non-positive size
	records, err := lru.New[string, Record](maxRecords)
	if err != nil {
		panic(err)
	}
	return &InmemRecordStore{
		records:    records,
		maxRecords: maxRecords,
	}
}

// Get implements the RecordStore interface.
func (s *InmemRecordStore) Get(key []byte) (Record, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return Record{}, cm.NewStoreErr("RecordStore", cm.Closed, string(key))
	}

	r, ok := s.records.Get(string(key))
	if !ok {
		return Record{}, cm.NewStoreErr("RecordStore", cm.KeyNotFound, string(key))
	}
	return r, nil
}

// Put implements the RecordStore interface.
func (s *InmemRecordStore) Put(r Record) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return cm.NewStoreErr("RecordStore", cm.Closed, string(r.Key))
	}

	if len(r.Value) > MaxRecordSize {
		return cm.NewStoreErr("RecordStore", cm.ValueTooLarge, string(r.Key))
	}

	if !s.records.Contains(string(r.Key)) && s.records.Len() >= s.maxRecords {
		return cm.NewStoreErr("RecordStore", cm.MaxRecords, string(r.Key))
	}

	s.records.Add(string(r.Key), r)
	return nil
}

// Remove implements the RecordStore interface.
func (s *InmemRecordStore) Remove(key []byte) error {
	s.Lock()
	defer s.Unlock()

	s.records.Remove(string(key))
	return nil
}

// Len implements the RecordStore interface.
func (s *InmemRecordStore) Len() int {
	return s.records.Len()
}

// Close implements the RecordStore interface.
func (s *InmemRecordStore) Close() error {
	s.Lock()
	defer s.Unlock()

	s.closed = true
	s.records.Purge()
	return nil
}
