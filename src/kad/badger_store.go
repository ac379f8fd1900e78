package kad

import (
	"sync"

	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru/v2"
	cm "github.com/safenetwork/safenode/src/common"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const recordPrefix = "record_"

// BadgerRecordStore persists records in a badger database, with an LRU cache
// of recently used records in front of it.
type BadgerRecordStore struct {
	db         *badger.DB
	cache      *lru.Cache[string, Record]
	path       string
	maxRecords int

	countLock sync.Mutex
	count     int
}

// NewBadgerRecordStore opens, or creates, the database at path.
func NewBadgerRecordStore(path string, cacheSize int, maxRecords int, logger *logrus.Entry) (*BadgerRecordStore, error) {
	opts := badger.DefaultOptions(path).WithSyncWrites(false)
	if logger != nil {
		opts = opts.WithLogger(logger)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[string, Record](cacheSize)
	if err != nil {
		handle.Close()
		return nil, err
	}

	store := &BadgerRecordStore{
		db:         handle,
		cache:      cache,
		path:       path,
		maxRecords: maxRecords,
	}

	count, err := store.dbCount()
	if err != nil {
		handle.Close()
		return nil, err
	}
	store.count = count

	return store, nil
}

// Get implements the RecordStore interface.
func (s *BadgerRecordStore) Get(key []byte) (Record, error) {
	if r, ok := s.cache.Get(string(key)); ok {
		return r, nil
	}

	r, err := s.dbGetRecord(key)
	if err != nil {
		return Record{}, mapError(err, "RecordStore", string(key))
	}

	s.cache.Add(string(key), r)
	return r, nil
}

// Put implements the RecordStore interface.
func (s *BadgerRecordStore) Put(r Record) error {
	if len(r.Value) > MaxRecordSize {
		return cm.NewStoreErr("RecordStore", cm.ValueTooLarge, string(r.Key))
	}

	s.countLock.Lock()
	defer s.countLock.Unlock()

	isNew, err := s.dbSetRecord(r, s.count >= s.maxRecords)
	if err != nil {
		return err
	}
	if isNew {
		s.count++
	}

	s.cache.Add(string(r.Key), r)
	return nil
}

// Remove implements the RecordStore interface.
func (s *BadgerRecordStore) Remove(key []byte) error {
	s.countLock.Lock()
	defer s.countLock.Unlock()

	s.cache.Remove(string(key))

	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(key)); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		removed = true
		return txn.Delete(recordKey(key))
	})
	if err != nil {
		return err
	}

	if removed {
		s.count--
	}
	return nil
}

// Len implements the RecordStore interface.
func (s *BadgerRecordStore) Len() int {
	s.countLock.Lock()
	defer s.countLock.Unlock()
	return s.count
}

// Close implements the RecordStore interface.
func (s *BadgerRecordStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// StorePath returns the directory of the database.
func (s *BadgerRecordStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func recordKey(key []byte) []byte {
	return append([]byte(recordPrefix), key...)
}

func (s *BadgerRecordStore) dbGetRecord(key []byte) (Record, error) {
	var recordBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			return err
		}
		recordBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return Record{}, err
	}

	var r Record
	if err := codec.NewDecoderBytes(recordBytes, recordHandle).Decode(&r); err != nil {
		return Record{}, err
	}

	return r, nil
}

// dbSetRecord writes r and reports whether the key is new. When full is set,
// new keys are refused.
func (s *BadgerRecordStore) dbSetRecord(r Record, full bool) (bool, error) {
	var val []byte
	if err := codec.NewEncoderBytes(&val, recordHandle).Encode(r); err != nil {
		return false, err
	}

	isNew := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(r.Key))
		switch {
		case err == badger.ErrKeyNotFound:
			if full {
				return cm.NewStoreErr("RecordStore", cm.MaxRecords, string(r.Key))
			}
			isNew = true
		case err != nil:
			return err
		}

		//insert [record_key] => [record bytes]
		return txn.Set(recordKey(r.Key), val)
	})

	return isNew, err
}

func (s *BadgerRecordStore) dbCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

var recordHandle = &codec.MsgpackHandle{}

func isDBKeyNotFound(err error) bool {
	return err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
