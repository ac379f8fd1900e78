package kad

import (
	"bytes"
	"path/filepath"
	"testing"

	cm "github.com/safenetwork/safenode/src/common"
)

func testStore(t *testing.T, store RecordStore) {
	r := NewRecord([]byte("key"), []byte("value"))
	r.Publisher = randomID(t)

	if _, err := store.Get(r.Key); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("Get on an empty store should return KeyNotFound, got %v", err)
	}

	if err := store.Put(r); err != nil {
		t.Fatalf("err: %v", err)
	}

	got, err := store.Get(r.Key)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !bytes.Equal(got.Value, r.Value) || got.Publisher != r.Publisher {
		t.Fatalf("record should be %#v, not %#v", r, got)
	}

	// overwrite does not count as a new record
	r.Value = []byte("other value")
	if err := store.Put(r); err != nil {
		t.Fatalf("err: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store should hold 1 record, not %d", store.Len())
	}

	big := NewRecord([]byte("big"), make([]byte, MaxRecordSize+1))
	if err := store.Put(big); !cm.IsStore(err, cm.ValueTooLarge) {
		t.Fatalf("oversized record should return ValueTooLarge, got %v", err)
	}

	if err := store.Put(NewRecord([]byte("key2"), []byte("v"))); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := store.Put(NewRecord([]byte("key3"), []byte("v"))); !cm.IsStore(err, cm.MaxRecords) {
		t.Fatalf("full store should return MaxRecords, got %v", err)
	}

	if err := store.Remove([]byte("key2")); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := store.Get([]byte("key2")); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("removed record should be gone, got %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("store should hold 1 record, not %d", store.Len())
	}
}

func TestInmemRecordStore(t *testing.T) {
	store := NewInmemRecordStore(2)
	testStore(t, store)

	store.Close()
	if _, err := store.Get([]byte("key")); !cm.IsStore(err, cm.Closed) {
		t.Fatalf("Get after Close should return Closed, got %v", err)
	}
}

func TestBadgerRecordStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	store, err := NewBadgerRecordStore(path, 1, 2, cm.NewTestEntry(t, cm.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	testStore(t, store)

	if err := store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// reopen and check the record survived
	store, err = NewBadgerRecordStore(path, 1, 2, cm.NewTestEntry(t, cm.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer store.Close()

	if store.Len() != 1 {
		t.Fatalf("reopened store should hold 1 record, not %d", store.Len())
	}

	got, err := store.Get([]byte("key"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(got.Value) != "other value" {
		t.Fatalf("record value should be 'other value', not %q", got.Value)
	}
}
