package kad

// RecordStore holds the records a peer is responsible for.
//
// Get returns a common.StoreErr of kind KeyNotFound when no record is stored
// under key.
type RecordStore interface {
	Get(key []byte) (Record, error)
	Put(r Record) error
	Remove(key []byte) error
	Len() int
	Close() error
}
