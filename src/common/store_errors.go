package common

import "fmt"

// StoreErrType enumerates the failure kinds of a record store.
type StoreErrType uint32

const (
	// KeyNotFound means no record is stored under the key.
	KeyNotFound StoreErrType = iota
	// ValueTooLarge means the record exceeds the maximum record size.
	ValueTooLarge
	// MaxRecords means the store is full.
	MaxRecords
	// Closed means the store was used after Close.
	Closed
)

// StoreErr is returned by record stores.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case ValueTooLarge:
		m = "Value Too Large"
	case MaxRecords:
		m = "Max Records"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
