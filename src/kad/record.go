package kad

import (
	"fmt"

	"github.com/safenetwork/safenode/src/peers"
)

// MaxRecordSize is the largest value a record may carry.
const MaxRecordSize = 64 * 1024

// Record is a key/value pair stored in the DHT. The Publisher is the peer that
// first put the record.
type Record struct {
	Key       []byte
	Value     []byte
	Publisher peers.ID
}

// NewRecord ...
func NewRecord(key, value []byte) Record {
	return Record{
		Key:   key,
		Value: value,
	}
}

// Validate checks the record is storable.
func (r Record) Validate() error {
	if len(r.Key) == 0 {
		return fmt.Errorf("record has an empty key")
	}
	if len(r.Value) > MaxRecordSize {
		return fmt.Errorf("record value of %d bytes exceeds %d", len(r.Value), MaxRecordSize)
	}
	return nil
}

type quorumKind uint8

const (
	quorumOne quorumKind = iota
	quorumMajority
	quorumAll
	quorumN
)

// Quorum is the number of replica acknowledgements a store operation needs
// to succeed.
type Quorum struct {
	kind quorumKind
	n    int
}

var (
	// QuorumOne succeeds on the first acknowledgement.
	QuorumOne = Quorum{kind: quorumOne}
	// QuorumMajority needs more than half of the replicas.
	QuorumMajority = Quorum{kind: quorumMajority}
	// QuorumAll needs every replica.
	QuorumAll = Quorum{kind: quorumAll}
)

// QuorumN needs n acknowledgements, capped by the number of replicas.
func QuorumN(n int) Quorum {
	return Quorum{kind: quorumN, n: n}
}

// Eval returns the number of acknowledgements required out of total
// replicas.
func (q Quorum) Eval(total int) int {
	switch q.kind {
	case quorumOne:
		return min(1, total)
	case quorumMajority:
		return total/2 + 1
	case quorumN:
		return min(q.n, total)
	default:
		return total
	}
}

func (q Quorum) String() string {
	switch q.kind {
	case quorumOne:
		return "One"
	case quorumMajority:
		return "Majority"
	case quorumN:
		return fmt.Sprintf("N(%d)", q.n)
	default:
		return "All"
	}
}
