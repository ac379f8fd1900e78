package kad

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/bits"

	"github.com/safenetwork/safenode/src/peers"
)

// KeyLen is the size of a Key in bytes.
const KeyLen = sha256.Size

// Key is a point in the Kademlia key space. Peers and records are placed in
// the key space by hashing their preimage.
type Key [KeyLen]byte

// KeyFromBytes hashes preimage into the key space.
func KeyFromBytes(preimage []byte) Key {
	return Key(sha256.Sum256(preimage))
}

// KeyFromPeer returns the position of a peer in the key space.
func KeyFromPeer(id peers.ID) Key {
	return KeyFromBytes(id.Bytes())
}

// Distance returns the XOR distance between k and o.
func (k Key) Distance(o Key) Key {
	var d Key
	for i := 0; i < KeyLen; i++ {
		d[i] = k[i] ^ o[i]
	}
	return d
}

// CommonPrefixLen returns the number of leading bits k and o share.
func (k Key) CommonPrefixLen(o Key) int {
	for i := 0; i < KeyLen; i++ {
		if d := k[i] ^ o[i]; d != 0 {
			return i*8 + bits.LeadingZeros8(d)
		}
	}
	return KeyLen * 8
}

// Less compares two distances.
func (k Key) Less(o Key) bool {
	return bytes.Compare(k[:], o[:]) < 0
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}
