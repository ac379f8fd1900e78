// Package protocol holds the addressing primitives shared by every safenode
// component.
package protocol

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/bits"

	"github.com/safenetwork/safenode/src/common"
)

// XorNameLen is the size of an XorName in bytes.
const XorNameLen = 32

// XorName is a point in the 256 bit address space of the network. Content is
// addressed by the XorName of its hash, and peers are looked up by the XorName
// closest to the data they hold.
type XorName [XorNameLen]byte

// XorNameFromContent returns the address of content.
func XorNameFromContent(content []byte) XorName {
	return XorName(sha256.Sum256(content))
}

// RandomXorName returns a uniformly random XorName.
func RandomXorName() XorName {
	var x XorName
	if _, err := rand.Read(x[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return x
}

// XorNameFromBytes copies b into an XorName. b must be exactly XorNameLen bytes
// long.
func XorNameFromBytes(b []byte) (XorName, error) {
	var x XorName
	if len(b) != XorNameLen {
		return x, fmt.Errorf("xorname must be %d bytes, got %d", XorNameLen, len(b))
	}
	copy(x[:], b)
	return x, nil
}

// ParseXorName parses the hex form of an XorName, with or without the 0X
// prefix.
func ParseXorName(s string) (XorName, error) {
	b, err := common.DecodeFromString(s)
	if err != nil {
		return XorName{}, err
	}
	return XorNameFromBytes(b)
}

// Bytes returns a copy of the name as a slice.
func (x XorName) Bytes() []byte {
	b := make([]byte, XorNameLen)
	copy(b, x[:])
	return b
}

// String returns the hex form of the name.
func (x XorName) String() string {
	return common.EncodeToString(x[:])
}

// Xor returns the bitwise distance between x and y.
func (x XorName) Xor(y XorName) XorName {
	var d XorName
	for i := range x {
		d[i] = x[i] ^ y[i]
	}
	return d
}

// CommonPrefix returns the number of leading bits x and y share.
func (x XorName) CommonPrefix(y XorName) int {
	for i := range x {
		if d := x[i] ^ y[i]; d != 0 {
			return i*8 + bits.LeadingZeros8(d)
		}
	}
	return XorNameLen * 8
}
