package buffer

import (
	"math/bits"

	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// ChecksumMode mirrors how much of the packet checksum work is already done.
type ChecksumMode uint8

const (
	// ChecksumNone means nothing is known; the receiver verifies in software.
	ChecksumNone ChecksumMode = iota
	// ChecksumUnnecessary means all checksums were verified or freshly computed.
	ChecksumUnnecessary
	// ChecksumComplete means Value holds the one's complement sum of the bytes
	// from the data front to the tail. Push and pull keep it current.
	ChecksumComplete
	// ChecksumPartial means the transport checksum still has to be finished.
	ChecksumPartial
)

func (m ChecksumMode) String() string {
	switch m {
	case ChecksumNone:
		return "none"
	case ChecksumUnnecessary:
		return "unnecessary"
	case ChecksumComplete:
		return "complete"
	case ChecksumPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Checksum is the checksum state carried by a Buffer.
type Checksum struct {
	Mode  ChecksumMode
	Value uint16
}

// Sum returns the one's complement sum of b, not complemented.
func Sum(b []byte) uint16 {
	return checksum.Checksum(b, 0)
}

// addFront returns the sum of front||rest given sum == Sum(rest).
// An odd-length front shifts rest by one byte, which swaps the byte order of
// its contribution.
func addFront(sum uint16, front []byte) uint16 {
	if len(front)%2 == 1 {
		sum = bits.ReverseBytes16(sum)
	}
	return checksum.Combine(Sum(front), sum)
}

// removeFront returns Sum(rest) given sum == Sum(front||rest). Ones-complement
// subtraction yields 0xffff for a zero remainder, while Sum of all-zero bytes
// is 0x0000, so that case is checked against rest itself.
func removeFront(sum uint16, front, rest []byte) uint16 {
	r := checksum.Combine(sum, ^Sum(front))
	if len(front)%2 == 1 {
		r = bits.ReverseBytes16(r)
	}
	if r == 0xffff && Sum(rest) == 0 {
		return 0
	}
	return r
}
