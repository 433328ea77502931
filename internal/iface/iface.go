// Package iface sends and receives Ethernet frames on a network interface.
package iface

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// Config describes a capture on one interface.
type Config struct {
	Device       string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
	NSHOnly      bool // accept only frames with EtherType 0x894F
}

// DefaultConfig returns the capture settings used when a flag is left unset.
func DefaultConfig(device string) Config {
	return Config{
		Device:       device,
		SnapLen:      65535,
		BufferSizeMB: 8,
		TimeoutMs:    100,
	}
}

type timeoutError struct {
	device string
}

func (e timeoutError) Error() string {
	return "iface: no frame on " + e.device + " within poll timeout"
}

func (timeoutError) Timeout() bool { return true }

// nshFilter accepts untagged frames carrying NSH and rejects the rest.
func nshFilter(snapLen int) ([]bpf.RawInstruction, error) {
	prog, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x894f, SkipFalse: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble nsh filter: %w", err)
	}
	return prog, nil
}

// recomputeSize recalculates the frame size, block size, and number of blocks
// to meet the AF_PACKET PACKET_MMAP alignment rules within the target memory
// budget:
//  1. frameSize is a multiple of TPACKET_ALIGNMENT (16 bytes)
//  2. blockSize is a multiple of pageSize
//  3. blockSize is a multiple of frameSize
//  4. blockSize * numBlocks approximates ringBufferSizeMB
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN, approximately

	// Validate input parameters
	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	// Step 1: Calculate frame size (header + packet data), aligned to TPACKET_ALIGNMENT
	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	// Step 2: Calculate block size as a multiple of both pageSize and frameSize
	const maxBlockSize = 4 * 1024 * 1024
	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// No common multiple fits; pad frames to whole pages so any
		// frame count gives a page-aligned block.
		frameSize = ((frameSize + pageSize - 1) / pageSize) * pageSize
		framesPerBlock := maxBlockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
	}

	// Step 3: Calculate number of blocks
	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

// gcd computes the greatest common divisor of two integers
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm computes the least common multiple of two integers
func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
