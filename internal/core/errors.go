// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the buffer, codec and segmentation layers.
// Callers match them with errors.Is; every one of them means "drop the packet".
var (
	// Buffer errors
	ErrOutOfMemory = errors.New("ovs: out of memory")
	ErrTruncated   = errors.New("ovs: packet truncated")

	// Codec errors
	ErrUnsupportedProto = errors.New("ovs: unsupported protocol")
	ErrInvalidHeader    = errors.New("ovs: invalid header")

	// Segmentation errors
	ErrSegmentationFailed = errors.New("ovs: segmentation failed")

	// Action errors
	ErrTTLExpired = errors.New("ovs: nsh ttl expired")

	// Vport errors
	ErrPortNotFound      = errors.New("ovs: vport not found")
	ErrPortAlreadyExists = errors.New("ovs: vport already exists")

	// Configuration errors
	ErrConfigInvalid = errors.New("ovs: invalid configuration")
)
