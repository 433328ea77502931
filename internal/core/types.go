// Package core defines core types with zero external dependencies.
package core

import "errors"

// Reason labels used when a packet is dropped. They are the values of the
// "reason" label on the drop counters.
const (
	ReasonOutOfMemory        = "out_of_memory"
	ReasonTruncated          = "truncated"
	ReasonUnsupportedProto   = "unsupported_protocol"
	ReasonInvalidHeader      = "invalid_header"
	ReasonSegmentationFailed = "segmentation_failed"
	ReasonTTLExpired         = "ttl_expired"
	ReasonUnknown            = "unknown"
)

var reasons = []struct {
	err    error
	reason string
}{
	// Segmentation wraps the cause, so it is matched first.
	{ErrSegmentationFailed, ReasonSegmentationFailed},
	{ErrOutOfMemory, ReasonOutOfMemory},
	{ErrTruncated, ReasonTruncated},
	{ErrUnsupportedProto, ReasonUnsupportedProto},
	{ErrInvalidHeader, ReasonInvalidHeader},
	{ErrTTLExpired, ReasonTTLExpired},
}

// DropReason maps an error to its drop reason label.
func DropReason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}
