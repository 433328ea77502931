package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDropReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"out of memory", fmt.Errorf("grow front by 64: %w", ErrOutOfMemory), ReasonOutOfMemory},
		{"truncated", ErrTruncated, ReasonTruncated},
		{"unsupported", fmt.Errorf("nsh: next protocol 9: %w", ErrUnsupportedProto), ReasonUnsupportedProto},
		{"invalid header", ErrInvalidHeader, ReasonInvalidHeader},
		{"ttl", ErrTTLExpired, ReasonTTLExpired},
		{"segmentation wraps cause", fmt.Errorf("nsh: %w: %w", ErrSegmentationFailed, ErrOutOfMemory), ReasonSegmentationFailed},
		{"unknown", errors.New("boom"), ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DropReason(tt.err); got != tt.want {
				t.Errorf("DropReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrOutOfMemory, ErrTruncated, ErrUnsupportedProto, ErrInvalidHeader,
		ErrSegmentationFailed, ErrTTLExpired, ErrPortNotFound, ErrPortAlreadyExists,
		ErrConfigInvalid,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
