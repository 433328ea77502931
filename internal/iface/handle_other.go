//go:build !linux

package iface

import (
	"errors"

	"github.com/google/gopacket"
)

// ErrUnsupported is returned by Open on platforms without AF_PACKET.
var ErrUnsupported = errors.New("iface: live interfaces require linux")

// Handle is unavailable on this platform.
type Handle struct{}

// Open always fails on this platform.
func Open(Config) (*Handle, error) {
	return nil, ErrUnsupported
}

func (h *Handle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, ErrUnsupported
}

func (h *Handle) WritePacket(gopacket.CaptureInfo, []byte) error {
	return ErrUnsupported
}

func (h *Handle) Close() error {
	return nil
}
