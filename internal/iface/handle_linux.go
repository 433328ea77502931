//go:build linux

package iface

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"

	"github.com/mongiaK/openvswitch/internal/log"
)

// Handle is an AF_PACKET socket bound to one interface.
type Handle struct {
	device string
	tp     *afpacket.TPacket
}

// Open binds a TPACKET_V3 ring to cfg.Device.
func Open(cfg Config) (*Handle, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("device is required")
	}
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}

	if cfg.NSHOnly {
		prog, err := nshFilter(cfg.SnapLen)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to attach filter on %s: %w", cfg.Device, err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"device":     cfg.Device,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
	}).Info("interface opened")
	return &Handle{device: cfg.Device, tp: tp}, nil
}

// ReadPacket returns the next frame received on the interface. When none
// arrives within the poll timeout the error reports Timeout() true.
func (h *Handle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, timeoutError{device: h.device}
	}
	return data, ci, err
}

// WritePacket transmits data on the interface.
func (h *Handle) WritePacket(_ gopacket.CaptureInfo, data []byte) error {
	if err := h.tp.WritePacketData(data); err != nil {
		return fmt.Errorf("failed to send on %s: %w", h.device, err)
	}
	return nil
}

// Close releases the socket.
func (h *Handle) Close() error {
	h.tp.Close()
	return nil
}
