// Package pcapfile reads and writes packet capture files.
package pcapfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Reader reads packets from a pcap file.
type Reader struct {
	path string
	f    *os.File
	r    *pcapgo.Reader
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("pcap file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", path, err)
	}
	return &Reader{path: path, f: f, r: r}, nil
}

// ReadPacket returns the next packet. It returns io.EOF after the last one.
func (r *Reader) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if r.r == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("pcap reader %s is closed", r.path)
	}
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet from %s: %w", r.path, err)
	}
	return data, ci, nil
}

// LinkType returns the link type recorded in the file header.
func (r *Reader) LinkType() layers.LinkType {
	if r.r == nil {
		return layers.LinkTypeEthernet
	}
	return r.r.LinkType()
}

// Close closes the file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f, r.r = nil, nil
	return err
}
