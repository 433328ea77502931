package pcapfile

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultSnapLen is the snapshot length written to new files.
const DefaultSnapLen = 262144

// Writer writes packets to a pcap file.
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	w    *pcapgo.Writer
}

// Create creates the capture file at path, truncating an existing one, and
// writes its header.
func Create(path string, linkType layers.LinkType) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("pcap file path is required")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	w := pcapgo.NewWriter(bw)
	if err := w.WriteFileHeader(DefaultSnapLen, linkType); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header to %s: %w", path, err)
	}
	return &Writer{path: path, f: f, bw: bw, w: w}, nil
}

// WritePacket appends one packet. The captured and wire lengths are both set
// to len(data).
func (w *Writer) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if w.w == nil {
		return fmt.Errorf("pcap writer %s is closed", w.path)
	}
	ci.CaptureLength = len(data)
	ci.Length = len(data)
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet to %s: %w", w.path, err)
	}
	return nil
}

// Close flushes buffered packets and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	ferr := w.bw.Flush()
	cerr := w.f.Close()
	w.f, w.bw, w.w = nil, nil, nil
	if ferr != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, ferr)
	}
	return cerr
}
