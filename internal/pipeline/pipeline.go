// Package pipeline runs packets from a source through datapath actions and
// writes what the output path produces to a sink.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/gso"
	"github.com/mongiaK/openvswitch/internal/datapath"
	"github.com/mongiaK/openvswitch/internal/log"
)

// Source yields Ethernet frames. It returns io.EOF after the last one. Errors
// that report Timeout() true mean no frame arrived in time; the read is retried
// until the run is canceled.
type Source interface {
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
}

// Sink accepts Ethernet frames.
type Sink interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// Action is one datapath action applied to a packet. A failing action has
// already dropped the packet.
type Action func(b *buffer.Buffer) error

type rawPacket struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// Pipeline is a single-threaded packet processing chain.
type Pipeline struct {
	datapath    *datapath.Datapath
	actions     []Action
	headroom    int
	alloc       buffer.Allocator
	segmentSize int
	bufferSize  int
	metrics     *Metrics
}

// Config contains pipeline configuration.
type Config struct {
	Datapath    *datapath.Datapath
	Actions     []Action
	Headroom    int              // free bytes in front of every received frame
	Allocator   buffer.Allocator // nil means buffer.DefaultAllocator
	SegmentSize int              // TCP and UDP payloads above this are marked for segmentation; 0 disables
	BufferSize  int              // raw packet channel buffer size
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Datapath == nil {
		return nil, fmt.Errorf("pipeline: datapath is required: %w", core.ErrConfigInvalid)
	}
	if cfg.SegmentSize < 0 {
		return nil, fmt.Errorf("pipeline: segment size %d: %w", cfg.SegmentSize, core.ErrConfigInvalid)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Allocator == nil {
		cfg.Allocator = buffer.DefaultAllocator
	}
	return &Pipeline{
		datapath:    cfg.Datapath,
		actions:     cfg.Actions,
		headroom:    cfg.Headroom,
		alloc:       cfg.Allocator,
		segmentSize: cfg.SegmentSize,
		bufferSize:  cfg.BufferSize,
		metrics:     &Metrics{},
	}, nil
}

// Run processes every frame of src and writes the results to dst. It returns
// when src is exhausted, when ctx is done or when dst fails. Dropped packets
// are counted, not returned as errors.
func (p *Pipeline) Run(ctx context.Context, src Source, dst Sink) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rawPacketChan := make(chan rawPacket, p.bufferSize)
	var (
		wg         sync.WaitGroup
		captureErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		captureErr = p.captureLoop(runCtx, src, rawPacketChan)
	}()

	err := p.processLoop(runCtx, dst, rawPacketChan)
	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	if captureErr != nil {
		return captureErr
	}
	return ctx.Err()
}

// captureLoop reads frames from src into the processing channel.
func (p *Pipeline) captureLoop(ctx context.Context, src Source, out chan<- rawPacket) error {
	defer close(out)

	for {
		data, ci, err := src.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var te interface{ Timeout() bool }
			if errors.As(err, &te) && te.Timeout() {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			return err
		}
		select {
		case out <- rawPacket{data: data, ci: ci}:
		case <-ctx.Done():
			return nil
		}
	}
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop(ctx context.Context, dst Sink, in <-chan rawPacket) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			p.metrics.Received.Add(1)
			if err := p.processPacket(raw, dst); err != nil {
				return err
			}
		}
	}
}

// processPacket runs one frame through the actions and the output path. Only
// sink failures are returned.
func (p *Pipeline) processPacket(raw rawPacket, dst Sink) error {
	b, err := p.ingest(raw.data)
	if err != nil {
		p.metrics.Dropped.Add(1)
		log.GetLogger().WithError(err).WithField("len", len(raw.data)).Debug("frame rejected")
		return nil
	}

	for _, action := range p.actions {
		if err := action(b); err != nil {
			p.metrics.Dropped.Add(1)
			return nil
		}
	}
	p.metrics.Processed.Add(1)

	return p.transmit(b, raw.ci, dst)
}

// ingest copies an Ethernet frame into a buffer with the link-layer header
// marked and the EtherType declared. TCP and UDP packets with more payload
// than the segment size are marked for segmentation.
func (p *Pipeline) ingest(frame []byte) (*buffer.Buffer, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	eth, ok := pkt.LinkLayer().(*layers.Ethernet)
	if !ok {
		return nil, fmt.Errorf("pipeline: not an ethernet frame: %w", core.ErrTruncated)
	}

	b, err := buffer.New(p.headroom, frame,
		buffer.WithAllocator(p.alloc),
		buffer.WithProtocol(eth.EthernetType),
		buffer.WithLinkHeader(len(eth.Contents)))
	if err != nil {
		return nil, err
	}
	if g, ok := p.gsoInfo(pkt); ok {
		b.SetGSO(g)
	}
	return b, nil
}

func (p *Pipeline) gsoInfo(pkt gopacket.Packet) (buffer.GSOInfo, bool) {
	if p.segmentSize == 0 {
		return buffer.GSOInfo{}, false
	}
	var typ buffer.GSOType
	switch pkt.TransportLayer().(type) {
	case *layers.TCP:
		switch pkt.NetworkLayer().(type) {
		case *layers.IPv4:
			typ = buffer.GSOTCPv4
		case *layers.IPv6:
			typ = buffer.GSOTCPv6
		default:
			return buffer.GSOInfo{}, false
		}
	case *layers.UDP:
		typ = buffer.GSOUDPL4
	default:
		return buffer.GSOInfo{}, false
	}

	n := len(pkt.TransportLayer().LayerPayload())
	if n <= p.segmentSize {
		return buffer.GSOInfo{}, false
	}
	return buffer.GSOInfo{
		Size: p.segmentSize,
		Type: typ,
		Segs: (n + p.segmentSize - 1) / p.segmentSize,
	}, true
}

// transmit hands b to the output path with any link-layer header at its front
// pulled off, then writes every resulting packet framed again.
func (p *Pipeline) transmit(b *buffer.Buffer, ci gopacket.CaptureInfo, dst Sink) error {
	var link []byte
	if off, ok := b.LinkOffset(); ok && off == 0 && b.LinkLen() > 0 {
		link = bytes.Clone(b.LinkHeader())
		if err := b.ShrinkFront(len(link)); err != nil {
			b.Release()
			p.metrics.Dropped.Add(1)
			return nil
		}
	}

	segs, err := p.datapath.Output(b)
	if err != nil {
		p.metrics.Dropped.Add(1)
		return nil
	}
	defer gso.Release(segs)
	if len(segs) > 1 {
		p.metrics.Segmented.Add(1)
	}

	for _, seg := range segs {
		frame := link
		if off, ok := seg.LinkOffset(); ok && off < 0 {
			frame = seg.LinkHeader()
		}
		out := make([]byte, 0, len(frame)+seg.Len())
		out = append(out, frame...)
		out = append(out, seg.Bytes()...)
		if err := dst.WritePacket(ci, out); err != nil {
			return err
		}
		p.metrics.Written.Add(1)
	}
	return nil
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Stats()
}
