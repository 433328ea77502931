// Package datapath executes NSH actions on packets: push, pop, field updates
// and output with software segmentation. Every failure drops the packet and is
// accounted by operation and reason.
package datapath

import (
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/gso"
	"github.com/mongiaK/openvswitch/internal/core/nsh"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
	"github.com/mongiaK/openvswitch/internal/log"
	"github.com/mongiaK/openvswitch/internal/metrics"
)

const (
	DefaultMTU         = 1500
	DefaultMaxSegments = 64
)

// Datapath runs NSH actions. It holds no per-packet state and may be shared
// between goroutines, each working on its own buffers.
type Datapath struct {
	codec    *nsh.Codec
	offloads *gso.Registry
	features gso.Features
	mtu      int
	maxSegs  int
}

// Option configures a Datapath.
type Option func(*Datapath)

// WithProtocolTable sets the next-protocol table used by push and pop.
func WithProtocolTable(t *tunproto.Table) Option {
	return func(d *Datapath) {
		d.codec = nsh.NewCodec(t)
	}
}

// WithOffloads sets the segmentation registry. It must already hold every
// offload the datapath needs, NSH included.
func WithOffloads(r *gso.Registry) Option {
	return func(d *Datapath) {
		d.offloads = r
	}
}

// WithFeatures sets the capabilities of the output device.
func WithFeatures(f gso.Features) Option {
	return func(d *Datapath) {
		d.features = f
	}
}

// WithMTU sets the largest packet the output device takes unsegmented.
func WithMTU(mtu int) Option {
	return func(d *Datapath) {
		d.mtu = mtu
	}
}

// WithMaxSegments bounds how many segments one packet may be split into.
func WithMaxSegments(n int) Option {
	return func(d *Datapath) {
		d.maxSegs = n
	}
}

// New returns a datapath. Without WithOffloads it uses the built-in IP and
// Ethernet offloads plus NSH.
func New(opts ...Option) (*Datapath, error) {
	d := &Datapath{
		codec:    nsh.NewCodec(tunproto.Default),
		features: gso.FeatureSG,
		mtu:      DefaultMTU,
		maxSegs:  DefaultMaxSegments,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.offloads == nil {
		d.offloads = gso.NewDefaultRegistry()
		if err := d.offloads.Register(tunproto.EthernetTypeNSH, d.codec.Offload(d.offloads)); err != nil {
			return nil, err
		}
	}
	if d.mtu <= 0 {
		return nil, fmt.Errorf("datapath: mtu %d: %w", d.mtu, core.ErrConfigInvalid)
	}
	if d.maxSegs <= 0 {
		return nil, fmt.Errorf("datapath: max segments %d: %w", d.maxSegs, core.ErrConfigInvalid)
	}
	return d, nil
}

// drop releases b and accounts err against op.
func (d *Datapath) drop(op string, b *buffer.Buffer, err error) error {
	reason := core.DropReason(err)
	metrics.DropsTotal.WithLabelValues(op, reason).Inc()

	logger := log.GetLogger()
	if logger.IsDebugEnabled() {
		logger.WithFields(map[string]interface{}{
			"op":     op,
			"reason": reason,
			"len":    b.Len(),
			"proto":  b.Protocol().String(),
		}).WithError(err).Debug("packet dropped")
	}
	b.Release()
	return err
}

// PushNSH prepends tmpl to b. On error b is dropped.
func (d *Datapath) PushNSH(b *buffer.Buffer, tmpl *nsh.Template) error {
	if err := d.codec.Push(b, tmpl); err != nil {
		return d.drop(metrics.OpPush, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpPush).Inc()
	return nil
}

// PopNSH strips the NSH header of b. On error b is dropped.
func (d *Datapath) PopNSH(b *buffer.Buffer) error {
	if _, err := d.codec.Pop(b); err != nil {
		return d.drop(metrics.OpPop, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpPop).Inc()
	return nil
}

// SetNSH applies a masked update to the NSH header of b. On error b is dropped.
func (d *Datapath) SetNSH(b *buffer.Buffer, key, mask nsh.Key) error {
	if err := checkNSH(b); err != nil {
		return d.drop(metrics.OpSet, b, err)
	}
	if err := nsh.Set(b, key, mask); err != nil {
		return d.drop(metrics.OpSet, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpSet).Inc()
	return nil
}

// DecTTL decrements the NSH TTL of b. A packet whose TTL expires is dropped.
func (d *Datapath) DecTTL(b *buffer.Buffer) error {
	if err := checkNSH(b); err != nil {
		return d.drop(metrics.OpDecTTL, b, err)
	}
	if _, err := nsh.DecTTL(b); err != nil {
		return d.drop(metrics.OpDecTTL, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpDecTTL).Inc()
	return nil
}

func checkNSH(b *buffer.Buffer) error {
	if b.Protocol() != tunproto.EthernetTypeNSH {
		return fmt.Errorf("datapath: nsh action on ethertype %#04x: %w", uint16(b.Protocol()), core.ErrUnsupportedProto)
	}
	return nil
}

// Output prepares b for transmission. Packets that fit the MTU, or that the
// device segments itself, come back as the only element. Larger GSO packets are
// segmented in software; b is consumed and the segments are returned. On error
// b is dropped.
func (d *Datapath) Output(b *buffer.Buffer) ([]*buffer.Buffer, error) {
	if !b.IsGSO() || b.Len() <= d.mtu {
		return []*buffer.Buffer{b}, nil
	}

	segs, err := d.offloads.Segment(b, d.features)
	if err != nil {
		return nil, d.drop(metrics.OpSegment, b, err)
	}
	if len(segs) == 0 {
		return []*buffer.Buffer{b}, nil
	}
	if len(segs) > d.maxSegs {
		n := len(segs)
		gso.Release(segs)
		err := fmt.Errorf("datapath: %d segments exceed limit %d: %w", n, d.maxSegs, core.ErrSegmentationFailed)
		metrics.DropsTotal.WithLabelValues(metrics.OpSegment, core.DropReason(err)).Inc()
		log.GetLogger().WithError(err).Debug("packet dropped")
		return nil, err
	}

	metrics.PacketsTotal.WithLabelValues(metrics.OpSegment).Inc()
	metrics.SegmentsPerPacket.Observe(float64(len(segs)))
	return segs, nil
}
