package nsh

import (
	"bytes"
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/gso"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
)

// Offload segments NSH-encapsulated super-packets. It pops the header, hands
// the inner packet to Inner and puts the header, and the link-layer framing in
// front of it, back on every segment.
type Offload struct {
	codec *Codec
	inner gso.Segmenter
}

// NewOffload returns an offload using the default protocol table.
func NewOffload(inner gso.Segmenter) *Offload {
	return defaultCodec.Offload(inner)
}

// Offload returns a segmentation offload that decodes with c.
func (c *Codec) Offload(inner gso.Segmenter) *Offload {
	return &Offload{codec: c, inner: inner}
}

// Register installs the NSH offload in reg. Inner packets are segmented by
// reg itself, so nested encapsulations dispatch by their own protocol.
func Register(reg *gso.Registry) error {
	return reg.Register(tunproto.EthernetTypeNSH, NewOffload(reg))
}

// Unregister removes the NSH offload from reg.
func Unregister(reg *gso.Registry) {
	reg.Unregister(tunproto.EthernetTypeNSH)
}

// Segment implements gso.Segmenter. Header errors are returned as they are;
// a failing or empty inner segmentation is reported as
// core.ErrSegmentationFailed. Either way b is left exactly as it was passed
// in, checksum state included. On success b is consumed.
func (o *Offload) Segment(b *buffer.Buffer, features gso.Features) ([]*buffer.Buffer, error) {
	snap := b.Snapshot()

	b.ResetNetworkHeader()
	nhoff := 0
	if off, ok := b.LinkOffset(); ok {
		nhoff = -off
	}
	if nhoff < 0 {
		b.Restore(snap)
		return nil, fmt.Errorf("nsh: link header starts %d bytes after nsh header: %w", -nhoff, core.ErrInvalidHeader)
	}
	macLen := b.LinkLen()
	link := bytes.Clone(b.LinkHeader())

	h, proto, err := o.codec.inspect(b)
	if err != nil {
		b.Restore(snap)
		return nil, err
	}
	hdr := bytes.Clone(h)
	hlen := len(hdr)
	if macLen > nhoff+hlen {
		b.Restore(snap)
		return nil, fmt.Errorf("nsh: link length %d past nsh header at %d: %w", macLen, nhoff, core.ErrInvalidHeader)
	}

	if err := b.PullRcsum(hlen); err != nil {
		b.Restore(snap)
		return nil, err
	}
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	b.SetProtocol(proto)

	segs, err := o.inner.Segment(b, features&gso.FeatureSG)
	if err != nil {
		b.Restore(snap)
		return nil, fmt.Errorf("nsh: segment %v payload: %w: %w", proto, core.ErrSegmentationFailed, err)
	}
	if len(segs) == 0 {
		b.Restore(snap)
		return nil, fmt.Errorf("nsh: segment %v payload: no segments: %w", proto, core.ErrSegmentationFailed)
	}

	for _, seg := range segs {
		if err := restoreFraming(seg, hdr, link, macLen); err != nil {
			gso.Release(segs)
			b.Restore(snap)
			return nil, fmt.Errorf("nsh: rebuild segment: %w: %w", core.ErrSegmentationFailed, err)
		}
	}
	snap.Discard()
	b.Release()
	return segs, nil
}

// restoreFraming prepends hdr to seg and rebuilds the link-layer framing in
// front of it, outside the data window.
func restoreFraming(seg *buffer.Buffer, hdr, link []byte, macLen int) error {
	p, err := seg.Push(len(hdr))
	if err != nil {
		return err
	}
	copy(p, hdr)
	seg.PostPushRcsum(len(hdr))

	nhoff := len(link)
	if nhoff > 0 {
		p, err = seg.Push(nhoff)
		if err != nil {
			return err
		}
		copy(p, link)
		if err := seg.ShrinkFront(nhoff); err != nil {
			return err
		}
	}

	seg.SetProtocol(tunproto.EthernetTypeNSH)
	seg.SetLinkHeader(-nhoff)
	seg.SetNetworkHeader(-nhoff + macLen)
	seg.SetLinkLen(macLen)
	return nil
}
