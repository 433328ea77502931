package gso

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
)

// Ethernet segments transparent-Ethernet-bridged frames: it strips the inner
// Ethernet header, lets Inner segment the payload by its EtherType, and puts a
// copy of the header back in front of every segment.
type Ethernet struct {
	Inner Segmenter
}

// Segment implements Segmenter.
func (e Ethernet) Segment(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(b.Bytes(), gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("gso: ethernet header: %w: %v", core.ErrTruncated, err)
	}
	if eth.EthernetType == layers.EthernetTypeLLC {
		return nil, fmt.Errorf("gso: 802.3 length-framed payload: %w", core.ErrUnsupportedProto)
	}
	hlen := len(eth.Contents)
	hdr := bytes.Clone(eth.Contents)
	outer := b.Protocol()

	snap := b.Snapshot()
	if err := b.PullRcsum(hlen); err != nil {
		b.Restore(snap)
		return nil, err
	}
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	b.SetProtocol(eth.EthernetType)

	segs, err := e.Inner.Segment(b, features)
	if err != nil || len(segs) == 0 {
		b.Restore(snap)
		return nil, err
	}

	for _, seg := range segs {
		p, err := seg.Push(hlen)
		if err != nil {
			Release(segs)
			b.Restore(snap)
			return nil, err
		}
		copy(p, hdr)
		seg.PostPushRcsum(hlen)
		seg.SetProtocol(outer)
		seg.ResetLinkHeader()
		seg.SetNetworkHeader(hlen)
		seg.SetLinkLen(hlen)
	}
	snap.Discard()
	return segs, nil
}
