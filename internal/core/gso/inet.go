package gso

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
)

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// Inet segments IPv4 and IPv6 super-packets carrying TCP (TSO) or UDP
// (UDP L4 segmentation). Every segment gets its own IP and transport header
// with fresh lengths and checksums; TCP sequence numbers and IPv4 IDs advance
// per segment.
type Inet struct{}

// netHeader returns the network layer for segment i, ready to serialize and
// to seed the transport pseudo-header.
type netHeader func(i int) (gopacket.SerializableLayer, gopacket.NetworkLayer)

// Segment implements Segmenter.
func (Inet) Segment(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error) {
	g := b.GSO()
	if g.Size <= 0 || features.CanOffload(g.Type) {
		return nil, nil
	}

	l4proto, l4data, mkNet, err := decodeNetwork(b)
	if err != nil {
		return nil, err
	}

	var segs []*buffer.Buffer
	switch l4proto {
	case layers.IPProtocolTCP:
		segs, err = segmentTCP(b, g.Size, l4data, mkNet)
	case layers.IPProtocolUDP:
		segs, err = segmentUDP(b, g.Size, l4data, mkNet)
	default:
		return nil, fmt.Errorf("gso: ip protocol %v: %w", l4proto, core.ErrUnsupportedProto)
	}
	if err != nil {
		return nil, err
	}
	b.Release()
	return segs, nil
}

func decodeNetwork(b *buffer.Buffer) (layers.IPProtocol, []byte, netHeader, error) {
	data := b.Bytes()

	switch b.Protocol() {
	case layers.EthernetTypeIPv4:
		var ip4 layers.IPv4
		if err := ip4.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return 0, nil, nil, fmt.Errorf("gso: ipv4 header: %w: %v", core.ErrTruncated, err)
		}
		if ip4.Flags&layers.IPv4MoreFragments != 0 || ip4.FragOffset != 0 {
			return 0, nil, nil, fmt.Errorf("gso: ipv4 fragment: %w", core.ErrUnsupportedProto)
		}
		ip4.Padding = nil
		return ip4.Protocol, ip4.Payload, func(i int) (gopacket.SerializableLayer, gopacket.NetworkLayer) {
			n := ip4
			n.Id = ip4.Id + uint16(i)
			return &n, &n
		}, nil

	case layers.EthernetTypeIPv6:
		var ip6 layers.IPv6
		if err := ip6.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return 0, nil, nil, fmt.Errorf("gso: ipv6 header: %w: %v", core.ErrTruncated, err)
		}
		if ip6.NextHeader != layers.IPProtocolTCP && ip6.NextHeader != layers.IPProtocolUDP {
			return 0, nil, nil, fmt.Errorf("gso: ipv6 next header %v: %w", ip6.NextHeader, core.ErrUnsupportedProto)
		}
		return ip6.NextHeader, ip6.Payload, func(int) (gopacket.SerializableLayer, gopacket.NetworkLayer) {
			n := ip6
			return &n, &n
		}, nil

	default:
		return 0, nil, nil, fmt.Errorf("gso: ethertype %#04x is not ip: %w", uint16(b.Protocol()), core.ErrUnsupportedProto)
	}
}

func segmentTCP(b *buffer.Buffer, mss int, l4data []byte, mkNet netHeader) ([]*buffer.Buffer, error) {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(l4data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("gso: tcp header: %w: %v", core.ErrTruncated, err)
	}
	tcp.Padding = nil
	payload := tcp.Payload

	n := segmentCount(len(payload), mss)
	segs := make([]*buffer.Buffer, 0, n)
	for i := 0; i < n; i++ {
		lo, hi := chunk(i, mss, len(payload))

		seg := tcp
		seg.Seq = tcp.Seq + uint32(lo)
		if i != n-1 {
			seg.FIN = false
			seg.PSH = false
		}
		if i != 0 {
			seg.CWR = false
		}

		netLayer, pseudo := mkNet(i)
		if err := seg.SetNetworkLayerForChecksum(pseudo); err != nil {
			Release(segs)
			return nil, fmt.Errorf("gso: tcp pseudo header: %w", err)
		}
		s, err := serialize(b, netLayer, &seg, payload[lo:hi])
		if err != nil {
			Release(segs)
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func segmentUDP(b *buffer.Buffer, size int, l4data []byte, mkNet netHeader) ([]*buffer.Buffer, error) {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(l4data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("gso: udp header: %w: %v", core.ErrTruncated, err)
	}
	payload := udp.Payload

	n := segmentCount(len(payload), size)
	segs := make([]*buffer.Buffer, 0, n)
	for i := 0; i < n; i++ {
		lo, hi := chunk(i, size, len(payload))

		seg := udp
		netLayer, pseudo := mkNet(i)
		if err := seg.SetNetworkLayerForChecksum(pseudo); err != nil {
			Release(segs)
			return nil, fmt.Errorf("gso: udp pseudo header: %w", err)
		}
		s, err := serialize(b, netLayer, &seg, payload[lo:hi])
		if err != nil {
			Release(segs)
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func serialize(b *buffer.Buffer, netLayer, l4 gopacket.SerializableLayer, payload []byte) (*buffer.Buffer, error) {
	sb := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(sb, serializeOpts, netLayer, l4, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("gso: serialize segment: %w", err)
	}
	return b.Sibling(b.Headroom(), sb.Bytes())
}

// segmentCount returns how many segments of at most size bytes carry n bytes.
// An empty payload still yields one segment.
func segmentCount(n, size int) int {
	if n == 0 {
		return 1
	}
	return (n + size - 1) / size
}

func chunk(i, size, total int) (int, int) {
	lo := i * size
	return lo, min(lo+size, total)
}
