package gso

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
)

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func serializeLayers(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ipv4TCP(t *testing.T, payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       100,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{
		SrcPort: 40000,
		DstPort: 80,
		Seq:     1000,
		Ack:     1,
		ACK:     true,
		PSH:     true,
		FIN:     true,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serializeLayers(t, ip, tcp, gopacket.Payload(payload))
}

func ipv6UDP(t *testing.T, payload []byte) []byte {
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serializeLayers(t, ip, udp, gopacket.Payload(payload))
}

func ethernetFrame(t *testing.T, inner []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	return serializeLayers(t, eth, gopacket.Payload(inner))
}

func newGSOBuffer(t *testing.T, pkt []byte, proto layers.EthernetType, g buffer.GSOInfo) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New(64, pkt, buffer.WithProtocol(proto))
	require.NoError(t, err)
	b.SetGSO(g)
	return b
}

func TestInet_TCPv4(t *testing.T) {
	payload := testPayload(3000)
	b := newGSOBuffer(t, ipv4TCP(t, payload), layers.EthernetTypeIPv4, buffer.GSOInfo{Size: 1460, Type: buffer.GSOTCPv4})

	segs, err := Inet{}.Segment(b, FeaturesNone)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	var got []byte
	for i, seg := range segs {
		assert.Equal(t, layers.EthernetTypeIPv4, seg.Protocol())
		assert.False(t, seg.IsGSO())
		assert.Equal(t, 64, seg.Headroom())
		assert.NoError(t, seg.Validate())

		pkt := gopacket.NewPacket(seg.Bytes(), layers.LayerTypeIPv4, gopacket.Default)
		require.Nil(t, pkt.ErrorLayer())
		ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)

		assert.Equal(t, uint16(100+i), ip.Id)
		assert.Equal(t, int(ip.Length), seg.Len())
		assert.Equal(t, uint16(0xffff), buffer.Sum(seg.Bytes()[:20]), "ipv4 header checksum")
		assert.Equal(t, uint32(1000+i*1460), tcp.Seq)

		last := i == len(segs)-1
		assert.Equal(t, last, tcp.FIN)
		assert.Equal(t, last, tcp.PSH)
		assert.True(t, tcp.ACK)

		got = append(got, tcp.Payload...)
	}
	assert.Equal(t, payload, got)
	assert.Equal(t, []int{1460, 1460, 80}, []int{
		segs[0].Len() - 40, segs[1].Len() - 40, segs[2].Len() - 40,
	})
}

func TestInet_UDPv6(t *testing.T) {
	payload := testPayload(1000)
	b := newGSOBuffer(t, ipv6UDP(t, payload), layers.EthernetTypeIPv6, buffer.GSOInfo{Size: 400, Type: buffer.GSOUDPL4})

	segs, err := Inet{}.Segment(b, FeatureSG)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	var got []byte
	for _, seg := range segs {
		pkt := gopacket.NewPacket(seg.Bytes(), layers.LayerTypeIPv6, gopacket.Default)
		require.Nil(t, pkt.ErrorLayer())
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		assert.Equal(t, int(udp.Length), len(udp.Payload)+8)
		got = append(got, udp.Payload...)
	}
	assert.Equal(t, payload, got)
}

func TestInet_DeviceOffload(t *testing.T) {
	pkt := ipv4TCP(t, testPayload(3000))
	b := newGSOBuffer(t, pkt, layers.EthernetTypeIPv4, buffer.GSOInfo{Size: 1460, Type: buffer.GSOTCPv4})

	segs, err := Inet{}.Segment(b, FeatureSG|FeatureTSO)
	assert.NoError(t, err)
	assert.Empty(t, segs)
	assert.Equal(t, pkt, b.Bytes())
}

func TestInet_NotGSO(t *testing.T) {
	b := newGSOBuffer(t, ipv4TCP(t, testPayload(10)), layers.EthernetTypeIPv4, buffer.GSOInfo{})

	segs, err := Inet{}.Segment(b, FeaturesNone)
	assert.NoError(t, err)
	assert.Empty(t, segs)
}

func TestInet_TruncatedLeavesInputUntouched(t *testing.T) {
	pkt := ipv4TCP(t, testPayload(100))[:15]
	b := newGSOBuffer(t, pkt, layers.EthernetTypeIPv4, buffer.GSOInfo{Size: 50, Type: buffer.GSOTCPv4})

	segs, err := Inet{}.Segment(b, FeaturesNone)
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Nil(t, segs)
	assert.Equal(t, pkt, b.Bytes())
}

func TestInet_UnsupportedTransport(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	pkt := serializeLayers(t, ip, gopacket.Payload(testPayload(200)))
	b := newGSOBuffer(t, pkt, layers.EthernetTypeIPv4, buffer.GSOInfo{Size: 50, Type: buffer.GSOTCPv4})

	_, err := Inet{}.Segment(b, FeaturesNone)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}

func TestEthernet_RestoresHeaderOnEverySegment(t *testing.T) {
	payload := testPayload(2000)
	frame := ethernetFrame(t, ipv4TCP(t, payload))
	b := newGSOBuffer(t, frame, layers.EthernetTypeTransparentEthernetBridging,
		buffer.GSOInfo{Size: 1000, Type: buffer.GSOTCPv4})

	segs, err := NewDefaultRegistry().Segment(b, FeaturesNone)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	var got []byte
	for _, seg := range segs {
		assert.Equal(t, layers.EthernetTypeTransparentEthernetBridging, seg.Protocol())
		assert.Equal(t, frame[:14], seg.Bytes()[:14])
		assert.Equal(t, 14, seg.LinkLen())
		off, ok := seg.NetworkOffset()
		require.True(t, ok)
		assert.Equal(t, 14, off)
		assert.NoError(t, seg.Validate())

		pkt := gopacket.NewPacket(seg.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
		require.Nil(t, pkt.ErrorLayer())
		got = append(got, pkt.Layer(layers.LayerTypeTCP).(*layers.TCP).Payload...)
	}
	assert.Equal(t, payload, got)
}

func TestEthernet_InnerFailureRestores(t *testing.T) {
	frame := ethernetFrame(t, ipv4TCP(t, testPayload(500)))
	b := newGSOBuffer(t, frame, layers.EthernetTypeTransparentEthernetBridging,
		buffer.GSOInfo{Size: 100, Type: buffer.GSOTCPv4})

	failing := SegmenterFunc(func(*buffer.Buffer, Features) ([]*buffer.Buffer, error) {
		return nil, core.ErrOutOfMemory
	})
	_, err := Ethernet{Inner: failing}.Segment(b, FeaturesNone)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.Equal(t, frame, b.Bytes())
	assert.Equal(t, layers.EthernetTypeTransparentEthernetBridging, b.Protocol())
	assert.False(t, b.Shared())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := SegmenterFunc(func(*buffer.Buffer, Features) ([]*buffer.Buffer, error) { return nil, nil })

	require.NoError(t, r.Register(layers.EthernetTypeARP, s))
	assert.Error(t, r.Register(layers.EthernetTypeARP, s))

	_, ok := r.Lookup(layers.EthernetTypeARP)
	assert.True(t, ok)

	r.Unregister(layers.EthernetTypeARP)
	_, ok = r.Lookup(layers.EthernetTypeARP)
	assert.False(t, ok)
}

func TestRegistry_UnknownProtocol(t *testing.T) {
	b, err := buffer.New(0, []byte{1, 2, 3}, buffer.WithProtocol(layers.EthernetTypeARP))
	require.NoError(t, err)

	_, err = NewDefaultRegistry().Segment(b, FeaturesNone)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
	assert.True(t, bytes.Equal([]byte{1, 2, 3}, b.Bytes()))
}

func TestFeatures(t *testing.T) {
	assert.True(t, (FeatureSG | FeatureTSO).CanOffload(buffer.GSOTCPv4))
	assert.False(t, FeatureSG.CanOffload(buffer.GSOTCPv4))
	assert.False(t, FeatureTSO.CanOffload(buffer.GSOTCPv4|buffer.GSOTCPv6))
	assert.False(t, FeatureTSO.CanOffload(0))
	assert.Equal(t, "sg|tso", (FeatureSG | FeatureTSO).String())
	assert.Equal(t, "none", FeaturesNone.String())
}
