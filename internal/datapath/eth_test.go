package datapath

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
	"github.com/mongiaK/openvswitch/internal/metrics"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0xaa}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0xbb}
)

func TestPushPopEth(t *testing.T) {
	dp, err := New()
	require.NoError(t, err)

	pkt := tcpPacket(t, 20)
	b := newBuffer(t, pkt, buffer.GSOInfo{})
	b.SetChecksum(buffer.Checksum{Mode: buffer.ChecksumComplete, Value: buffer.Sum(pkt)})
	require.NoError(t, dp.PushNSH(b, template(t, 63)))
	require.NoError(t, dp.PushEth(b, srcMAC, dstMAC))

	data := b.Bytes()
	assert.Equal(t, []byte(dstMAC), data[:6])
	assert.Equal(t, []byte(srcMAC), data[6:12])
	assert.Equal(t, []byte{0x89, 0x4f}, data[12:14])
	assert.Equal(t, EthernetHeaderLen, b.LinkLen())
	assert.Equal(t, data[:EthernetHeaderLen], b.LinkHeader())
	assert.Equal(t, tunproto.EthernetTypeNSH, b.Protocol())
	assert.Equal(t, buffer.Sum(data), b.Checksum().Value)

	require.NoError(t, dp.PopEth(b))
	assert.Equal(t, tunproto.EthernetTypeNSH, b.Protocol())
	assert.Equal(t, 0, b.LinkLen())
	require.NoError(t, dp.PopNSH(b))
	assert.Equal(t, pkt, b.Bytes())
	assert.Equal(t, layers.EthernetTypeIPv4, b.Protocol())
	assert.Equal(t, buffer.Sum(pkt), b.Checksum().Value)
}

func TestPopEth_DeclaresCarriedProtocol(t *testing.T) {
	dp, err := New()
	require.NoError(t, err)

	frame := append([]byte{}, dstMAC...)
	frame = append(frame, srcMAC...)
	frame = append(frame, 0x86, 0xdd, 0x60, 0, 0, 0)
	b, err := buffer.New(0, frame, buffer.WithLinkHeader(EthernetHeaderLen))
	require.NoError(t, err)

	require.NoError(t, dp.PopEth(b))
	assert.Equal(t, layers.EthernetTypeIPv6, b.Protocol())
	assert.Equal(t, []byte{0x60, 0, 0, 0}, b.Bytes())
}

func TestEth_Errors(t *testing.T) {
	dp, err := New()
	require.NoError(t, err)

	before := dropped(t, metrics.OpPopEth, core.ReasonTruncated)
	b, err := buffer.New(0, make([]byte, 10))
	require.NoError(t, err)
	assert.ErrorIs(t, dp.PopEth(b), core.ErrTruncated)
	assert.Equal(t, before+1, dropped(t, metrics.OpPopEth, core.ReasonTruncated))

	b, err = buffer.New(16, make([]byte, 10), buffer.WithProtocol(layers.EthernetTypeIPv4))
	require.NoError(t, err)
	assert.ErrorIs(t, dp.PushEth(b, net.HardwareAddr{1, 2}, dstMAC), core.ErrInvalidHeader)
}
