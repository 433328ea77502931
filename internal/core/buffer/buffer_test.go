package buffer

import (
	"bytes"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongiaK/openvswitch/internal/core"
)

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestNew(t *testing.T) {
	b, err := New(32, payload(20), WithProtocol(layers.EthernetTypeIPv4))
	require.NoError(t, err)

	assert.Equal(t, 20, b.Len())
	assert.Equal(t, 32, b.Headroom())
	assert.Equal(t, payload(20), b.Bytes())
	assert.Equal(t, layers.EthernetTypeIPv4, b.Protocol())
	assert.False(t, b.Shared())

	_, ok := b.LinkOffset()
	assert.False(t, ok)
	assert.Nil(t, b.LinkHeader())
}

func TestNew_LinkHeaderPastPayload(t *testing.T) {
	_, err := New(0, payload(10), WithLinkHeader(14))
	assert.Error(t, err)
}

func TestNew_AllocatorLimit(t *testing.T) {
	_, err := New(16, payload(100), WithAllocator(HeapAllocator{MaxSize: 64}))
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
}

func TestGrowFront_UsesExistingHeadroom(t *testing.T) {
	b, err := New(16, payload(10))
	require.NoError(t, err)
	before := b.st

	require.NoError(t, b.GrowFront(16))
	assert.Same(t, before, b.st)
	assert.Equal(t, 16, b.Headroom())
}

func TestGrowFront_Reallocates(t *testing.T) {
	b, err := New(2, payload(30), WithLinkHeader(14))
	require.NoError(t, err)

	require.NoError(t, b.GrowFront(10))
	assert.Equal(t, 2+HeadroomPad, b.Headroom())
	assert.Equal(t, payload(30), b.Bytes())

	off, ok := b.LinkOffset()
	require.True(t, ok)
	assert.Equal(t, 0, off)
	off, ok = b.NetworkOffset()
	require.True(t, ok)
	assert.Equal(t, 14, off)
	assert.Equal(t, 14, b.LinkLen())
	assert.NoError(t, b.Validate())
}

func TestGrowFront_OutOfMemory(t *testing.T) {
	b, err := New(0, payload(40), WithAllocator(HeapAllocator{MaxSize: 50}))
	require.NoError(t, err)

	err = b.GrowFront(8)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.Equal(t, payload(40), b.Bytes())
	assert.Equal(t, 0, b.Headroom())
}

func TestGrowFront_ClonesSharedStorage(t *testing.T) {
	b, err := New(16, payload(10))
	require.NoError(t, err)
	c := b.Clone()
	assert.True(t, b.Shared())
	assert.True(t, c.Shared())

	hdr, err := c.Push(4)
	require.NoError(t, err)
	copy(hdr, []byte{0xde, 0xad, 0xbe, 0xef})

	assert.False(t, c.Shared())
	assert.False(t, b.Shared())
	assert.Equal(t, payload(10), b.Bytes())
	assert.Equal(t, append([]byte{0xde, 0xad, 0xbe, 0xef}, payload(10)...), c.Bytes())
}

func TestWritable_Unshares(t *testing.T) {
	b, err := New(0, payload(8))
	require.NoError(t, err)
	c := b.Clone()

	w, err := c.Writable()
	require.NoError(t, err)
	w[0] = 0xff

	assert.Equal(t, payload(8), b.Bytes())
	assert.Equal(t, byte(0xff), c.Bytes()[0])
}

func TestShrinkFront(t *testing.T) {
	b, err := New(0, payload(20), WithLinkHeader(14))
	require.NoError(t, err)

	require.NoError(t, b.ShrinkFront(14))
	assert.Equal(t, payload(20)[14:], b.Bytes())

	off, ok := b.LinkOffset()
	require.True(t, ok)
	assert.Equal(t, -14, off)
	off, _ = b.NetworkOffset()
	assert.Equal(t, 0, off)
	assert.NoError(t, b.Validate())
}

func TestShrinkFront_Truncated(t *testing.T) {
	b, err := New(0, payload(4))
	require.NoError(t, err)

	err = b.ShrinkFront(8)
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, payload(4), b.Bytes())
}

func TestEnsureAvailable(t *testing.T) {
	b, err := New(0, payload(8))
	require.NoError(t, err)

	assert.NoError(t, b.EnsureAvailable(8))
	assert.ErrorIs(t, b.EnsureAvailable(9), core.ErrTruncated)
}

func TestRcsum_PushAndPull(t *testing.T) {
	tests := []struct {
		name string
		push []byte
	}{
		{"even", []byte{0x0f, 0xc6, 0x01, 0x03, 0x00, 0x00, 0x01, 0xff}},
		{"odd", []byte{0x11, 0x22, 0x33}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := payload(41)
			b, err := New(16, data, WithChecksum(Checksum{Mode: ChecksumComplete, Value: Sum(data)}))
			require.NoError(t, err)

			hdr, err := b.Push(len(tt.push))
			require.NoError(t, err)
			copy(hdr, tt.push)
			b.PostPushRcsum(len(tt.push))
			assert.Equal(t, Sum(b.Bytes()), b.Checksum().Value)

			require.NoError(t, b.PullRcsum(len(tt.push)))
			assert.Equal(t, data, b.Bytes())
			assert.Equal(t, Sum(data), b.Checksum().Value)
		})
	}
}

func TestRcsum_ZeroRemainder(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"all zero", make([]byte, 40)},
		{"sums to 0xffff", []byte{0xff, 0xff, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(16, tt.data, WithChecksum(Checksum{Mode: ChecksumComplete, Value: Sum(tt.data)}))
			require.NoError(t, err)

			hdr, err := b.Push(8)
			require.NoError(t, err)
			copy(hdr, []byte{0x0f, 0xc2, 0x02, 0x01, 0x00, 0x00, 0x01, 0xff})
			b.PostPushRcsum(8)
			require.NoError(t, b.PullRcsum(8))
			assert.Equal(t, Sum(tt.data), b.Checksum().Value)

			require.NoError(t, b.UpdateFront(2, func(p []byte) { p[0], p[1] = 0, 0 }))
			assert.Equal(t, Sum(b.Bytes()), b.Checksum().Value)
		})
	}
}

func TestRcsum_IgnoredWhenNotComplete(t *testing.T) {
	b, err := New(8, payload(10), WithChecksum(Checksum{Mode: ChecksumUnnecessary}))
	require.NoError(t, err)

	hdr, err := b.Push(2)
	require.NoError(t, err)
	copy(hdr, []byte{1, 2})
	b.PostPushRcsum(2)

	assert.Equal(t, Checksum{Mode: ChecksumUnnecessary}, b.Checksum())
}

func TestSnapshotRestore(t *testing.T) {
	b, err := New(8, payload(30), WithLinkHeader(14), WithProtocol(layers.EthernetTypeIPv4))
	require.NoError(t, err)
	wantBytes := bytes.Clone(b.Bytes())

	snap := b.Snapshot()
	require.NoError(t, b.ShrinkFront(14))
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	b.SetProtocol(layers.EthernetTypeIPv6)
	w, err := b.Writable()
	require.NoError(t, err)
	w[0] = 0

	b.Restore(snap)
	assert.Equal(t, wantBytes, b.Bytes())
	assert.Equal(t, layers.EthernetTypeIPv4, b.Protocol())
	assert.Equal(t, 14, b.LinkLen())
	assert.False(t, b.Shared())
	assert.NoError(t, b.Validate())
}

func TestSnapshotDiscard(t *testing.T) {
	b, err := New(0, payload(4))
	require.NoError(t, err)

	snap := b.Snapshot()
	assert.True(t, b.Shared())
	snap.Discard()
	assert.False(t, b.Shared())
}

func TestValidate(t *testing.T) {
	b, err := New(0, payload(20), WithLinkHeader(14))
	require.NoError(t, err)

	b.SetLinkLen(10)
	assert.Error(t, b.Validate())
	b.ResetLinkLen()
	assert.NoError(t, b.Validate())
}

func TestSetMarkerOutsideStoragePanics(t *testing.T) {
	b, err := New(4, payload(4))
	require.NoError(t, err)

	assert.Panics(t, func() { b.SetLinkHeader(-5) })
	assert.NotPanics(t, func() { b.SetLinkHeader(-4) })
}

func TestGSOType_String(t *testing.T) {
	assert.Equal(t, "none", GSOType(0).String())
	assert.Equal(t, "tcpv4|udp_l4", (GSOTCPv4 | GSOUDPL4).String())
}
