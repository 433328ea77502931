// Package buffer implements the packet buffer shared by the NSH codec and the
// segmentation layers.
//
// A Buffer is a window [data, tail) over a backing storage that may have free
// space (headroom) in front of the data. Link-layer and network-layer markers
// are positions inside the storage, so they stay valid while the window moves.
// Storage can be shared between buffers (Clone); every operation that writes
// into storage first makes it private to the writer.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
)

// HeadroomPad is the alignment applied to headroom when the storage has to be
// reallocated to make room at the front.
const HeadroomPad = 64

const unset = -1

type storage struct {
	buf  []byte
	refs atomic.Int32
}

func newStorage(buf []byte) *storage {
	s := &storage{buf: buf}
	s.refs.Store(1)
	return s
}

func (s *storage) release() {
	s.refs.Add(-1)
}

// Buffer is a packet together with its parsing markers and offload state.
// A Buffer is owned by one goroutine at a time.
type Buffer struct {
	st    *storage
	alloc Allocator

	data int
	tail int

	mac     int
	network int
	macLen  int

	protocol layers.EthernetType
	csum     Checksum
	gso      GSOInfo
}

// Option configures a Buffer at construction.
type Option func(*Buffer)

// WithAllocator sets the allocator used for this buffer and its reallocations.
func WithAllocator(a Allocator) Option {
	return func(b *Buffer) {
		b.alloc = a
	}
}

// WithProtocol sets the declared protocol.
func WithProtocol(p layers.EthernetType) Option {
	return func(b *Buffer) {
		b.protocol = p
	}
}

// WithLinkHeader marks the first n bytes of the payload as link-layer header
// and the rest as the network-layer packet.
func WithLinkHeader(n int) Option {
	return func(b *Buffer) {
		b.mac = b.data
		b.network = b.data + n
		b.macLen = n
	}
}

// WithChecksum sets the initial checksum state.
func WithChecksum(c Checksum) Option {
	return func(b *Buffer) {
		b.csum = c
	}
}

// New returns a buffer holding a copy of payload with headroom free bytes in
// front of it. Markers start unset unless an option sets them.
func New(headroom int, payload []byte, opts ...Option) (*Buffer, error) {
	if headroom < 0 {
		headroom = 0
	}
	b := &Buffer{
		alloc:   DefaultAllocator,
		mac:     unset,
		network: unset,
	}
	b.data = headroom
	b.tail = headroom + len(payload)
	for _, opt := range opts {
		opt(b)
	}

	buf, err := b.alloc.Alloc(b.tail)
	if err != nil {
		return nil, outOfMemory("new buffer", err)
	}
	copy(buf[headroom:], payload)
	b.st = newStorage(buf)

	if err := b.Validate(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func outOfMemory(op string, err error) error {
	if errors.Is(err, core.ErrOutOfMemory) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrOutOfMemory, err)
}

// Len returns the number of data bytes.
func (b *Buffer) Len() int {
	return b.tail - b.data
}

// Bytes returns the data bytes. The slice aliases the storage; callers must
// not write through it unless the buffer is private (see Writable).
func (b *Buffer) Bytes() []byte {
	return b.st.buf[b.data:b.tail:b.tail]
}

// Headroom returns the free bytes in front of the data.
func (b *Buffer) Headroom() int {
	return b.data
}

// Shared reports whether the storage is referenced by another buffer.
func (b *Buffer) Shared() bool {
	return b.st.refs.Load() > 1
}

// Clone returns a buffer sharing this buffer's storage. Both are read-only
// until one of them writes, at which point the writer gets a private copy.
func (b *Buffer) Clone() *Buffer {
	b.st.refs.Add(1)
	c := *b
	return &c
}

// Release drops this buffer's reference to its storage. The buffer must not be
// used afterwards.
func (b *Buffer) Release() {
	if b.st != nil {
		b.st.release()
		b.st = nil
	}
}

// Writable returns the data bytes after making the storage private.
func (b *Buffer) Writable() ([]byte, error) {
	if err := b.GrowFront(0); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// GrowFront ensures n bytes of private, writable headroom in front of the
// data, reallocating (and unsharing) the storage when needed.
func (b *Buffer) GrowFront(n int) error {
	if n < 0 {
		panic(fmt.Sprintf("buffer: grow front by negative length %d", n))
	}
	if b.data >= n && !b.Shared() {
		return nil
	}
	delta := 0
	if b.data < n {
		delta = alignUp(n-b.data, HeadroomPad)
	}
	return b.realloc(delta)
}

func (b *Buffer) realloc(delta int) error {
	buf, err := b.alloc.Alloc(b.tail + delta)
	if err != nil {
		return outOfMemory(fmt.Sprintf("grow front by %d", delta), err)
	}
	copy(buf[delta:], b.st.buf[:b.tail])

	b.st.release()
	b.st = newStorage(buf)
	b.data += delta
	b.tail += delta
	if b.mac != unset {
		b.mac += delta
	}
	if b.network != unset {
		b.network += delta
	}
	return nil
}

// Push exposes n more bytes at the front of the data and returns them for
// writing. The bytes hold whatever the headroom held before.
func (b *Buffer) Push(n int) ([]byte, error) {
	if err := b.GrowFront(n); err != nil {
		return nil, err
	}
	b.data -= n
	return b.st.buf[b.data : b.data+n : b.data+n], nil
}

// ShrinkFront removes n bytes from the front of the data. Markers keep their
// storage positions, so a marker may end up in front of the data.
func (b *Buffer) ShrinkFront(n int) error {
	if n < 0 {
		panic(fmt.Sprintf("buffer: shrink front by negative length %d", n))
	}
	if err := b.EnsureAvailable(n); err != nil {
		return err
	}
	b.data += n
	return nil
}

// EnsureAvailable checks that n contiguous bytes can be read from the front.
// Storage is always linear, so nothing has to be pulled in.
func (b *Buffer) EnsureAvailable(n int) error {
	if n > b.Len() {
		return fmt.Errorf("need %d bytes, have %d: %w", n, b.Len(), core.ErrTruncated)
	}
	return nil
}

// PostPushRcsum folds the first n data bytes, just pushed, into a complete
// checksum. Other checksum modes are left alone.
func (b *Buffer) PostPushRcsum(n int) {
	if b.csum.Mode != ChecksumComplete {
		return
	}
	b.csum.Value = addFront(b.csum.Value, b.st.buf[b.data:b.data+n])
}

// PullRcsum removes n bytes from the front and takes them out of a complete
// checksum.
func (b *Buffer) PullRcsum(n int) error {
	if err := b.EnsureAvailable(n); err != nil {
		return err
	}
	if b.csum.Mode == ChecksumComplete {
		b.csum.Value = removeFront(b.csum.Value, b.st.buf[b.data:b.data+n], b.st.buf[b.data+n:b.tail])
	}
	return b.ShrinkFront(n)
}

// UpdateFront lets fn rewrite the first n data bytes in place and keeps a
// complete checksum current.
func (b *Buffer) UpdateFront(n int, fn func(p []byte)) error {
	if err := b.EnsureAvailable(n); err != nil {
		return err
	}
	data, err := b.Writable()
	if err != nil {
		return err
	}
	p := data[:n:n]
	if b.csum.Mode == ChecksumComplete {
		b.csum.Value = removeFront(b.csum.Value, p, data[n:])
	}
	fn(p)
	if b.csum.Mode == ChecksumComplete {
		b.csum.Value = addFront(b.csum.Value, p)
	}
	return nil
}

// Sibling returns a new buffer holding a copy of payload that shares this
// buffer's allocator and declared protocol. Its markers are reset to the data
// front and its checksum is marked as already verified.
func (b *Buffer) Sibling(headroom int, payload []byte) (*Buffer, error) {
	s, err := New(headroom, payload,
		WithAllocator(b.alloc),
		WithProtocol(b.protocol),
		WithChecksum(Checksum{Mode: ChecksumUnnecessary}))
	if err != nil {
		return nil, err
	}
	s.ResetLinkHeader()
	s.ResetNetworkHeader()
	s.ResetLinkLen()
	return s, nil
}

// Protocol returns the declared EtherType of the data.
func (b *Buffer) Protocol() layers.EthernetType {
	return b.protocol
}

// SetProtocol sets the declared EtherType.
func (b *Buffer) SetProtocol(p layers.EthernetType) {
	b.protocol = p
}

// Checksum returns the checksum state.
func (b *Buffer) Checksum() Checksum {
	return b.csum
}

// SetChecksum replaces the checksum state.
func (b *Buffer) SetChecksum(c Checksum) {
	b.csum = c
}

// GSO returns the segmentation metadata.
func (b *Buffer) GSO() GSOInfo {
	return b.gso
}

// SetGSO replaces the segmentation metadata.
func (b *Buffer) SetGSO(g GSOInfo) {
	b.gso = g
}

// ResetLinkHeader moves the link-layer marker to the data front.
func (b *Buffer) ResetLinkHeader() {
	b.mac = b.data
}

// ResetNetworkHeader moves the network-layer marker to the data front.
func (b *Buffer) ResetNetworkHeader() {
	b.network = b.data
}

// ResetLinkLen recomputes the link-layer length from the two markers.
func (b *Buffer) ResetLinkLen() {
	if b.mac == unset || b.network == unset {
		b.macLen = 0
		return
	}
	b.macLen = b.network - b.mac
}

// SetLinkHeader places the link-layer marker offset bytes from the data front.
// The offset may be negative; the marker must stay inside the storage.
func (b *Buffer) SetLinkHeader(offset int) {
	b.mac = b.markerAt(offset)
}

// SetNetworkHeader places the network-layer marker offset bytes from the
// data front.
func (b *Buffer) SetNetworkHeader(offset int) {
	b.network = b.markerAt(offset)
}

func (b *Buffer) markerAt(offset int) int {
	pos := b.data + offset
	if pos < 0 || pos > b.tail {
		panic(fmt.Sprintf("buffer: marker offset %d outside storage [%d, %d]", offset, -b.data, b.Len()))
	}
	return pos
}

// SetLinkLen sets the link-layer length.
func (b *Buffer) SetLinkLen(n int) {
	b.macLen = n
}

// LinkLen returns the link-layer length.
func (b *Buffer) LinkLen() int {
	return b.macLen
}

// LinkOffset returns the link-layer marker relative to the data front.
func (b *Buffer) LinkOffset() (int, bool) {
	if b.mac == unset {
		return 0, false
	}
	return b.mac - b.data, true
}

// NetworkOffset returns the network-layer marker relative to the data front.
func (b *Buffer) NetworkOffset() (int, bool) {
	if b.network == unset {
		return 0, false
	}
	return b.network - b.data, true
}

// LinkHeader returns the bytes between the link-layer and network-layer
// markers, or nil when either is unset.
func (b *Buffer) LinkHeader() []byte {
	if b.mac == unset || b.network == unset {
		return nil
	}
	return b.st.buf[b.mac:b.network:b.network]
}

// NetworkHeader returns the bytes from the network-layer marker to the tail.
func (b *Buffer) NetworkHeader() []byte {
	if b.network == unset {
		return nil
	}
	return b.st.buf[b.network:b.tail:b.tail]
}

// Validate checks the marker invariants.
func (b *Buffer) Validate() error {
	if b.data < 0 || b.data > b.tail || b.tail > len(b.st.buf) {
		return fmt.Errorf("buffer: data window [%d, %d) outside storage of %d bytes", b.data, b.tail, len(b.st.buf))
	}
	if b.mac != unset && (b.mac < 0 || b.mac > b.tail) {
		return fmt.Errorf("buffer: link marker %d outside storage", b.mac)
	}
	if b.network != unset && (b.network < 0 || b.network > b.tail) {
		return fmt.Errorf("buffer: network marker %d outside storage", b.network)
	}
	if b.mac != unset && b.network != unset {
		if b.network < b.mac {
			return fmt.Errorf("buffer: network marker %d before link marker %d", b.network, b.mac)
		}
		if b.macLen != b.network-b.mac {
			return fmt.Errorf("buffer: link length %d, markers are %d bytes apart", b.macLen, b.network-b.mac)
		}
	}
	return nil
}

// Snapshot records the buffer's state so a multi-step operation can undo
// itself. The snapshot keeps a reference to the current storage, which makes
// it shared: any write after the snapshot lands in a fresh copy.
type Snapshot struct {
	state Buffer
}

// Snapshot captures the current state.
func (b *Buffer) Snapshot() *Snapshot {
	b.st.refs.Add(1)
	return &Snapshot{state: *b}
}

// Restore puts the buffer back exactly as it was when s was taken. s must not
// be used afterwards.
func (b *Buffer) Restore(s *Snapshot) {
	old := b.st
	*b = s.state
	if old != nil {
		old.release()
	}
	s.state.st = nil
}

// Discard drops a snapshot that is no longer needed.
func (s *Snapshot) Discard() {
	if s.state.st != nil {
		s.state.st.release()
		s.state.st = nil
	}
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
