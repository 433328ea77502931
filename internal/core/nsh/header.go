// Package nsh implements the Network Service Header (RFC 8300) codec: push and
// pop of the header on a packet buffer, and the segmentation offload that
// splits NSH-encapsulated super-packets.
package nsh

import (
	"encoding/binary"
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
)

// Header sizes in bytes.
const (
	BaseHeaderLen = 8
	MD1HeaderLen  = 24
	MaxHeaderLen  = 0x3f * 4
)

// Field limits.
const (
	Version  = 0
	MaxTTL   = 0x3f
	MaxFlags = 0x03
	MaxSPI   = 0xffffff
)

// MDType is the metadata format of the header.
type MDType uint8

const (
	MDType1 MDType = 1
	MDType2 MDType = 2
)

func (t MDType) String() string {
	switch t {
	case MDType1:
		return "md1"
	case MDType2:
		return "md2"
	default:
		return fmt.Sprintf("md(%d)", uint8(t))
	}
}

// Header is a view over the wire bytes of one NSH header. Accessors expect at
// least BaseHeaderLen bytes; MD accessors expect the full header.
//
//	 0                   1                   2                   3
//	|Ver|O|U|    TTL    |   Length  |U|U|U|U|MD Type| Next Protocol |
//	|          Service Path Identifier (SPI)        | Service Index |
//	|                   Context Headers ...                         |
type Header []byte

// Version returns the 2-bit version.
func (h Header) Version() uint8 {
	return h[0] >> 6
}

// Flags returns the O and U bits, O being the high bit.
func (h Header) Flags() uint8 {
	return (h[0] >> 4) & MaxFlags
}

// OAM reports whether the O bit is set.
func (h Header) OAM() bool {
	return h.Flags()&0x02 != 0
}

// TTL returns the 6-bit time to live.
func (h Header) TTL() uint8 {
	return (h[0]&0x0f)<<2 | h[1]>>6
}

// Len returns the header length in bytes as declared by the length field.
func (h Header) Len() int {
	return int(h[1]&0x3f) * 4
}

func (h Header) MDType() MDType {
	return MDType(h[2] & 0x0f)
}

func (h Header) NextProto() tunproto.Code {
	return tunproto.Code(h[3])
}

// SPI returns the 24-bit service path identifier.
func (h Header) SPI() uint32 {
	return binary.BigEndian.Uint32(h[4:8]) >> 8
}

// SI returns the service index.
func (h Header) SI() uint8 {
	return h[7]
}

// Path returns SPI and SI packed as on the wire.
func (h Header) Path() uint32 {
	return binary.BigEndian.Uint32(h[4:8])
}

// Context returns the four MD type 1 context words.
func (h Header) Context() [4]uint32 {
	var c [4]uint32
	for i := range c {
		c[i] = binary.BigEndian.Uint32(h[BaseHeaderLen+4*i:])
	}
	return c
}

func (h Header) SetFlags(f uint8) {
	h[0] = h[0]&0xcf | (f&MaxFlags)<<4
}

func (h Header) SetTTL(ttl uint8) {
	ttl &= MaxTTL
	h[0] = h[0]&0xf0 | ttl>>2
	h[1] = h[1]&0x3f | ttl<<6
}

// SetLen sets the length field; n is in bytes and must be a multiple of 4.
func (h Header) SetLen(n int) {
	h[1] = h[1]&0xc0 | byte(n/4)&0x3f
}

func (h Header) SetMDType(t MDType) {
	h[2] = h[2]&0xf0 | byte(t)&0x0f
}

func (h Header) SetNextProto(c tunproto.Code) {
	h[3] = byte(c)
}

func (h Header) SetPath(path uint32) {
	binary.BigEndian.PutUint32(h[4:8], path)
}

func (h Header) SetContext(c [4]uint32) {
	for i, w := range c {
		binary.BigEndian.PutUint32(h[BaseHeaderLen+4*i:], w)
	}
}

// TLV is one MD type 2 variable-length context header.
type TLV struct {
	Class uint16
	Type  uint8
	Value []byte
}

// wireLen is the TLV size on the wire, value padded to 4 bytes.
func (t TLV) wireLen() int {
	return 4 + (len(t.Value)+3)&^3
}

// TLVs parses the MD type 2 context headers. The returned values alias h.
func (h Header) TLVs() ([]TLV, error) {
	if h.MDType() != MDType2 {
		return nil, fmt.Errorf("nsh: tlvs of %v header: %w", h.MDType(), core.ErrInvalidHeader)
	}
	end := h.Len()
	if end > len(h) {
		return nil, fmt.Errorf("nsh: header declares %d bytes, have %d: %w", end, len(h), core.ErrTruncated)
	}

	var tlvs []TLV
	for off := BaseHeaderLen; off < end; {
		if end-off < 4 {
			return nil, fmt.Errorf("nsh: tlv header at %d overruns header: %w", off, core.ErrInvalidHeader)
		}
		t := TLV{
			Class: binary.BigEndian.Uint16(h[off:]),
			Type:  h[off+2],
		}
		vlen := int(h[off+3] & 0x7f)
		if off+4+vlen > end {
			return nil, fmt.Errorf("nsh: tlv value at %d overruns header: %w", off, core.ErrInvalidHeader)
		}
		t.Value = h[off+4 : off+4+vlen]
		tlvs = append(tlvs, t)
		off += t.wireLen()
	}
	return tlvs, nil
}

func (h Header) String() string {
	if len(h) < BaseHeaderLen {
		return fmt.Sprintf("nsh(truncated %d bytes)", len(h))
	}
	return fmt.Sprintf("nsh(ver=%d flags=%d ttl=%d len=%d %v np=%v spi=%#x si=%d)",
		h.Version(), h.Flags(), h.TTL(), h.Len(), h.MDType(), h.NextProto(), h.SPI(), h.SI())
}
