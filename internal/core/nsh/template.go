package nsh

import (
	"bytes"
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
)

// Fields are the base header values a template is built from. The next
// protocol is not among them: push fills it in from the packet.
type Fields struct {
	Flags uint8
	TTL   uint8
	SPI   uint32
	SI    uint8
}

func (f Fields) validate() error {
	if f.Flags > MaxFlags {
		return fmt.Errorf("nsh: flags %#x out of range: %w", f.Flags, core.ErrInvalidHeader)
	}
	if f.TTL > MaxTTL {
		return fmt.Errorf("nsh: ttl %d out of range: %w", f.TTL, core.ErrInvalidHeader)
	}
	if f.SPI > MaxSPI {
		return fmt.Errorf("nsh: spi %#x out of range: %w", f.SPI, core.ErrInvalidHeader)
	}
	return nil
}

// Template is a ready-to-copy NSH header. It is immutable; push copies it into
// the packet and patches the copy.
type Template struct {
	raw []byte
}

// ParseTemplate validates raw as a complete NSH header and returns a template
// holding a copy of it.
func ParseTemplate(raw []byte) (*Template, error) {
	if err := validate(Header(raw)); err != nil {
		return nil, err
	}
	return &Template{raw: bytes.Clone(raw)}, nil
}

// NewMD1Template builds a fixed-length MD type 1 header.
func NewMD1Template(f Fields, ctx [4]uint32) (*Template, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	h := newHeader(f, MDType1, MD1HeaderLen)
	h.SetContext(ctx)
	return ParseTemplate(h)
}

// NewMD2Template builds a variable-length MD type 2 header.
func NewMD2Template(f Fields, tlvs []TLV) (*Template, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	n := BaseHeaderLen
	for _, t := range tlvs {
		if len(t.Value) > 0x7f {
			return nil, fmt.Errorf("nsh: tlv %#x/%d value of %d bytes: %w", t.Class, t.Type, len(t.Value), core.ErrInvalidHeader)
		}
		n += t.wireLen()
	}
	if n > MaxHeaderLen {
		return nil, fmt.Errorf("nsh: md2 header of %d bytes exceeds %d: %w", n, MaxHeaderLen, core.ErrInvalidHeader)
	}

	h := newHeader(f, MDType2, n)
	off := BaseHeaderLen
	for _, t := range tlvs {
		h[off] = byte(t.Class >> 8)
		h[off+1] = byte(t.Class)
		h[off+2] = t.Type
		h[off+3] = byte(len(t.Value))
		copy(h[off+4:], t.Value)
		off += t.wireLen()
	}
	return ParseTemplate(h)
}

func newHeader(f Fields, md MDType, n int) Header {
	h := make(Header, n)
	h.SetFlags(f.Flags)
	h.SetTTL(f.TTL)
	h.SetLen(n)
	h.SetMDType(md)
	h.SetPath(f.SPI<<8 | uint32(f.SI))
	return h
}

func validate(h Header) error {
	if len(h) < BaseHeaderLen {
		return fmt.Errorf("nsh: header of %d bytes: %w", len(h), core.ErrInvalidHeader)
	}
	if len(h)%4 != 0 || len(h) > MaxHeaderLen {
		return fmt.Errorf("nsh: header length %d: %w", len(h), core.ErrInvalidHeader)
	}
	if h.Len() != len(h) {
		return fmt.Errorf("nsh: length field says %d bytes, header has %d: %w", h.Len(), len(h), core.ErrInvalidHeader)
	}
	if h.Version() != Version {
		return fmt.Errorf("nsh: version %d: %w", h.Version(), core.ErrInvalidHeader)
	}
	switch h.MDType() {
	case MDType1:
		if len(h) != MD1HeaderLen {
			return fmt.Errorf("nsh: md1 header of %d bytes: %w", len(h), core.ErrInvalidHeader)
		}
	case MDType2:
		if _, err := h.TLVs(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("nsh: %v: %w", h.MDType(), core.ErrInvalidHeader)
	}
	return nil
}

// Len returns the header length in bytes.
func (t *Template) Len() int {
	return len(t.raw)
}

// Header returns a copy of the template bytes.
func (t *Template) Header() Header {
	return bytes.Clone(t.raw)
}

func (t *Template) String() string {
	return Header(t.raw).String()
}
