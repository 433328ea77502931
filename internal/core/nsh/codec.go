package nsh

import (
	"fmt"

	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
)

// Codec pushes and pops NSH headers, translating next-protocol codes with its
// table.
type Codec struct {
	table *tunproto.Table
}

// NewCodec returns a codec using table t.
func NewCodec(t *tunproto.Table) *Codec {
	return &Codec{table: t}
}

var defaultCodec = NewCodec(tunproto.Default)

// Push prepends tmpl to b using the default protocol table.
func Push(b *buffer.Buffer, tmpl *Template) error {
	return defaultCodec.Push(b, tmpl)
}

// Pop strips the NSH header at the front of b using the default protocol
// table and returns the inner protocol.
func Pop(b *buffer.Buffer) (layers.EthernetType, error) {
	return defaultCodec.Pop(b)
}

// Push prepends tmpl to b. A packet that still carries link-layer framing is
// announced as Ethernet; otherwise the next protocol is translated from b's
// declared protocol. On success b is declared NSH and its markers sit at the
// new front with no link-layer header. On error b is unchanged.
func (c *Codec) Push(b *buffer.Buffer, tmpl *Template) error {
	if tmpl == nil {
		return fmt.Errorf("nsh: push without template: %w", core.ErrInvalidHeader)
	}

	np := tunproto.Ethernet
	if b.LinkLen() == 0 {
		code, ok := c.table.FromEtherType(b.Protocol())
		if !ok {
			return fmt.Errorf("nsh: push over ethertype %#04x: %w", uint16(b.Protocol()), core.ErrUnsupportedProto)
		}
		np = code
	}

	n := tmpl.Len()
	p, err := b.Push(n)
	if err != nil {
		return fmt.Errorf("nsh: push %d bytes: %w", n, err)
	}
	copy(p, tmpl.raw)
	Header(p).SetNextProto(np)
	b.PostPushRcsum(n)

	b.SetProtocol(tunproto.EthernetTypeNSH)
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	return nil
}

// Pop strips the NSH header at the front of b and returns the inner protocol,
// which also becomes b's declared protocol. Markers are reset to the new
// front. On error b is unchanged.
func (c *Codec) Pop(b *buffer.Buffer) (layers.EthernetType, error) {
	h, proto, err := c.inspect(b)
	if err != nil {
		return 0, err
	}
	if err := b.PullRcsum(len(h)); err != nil {
		return 0, err
	}
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	b.SetProtocol(proto)
	return proto, nil
}

// inspect validates the header at the front of b without changing b. The
// returned header aliases b's storage.
func (c *Codec) inspect(b *buffer.Buffer) (Header, layers.EthernetType, error) {
	h, err := frontHeader(b)
	if err != nil {
		return nil, 0, err
	}
	proto, ok := c.table.ToEtherType(h.NextProto())
	if !ok {
		return nil, 0, fmt.Errorf("nsh: next protocol %v: %w", h.NextProto(), core.ErrUnsupportedProto)
	}
	return h, proto, nil
}

// frontHeader returns the complete header at the front of b.
func frontHeader(b *buffer.Buffer) (Header, error) {
	if err := b.EnsureAvailable(BaseHeaderLen); err != nil {
		return nil, fmt.Errorf("nsh: base header: %w", err)
	}
	n := Header(b.Bytes()).Len()
	if n < BaseHeaderLen {
		return nil, fmt.Errorf("nsh: length field %d below base header: %w", n, core.ErrTruncated)
	}
	if err := b.EnsureAvailable(n); err != nil {
		return nil, fmt.Errorf("nsh: header: %w", err)
	}
	return Header(b.Bytes()[:n:n]), nil
}
