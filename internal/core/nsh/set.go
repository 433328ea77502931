package nsh

import (
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/tunproto"
)

// Key is the flow-visible part of an NSH header.
type Key struct {
	Flags     uint8
	TTL       uint8
	MDType    MDType
	NextProto tunproto.Code
	SPI       uint32
	SI        uint8
	Context   [4]uint32
}

func (k Key) path() uint32 {
	return k.SPI<<8 | uint32(k.SI)
}

// ExtractKey reads the key of the header at the front of b. Context is only
// filled for MD type 1 headers.
func ExtractKey(b *buffer.Buffer) (Key, error) {
	h, err := frontHeader(b)
	if err != nil {
		return Key{}, err
	}
	k := Key{
		Flags:     h.Flags(),
		TTL:       h.TTL(),
		MDType:    h.MDType(),
		NextProto: h.NextProto(),
		SPI:       h.SPI(),
		SI:        h.SI(),
	}
	if k.MDType == MDType1 && len(h) >= MD1HeaderLen {
		k.Context = h.Context()
	}
	return k, nil
}

func masked(old, key, mask uint32) uint32 {
	return key&mask | old&^mask
}

// Set rewrites the header at the front of b: every bit set in mask is taken
// from key, the rest is kept. MD type, next protocol and MD type 2 metadata
// are never rewritten. A complete checksum on b is kept current.
func Set(b *buffer.Buffer, key, mask Key) error {
	h, err := frontHeader(b)
	if err != nil {
		return err
	}
	setContext := h.MDType() == MDType1 && len(h) >= MD1HeaderLen && mask.Context != [4]uint32{}
	n := BaseHeaderLen
	if setContext {
		n = MD1HeaderLen
	}

	return b.UpdateFront(n, func(p []byte) {
		h := Header(p)
		h.SetFlags(uint8(masked(uint32(h.Flags()), uint32(key.Flags), uint32(mask.Flags))))
		h.SetTTL(uint8(masked(uint32(h.TTL()), uint32(key.TTL), uint32(mask.TTL))))
		h.SetPath(masked(h.Path(), key.path(), mask.path()))
		if setContext {
			ctx := h.Context()
			for i := range ctx {
				ctx[i] = masked(ctx[i], key.Context[i], mask.Context[i])
			}
			h.SetContext(ctx)
		}
	})
}

// DecTTL decrements the TTL of the header at the front of b and returns the
// new value. A header whose TTL would reach zero is left alone and
// core.ErrTTLExpired is returned.
func DecTTL(b *buffer.Buffer) (uint8, error) {
	h, err := frontHeader(b)
	if err != nil {
		return 0, err
	}
	ttl := h.TTL()
	if ttl <= 1 {
		return 0, fmt.Errorf("nsh: ttl %d on spi %#x si %d: %w", ttl, h.SPI(), h.SI(), core.ErrTTLExpired)
	}
	ttl--
	if err := b.UpdateFront(2, func(p []byte) { Header(p).SetTTL(ttl) }); err != nil {
		return 0, err
	}
	return ttl, nil
}
