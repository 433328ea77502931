// Package gso implements generic segmentation of super-packets and the offload
// registry that dispatches segmentation by declared protocol.
//
// A Segmenter splits one buffer into an ordered list of buffers whose payload
// fits the segment size carried in the buffer's GSO metadata. Contract shared
// by every Segmenter in this module:
//   - on success with a non-empty list the input buffer is released;
//   - a nil list with a nil error means there was nothing to do, and the input
//     is untouched;
//   - on error the input is untouched.
package gso

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
)

// Features is the capability mask of the device a packet is sent through.
type Features uint32

const (
	FeatureSG Features = 1 << iota
	FeatureHWCsum
	FeatureTSO
	FeatureTSO6
	FeatureGSOUDPL4
)

// FeaturesNone is an empty mask: everything is done in software.
const FeaturesNone Features = 0

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureSG, "sg"},
	{FeatureHWCsum, "hw_csum"},
	{FeatureTSO, "tso"},
	{FeatureTSO6, "tso6"},
	{FeatureGSOUDPL4, "gso_udp_l4"},
}

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range featureNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// CanOffload reports whether the device segments packets of type t itself.
func (f Features) CanOffload(t buffer.GSOType) bool {
	var need Features
	if t&buffer.GSOTCPv4 != 0 {
		need |= FeatureTSO
	}
	if t&buffer.GSOTCPv6 != 0 {
		need |= FeatureTSO6
	}
	if t&buffer.GSOUDPL4 != 0 {
		need |= FeatureGSOUDPL4
	}
	return need != 0 && f&need == need
}

// Segmenter splits a super-packet into segments.
type Segmenter interface {
	Segment(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error)
}

// SegmenterFunc adapts a function to Segmenter.
type SegmenterFunc func(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error)

// Segment implements Segmenter.
func (f SegmenterFunc) Segment(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error) {
	return f(b, features)
}

// Registry maps declared protocols to their segmenters. It is itself a
// Segmenter that dispatches on the buffer's declared protocol.
type Registry struct {
	mu       sync.RWMutex
	offloads map[layers.EthernetType]Segmenter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		offloads: make(map[layers.EthernetType]Segmenter),
	}
}

// NewDefaultRegistry returns a registry with the IPv4, IPv6 and transparent
// Ethernet bridging offloads installed.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.offloads[layers.EthernetTypeIPv4] = Inet{}
	r.offloads[layers.EthernetTypeIPv6] = Inet{}
	r.offloads[layers.EthernetTypeTransparentEthernetBridging] = Ethernet{Inner: r}
	return r
}

// Register installs s for protocol p.
func (r *Registry) Register(p layers.EthernetType, s Segmenter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.offloads[p]; exists {
		return fmt.Errorf("gso: offload for ethertype %#04x already registered", uint16(p))
	}
	r.offloads[p] = s
	return nil
}

// Unregister removes the offload for protocol p, if any.
func (r *Registry) Unregister(p layers.EthernetType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.offloads, p)
}

// Lookup returns the offload for protocol p.
func (r *Registry) Lookup(p layers.EthernetType) (Segmenter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.offloads[p]
	return s, ok
}

// Segment implements Segmenter.
func (r *Registry) Segment(b *buffer.Buffer, features Features) ([]*buffer.Buffer, error) {
	s, ok := r.Lookup(b.Protocol())
	if !ok {
		return nil, fmt.Errorf("gso: no offload for ethertype %#04x: %w", uint16(b.Protocol()), core.ErrUnsupportedProto)
	}
	return s.Segment(b, features)
}

// Release frees every buffer in segs.
func Release(segs []*buffer.Buffer) {
	for _, s := range segs {
		s.Release()
	}
}
