// Package tunproto translates between the compact next-protocol codes carried
// in tunnel headers such as NSH and EtherTypes.
package tunproto

import (
	"fmt"

	"github.com/google/gopacket/layers"
)

// Code is a next-protocol value as carried in the tunnel header.
type Code uint8

// Codes assigned by the IANA "NSH Next Protocol" registry.
const (
	None     Code = 0
	IPv4     Code = 1
	IPv6     Code = 2
	Ethernet Code = 3
	NSH      Code = 4
	MPLSUC   Code = 5
)

// EtherType values gopacket does not name.
const (
	EthernetTypeNSH layers.EthernetType = 0x894f
)

func (c Code) String() string {
	switch c {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case Ethernet:
		return "ethernet"
	case NSH:
		return "nsh"
	case MPLSUC:
		return "mpls"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// Entry binds one code to one EtherType.
type Entry struct {
	Code      Code
	EtherType layers.EthernetType
}

// Table is a read-only bijection between codes and EtherTypes. Codes and
// EtherTypes outside the table are unsupported in both directions.
type Table struct {
	toEth   map[Code]layers.EthernetType
	fromEth map[layers.EthernetType]Code
}

// NewTable builds a table and rejects entries that would break the bijection.
// Code 0 and EtherType 0 are reserved for "unknown" and may not be mapped.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{
		toEth:   make(map[Code]layers.EthernetType, len(entries)),
		fromEth: make(map[layers.EthernetType]Code, len(entries)),
	}
	for _, e := range entries {
		if e.Code == None || e.EtherType == 0 {
			return nil, fmt.Errorf("tunproto: reserved value in entry %v/%#04x", e.Code, uint16(e.EtherType))
		}
		if prev, ok := t.toEth[e.Code]; ok {
			return nil, fmt.Errorf("tunproto: code %v already mapped to %#04x", e.Code, uint16(prev))
		}
		if prev, ok := t.fromEth[e.EtherType]; ok {
			return nil, fmt.Errorf("tunproto: ethertype %#04x already mapped to %v", uint16(e.EtherType), prev)
		}
		t.toEth[e.Code] = e.EtherType
		t.fromEth[e.EtherType] = e.Code
	}
	return t, nil
}

// MustNewTable is NewTable for statically known entries.
func MustNewTable(entries ...Entry) *Table {
	t, err := NewTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Default is the mapping used by the NSH codec.
var Default = MustNewTable(
	Entry{IPv4, layers.EthernetTypeIPv4},
	Entry{IPv6, layers.EthernetTypeIPv6},
	Entry{Ethernet, layers.EthernetTypeTransparentEthernetBridging},
	Entry{NSH, EthernetTypeNSH},
	Entry{MPLSUC, layers.EthernetTypeMPLSUnicast},
)

// ToEtherType decodes a code.
func (t *Table) ToEtherType(c Code) (layers.EthernetType, bool) {
	p, ok := t.toEth[c]
	return p, ok
}

// FromEtherType encodes an EtherType.
func (t *Table) FromEtherType(p layers.EthernetType) (Code, bool) {
	c, ok := t.fromEth[p]
	return c, ok
}

// Entries returns the mapping in code order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.toEth))
	for c := Code(1); c != 0; c++ {
		if p, ok := t.toEth[c]; ok {
			out = append(out, Entry{Code: c, EtherType: p})
		}
	}
	return out
}
