package buffer

import "strings"

// GSOType describes which segmentation a super-packet needs.
type GSOType uint8

const (
	GSOTCPv4 GSOType = 1 << iota
	GSOTCPv6
	GSOUDPL4
)

func (t GSOType) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	if t&GSOTCPv4 != 0 {
		parts = append(parts, "tcpv4")
	}
	if t&GSOTCPv6 != 0 {
		parts = append(parts, "tcpv6")
	}
	if t&GSOUDPL4 != 0 {
		parts = append(parts, "udp_l4")
	}
	return strings.Join(parts, "|")
}

// GSOInfo is the segmentation metadata of a super-packet. Size is the payload
// carried by every segment but the last; zero means the packet is not GSO.
type GSOInfo struct {
	Size int
	Type GSOType
	Segs int
}

// IsGSO reports whether the buffer still has to be segmented.
func (b *Buffer) IsGSO() bool {
	return b.gso.Size > 0
}
