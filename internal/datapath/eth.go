package datapath

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/core"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/metrics"
)

// EthernetHeaderLen is the length of an untagged Ethernet header.
const EthernetHeaderLen = 14

// PushEth prepends an Ethernet header carrying the declared protocol of b and
// marks it as the link-layer header. On error b is dropped.
func (d *Datapath) PushEth(b *buffer.Buffer, src, dst net.HardwareAddr) error {
	if err := pushEth(b, src, dst); err != nil {
		return d.drop(metrics.OpPushEth, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpPushEth).Inc()
	return nil
}

func pushEth(b *buffer.Buffer, src, dst net.HardwareAddr) error {
	if len(src) != 6 || len(dst) != 6 {
		return fmt.Errorf("datapath: push_eth addresses %v > %v: %w", src, dst, core.ErrInvalidHeader)
	}
	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: b.Protocol()}
	sb := gopacket.NewSerializeBuffer()
	if err := eth.SerializeTo(sb, gopacket.SerializeOptions{}); err != nil {
		return fmt.Errorf("datapath: push_eth: %w: %w", core.ErrInvalidHeader, err)
	}

	p, err := b.Push(EthernetHeaderLen)
	if err != nil {
		return err
	}
	copy(p, sb.Bytes())
	b.PostPushRcsum(EthernetHeaderLen)

	b.SetLinkHeader(0)
	b.SetNetworkHeader(EthernetHeaderLen)
	b.SetLinkLen(EthernetHeaderLen)
	return nil
}

// PopEth strips the Ethernet header at the front of b and declares the
// protocol it carried. On error b is dropped.
func (d *Datapath) PopEth(b *buffer.Buffer) error {
	if err := popEth(b); err != nil {
		return d.drop(metrics.OpPopEth, b, err)
	}
	metrics.PacketsTotal.WithLabelValues(metrics.OpPopEth).Inc()
	return nil
}

func popEth(b *buffer.Buffer) error {
	if err := b.EnsureAvailable(EthernetHeaderLen); err != nil {
		return fmt.Errorf("datapath: pop_eth: %w", err)
	}
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(b.Bytes(), gopacket.NilDecodeFeedback); err != nil {
		return fmt.Errorf("datapath: pop_eth: %w: %w", core.ErrTruncated, err)
	}
	if eth.Length != 0 {
		return fmt.Errorf("datapath: pop_eth: 802.3 length field %d: %w", eth.Length, core.ErrUnsupportedProto)
	}

	if err := b.PullRcsum(EthernetHeaderLen); err != nil {
		return err
	}
	b.ResetLinkHeader()
	b.ResetNetworkHeader()
	b.ResetLinkLen()
	b.SetProtocol(eth.EthernetType)
	return nil
}
