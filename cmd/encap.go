package cmd

import (
	"context"
	"io"
	"net"

	"github.com/spf13/cobra"

	"github.com/mongiaK/openvswitch/internal/config"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/nsh"
	"github.com/mongiaK/openvswitch/internal/datapath"
	"github.com/mongiaK/openvswitch/internal/pipeline"
)

var encapOpts = &encapOptions{}

type encapOptions struct {
	pipelineOptions
	template string
	decTTL   bool
}

var encapCmd = &cobra.Command{
	Use:   "encap",
	Short: "Push an NSH header onto every packet of a capture",
	Long: `Push an NSH header built from a template onto every frame of a pcap file and
frame the result in an outer Ethernet header with EtherType 0x894F.

By default the whole frame is encapsulated (next protocol Ethernet). With --l3
the frame's Ethernet header is removed first and the network packet is
encapsulated instead. TCP and UDP packets carrying more than --mss payload
bytes are segmented when the result exceeds the configured MTU.

Examples:
  ovs-nsh encap -i in.pcap -o out.pcap -t md1.yaml
  ovs-nsh encap -i in.pcap -o out.pcap -t md2.yaml --l3 --mss 1400
  ovs-nsh encap --in-iface veth0 --out-iface eth1 -t md1.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEncap(cmd.Context(), globalConfig, encapOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := encapCmd.Flags()
	f.StringVarP(&encapOpts.input, "input", "i", "", "input pcap file")
	f.StringVarP(&encapOpts.output, "output", "o", "", "output pcap file")
	f.StringVar(&encapOpts.inIface, "in-iface", "", "receive from this interface instead of a file")
	f.StringVar(&encapOpts.outIface, "out-iface", "", "send to this interface instead of a file")
	f.StringVarP(&encapOpts.template, "template", "t", "", "NSH template file (required)")
	f.BoolVar(&encapOpts.l3, "l3", false, "encapsulate the network packet instead of the whole frame")
	f.BoolVar(&encapOpts.decTTL, "dec-ttl", false, "decrement the NSH TTL after the push")
	f.StringVar(&encapOpts.srcMAC, "src-mac", "02:00:00:00:00:01", "outer Ethernet source address")
	f.StringVar(&encapOpts.dstMAC, "dst-mac", "02:00:00:00:00:02", "outer Ethernet destination address")
	f.IntVar(&encapOpts.mss, "mss", -1, "segment payload size, 0 disables segmentation (default from config)")
	encapCmd.MarkFlagRequired("template")
}

func runEncap(ctx context.Context, cfg *config.GlobalConfig, opts *encapOptions, out io.Writer) error {
	tmpl, err := config.LoadTemplate(opts.template)
	if err != nil {
		return err
	}
	src, dst, err := opts.macs()
	if err != nil {
		return err
	}

	return runPipeline(ctx, cfg, &opts.pipelineOptions, func(dp *datapath.Datapath) ([]pipeline.Action, error) {
		return encapActions(dp, tmpl, opts, src, dst), nil
	}, out)
}

func encapActions(dp *datapath.Datapath, tmpl *nsh.Template, opts *encapOptions, src, dst net.HardwareAddr) []pipeline.Action {
	var actions []pipeline.Action
	if opts.l3 {
		actions = append(actions, dp.PopEth)
	}
	actions = append(actions, func(b *buffer.Buffer) error {
		return dp.PushNSH(b, tmpl)
	})
	if opts.decTTL {
		actions = append(actions, dp.DecTTL)
	}
	return append(actions, func(b *buffer.Buffer) error {
		return dp.PushEth(b, src, dst)
	})
}
