package cmd

import (
	"context"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"github.com/mongiaK/openvswitch/internal/config"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/datapath"
	"github.com/mongiaK/openvswitch/internal/pipeline"
)

var decapOpts = &pipelineOptions{}

var decapCmd = &cobra.Command{
	Use:   "decap",
	Short: "Pop the NSH header of every packet of a capture",
	Long: `Remove the outer Ethernet header and the NSH header of every frame of a pcap
file. Frames that carried a whole Ethernet frame are written as that frame.
Frames that carried a network packet get a new Ethernet header with the
addresses given by --src-mac and --dst-mac.

Examples:
  ovs-nsh decap -i out.pcap -o in.pcap
  ovs-nsh decap --in-iface eth1 --out-iface veth0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecap(cmd.Context(), globalConfig, decapOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := decapCmd.Flags()
	f.StringVarP(&decapOpts.input, "input", "i", "", "input pcap file")
	f.StringVarP(&decapOpts.output, "output", "o", "", "output pcap file")
	f.StringVar(&decapOpts.inIface, "in-iface", "", "receive from this interface instead of a file")
	f.StringVar(&decapOpts.outIface, "out-iface", "", "send to this interface instead of a file")
	f.StringVar(&decapOpts.srcMAC, "src-mac", "02:00:00:00:00:01", "source address for re-framed network packets")
	f.StringVar(&decapOpts.dstMAC, "dst-mac", "02:00:00:00:00:02", "destination address for re-framed network packets")
	f.IntVar(&decapOpts.mss, "mss", 0, "segment payload size, 0 disables segmentation")
}

func runDecap(ctx context.Context, cfg *config.GlobalConfig, opts *pipelineOptions, out io.Writer) error {
	opts.nshOnly = true
	src, dst, err := opts.macs()
	if err != nil {
		return err
	}

	return runPipeline(ctx, cfg, opts, func(dp *datapath.Datapath) ([]pipeline.Action, error) {
		return []pipeline.Action{
			dp.PopEth,
			dp.PopNSH,
			func(b *buffer.Buffer) error {
				if b.Protocol() == layers.EthernetTypeTransparentEthernetBridging {
					return nil
				}
				return dp.PushEth(b, src, dst)
			},
		}, nil
	}, out)
}
