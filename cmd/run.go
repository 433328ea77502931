package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/google/gopacket/layers"

	"github.com/mongiaK/openvswitch/internal/config"
	"github.com/mongiaK/openvswitch/internal/core/buffer"
	"github.com/mongiaK/openvswitch/internal/core/gso"
	"github.com/mongiaK/openvswitch/internal/datapath"
	"github.com/mongiaK/openvswitch/internal/eventbus"
	"github.com/mongiaK/openvswitch/internal/iface"
	"github.com/mongiaK/openvswitch/internal/log"
	"github.com/mongiaK/openvswitch/internal/pcapfile"
	"github.com/mongiaK/openvswitch/internal/pipeline"
	"github.com/mongiaK/openvswitch/internal/vport"
)

const datapathName = "ovs-nsh"

// pipelineOptions are the flags shared by encap and decap.
type pipelineOptions struct {
	input    string
	output   string
	inIface  string
	outIface string
	nshOnly  bool // filter live input down to NSH frames
	l3       bool
	srcMAC   string
	dstMAC   string
	mss      int // -1 takes the configured segment size
}

type source interface {
	pipeline.Source
	io.Closer
}

type sink interface {
	pipeline.Sink
	io.Closer
}

func (o *pipelineOptions) openSource() (source, string, error) {
	switch {
	case o.inIface != "" && o.input != "":
		return nil, "", fmt.Errorf("--input and --in-iface are mutually exclusive")
	case o.inIface != "":
		cfg := iface.DefaultConfig(o.inIface)
		cfg.NSHOnly = o.nshOnly
		h, err := iface.Open(cfg)
		return h, o.inIface, err
	case o.input != "":
		r, err := pcapfile.Open(o.input)
		if err != nil {
			return nil, "", err
		}
		if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
			r.Close()
			return nil, "", fmt.Errorf("%s: unsupported link type %v", o.input, lt)
		}
		return r, o.input, nil
	default:
		return nil, "", fmt.Errorf("one of --input or --in-iface is required")
	}
}

func (o *pipelineOptions) openSink() (sink, string, error) {
	switch {
	case o.outIface != "" && o.output != "":
		return nil, "", fmt.Errorf("--output and --out-iface are mutually exclusive")
	case o.outIface != "":
		h, err := iface.Open(iface.DefaultConfig(o.outIface))
		return h, o.outIface, err
	case o.output != "":
		if o.input != "" && filepath.Clean(o.input) == filepath.Clean(o.output) {
			return nil, "", fmt.Errorf("input and output are the same file %s", o.input)
		}
		w, err := pcapfile.Create(o.output, layers.LinkTypeEthernet)
		return w, o.output, err
	default:
		return nil, "", fmt.Errorf("one of --output or --out-iface is required")
	}
}

func (o *pipelineOptions) macs() (src, dst net.HardwareAddr, err error) {
	if src, err = net.ParseMAC(o.srcMAC); err != nil {
		return nil, nil, fmt.Errorf("invalid source mac %q: %w", o.srcMAC, err)
	}
	if dst, err = net.ParseMAC(o.dstMAC); err != nil {
		return nil, nil, fmt.Errorf("invalid destination mac %q: %w", o.dstMAC, err)
	}
	return src, dst, nil
}

func newDatapath(cfg *config.GlobalConfig) (*datapath.Datapath, error) {
	features := gso.FeatureSG
	if cfg.GSO.HWChecksum {
		features |= gso.FeatureHWCsum
	}
	return datapath.New(
		datapath.WithMTU(cfg.Datapath.MTU),
		datapath.WithMaxSegments(cfg.GSO.MaxSegments),
		datapath.WithFeatures(features),
	)
}

// runPipeline copies the input to the output through the actions build
// returns. Both ends are attached as vports for the duration of the run.
func runPipeline(ctx context.Context, cfg *config.GlobalConfig, opts *pipelineOptions,
	build func(dp *datapath.Datapath) ([]pipeline.Action, error), out io.Writer) error {
	dp, err := newDatapath(cfg)
	if err != nil {
		return err
	}
	actions, err := build(dp)
	if err != nil {
		return err
	}

	mss := opts.mss
	if mss < 0 {
		mss = cfg.GSO.SegmentSize
	}
	p, err := pipeline.New(pipeline.Config{
		Datapath:    dp,
		Actions:     actions,
		Headroom:    cfg.Buffer.Headroom,
		Allocator:   buffer.HeapAllocator{MaxSize: cfg.Buffer.MaxSize},
		SegmentSize: mss,
	})
	if err != nil {
		return err
	}

	src, srcName, err := opts.openSource()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, dstName, err := opts.openSink()
	if err != nil {
		return err
	}

	detach, err := attachPorts(cfg, srcName, dstName)
	if err != nil {
		dst.Close()
		return err
	}
	runErr := p.Run(ctx, src, dst)
	closeErr := dst.Close()
	detach()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	stats := p.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"received":  stats.Received,
		"dropped":   stats.Dropped,
		"segmented": stats.Segmented,
		"written":   stats.Written,
	}).Info("pipeline finished")
	fmt.Fprintf(out, "%s -> %s: %d received, %d dropped, %d segmented, %d written\n",
		srcName, dstName, stats.Received, stats.Dropped, stats.Segmented, stats.Written)
	return nil
}

// attachPorts registers the named endpoints as netdev vports. The returned
// function unregisters them and waits for the deletion notifications.
func attachPorts(cfg *config.GlobalConfig, names ...string) (func(), error) {
	bus := eventbus.NewInMemoryEventBus(cfg.Notify.Partitions, cfg.Notify.QueueSize)
	ports, err := vport.NewTable(bus, vport.LogNotifier{})
	if err != nil {
		bus.Close()
		return nil, err
	}
	var attached []string
	for _, name := range names {
		if _, err := ports.Lookup(name); err == nil {
			continue // one interface used for both ends
		}
		v := vport.Vport{PortNo: uint32(len(attached) + 1), Name: name, Type: vport.TypeNetdev, Datapath: datapathName}
		if err := ports.Add(v); err != nil {
			bus.Close()
			return nil, err
		}
		attached = append(attached, name)
	}

	return func() {
		for _, name := range attached {
			if err := ports.DeviceEvent(name, vport.DeviceUnregister); err != nil {
				log.GetLogger().WithError(err).WithField("device", name).Warn("failed to detach vport")
			}
		}
		if err := bus.Close(); err != nil {
			log.GetLogger().WithError(err).Warn("failed to close notification bus")
		}
	}, nil
}
