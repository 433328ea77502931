// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mongiaK/openvswitch/internal/config"
	"github.com/mongiaK/openvswitch/internal/log"
	"github.com/mongiaK/openvswitch/internal/metrics"
)

var (
	// Global flags
	configFile string

	globalConfig  *config.GlobalConfig
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ovs-nsh",
	Short: "ovs-nsh - NSH encapsulation and segmentation datapath",
	Long: `ovs-nsh runs the Network Service Header datapath actions over packet captures.
It pushes and pops NSH headers, keeps checksums current and splits oversized
packets into segments that fit the output MTU.

Features:
  - NSH MD type 1 and MD type 2 headers from YAML templates
  - Ethernet and L3 payloads
  - Software segmentation of TCP and UDP super-packets under NSH
  - Prometheus metrics and file logging`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")

	rootCmd.AddCommand(encapCmd)
	rootCmd.AddCommand(decapCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads the configuration, installs the logger and starts the metrics
// server when it is enabled.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	globalConfig = cfg

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsServer.Start(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if metricsServer == nil {
		return
	}
	if err := metricsServer.Stop(context.Background()); err != nil {
		log.GetLogger().WithError(err).Warn("failed to stop metrics server")
	}
}
