package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dragoonfly/core"
	"dragoonfly/pkg/config"
)

func main() {
	var configEnv, listenOverride string
	var budgetOverride int64

	rootCmd := &cobra.Command{
		Use:   "dragoonfly-node",
		Short: "run a verifiable erasure-coded content distribution node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configEnv, listenOverride, budgetOverride)
		},
	}
	rootCmd.Flags().StringVar(&configEnv, "config", "", "configuration environment name (e.g. bootstrap)")
	rootCmd.Flags().StringVar(&listenOverride, "listen", "", "override the configured listen multiaddr")
	rootCmd.Flags().Int64Var(&budgetOverride, "budget", 0, "override the configured storage budget in bytes")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runNode(configEnv, listenOverride string, budgetOverride int64) error {
	cfg, err := config.Load(configEnv)
	if err != nil {
		return fmt.Errorf("run node: %w", err)
	}

	listen := cfg.Network.ListenAddr
	if listenOverride != "" {
		listen = listenOverride
	}
	budget := cfg.Storage.AvailableBytes
	if budgetOverride != 0 {
		budget = uint64(budgetOverride)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	powers, err := core.LoadPowers(cfg.Coding.PowersPath)
	if err != nil {
		return fmt.Errorf("run node: loading powers: %w", err)
	}

	rt, err := core.NewRuntime(core.RuntimeConfig{
		Network: core.Config{
			ListenAddr:     listen,
			BootstrapPeers: cfg.Network.BootstrapPeers,
			DiscoveryTag:   cfg.Network.DiscoveryTag,
		},
		BlockDir:   cfg.Storage.BlockDir,
		LedgerPath: cfg.Storage.LedgerPath,
		Budget:     int64(budget),
		Powers:     powers,
	})
	if err != nil {
		return fmt.Errorf("run node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.Infof("node starting, peer id %s", rt.NodeInfo().PeerID)
	rt.Run(ctx)
	return nil
}
