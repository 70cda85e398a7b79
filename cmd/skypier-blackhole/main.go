package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/smolgroot/skypier-blackhole/pkg/blocklist"
	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/dnsname"
	"github.com/smolgroot/skypier-blackhole/pkg/forwarder"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
	"github.com/smolgroot/skypier-blackhole/pkg/resolver"
	"github.com/smolgroot/skypier-blackhole/pkg/scheduler"
	"github.com/smolgroot/skypier-blackhole/pkg/telemetry"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	cfgPath   string
)

func main() {
	root := &cobra.Command{
		Use:   "skypier-blackhole",
		Short: "A recursive DNS resolver with domain-blocklist enforcement",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/skypier/blackhole.yaml", "path to configuration file")

	root.AddCommand(
		startCmd(),
		stopCmd(),
		reloadCmd(),
		statusCmd(),
		testCmd(),
		addCmd(),
		removeCmd(),
		listCmd(),
		updateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the DNS server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(logger)
	logger.Info("skypier-blackhole starting", "version", version, "build_time", buildTime)

	ctx := context.Background()
	telem, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	metrics, err := telem.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	reg := blocklist.NewRegistry()
	fetcher := blocklist.NewFetcher(logger)
	if err := rebuildAndPublish(ctx, cfg, logger, fetcher, reg, metrics, true); err != nil {
		logger.Error("initial blocklist build failed, serving with an empty snapshot", "error", err)
	}

	fwd := forwarder.New(cfg, logger)
	handler := resolver.NewHandler(reg, fwd, cfg.Server.BlockedResponse, cfg.Logging.LogBlocked, metrics, logger)
	server := resolver.NewServer(cfg, handler, logger, metrics)

	sched, err := scheduler.New(&cfg.Updater, logger, func(ctx context.Context, network bool) error {
		return rebuildAndPublish(ctx, cfg, logger, fetcher, reg, metrics, network)
	})
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	if err := writePidFile(cfg.Server.PidFile); err != nil {
		logger.Warn("failed to write pid file", "path", cfg.Server.PidFile, "error", err)
	}
	defer removePidFile(cfg.Server.PidFile)

	serverCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(serverCtx); err != nil {
			errCh <- err
		}
	}()

	logger.Info("server running", "address", cfg.Server.Addr(), "upstreams", cfg.Server.UpstreamDNS)

	go func() {
		scheduler.RunSignalLoop(logger, func() {
			sched.Reload(context.Background())
		})
		cancel()
	}()

	select {
	case <-serverCtx.Done():
	case err := <-errCh:
		cancel()
		return err
	}

	<-sched.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), resolver.DrainTimeout)
	defer shutdownCancel()
	if err := telem.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	logger.Info("skypier-blackhole stopped")
	return nil
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Classify a domain name against the current blocklist sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := logging.NewDefault()

			snap, err := buildSnapshot(cfg, logger)
			if err != nil {
				return err
			}

			name, err := dnsname.Normalize(args[0])
			if err != nil {
				fmt.Printf("%s: INVALID (%s)\n", args[0], err)
				return nil
			}

			switch snap.Classify(name) {
			case blocklist.BlockedExact:
				fmt.Printf("%s: BLOCKED (exact)\n", name)
			case blocklist.BlockedWildcard:
				fmt.Printf("%s: BLOCKED (wildcard)\n", name)
			default:
				fmt.Printf("%s: ALLOWED\n", name)
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the size of the current blocklist snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			snap, err := buildSnapshot(cfg, logging.NewDefault())
			if err != nil {
				return err
			}
			stats := snap.Stats()
			fmt.Printf("exact: %d\nwildcard: %d\nestimated_bytes: %d\n", stats.ExactCount, stats.WildcardCount, stats.TotalBytesEstimate)
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Fetch remote blocklists and rebuild the local snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := logging.NewDefault()
			fetcher := blocklist.NewFetcher(logger)

			var result blocklist.FetchResult
			if len(cfg.Blocklist.RemoteLists) > 0 {
				result, err = fetcher.Update(context.Background(), cfg.Blocklist.RemoteLists, cfg.Blocklist.RemoteCacheFile)
				if err != nil {
					return err
				}
			}

			snap, err := buildSnapshot(cfg, logger)
			if err != nil {
				return err
			}

			fmt.Printf("downloaded_count: %d\nsources_ok: %d\nsources_failed: %d\nexact: %d\nwildcard: %d\n",
				result.DownloadedCount, result.SourcesOK, result.SourcesFailed, snap.Stats().ExactCount, snap.Stats().WildcardCount)

			if running, pid := serverRunning(cfg.Server.PidFile); running {
				logger.Info("notifying running server to reload", "pid", pid)
				_ = signalRunningServer(cfg.Server.PidFile, syscall.SIGHUP)
			}
			return nil
		},
	}
}

func serverRunning(pidPath string) (bool, int) {
	pid, err := readPidFile(pidPath)
	if err != nil {
		return false, 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}
	return true, pid
}
