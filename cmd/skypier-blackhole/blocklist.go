package main

import (
	"context"

	"github.com/smolgroot/skypier-blackhole/pkg/blocklist"
	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
	"github.com/smolgroot/skypier-blackhole/pkg/telemetry"
)

// buildSnapshot reads the configured local/custom blocklist sources (and the
// remote-cache file, if one exists on disk already) and returns a fresh
// Snapshot. It performs no network I/O.
func buildSnapshot(cfg *config.Config, logger *logging.Logger) (*blocklist.Snapshot, error) {
	builder := blocklist.NewBuilder(logger)
	return builder.Build(blocklist.Sources{
		RemoteCacheFile: cfg.Blocklist.RemoteCacheFile,
		LocalLists:      cfg.Blocklist.LocalLists,
		CustomList:      cfg.Blocklist.CustomList,
		EnableWildcards: cfg.Blocklist.EnableWildcards,
	})
}

// rebuildAndPublish is the shared rebuild step handed to the scheduler: on a
// network-inclusive trigger it refreshes the remote-cache file first, then
// always rebuilds the snapshot from files and publishes it to reg.
func rebuildAndPublish(ctx context.Context, cfg *config.Config, logger *logging.Logger, fetcher *blocklist.Fetcher, reg *blocklist.Registry, metrics *telemetry.Metrics, network bool) error {
	if network && len(cfg.Blocklist.RemoteLists) > 0 {
		result, err := fetcher.Update(ctx, cfg.Blocklist.RemoteLists, cfg.Blocklist.RemoteCacheFile)
		if err != nil {
			logger.Error("remote blocklist fetch failed", "error", err)
		} else {
			logger.Info("remote blocklist fetch complete",
				"downloaded", result.DownloadedCount, "sources_ok", result.SourcesOK, "sources_failed", result.SourcesFailed)
		}
	}

	snap, err := buildSnapshot(cfg, logger)
	if err != nil {
		return err
	}
	reg.Publish(snap)
	stats := snap.Stats()
	logger.Info("blocklist snapshot published", "exact", stats.ExactCount, "wildcard", stats.WildcardCount)
	if metrics != nil {
		metrics.RecordBlocklistSize(ctx, int64(stats.ExactCount+stats.WildcardCount))
	}
	return nil
}
