package scheduler

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/smolgroot/skypier-blackhole/pkg/logging"
)

// RunSignalLoop blocks until a shutdown signal (SIGTERM or SIGINT) arrives,
// calling onReload for every SIGHUP received in the meantime. It returns
// once a shutdown signal is received, so the caller can proceed to drain and
// exit.
func RunSignalLoop(logger *logging.Logger, onReload func()) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading blocklist from files")
			onReload()
		default:
			logger.Info("received shutdown signal", "signal", sig.String())
			return sig
		}
	}
	return nil
}
