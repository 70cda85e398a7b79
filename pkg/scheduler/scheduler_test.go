package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
)

func TestNewInvalidTimezone(t *testing.T) {
	cfg := &config.UpdaterConfig{Enabled: false, Timezone: "Not/AZone"}
	_, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error { return nil })
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestNewInvalidSchedule(t *testing.T) {
	cfg := &config.UpdaterConfig{Enabled: true, Timezone: "UTC", Schedule: "not a cron expr"}
	_, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error { return nil })
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestReloadRunsFilesystemOnlyRebuild(t *testing.T) {
	var gotNetwork bool
	var mu sync.Mutex
	done := make(chan struct{})

	cfg := &config.UpdaterConfig{Enabled: false, Timezone: "UTC"}
	s, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error {
		mu.Lock()
		gotNetwork = network
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Reload(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reload")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNetwork {
		t.Error("Reload should trigger a network=false rebuild")
	}
}

func TestTriggerUpdateRunsNetworkRebuild(t *testing.T) {
	var gotNetwork bool
	cfg := &config.UpdaterConfig{Enabled: false, Timezone: "UTC"}
	s, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error {
		gotNetwork = network
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.TriggerUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !gotNetwork {
		t.Error("TriggerUpdate should trigger a network=true rebuild")
	}
}

// TestOverlappingTriggersCoalesce asserts that a second trigger arriving
// while a rebuild is in flight causes exactly one additional rebuild, not
// one rebuild per trigger.
func TestOverlappingTriggersCoalesce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	firstStarted := make(chan struct{})
	var once sync.Once

	cfg := &config.UpdaterConfig{Enabled: false, Timezone: "UTC"}
	s, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			once.Do(func() { close(firstStarted) })
			<-release
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	go s.Reload(context.Background())
	<-firstStarted

	s.Reload(context.Background())
	s.Reload(context.Background())

	close(release)

	deadline := time.After(time.Second)
	for {
		if atomic.LoadInt32(&calls) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected exactly 2 rebuilds (1 running + 1 coalesced), got %d", atomic.LoadInt32(&calls))
		case <-time.After(10 * time.Millisecond):
		}
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected coalescing to cap at 2 rebuilds, got %d", got)
	}
}

func TestStartStopWithNoScheduledJob(t *testing.T) {
	cfg := &config.UpdaterConfig{Enabled: false, Timezone: "UTC"}
	s, err := New(cfg, logging.NewDefault(), func(ctx context.Context, network bool) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	<-s.Stop().Done()
}
