package scheduler

import (
	"testing"
	"time"
)

// Stop must join all workers and Start must be callable again afterwards.
func TestManagerStartStopRestart(t *testing.T) {
	m := &Manager{stopCh: make(chan struct{})}

	for cycle := 0; cycle < 2; cycle++ {
		m.Start()

		done := make(chan struct{})
		go func() {
			m.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Stop did not return on cycle %d", cycle)
		}
	}

	// Stopping an already-stopped manager is a no-op.
	m.Stop()
}

func TestIntervalFromEnv(t *testing.T) {
	t.Setenv("RENEWAL_INTERVAL_MINUTES", "15")
	if got := intervalFromEnv("RENEWAL_INTERVAL_MINUTES", 60); got != 15*time.Minute {
		t.Errorf("intervalFromEnv = %v, want 15m", got)
	}

	t.Setenv("DUNNING_INTERVAL_MINUTES", "-5")
	if got := intervalFromEnv("DUNNING_INTERVAL_MINUTES", 60); got != 60*time.Minute {
		t.Errorf("intervalFromEnv with negative value = %v, want default 60m", got)
	}

	if got := intervalFromEnv("TRIAL_CHECK_INTERVAL_MINUTES", 60); got != 60*time.Minute {
		t.Errorf("intervalFromEnv unset = %v, want default 60m", got)
	}
}
