package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/campushq/campusbill/internal/pkg/dunning"
	"github.com/campushq/campusbill/internal/pkg/env"
	"github.com/campushq/campusbill/internal/pkg/lifecycle"
	"github.com/campushq/campusbill/internal/pkg/usage"
	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the periodic billing work: subscription renewals, trial
// expirations, dunning escalation and API-call counter flushing. Renewal and
// dunning batches are idempotent, so overlapping or repeated ticks are safe.
type Manager struct {
	lifecycle *lifecycle.Service
	dunning   *dunning.Engine
	usage     *usage.Service

	renewalTicker *time.Ticker
	trialTicker   *time.Ticker
	dunningTicker *time.Ticker
	flushTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// Setup creates the global scheduler manager (singleton).
func Setup(lifecycleSvc *lifecycle.Service, dunningEngine *dunning.Engine, usageSvc *usage.Service) *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			lifecycle: lifecycleSvc,
			dunning:   dunningEngine,
			usage:     usageSvc,
			stopCh:    make(chan struct{}),
		}
	})
	return globalManager
}

// GetManager returns the global scheduler manager. Setup must run first.
func GetManager() *Manager {
	return globalManager
}

// Start starts the background billing workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting billing background workers")

	m.renewalTicker = time.NewTicker(intervalFromEnv("RENEWAL_INTERVAL_MINUTES", 60))
	m.wg.Add(1)
	go m.renewalWorker()

	m.trialTicker = time.NewTicker(intervalFromEnv("TRIAL_CHECK_INTERVAL_MINUTES", 60))
	m.wg.Add(1)
	go m.trialWorker()

	m.dunningTicker = time.NewTicker(intervalFromEnv("DUNNING_INTERVAL_MINUTES", 60))
	m.wg.Add(1)
	go m.dunningWorker()

	m.flushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the background billing workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping billing background workers...")

	if m.renewalTicker != nil {
		m.renewalTicker.Stop()
	}
	if m.trialTicker != nil {
		m.trialTicker.Stop()
	}
	if m.dunningTicker != nil {
		m.dunningTicker.Stop()
	}
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Scheduler] Stopped successfully")
}

// renewalWorker advances due subscription periods and finalizes period-end
// cancellations.
func (m *Manager) renewalWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Renewal worker stopping")
			return
		case <-m.renewalTicker.C:
			if _, err := m.lifecycle.ProcessRenewals(context.Background(), time.Now()); err != nil {
				log.Errorf("[Scheduler] Renewal run failed: %v", err)
			}
		}
	}
}

// trialWorker converts expired trials.
func (m *Manager) trialWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Trial worker stopping")
			return
		case <-m.trialTicker.C:
			if _, err := m.lifecycle.ProcessTrialExpirations(time.Now()); err != nil {
				log.Errorf("[Scheduler] Trial expiration run failed: %v", err)
			}
		}
	}
}

// dunningWorker advances due dunning campaigns, hourly by default.
func (m *Manager) dunningWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Dunning worker stopping")
			return
		case <-m.dunningTicker.C:
			if _, err := m.dunning.ProcessDueCampaigns(time.Now()); err != nil {
				log.Errorf("[Scheduler] Dunning run failed: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes API call counters from Redis to DB.
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Counter flush worker stopping")
			return
		case <-m.flushTicker.C:
			if err := m.usage.FlushAPICalls(); err != nil {
				log.Errorf("[Scheduler] Counter flush error: %v", err)
			}
		}
	}
}

func intervalFromEnv(key string, defaultMinutes int) time.Duration {
	minutes := env.GetIntEnv(key, defaultMinutes)
	if minutes <= 0 {
		minutes = defaultMinutes
	}
	return time.Duration(minutes) * time.Minute
}
