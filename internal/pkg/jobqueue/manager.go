package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JakayaMrisho/SurveyPesa/app/models"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/env"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// Initialize builds the global manager with its processor dependencies. Must
// run before GetManager; main wires it during startup.
func Initialize(deps Deps) *Manager {
	managerOnce.Do(func() {
		workerCount := 3
		if v := env.GetEnv("JOB_QUEUE_WORKERS", ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				workerCount = n
			}
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount, deps),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetManager returns the global job queue manager (singleton). Returns nil
// before Initialize.
func GetManager() *Manager {
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Periodic event-log pruning
	cleanupInterval := 1 * time.Hour
	if v := env.GetEnv("EVENT_CLEANUP_INTERVAL_MINUTES", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cleanupInterval = time.Duration(n) * time.Minute
		}
	}
	m.cleanupTicker = time.NewTicker(cleanupInterval)
	m.wg.Add(1)
	go m.cleanupWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// cleanupWorker periodically enqueues an event-log pruning job
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()
	log.Info("[JobQueue Manager] Started event cleanup worker")

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Event cleanup worker stopping")
			return
		case <-m.cleanupTicker.C:
			payload := EventCleanupJobPayload{OlderThanMinutes: eventlog.DefaultRetentionMinutes}
			if _, err := m.queue.EnqueueJob(JobTypeEventCleanup, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueueing event cleanup: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// EnqueuePayoutExecution queues the background execution of an initiated
// payout request.
func (m *Manager) EnqueuePayoutExecution(req *models.PayoutRequest) (*Job, error) {
	payload := PayoutExecuteJobPayload{PayoutRequestID: req.ID}
	return m.queue.EnqueueJob(JobTypePayoutExecute, payload.ToMap())
}
