package jobqueue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ledgersync/app/models"
)

const (
	stuckMarkerPrefix = "ledgersync:replay_pending:"
	stuckSweepBatch   = 100
)

// StuckLister finds deliveries that never reached a terminal status.
type StuckLister interface {
	ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]models.WebhookDelivery, error)
}

// Manager manages the job queue and the stuck-delivery sweeper
type Manager struct {
	queue         *Queue
	lister        StuckLister
	stuckAge      time.Duration
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerMu     sync.RWMutex
)

// NewManager wires the queue to the delivery log.
func NewManager(queue *Queue, lister StuckLister, stuckAge time.Duration) *Manager {
	if stuckAge <= 0 {
		stuckAge = 15 * time.Minute
	}
	interval := stuckAge / 3
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Manager{
		queue:         queue,
		lister:        lister,
		stuckAge:      stuckAge,
		sweepInterval: interval,
		stopCh:        make(chan struct{}),
	}
}

// SetManager installs the process-wide manager.
func SetManager(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetManager returns the process-wide manager, or nil before SetManager.
func GetManager() *Manager {
	managerMu.RLock()
	defer managerMu.RUnlock()
	return globalManager
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.deliverySweepWorker()

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

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// deliverySweepWorker periodically enqueues replays for stuck deliveries
func (m *Manager) deliverySweepWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started delivery sweeper (age: %s, interval: %s)", m.stuckAge, m.sweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Delivery sweeper stopping")
			return
		case <-m.sweepTicker.C:
			if n, err := m.SweepStuckDeliveries(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Delivery sweep error: %v", err)
			} else if n > 0 {
				log.Warnf("[JobQueue Manager] Enqueued %d stuck deliveries for replay", n)
			}
		}
	}
}

// SweepStuckDeliveries enqueues one replay per delivery left in received for
// longer than the stuck age. A Redis marker prevents enqueuing the same row
// again until the marker expires.
func (m *Manager) SweepStuckDeliveries(ctx context.Context) (int, error) {
	if m.lister == nil {
		return 0, fmt.Errorf("no delivery lister configured")
	}
	stuck, err := m.lister.ListStuck(ctx, m.stuckAge, stuckSweepBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, d := range stuck {
		marker := stuckMarkerPrefix + strconv.FormatUint(uint64(d.ID), 10)
		ok, err := m.queue.client.SetNX(ctx, marker, time.Now().Unix(), m.stuckAge).Result()
		if err != nil {
			return enqueued, err
		}
		if !ok {
			continue
		}
		if _, err := m.queue.EnqueueWebhookReplay(ctx, d.ID, "stuck in received"); err != nil {
			_ = m.queue.client.Del(ctx, marker).Err()
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
