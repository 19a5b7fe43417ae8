package session

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	minSweepInterval     = time.Second
)

// SweeperState describes the idle-session sweeper
type SweeperState struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	LastSweepAt time.Time     `json:"last_sweep_at,omitempty"`
	NextSweepAt time.Time     `json:"next_sweep_at,omitempty"`
	Evicted     int           `json:"evicted"`
}

// Sweeper periodically evicts idle sessions from a Manager
type Sweeper struct {
	mu          sync.RWMutex
	manager     *Manager
	interval    time.Duration
	running     bool
	lastSweepAt time.Time
	nextSweepAt time.Time
	evicted     int
	logger      *log.Logger
}

// NewSweeper creates a sweeper for manager
func NewSweeper(manager *Manager, interval time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.mu.Lock()
	s.running = true
	s.nextSweepAt = time.Now().Add(s.interval)
	s.mu.Unlock()

	s.logger.Printf("Session sweeper started with interval: %v", s.interval)

	defer func() {
		s.mu.Lock()
		s.running = false
		s.nextSweepAt = time.Time{}
		s.mu.Unlock()
		s.logger.Println("Session sweeper stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick performs one sweep
func (s *Sweeper) tick() {
	evicted := s.manager.Sweep()

	s.mu.Lock()
	s.lastSweepAt = time.Now()
	s.nextSweepAt = s.lastSweepAt.Add(s.interval)
	s.evicted += evicted
	s.mu.Unlock()
}

// GetState returns the current sweeper state
func (s *Sweeper) GetState() *SweeperState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &SweeperState{
		Running:     s.running,
		Interval:    s.interval,
		LastSweepAt: s.lastSweepAt,
		NextSweepAt: s.nextSweepAt,
		Evicted:     s.evicted,
	}
}
