package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultSessionTTL is how long an agent may stay silent before its
	// session is reclaimed. Must exceed the agent heartbeat period with
	// room for jitter.
	DefaultSessionTTL = 10 * time.Minute
	// DefaultSweepInterval is how often the sweeper checks for expired
	// sessions.
	DefaultSweepInterval = time.Minute
)

// Sweeper periodically expires sessions whose agent stopped heartbeating.
// It runs on its own schedule, independent of message traffic, and talks to
// the registry only through its synchronized API.
type Sweeper struct {
	registry *Registry
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper over the registry. Zero durations fall back
// to the defaults.
func NewSweeper(registry *Registry, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		registry: registry,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	s.logger.Info().
		Dur("ttl", s.ttl).
		Dur("interval", s.interval).
		Msg("Session sweeper started")

	return nil
}

// Stop halts the periodic sweep and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is not running")
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	ctx := c.Stop()
	<-ctx.Done()

	s.logger.Info().Msg("Session sweeper stopped")
	return nil
}

// IsRunning returns whether the sweeper is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SweepNow immediately runs one sweep and returns the removed codes.
func (s *Sweeper) SweepNow() []string {
	removed := s.registry.SweepExpired(time.Now(), s.ttl)
	if len(removed) > 0 {
		s.logger.Info().
			Strs("session_ids", removed).
			Msg("Expired sessions swept")
	}
	return removed
}

func (s *Sweeper) sweep() {
	_ = s.SweepNow()
}
