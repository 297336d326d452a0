// Package scheduler triggers the ingestion and broadcast tasks on their
// configured cadences.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"trendbot/internal/logging"
)

// Service is a thin wrapper over cron. Each job runs with a bounded
// timeout and panic recovery; a job still running when its next trigger
// fires is skipped, not stacked.
type Service struct {
	log    logging.Logger
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	defs    []jobDef
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	running *atomic.Bool
}

func New(log logging.Logger) *Service {
	return &Service{
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers a named job. Accepted specs: standard 5-field cron,
// descriptors like "@hourly" / "@every 30m", or a bare Go duration
// ("30m"), which is treated as an interval.
func (s *Service) Add(name, spec string, timeout time.Duration, run func(ctx context.Context) error) error {
	normalized, err := s.normalizeSpec(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{
		name:    name,
		spec:    normalized,
		timeout: timeout,
		run:     run,
		running: &atomic.Bool{},
	})
	if s.started {
		return s.scheduleLocked(s.defs[len(s.defs)-1])
	}
	return nil
}

func (s *Service) normalizeSpec(raw string) (string, error) {
	spec := strings.TrimSpace(raw)
	if spec == "" {
		return "", fmt.Errorf("empty spec")
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("interval must be > 0")
		}
		return "@every " + d.String(), nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", err
	}
	return spec, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))
	for _, d := range s.defs {
		if err := s.scheduleLocked(d); err != nil {
			s.cancel()
			return err
		}
	}
	s.c.Start()
	s.started = true
	s.log.Info("scheduler started", logging.Int("jobs", len(s.defs)))
	return nil
}

func (s *Service) scheduleLocked(d jobDef) error {
	_, err := s.c.AddFunc(d.spec, func() { s.execute(d) })
	return err
}

func (s *Service) execute(d jobDef) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("job still running, skipping trigger", logging.String("job", d.name))
		return
	}
	defer d.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job",
				logging.String("job", d.name),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
		}
	}()

	ctx := s.runCtx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.run(ctx)
	took := time.Since(start)
	if err != nil {
		s.log.Warn("job failed", logging.String("job", d.name), logging.Duration("took", took), logging.Err(err))
		return
	}
	s.log.Debug("job finished", logging.String("job", d.name), logging.Duration("took", took))
}

// Stop halts triggering and waits for in-flight jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.c
	cancel := s.cancel
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	cancel()
	s.log.Info("scheduler stopped")
}
