package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"safecircle/internal/notification/models"
)

// DefaultSchedules are cron specs used when none is configured.
var DefaultSchedules = map[models.DigestFrequency]string{
	models.DigestHourly: "@hourly",
	models.DigestDaily:  "0 8 * * *",
	models.DigestWeekly: "0 8 * * 1",
}

// Flusher delivers pending digests for users on a frequency.
type Flusher interface {
	FlushDigests(ctx context.Context, freq models.DigestFrequency) error
}

// Scheduler runs a flush per frequency on its cron spec.
type Scheduler struct {
	flusher  Flusher
	specs    map[models.DigestFrequency]string
	location *time.Location
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[models.DigestFrequency]cron.EntryID
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithTimeout bounds each flush run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler validates specs, filling gaps from DefaultSchedules. Keys are
// frequency names; unknown keys are rejected.
func NewScheduler(flusher Flusher, specs map[string]string, opts ...Option) (*Scheduler, error) {
	if flusher == nil {
		return nil, errors.New("digest flusher is required")
	}
	s := &Scheduler{
		flusher:  flusher,
		specs:    make(map[models.DigestFrequency]string, len(DefaultSchedules)),
		location: time.UTC,
		timeout:  5 * time.Minute,
		logger:   slog.New(slog.DiscardHandler),
		entries:  make(map[models.DigestFrequency]cron.EntryID),
	}
	for f, spec := range DefaultSchedules {
		s.specs[f] = spec
	}
	for name, spec := range specs {
		f, err := models.ParseDigestFrequency(name)
		if err != nil {
			return nil, err
		}
		if _, err := parser.Parse(spec); err != nil {
			return nil, fmt.Errorf("digest schedule %s: %w", f, err)
		}
		s.specs[f] = spec
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers one job per frequency. Jobs inherit ctx values but not
// its cancellation; Stop cancels in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, f := range models.AllDigestFrequencies {
		entry, err := c.AddFunc(s.specs[f], func() { s.run(f) })
		if err != nil {
			s.cancel()
			return fmt.Errorf("schedule %s digest: %w", f, err)
		}
		s.entries[f] = entry
	}
	c.Start()
	s.cron = c
	s.logger.Info("digest scheduler started", "location", s.location.String())
	return nil
}

// Stop waits for running flushes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	cancel := s.cancel
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("digest scheduler stopped")
}

// Next returns when the frequency next fires, or false when not started.
func (s *Scheduler) Next(f models.DigestFrequency) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}, false
	}
	entry, ok := s.entries[f]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entry).Next, true
}

func (s *Scheduler) run(f models.DigestFrequency) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.flusher.FlushDigests(ctx, f); err != nil {
		s.logger.Warn("digest flush failed", "frequency", string(f), "error", err)
		return
	}
	s.logger.Debug("digest flush done", "frequency", string(f), "duration", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
