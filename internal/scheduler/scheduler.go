package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"sentinel/internal/sentinel"
)

type Service interface {
	Refresh(ctx context.Context) (sentinel.RefreshReport, error)
	Analyze(ctx context.Context) (sentinel.AnalyzeReport, error)
}

// Scheduler runs the poll and analyze operations on cron specs.
type Scheduler struct {
	cron    *cron.Cron
	service Service
	logger  *slog.Logger
	jobCtx  context.Context
}

func New(service Service, pollSpec, analyzeSpec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		service: service,
		logger:  logger,
		jobCtx:  context.Background(),
	}

	if _, err := s.cron.AddFunc(pollSpec, s.poll); err != nil {
		return nil, fmt.Errorf("poll schedule %q: %w", pollSpec, err)
	}
	if _, err := s.cron.AddFunc(analyzeSpec, s.analyze); err != nil {
		return nil, fmt.Errorf("analyze schedule %q: %w", analyzeSpec, err)
	}

	return s, nil
}

// Run starts the jobs and blocks until ctx is done, then waits for running
// jobs to finish. Jobs run under ctx, so a cancellation reaches them.
func (s *Scheduler) Run(ctx context.Context) error {
	s.jobCtx = ctx
	s.cron.Start()

	<-ctx.Done()

	<-s.cron.Stop().Done()

	return ctx.Err()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) poll() {
	report, err := s.service.Refresh(s.jobCtx)
	if err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}

	s.logger.Info("scheduled refresh", "status", report.Status, "skipped", report.Skipped)
}

func (s *Scheduler) analyze() {
	report, err := s.service.Analyze(s.jobCtx)
	if err != nil {
		s.logger.Error("scheduled analysis failed", "error", err)
		return
	}

	s.logger.Info("scheduled analysis", "status", report.Status, "skipped", report.Skipped)
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
