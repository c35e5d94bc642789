package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/repository"
)

// Schedule holds cron specs for the periodic jobs. An empty spec disables
// that job.
type Schedule struct {
	RetryDispatch string
	DedupPrune    string
	DncSnapshot   string
}

// Worker runs the periodic jobs of the worker process.
type Worker struct {
	Starter      *Starter
	Dnc          *DncService
	Webhooks     repository.WebhookRepositoryInterface
	DedupKeep    int
	SnapshotPath string
	JobTimeout   time.Duration
	Log          *zap.Logger

	cron *cron.Cron
}

func NewWorker(starter *Starter, dnc *DncService, webhooks repository.WebhookRepositoryInterface, log *zap.Logger) *Worker {
	return &Worker{
		Starter:    starter,
		Dnc:        dnc,
		Webhooks:   webhooks,
		DedupKeep:  10000,
		JobTimeout: 2 * time.Minute,
		Log:        log,
	}
}

// Schedule registers the jobs. Runs never overlap with themselves and a
// panicking job is logged rather than killing the process.
func (w *Worker) Schedule(ctx context.Context, s Schedule) error {
	logger := cronLogger{w.Log.Sugar()}
	w.cron = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"retry_dispatch", s.RetryDispatch, w.DispatchRetries},
		{"dedup_prune", s.DedupPrune, w.PruneDedup},
		{"dnc_snapshot", s.DncSnapshot, w.SnapshotDnc},
	}
	for _, job := range jobs {
		if job.spec == "" {
			w.Log.Info("job disabled", zap.String("job", job.name))
			continue
		}
		job := job
		if _, err := w.cron.AddFunc(job.spec, func() { w.run(ctx, job.name, job.run) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
		w.Log.Info("job scheduled", zap.String("job", job.name), zap.String("spec", job.spec))
	}
	return nil
}

func (w *Worker) run(ctx context.Context, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, w.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		w.Log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	w.Log.Debug("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

func (w *Worker) Start() {
	w.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish or ctx to end.
func (w *Worker) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (w *Worker) DispatchRetries(ctx context.Context) error {
	n, err := w.Starter.DispatchDue(ctx)
	if n > 0 {
		w.Log.Info("retries dispatched", zap.Int("targets", n))
	}
	return err
}

// PruneDedup trims the processed-webhook index to the newest DedupKeep ids.
// Calls remember their own reconciliation, so pruned ids stay duplicates.
func (w *Worker) PruneDedup(ctx context.Context) error {
	n, err := w.Webhooks.Prune(ctx, w.DedupKeep)
	if err != nil {
		return fmt.Errorf("failed to prune processed webhooks: %w", err)
	}
	if n > 0 {
		w.Log.Info("pruned processed webhooks", zap.Int64("removed", n))
	}
	return nil
}

func (w *Worker) SnapshotDnc(ctx context.Context) error {
	if w.SnapshotPath == "" {
		return nil
	}
	n, err := w.Dnc.ExportSnapshot(ctx, w.SnapshotPath)
	if err != nil {
		return err
	}
	w.Log.Debug("DNC snapshot written", zap.Int("entries", n), zap.String("path", w.SnapshotPath))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
