package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"creditscan/internal/config"
	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/scanner"
	"creditscan/internal/store"
)

// Scanner is the scanner surface driven by the daemon.
type Scanner interface {
	ScanPending(ctx context.Context) ([]scanner.Report, error)
	CheckForNewReferenceIntros(ctx context.Context) (int, error)
	CheckDirectory(ctx context.Context, root string) (int, error)
	InvalidateDirectory(ctx context.Context, root string) (int, error)
}

// Store is the read side of the local store used by the API.
type Store interface {
	PendingRecords(ctx context.Context) ([]*store.Record, error)
	Stats(ctx context.Context) (store.Counts, error)
	EpisodesForDirectory(ctx context.Context, root, dir string) ([]*episode.Episode, error)
}

// Job names used in logs and status.
const (
	jobRecheck    = "recheck"
	jobScan       = "scan"
	jobIntroPoll  = "intro_poll"
	jobInvalidate = "invalidate"
)

// JobStatus is the outcome of the most recent run of a job.
type JobStatus struct {
	LastRun  time.Time     `json:"last_run"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Runs     int           `json:"runs"`
}

// Daemon schedules scanner jobs and serves the API.
type Daemon struct {
	cfg     *config.Config
	scanner Scanner
	store   Store
	logger  *slog.Logger

	jobMu  sync.Mutex
	jobs   sync.WaitGroup
	queued singleflight.Group

	running atomic.Bool
	started time.Time
	ctx     context.Context

	statusMu sync.Mutex
	status   map[string]JobStatus
}

// New constructs a daemon.
func New(cfg *config.Config, sc Scanner, st Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || sc == nil || st == nil {
		return nil, errors.New("daemon requires config, scanner and store")
	}
	return &Daemon{
		cfg:     cfg,
		scanner: sc,
		store:   st,
		logger:  logging.NewComponentLogger(logger, "daemon"),
		status:  make(map[string]JobStatus),
	}, nil
}

// Run blocks until ctx is cancelled. It starts the API, performs the startup
// recheck and an initial scan, then runs the scheduled jobs.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)
	d.started = time.Now()
	d.ctx = ctx

	schedule := cron.New(
		cron.WithLogger(cronLogger{logger: d.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: d.logger}), cron.SkipIfStillRunning(cronLogger{logger: d.logger})),
	)
	if _, err := schedule.AddFunc(d.cfg.Daemon.ScanSchedule, func() { d.runJob(ctx, jobScan, d.scanPending) }); err != nil {
		return fmt.Errorf("scan schedule: %w", err)
	}
	if _, err := schedule.AddFunc(d.cfg.Daemon.IntroPollSchedule, func() { d.runJob(ctx, jobIntroPoll, d.pollIntros) }); err != nil {
		return fmt.Errorf("intro poll schedule: %w", err)
	}

	api := newAPIServer(d.cfg.Paths.APIBind, d, d.logger)
	if err := api.start(ctx); err != nil {
		return err
	}

	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		d.startup(ctx)
	}()

	schedule.Start()
	d.logger.Info("creditscan daemon started",
		logging.String("scan_schedule", d.cfg.Daemon.ScanSchedule),
		logging.String("intro_poll_schedule", d.cfg.Daemon.IntroPollSchedule),
	)

	<-ctx.Done()
	<-schedule.Stop().Done()
	api.stop()
	d.jobs.Wait()
	d.logger.Info("creditscan daemon stopped")
	return nil
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) startup(ctx context.Context) {
	if d.cfg.Daemon.RecheckUndetectedOnStartup || d.cfg.Daemon.RecheckSilenceOnStartup {
		d.runJob(ctx, jobRecheck, d.recheck)
	}
	d.runJob(ctx, jobIntroPoll, d.pollIntros)
	d.runJob(ctx, jobScan, d.scanPending)
}

// runJob runs fn under the job mutex and records its outcome.
func (d *Daemon) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	d.jobMu.Lock()
	defer d.jobMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)

	d.statusMu.Lock()
	status := d.status[name]
	status.LastRun = started
	status.Duration = elapsed
	status.Runs++
	status.Error = ""
	if err != nil {
		status.Error = err.Error()
	}
	d.status[name] = status
	d.statusMu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(d.logger, "daemon job failed", "job_failed",
			logging.String("job", name),
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
		)
		return
	}
	d.logger.Debug("daemon job finished", logging.String("job", name), logging.Duration("elapsed", elapsed))
}

// submit runs fn as a job in the background. Submissions sharing key while
// an earlier one is still queued or running are folded into it.
func (d *Daemon) submit(name, key string, fn func(context.Context) error) {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		_, _, shared := d.queued.Do(name+":"+key, func() (any, error) {
			d.runJob(ctx, name, fn)
			return nil, nil
		})
		if shared {
			d.logger.Debug("job folded into queued run", logging.String("job", name), logging.String("key", key))
		}
	}()
}

// Status returns a copy of the per-job status.
func (d *Daemon) Status() map[string]JobStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	out := make(map[string]JobStatus, len(d.status))
	for name, status := range d.status {
		out[name] = status
	}
	return out
}

func (d *Daemon) recheck(ctx context.Context) error {
	var errs []error
	for _, root := range d.cfg.Paths.LibraryRoots {
		marked, err := d.scanner.CheckDirectory(ctx, root)
		if err != nil {
			errs = append(errs, fmt.Errorf("recheck %s: %w", root, err))
			continue
		}
		d.logger.Info("startup recheck finished", logging.String(logging.FieldDirectory, root), logging.Int("marked", marked))
	}
	return errors.Join(errs...)
}

func (d *Daemon) scanPending(ctx context.Context) error {
	reports, err := d.scanner.ScanPending(ctx)
	for _, report := range reports {
		d.logger.Info("directory scanned",
			logging.String(logging.FieldScanID, report.ScanID),
			logging.String(logging.FieldDirectory, report.Directory),
			logging.String("mode", report.Mode),
			logging.Int("committed", report.Committed),
			logging.Int("failed", report.Failed),
			logging.Duration("elapsed", report.Elapsed),
		)
	}
	return err
}

func (d *Daemon) pollIntros(ctx context.Context) error {
	processed, err := d.scanner.CheckForNewReferenceIntros(ctx)
	if processed > 0 {
		d.logger.Info("reference intros processed", logging.Int("count", processed))
	}
	return err
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
