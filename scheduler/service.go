// Package scheduler runs configured jobs on cron triggers with reentrancy
// protection and optional leader-only execution.
//
// Each job owns a running flag: a trigger that fires while the previous run
// is still in flight is skipped entirely, not queued. Jobs marked leaderOnly
// are skipped when a configured leader check reports this instance is not the
// leader. Job errors are swallowed at the scheduler level: they are logged
// with elapsed time and never stop future runs of that or any other job.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/scaffold"
	"github.com/GoCodeAlone/scaffold/metrics"
)

// Job is the executable unit a scheduled task invokes on each trigger fire.
type Job interface {
	Run(ctx context.Context, options map[string]any) error
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc func(ctx context.Context, options map[string]any) error

func (f JobFunc) Run(ctx context.Context, options map[string]any) error {
	return f(ctx, options)
}

// Resolver maps a job config's module reference to an executable Job.
type Resolver func(moduleRef string) (Job, error)

// LeaderCheck reports whether this instance currently holds leadership.
type LeaderCheck func() bool

// Task is the runtime counterpart of a configured job.
type Task struct {
	cfg     scaffold.JobConfig
	job     Job
	entryID cron.EntryID
	timer   *time.Timer
	running atomic.Bool
}

// Running reports whether the task's trigger callback is currently executing.
func (t *Task) Running() bool {
	return t.running.Load()
}

// Service schedules and executes jobs. Cancellation stops future triggers
// but does not interrupt an in-flight run.
type Service struct {
	mu          sync.Mutex
	cfg         scaffold.SchedulerSettings
	logger      scaffold.Logger
	metrics     *metrics.Collector
	cron        *cron.Cron
	tasks       map[string]*Task
	leaderCheck LeaderCheck
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
}

// Option configures a Service.
type Option func(*Service)

// WithLeaderCheck installs the leadership probe consulted by leaderOnly jobs.
// Without a probe, leaderOnly jobs run unconditionally.
func WithLeaderCheck(check LeaderCheck) Option {
	return func(s *Service) {
		s.leaderCheck = check
	}
}

// NewService creates a scheduler for the given settings. The configured
// timezone is applied to cron evaluation; an invalid timezone falls back to
// the local location with a warning.
func NewService(cfg scaffold.SchedulerSettings, logger scaffold.Logger, collector *metrics.Collector, opts ...Option) *Service {
	loc := time.Local
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Warn("Invalid scheduler timezone, using local", "timezone", cfg.Timezone, "error", err)
		} else {
			loc = parsed
		}
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		cron:    cron.New(cron.WithLocation(loc)),
		tasks:   make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init registers every enabled configured job, resolving each job's module
// reference through the resolver. A resolver failure is a configuration
// error and aborts initialization. When the scheduler is globally disabled,
// Init is a no-op.
func (s *Service) Init(resolver Resolver) error {
	if !s.cfg.Enabled {
		s.logger.Debug("Scheduler disabled, skipping job registration")
		return nil
	}

	for _, jc := range s.cfg.Jobs {
		if !jc.IsEnabled() {
			s.logger.Debug("Job disabled, skipping", "job", jc.Name)
			continue
		}

		job, err := resolver(jc.Module)
		if err != nil {
			return fmt.Errorf("resolving module %q for job %q: %w", jc.Module, jc.Name, err)
		}
		if err := s.Register(jc.Name, jc, job); err != nil {
			return err
		}
	}
	return nil
}

// Register creates a cron-triggered task for the job. It fails when the name
// is already taken or the cron expression doesn't parse.
func (s *Service) Register(name string, cfg scaffold.JobConfig, job Job) error {
	if job == nil {
		return fmt.Errorf("%w: %q", ErrNilJob, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %q", ErrJobAlreadyRegistered, name)
	}

	task := &Task{cfg: cfg, job: job}
	entryID, err := s.cron.AddFunc(cronSpec(cfg), func() {
		s.fire(name, task)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %q: %w", cfg.Cron, name, err)
	}

	task.entryID = entryID
	s.tasks[name] = task
	s.logger.Info("Job registered", "job", name, "cron", cfg.Cron, "leaderOnly", cfg.LeaderOnly)
	return nil
}

// cronSpec applies a job-level timezone override via the CRON_TZ prefix.
// Descriptor expressions like @hourly evaluate the same in every location.
func cronSpec(cfg scaffold.JobConfig) string {
	if cfg.Timezone == "" || strings.HasPrefix(cfg.Cron, "CRON_TZ=") || strings.HasPrefix(cfg.Cron, "TZ=") {
		return cfg.Cron
	}
	return "CRON_TZ=" + cfg.Timezone + " " + cfg.Cron
}

// RunAfter schedules a one-shot task that fires once after delay, with the
// same reentrancy and cancellation contract as cron tasks. An empty name is
// assigned a generated one; the effective name is returned.
func (s *Service) RunAfter(name string, delay time.Duration, cfg scaffold.JobConfig, job Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("%w: %q", ErrNilJob, name)
	}
	if name == "" {
		name = "oneshot-" + uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return "", fmt.Errorf("%w: %q", ErrJobAlreadyRegistered, name)
	}

	task := &Task{cfg: cfg, job: job}
	task.timer = time.AfterFunc(delay, func() {
		s.fire(name, task)
		s.remove(name)
	})
	s.tasks[name] = task
	s.logger.Debug("One-shot task scheduled", "job", name, "delay", delay)
	return name, nil
}

// fire is the trigger callback shared by cron and one-shot tasks.
func (s *Service) fire(name string, task *Task) {
	if task.running.Load() {
		s.logger.Warn("Previous run still in flight, skipping fire", "job", name)
		s.metrics.JobSkip(name, "running")
		return
	}

	if task.cfg.LeaderOnly && s.leaderCheck != nil && !s.leaderCheck() {
		s.logger.Debug("Not the leader, skipping fire", "job", name)
		s.metrics.JobSkip(name, "not_leader")
		return
	}

	if !task.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous run still in flight, skipping fire", "job", name)
		s.metrics.JobSkip(name, "running")
		return
	}
	defer task.running.Store(false)

	ctx := s.runContext()
	start := time.Now()
	s.logger.Info("Job started", "job", name)

	if err := task.job.Run(ctx, task.cfg.Options); err != nil {
		s.logger.Error("Job failed", "job", name, "elapsed", time.Since(start), "error", err)
		s.metrics.JobRun(name, "error")
		return
	}

	s.logger.Info("Job completed", "job", name, "elapsed", time.Since(start))
	s.metrics.JobRun(name, "success")
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Start begins cron evaluation. Tasks registered afterwards participate in
// the running schedule. Starting a globally disabled scheduler is an error.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrSchedulerDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started", "jobs", len(s.tasks), "timezone", s.cfg.Timezone)
	return nil
}

// Stop halts cron evaluation and waits for in-flight runs to finish, up to
// the caller's deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler shutdown timed out with runs in flight")
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Cancel stops and removes the named task. Future triggers stop; an
// in-flight run is not interrupted.
func (s *Service) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}

	if task.timer != nil {
		task.timer.Stop()
	} else {
		s.cron.Remove(task.entryID)
	}
	delete(s.tasks, name)
	s.logger.Info("Job cancelled", "job", name)
	return nil
}

// CancelAll cancels every registered task.
func (s *Service) CancelAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Cancel(name); err != nil {
			s.logger.Debug("Cancel raced with task removal", "job", name, "error", err)
		}
	}
}

// HasTask reports whether a task is registered under name.
func (s *Service) HasTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.tasks[name]
	return exists
}

// TaskCount returns the number of registered tasks.
func (s *Service) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Trigger fires the named task immediately, outside its cron schedule,
// subject to the same reentrancy and leader checks.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	task, exists := s.tasks[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	s.fire(name, task)
	return nil
}

func (s *Service) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}
