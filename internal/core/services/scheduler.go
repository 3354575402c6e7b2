package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/core/ports/driving"
	"github.com/custodia-labs/rmsync/internal/logger"
)

var _ driving.Scheduler = (*Scheduler)(nil)

const (
	// historyKeep is the number of results retained per task.
	historyKeep = 100

	defaultTick = time.Minute
)

// taskFunc runs one scheduled task and reports how many items it handled.
type taskFunc func(ctx context.Context) (int, error)

// Scheduler fires the built-in tasks against the sync service on their
// configured intervals. Task state survives restarts through the store.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	syncSvc driving.SyncService
	runners map[string]taskFunc
	tick    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewScheduler wires the task runners to syncSvc.
func NewScheduler(config domain.SchedulerConfig, store driven.SchedulerStore, syncSvc driving.SyncService) *Scheduler {
	s := &Scheduler{
		config:   config,
		store:    store,
		syncSvc:  syncSvc,
		tick:     defaultTick,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
	s.runners = map[string]taskFunc{
		domain.TaskIDTargetSync:   s.syncTargets,
		domain.TaskIDGapReconcile: s.reconcileGaps,
	}
	return s
}

// Start blocks until ctx is done or Stop is called. A second Start while
// running returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	if err := s.reconcileTasks(ctx); err != nil {
		logger.Error("scheduler: initialising tasks: %v", err)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.dispatchDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// Stop ends the loop and waits for in-flight tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// reconcileTasks brings the stored tasks in line with the configuration.
// A task disabled since the last start is deleted so it cannot fire from
// stale state.
func (s *Scheduler) reconcileTasks(ctx context.Context) error {
	for _, bt := range domain.BuiltinTasks {
		cfg := s.config.GetTaskConfig(bt.ID)
		if !cfg.Enabled {
			if err := s.store.DeleteTask(ctx, bt.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.upsertTask(ctx, bt.ID, bt.Name, cfg); err != nil {
			return err
		}
	}
	return nil
}

// upsertTask creates the task or applies a changed interval, which resets
// the next run to one interval from now.
func (s *Scheduler) upsertTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case task == nil:
		task = &domain.ScheduledTask{ID: id, Name: name, Interval: cfg.Interval, NextRun: s.now().Add(cfg.Interval)}
	case task.Interval != cfg.Interval:
		task.Interval = cfg.Interval
		task.NextRun = s.now().Add(cfg.Interval)
	}
	task.Enabled = cfg.Enabled
	return s.store.SaveTask(ctx, task)
}

// dispatchDue launches every due task that is not already running.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: listing tasks: %v", err)
		return
	}

	now := s.now()
	for i := range tasks {
		if tasks[i].Due(now) {
			s.launch(ctx, tasks[i])
		}
	}
}

// launch runs task in the background and persists its outcome.
func (s *Scheduler) launch(ctx context.Context, task domain.ScheduledTask) {
	run, ok := s.runners[task.ID]
	if !ok {
		logger.Error("scheduler: unknown task %q", task.ID)
		return
	}

	s.mu.Lock()
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running, skipping", task.ID)
		return
	}
	s.inFlight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.ID)
			s.mu.Unlock()
		}()

		result := domain.TaskResult{TaskID: task.ID, StartedAt: s.now()}
		n, err := run(ctx)
		result.EndedAt = s.now()
		result.ItemsProcessed = n
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
		}
		task.Complete(result)

		logger.Info("scheduler: %s finished in %s (%d items)", task.ID, result.Duration().Round(time.Millisecond), n)
		s.persist(ctx, &task, &result)
	}()
}

func (s *Scheduler) persist(ctx context.Context, task *domain.ScheduledTask, result *domain.TaskResult) {
	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Error("scheduler: saving task %s: %v", task.ID, err)
	}
	if err := s.store.RecordResult(ctx, result); err != nil {
		logger.Error("scheduler: recording result for %s: %v", task.ID, err)
	}
	if err := s.store.PruneHistory(ctx, historyKeep); err != nil {
		logger.Error("scheduler: pruning history: %v", err)
	}
}

// targets returns the configured targets, or every registered one.
func (s *Scheduler) targets() []string {
	if len(s.config.Targets) > 0 {
		return s.config.Targets
	}
	return s.syncSvc.Targets()
}

// eachTarget applies fn to every target, summing counts and joining errors
// so one failing target does not starve the others.
func (s *Scheduler) eachTarget(ctx context.Context, fn func(ctx context.Context, target string) (int, error)) (int, error) {
	if s.syncSvc == nil {
		return 0, nil
	}
	var total int
	var errs []error
	for _, target := range s.targets() {
		n, err := fn(ctx, target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// syncTargets runs one sync per target and returns the units synced.
func (s *Scheduler) syncTargets(ctx context.Context) (int, error) {
	return s.eachTarget(ctx, func(ctx context.Context, target string) (int, error) {
		res, err := s.syncSvc.Run(ctx, driving.RunOptions{Target: target})
		if err != nil {
			return 0, err
		}
		return res.Report.Synced, nil
	})
}

// reconcileGaps marks gaps pending so the next sync admits them as backlog.
func (s *Scheduler) reconcileGaps(ctx context.Context) (int, error) {
	return s.eachTarget(ctx, func(ctx context.Context, target string) (int, error) {
		res, err := s.syncSvc.Backfill(ctx, driving.BackfillOptions{Target: target, EnqueueOnly: true})
		if err != nil {
			return 0, err
		}
		return res.MissingCount(), nil
	})
}
