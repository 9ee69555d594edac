package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Jawbreaker1/evochain/internal/config"
	"github.com/Jawbreaker1/evochain/internal/logging"
)

// Launcher starts the simulation for one generation directory and returns
// without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, dir string) error
}

// Loop is the polling scheduler. All of its state apart from the pending
// queue is re-derived from the run root on every tick.
type Loop struct {
	Config     config.Config
	Conditions []Condition
	Scanner    *Scanner
	Advancer   *Advancer
	Launcher   Launcher
	Journal    *Journal

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	queue     JobQueue
	prepared  bool
	startedAt time.Time
}

func NewLoop(cfg config.Config, conditions []Condition, launcher Launcher) *Loop {
	journal := NewJournal(cfg.RunRoot())
	return &Loop{
		Config:     cfg,
		Conditions: conditions,
		Scanner:    NewScanner(),
		Advancer: &Advancer{
			LastGeneration:      cfg.LastGeneration(),
			Formants:            cfg.Formants,
			TargetsPerCondition: cfg.TargetsPerCondition,
			Schema:              DefaultPhenotypeSchema,
			Probe:               RenameProbe{},
			Journal:             journal,
		},
		Launcher: launcher,
		Journal:  journal,
		Now:      func() time.Time { return time.Now().UTC() },
		Sleep:    sleepContext,
	}
}

func (l *Loop) Root() string {
	return l.Config.RunRoot()
}

// Total is the number of archived generations that ends the run.
func (l *Loop) Total() int {
	return len(l.Conditions) * l.Config.Replications * l.Config.ChainGenerations
}

// Pending returns the queued jobs in dispatch order.
func (l *Loop) Pending() []Job {
	return l.queue.Jobs()
}

// Prepare cleans up after an interrupted run and queues the generation-0
// work that is still missing. Only finished and archived generations
// survive a restart.
func (l *Loop) Prepare(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	root := l.Root()
	l.startedAt = l.now()

	resumed, err := exists(root)
	if err != nil {
		return fmt.Errorf("stat run root: %w", err)
	}
	started := map[replicationKey]struct{}{}
	if resumed {
		l.checkManifest(ctx)
		if err := removeStagingDirs(root); err != nil {
			return err
		}
		result, err := l.Scanner.Scan(ctx, root, l.Config.Replications)
		if err != nil {
			return err
		}
		for _, id := range append(result.Running, result.Stale...) {
			id := id
			if err := os.RemoveAll(id.LivePath(root)); err != nil {
				return fmt.Errorf("discard %s: %w", id, err)
			}
			logger.Info("discarded interrupted generation", "generation", id.String())
			l.emit(ctx, EventTypeReplicationDiscarded, &id, nil)
		}
		for _, id := range result.Frontier {
			started[replicationKey{set: id.Set, replication: id.Replication}] = struct{}{}
		}
	} else if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create run root: %w", err)
	}
	if err := config.WriteManifest(config.ManifestPath(root), l.Config, l.now()); err != nil {
		return err
	}

	var initial []Job
	for _, cond := range l.Conditions {
		params := NewGenerationParams(l.Config, cond)
		for rep := 0; rep < l.Config.Replications; rep++ {
			if _, ok := started[replicationKey{set: cond.SetName(), replication: rep}]; ok {
				continue
			}
			initial = append(initial, Job{
				Identity: Identity{Set: cond.SetName(), Replication: rep},
				Params:   &params,
			})
		}
	}
	l.queue.Push(initial...)
	l.prepared = true

	logger.Info("run prepared",
		"root", root,
		"resumed", resumed,
		"conditions", len(l.Conditions),
		"total", humanize.Comma(int64(l.Total())),
		"queued", l.queue.Len(),
	)
	l.emit(ctx, EventTypeRunStarted, nil, map[string]any{
		"resumed":    resumed,
		"conditions": len(l.Conditions),
		"total":      l.Total(),
		"queued":     l.queue.Len(),
	})
	return nil
}

// Run ticks until every generation is archived or ctx is cancelled. Launched
// processes keep running after cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if !l.prepared {
		if err := l.Prepare(ctx); err != nil {
			return err
		}
	}
	for {
		done, err := l.Tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Tick performs one scan, advance, dispatch-or-sleep cycle. It reports true
// once the run is complete.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	logger := logging.FromContext(ctx)
	root := l.Root()

	result, err := l.Scanner.Scan(ctx, root, l.Config.Replications)
	if err != nil {
		return false, err
	}
	total := l.Total()
	logger.Info("progress",
		"completed", humanize.Comma(int64(result.Completed)),
		"total", humanize.Comma(int64(total)),
		"running", len(result.Running),
		"queued", l.queue.Len(),
		"started", humanize.RelTime(l.startedAt, l.now(), "ago", "from now"),
	)
	if result.Completed >= total {
		logger.Info("run complete", "completed", result.Completed)
		l.emit(ctx, EventTypeRunCompleted, nil, map[string]any{"completed": result.Completed})
		return true, nil
	}

	l.queue.Push(l.Advancer.Advance(ctx, root, result.Frontier)...)

	if l.queue.Len() == 0 || len(result.Running) >= l.Config.MaxProcesses {
		return false, l.Sleep(ctx, l.Config.IdleDelay)
	}
	job, _ := l.queue.Pop()
	if err := l.dispatch(ctx, job); err != nil {
		if errors.Is(err, errJobGone) {
			logger.Warn("dropping job without a directory", "generation", job.Identity.String())
			return false, l.Sleep(ctx, l.Config.DispatchDelay)
		}
		logger.Error("dispatch failed", "generation", job.Identity.String(), "error", err)
		l.queue.Push(job)
		return false, l.Sleep(ctx, l.Config.IdleDelay)
	}
	return false, l.Sleep(ctx, l.Config.DispatchDelay)
}

var errJobGone = errors.New("generation directory missing")

func (l *Loop) dispatch(ctx context.Context, job Job) error {
	dir := job.Identity.LivePath(l.Root())
	if job.Params != nil {
		if err := Materialize(ctx, dir, *job.Params); err != nil {
			return err
		}
	} else {
		present, err := exists(dir)
		if err != nil {
			return err
		}
		if !present {
			// The advancer recreates it from the frontier.
			return errJobGone
		}
	}
	if err := l.Launcher.Launch(ctx, dir); err != nil {
		return fmt.Errorf("launch %s: %w", job.Identity, err)
	}
	logging.FromContext(ctx).Info("generation dispatched", "generation", job.Identity.String())
	l.emit(ctx, EventTypeGenerationDispatched, &job.Identity, nil)
	return nil
}

func (l *Loop) checkManifest(ctx context.Context) {
	logger := logging.FromContext(ctx)
	previous, ok, err := config.ReadManifest(config.ManifestPath(l.Root()))
	if err != nil {
		logger.Warn("previous manifest unreadable", "error", err)
		return
	}
	if !ok {
		return
	}
	changed, err := config.DiffManifest(previous.Config, l.Config)
	if err != nil {
		logger.Warn("manifest diff failed", "error", err)
		return
	}
	for _, key := range changed {
		logger.Warn("configuration changed since previous run", "key", key)
	}
}

func (l *Loop) emit(ctx context.Context, eventType string, id *Identity, payload map[string]any) {
	if err := l.Journal.Emit(eventType, id, payload); err != nil {
		logging.FromContext(ctx).Warn("journal append failed", "type", eventType, "error", err)
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// removeStagingDirs deletes directories left behind by an interrupted
// materialize or advance.
func removeStagingDirs(root string) error {
	sets, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	for _, set := range sets {
		if !set.IsDir() || isHidden(set.Name()) {
			continue
		}
		setDir := filepath.Join(root, set.Name())
		entries, err := os.ReadDir(setDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("scan %s: %w", setDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), tempDirPrefix) {
				if err := os.RemoveAll(filepath.Join(setDir, entry.Name())); err != nil {
					return fmt.Errorf("remove staging dir: %w", err)
				}
			}
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
