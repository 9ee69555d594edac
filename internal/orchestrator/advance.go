package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jawbreaker1/evochain/internal/logging"
)

// Advancer turns finished generations into their successors and archives
// them.
type Advancer struct {
	LastGeneration      int
	Formants            int
	TargetsPerCondition int
	Schema              PhenotypeSchema
	Probe               LockProbe
	Journal             *Journal
}

// Advance processes every frontier identity independently. A failure skips
// that identity for this tick only; the next scan finds it again.
func (a *Advancer) Advance(ctx context.Context, root string, frontier []Identity) []Job {
	logger := logging.FromContext(ctx)
	jobs := []Job{}
	for _, id := range frontier {
		dir := id.Path(root)
		if a.Probe != nil && a.Probe.Locked(ctx, filepath.Join(dir, StatusLogName)) {
			logger.Debug("status log still held, retrying next tick", "generation", id.String())
			continue
		}
		job, ok, err := a.advanceOne(ctx, root, id)
		if err != nil {
			logger.Error("advance failed", "generation", id.String(), "error", err)
			a.emit(ctx, EventTypeAdvanceSkipped, id, map[string]any{"error": err.Error()})
			continue
		}
		if ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func (a *Advancer) advanceOne(ctx context.Context, root string, id Identity) (Job, bool, error) {
	if id.Generation >= a.LastGeneration {
		return Job{}, false, a.archive(ctx, root, id)
	}

	next := id.Successor()
	nextDir := next.LivePath(root)
	present, err := exists(nextDir)
	if err != nil {
		return Job{}, false, err
	}
	if present {
		// Already queued or running from an earlier tick.
		return Job{}, false, a.archive(ctx, root, id)
	}
	if err := a.buildSuccessor(id.Path(root), nextDir, next.Generation); err != nil {
		return Job{}, false, err
	}
	logging.FromContext(ctx).Info("generation advanced", "from", id.String(), "to", next.String())
	a.emit(ctx, EventTypeGenerationAdvanced, next, nil)
	if err := a.archive(ctx, root, id); err != nil {
		return Job{}, false, err
	}
	return Job{Identity: next}, true, nil
}

func (a *Advancer) buildSuccessor(parentDir, final string, generation int) error {
	f, err := os.Open(filepath.Join(parentDir, PhenotypeLogName))
	if err != nil {
		return fmt.Errorf("open phenotype log: %w", err)
	}
	evolved, err := ParsePhenotypeLog(f, a.Formants, a.TargetsPerCondition, a.Schema)
	_ = f.Close()
	if err != nil {
		return err
	}
	configured, err := generationTargets(parentDir)
	if err != nil {
		return err
	}
	if err := checkEvolvedTargets(evolved, configured); err != nil {
		return err
	}

	var anatomy []string
	if generation == 1 {
		idx, err := generationAnatomyIndex(parentDir)
		if err != nil {
			return err
		}
		if anatomy, err = anatomyVector(parentDir, idx); err != nil {
			return err
		}
	}

	rows, err := readCSV(filepath.Join(parentDir, TargetsName))
	if err != nil {
		return fmt.Errorf("read targets: %w", err)
	}
	targets, err := RewriteTargets(rows, evolved, anatomy)
	if err != nil {
		return err
	}

	tmp, err := stageDir(final)
	if err != nil {
		return err
	}
	if err := writeSuccessor(tmp, parentDir, targets); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	return publishDir(tmp, final)
}

func writeSuccessor(dir, parentDir string, targets [][]string) error {
	if err := writeCSVFile(filepath.Join(dir, TargetsName), targets); err != nil {
		return err
	}
	for _, name := range []string{GenerationConfigName, AnatomyName} {
		if err := copyFile(filepath.Join(parentDir, name), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// archive moves a generation into its condition's archive. Archived
// identities are left alone.
func (a *Advancer) archive(ctx context.Context, root string, id Identity) error {
	if id.Archived {
		return nil
	}
	src := id.LivePath(root)
	dst := id.ArchivePath(root)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	// A stale archived copy loses to the live directory.
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear archive slot %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	logging.FromContext(ctx).Debug("generation archived", "generation", id.String())
	a.emit(ctx, EventTypeGenerationArchived, id, nil)
	return nil
}

func (a *Advancer) emit(ctx context.Context, eventType string, id Identity, payload map[string]any) {
	if err := a.Journal.Emit(eventType, &id, payload); err != nil {
		logging.FromContext(ctx).Warn("journal append failed", "type", eventType, "error", err)
	}
}
