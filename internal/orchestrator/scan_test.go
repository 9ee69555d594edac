package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Jawbreaker1/evochain/internal/logging"
)

func finished(id Identity) map[string]string {
	return map[string]string{StatusLogName: "gen\nFinished! " + id.String() + "\n"}
}

func TestScanClassifiesAndSelectsFrontier(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	set := "adult.a_i"
	archived0 := Identity{Set: set, Replication: 0, Generation: 0, Archived: true}
	archived1 := Identity{Set: set, Replication: 0, Generation: 1, Archived: true}
	running := Identity{Set: set, Replication: 0, Generation: 2}
	finished1 := Identity{Set: set, Replication: 1, Generation: 1}
	archivedRep1 := Identity{Set: set, Replication: 1, Generation: 0, Archived: true}
	stale := Identity{Set: set, Replication: 2, Generation: 0}
	otherSet := Identity{Set: "child.a_i", Replication: 0, Generation: 0}

	makeGeneration(t, root, archived0, finished(archived0))
	makeGeneration(t, root, archived1, finished(archived1))
	makeGeneration(t, root, running, map[string]string{StatusLogName: "gen 3\n"})
	makeGeneration(t, root, finished1, finished(finished1))
	makeGeneration(t, root, archivedRep1, finished(archivedRep1))
	makeGeneration(t, root, stale, map[string]string{TargetsName: "x\n"})
	makeGeneration(t, root, otherSet, map[string]string{StatusLogName: ""})

	// Ignored entries.
	writeFile(t, filepath.Join(root, set, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, set, "_tmp-rep5.0-123", StatusLogName), "Finished!\n")
	writeFile(t, filepath.Join(root, set, "results", StatusLogName), "Finished!\n")
	writeFile(t, filepath.Join(root, "_summary", "rep0.0", StatusLogName), "Finished!\n")
	writeFile(t, filepath.Join(root, "_manifest.yaml"), "x")
	writeFile(t, filepath.Join(root, JournalName), "{}\n")

	scanner := NewScanner()
	result, err := scanner.Scan(context.Background(), root, 3)
	require.NoError(t, err)

	want := ScanResult{
		Running:   []Identity{running, otherSet},
		Stale:     []Identity{stale},
		Frontier:  []Identity{archived1, finished1},
		Completed: 3,
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("scan mismatch (-want +got):\n%s", diff)
	}

	again, err := scanner.Scan(context.Background(), root, 3)
	require.NoError(t, err)
	if diff := cmp.Diff(result, again); diff != "" {
		t.Fatalf("rescan not idempotent (-first +second):\n%s", diff)
	}
}

func TestScanPrefersLiveCopyOnTie(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	live := Identity{Set: "adult.a", Replication: 0, Generation: 1}
	archived := live
	archived.Archived = true
	makeGeneration(t, root, live, finished(live))
	makeGeneration(t, root, archived, finished(archived))

	result, err := NewScanner().Scan(context.Background(), root, 1)
	require.NoError(t, err)
	require.Equal(t, []Identity{live}, result.Frontier)
	require.Equal(t, 1, result.Completed)
}

func TestScanIgnoresReplicationsOutOfRange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	id := Identity{Set: "adult.a", Replication: 4, Generation: 0}
	makeGeneration(t, root, id, finished(id))

	result, err := NewScanner().Scan(context.Background(), root, 2)
	require.NoError(t, err)
	require.Empty(t, result.Frontier)
}

func TestScanMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := NewScanner().Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), 1)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestScanSkipsUnreadableCondition(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good := Identity{Set: "adult.a", Replication: 0, Generation: 0}
	bad := Identity{Set: "child.a", Replication: 0, Generation: 0}
	makeGeneration(t, root, good, finished(good))
	makeGeneration(t, root, bad, finished(bad))

	scanner := NewScanner()
	scanner.readDir = func(dir string) ([]fs.DirEntry, error) {
		if dir == filepath.Join(root, bad.Set) {
			return nil, errors.New("input/output error")
		}
		return os.ReadDir(dir)
	}
	var logs bytes.Buffer
	ctx := logging.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&logs, nil)))

	result, err := scanner.Scan(ctx, root, 1)
	require.NoError(t, err)
	require.Equal(t, []Identity{good}, result.Frontier)
	require.Contains(t, logs.String(), "skipping unreadable condition")
	require.Contains(t, logs.String(), `"set":"child.a"`)
}

func TestScanRestoresStatusLogLeftAside(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	id := Identity{Set: "adult.a", Replication: 0, Generation: 1}
	dir := makeGeneration(t, root, id, map[string]string{TargetsName: "x\n"})
	logPath := filepath.Join(dir, StatusLogName)
	writeFile(t, logPath+probeSuffix, "gen\nFinished!\n")

	result, err := NewScanner().Scan(context.Background(), root, 1)
	require.NoError(t, err)
	require.Equal(t, []Identity{id}, result.Frontier)
	require.Empty(t, result.Stale)
	require.Equal(t, "gen\nFinished!\n", readFile(t, logPath))
	require.NoFileExists(t, logPath+probeSuffix)
}
