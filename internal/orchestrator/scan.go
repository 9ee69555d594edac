package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Jawbreaker1/evochain/internal/logging"
)

// ScanResult is one snapshot of the run root.
type ScanResult struct {
	Running  []Identity
	Stale    []Identity
	Frontier []Identity
	// Completed counts archived generations across every condition.
	Completed int
}

// Scanner derives replication state from the directory tree alone. It keeps
// no state between scans apart from a cache of unchanged status logs.
type Scanner struct {
	cache   *statusCache
	readDir func(string) ([]fs.DirEntry, error)
}

func NewScanner() *Scanner {
	return &Scanner{cache: newStatusCache()}
}

type replicationKey struct {
	set         string
	replication int
}

// Scan fails only when the run root itself cannot be read. A condition
// directory that cannot be read is logged and left out of this snapshot.
func (s *Scanner) Scan(ctx context.Context, root string, replications int) (ScanResult, error) {
	logger := logging.FromContext(ctx)
	if s.cache == nil {
		s.cache = newStatusCache()
	}
	readDir := s.readDir
	if readDir == nil {
		readDir = os.ReadDir
	}
	sets, err := readDir(root)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan %s: %w", root, err)
	}
	var result ScanResult
	best := map[replicationKey]Identity{}
	consider := func(id Identity) {
		if id.Replication >= replications {
			return
		}
		key := replicationKey{set: id.Set, replication: id.Replication}
		cur, ok := best[key]
		if !ok || id.Generation > cur.Generation || (id.Generation == cur.Generation && cur.Archived && !id.Archived) {
			best[key] = id
		}
	}
	seen := map[string]struct{}{}

	for _, set := range sets {
		if !set.IsDir() || isHidden(set.Name()) {
			continue
		}
		setDir := filepath.Join(root, set.Name())
		entries, err := readDir(setDir)
		if err != nil {
			logger.Warn("skipping unreadable condition", "set", set.Name(), "error", err)
			continue
		}
		for _, entry := range entries {
			id, ok := parseEntry(set.Name(), entry, false)
			if !ok {
				continue
			}
			logPath := filepath.Join(id.LivePath(root), StatusLogName)
			seen[logPath] = struct{}{}
			if restored, err := restoreProbedLog(logPath); err != nil {
				logger.Warn("status log restore failed", "generation", id.String(), "error", err)
			} else if restored {
				logger.Info("restored status log left aside by lock probe", "generation", id.String())
			}
			switch s.cache.classify(logPath) {
			case StatusFinished:
				consider(id)
			case StatusRunning:
				result.Running = append(result.Running, id)
			default:
				result.Stale = append(result.Stale, id)
			}
		}

		archived, err := readDir(filepath.Join(setDir, ArchiveDirName))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			logger.Warn("skipping unreadable archive", "set", set.Name(), "error", err)
			continue
		}
		for _, entry := range archived {
			id, ok := parseEntry(set.Name(), entry, true)
			if !ok {
				continue
			}
			result.Completed++
			consider(id)
		}
	}
	s.cache.prune(seen)

	for _, id := range best {
		result.Frontier = append(result.Frontier, id)
	}
	sortIdentities(result.Running)
	sortIdentities(result.Stale)
	sortIdentities(result.Frontier)
	return result, nil
}

func parseEntry(set string, entry fs.DirEntry, archived bool) (Identity, bool) {
	if !entry.IsDir() || isHidden(entry.Name()) {
		return Identity{}, false
	}
	rep, gen, err := ParseReplicationDirName(entry.Name())
	if err != nil {
		return Identity{}, false
	}
	return Identity{Set: set, Replication: rep, Generation: gen, Archived: archived}, true
}

func sortIdentities(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Set != b.Set {
			return a.Set < b.Set
		}
		if a.Replication != b.Replication {
			return a.Replication < b.Replication
		}
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		return !a.Archived && b.Archived
	})
}
