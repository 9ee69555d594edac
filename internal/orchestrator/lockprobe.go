package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/Jawbreaker1/evochain/internal/logging"
)

// probeSuffix names the file a status log is moved to while probing.
const probeSuffix = "_temp"

// LockProbe reports whether the external writer still holds a file.
type LockProbe interface {
	Locked(ctx context.Context, path string) bool
}

// RenameProbe moves the file aside and back. A writer holding the file open
// exclusively makes the rename fail; on unix, where renames of open files
// succeed, an advisory lock attempt is made as well.
type RenameProbe struct {
	// Rename defaults to os.Rename.
	Rename func(oldpath, newpath string) error
}

func (p RenameProbe) Locked(ctx context.Context, path string) bool {
	rename := p.Rename
	if rename == nil {
		rename = os.Rename
	}
	aside := path + probeSuffix
	if err := rename(path, aside); err != nil {
		return true
	}
	if err := rename(aside, path); err != nil {
		// One retry; a log left aside is put back by the next scan.
		if err := rename(aside, path); err != nil {
			logging.FromContext(ctx).Warn("status log left aside after probe", "path", aside, "error", err)
			return true
		}
	}
	return advisoryLocked(path)
}

// restoreProbedLog moves a status log stranded by an interrupted probe back
// into place. It reports whether a log was restored.
func restoreProbedLog(path string) (bool, error) {
	aside := path + probeSuffix
	if _, err := os.Lstat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if _, err := os.Lstat(aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Rename(aside, path); err != nil {
		return false, err
	}
	return true, nil
}

// LockProbeFunc adapts a function to LockProbe.
type LockProbeFunc func(path string) bool

func (f LockProbeFunc) Locked(_ context.Context, path string) bool { return f(path) }
