package orchestrator

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
)

type Status int

const (
	// StatusStale means no status log exists: the directory was never
	// launched or its launch was lost.
	StatusStale Status = iota
	StatusRunning
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	default:
		return "stale"
	}
}

const tailChunk = 4096

// ClassifyStatusLog reports the state of a generation from its status log.
// An empty log, or one the writer still holds open exclusively, counts as
// running.
func ClassifyStatusLog(path string) Status {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StatusStale
		}
		return StatusRunning
	}
	status, err := readStatus(path, info.Size())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StatusStale
		}
		return StatusRunning
	}
	return status
}

func readStatus(path string, size int64) (Status, error) {
	if size == 0 {
		return StatusRunning, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return StatusRunning, err
	}
	defer f.Close()
	line, err := lastLine(f, size)
	if err != nil {
		return StatusRunning, err
	}
	if bytes.HasPrefix(line, []byte(FinishedMarker)) {
		return StatusFinished, nil
	}
	return StatusRunning, nil
}

// lastLine returns the final line of r, ignoring one trailing newline. It
// reads backwards from the end, growing the window until a line break is
// found or the start of the file is reached.
func lastLine(r io.ReaderAt, size int64) ([]byte, error) {
	window := int64(tailChunk)
	for {
		if window > size {
			window = size
		}
		buf := make([]byte, window)
		if _, err := r.ReadAt(buf, size-window); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		body := bytes.TrimSuffix(buf, []byte("\n"))
		body = bytes.TrimSuffix(body, []byte("\r"))
		if i := bytes.LastIndexByte(body, '\n'); i >= 0 {
			return body[i+1:], nil
		}
		if window == size {
			return body, nil
		}
		window *= 2
	}
}

type statusKey struct {
	path    string
	size    int64
	modTime int64
}

// statusCache remembers classifications of logs that have not changed since
// they were last read.
type statusCache struct {
	entries map[string]statusEntry
}

type statusEntry struct {
	key    statusKey
	status Status
}

func newStatusCache() *statusCache {
	return &statusCache{entries: map[string]statusEntry{}}
}

func (c *statusCache) classify(path string) Status {
	info, err := os.Stat(path)
	if err != nil {
		delete(c.entries, path)
		if errors.Is(err, fs.ErrNotExist) {
			return StatusStale
		}
		return StatusRunning
	}
	key := statusKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if entry, ok := c.entries[path]; ok && entry.key == key {
		return entry.status
	}
	status, err := readStatus(path, key.size)
	if err != nil {
		// Unreadable logs are retried on the next scan.
		delete(c.entries, path)
		if errors.Is(err, fs.ErrNotExist) {
			return StatusStale
		}
		return StatusRunning
	}
	c.entries[path] = statusEntry{key: key, status: status}
	return status
}

// prune drops entries for logs that were not seen during the last scan.
func (c *statusCache) prune(seen map[string]struct{}) {
	for path := range c.entries {
		if _, ok := seen[path]; !ok {
			delete(c.entries, path)
		}
	}
}
