package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatusLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		name    string
		content *string
		want    Status
	}{
		{"missing", nil, StatusStale},
		{"empty", ptr(""), StatusRunning},
		{"finished", ptr("Finished! err=0.01\n"), StatusFinished},
		{"finished without newline", ptr("gen 1\nFinished!"), StatusFinished},
		{"finished crlf", ptr("gen 1\r\nFinished! ok\r\n"), StatusFinished},
		{"in progress", ptr("gen 1\ngen 2\n"), StatusRunning},
		{"marker not last", ptr("Finished!\nrestarted\n"), StatusRunning},
		{"marker not at line start", ptr("not Finished!\n"), StatusRunning},
		{"trailing blank line", ptr("Finished!\n\n"), StatusRunning},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "-"), StatusLogName)
			if tc.content != nil {
				writeFile(t, path, *tc.content)
			}
			require.Equal(t, tc.want, ClassifyStatusLog(path))
		})
	}
}

func TestClassifyStatusLogLongLastLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusLogName)
	long := FinishedMarker + strings.Repeat("x", 3*tailChunk)
	writeFile(t, path, strings.Repeat("progress\n", 2000)+long+"\n")
	require.Equal(t, StatusFinished, ClassifyStatusLog(path))
}

func TestStatusCacheRereadsChangedLogs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusLogName)
	writeFile(t, path, "gen 1\n")
	cache := newStatusCache()
	require.Equal(t, StatusRunning, cache.classify(path))
	require.Len(t, cache.entries, 1)

	writeFile(t, path, "gen 1\nFinished!\n")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	require.Equal(t, StatusFinished, cache.classify(path))

	require.NoError(t, os.Remove(path))
	require.Equal(t, StatusStale, cache.classify(path))
	require.Empty(t, cache.entries)
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "stale", StatusStale.String())
	require.Equal(t, "running", StatusRunning.String())
	require.Equal(t, "finished", StatusFinished.String())
}

func ptr[T any](v T) *T { return &v }
