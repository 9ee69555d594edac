//go:build !windows

package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jawbreaker1/evochain/internal/orchestrator"
)

func TestLaunchAppendsOutputToStatusLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, orchestrator.StatusLogName)
	require.NoError(t, os.WriteFile(logPath, []byte("previous\n"), 0o644))

	launcher := Launcher{Command: "/bin/sh", Args: []string{"-c", `echo "Finished! $0"`}}
	require.NoError(t, launcher.Launch(context.Background(), dir))

	require.Eventually(t, func() bool {
		return orchestrator.ClassifyStatusLog(logPath) == orchestrator.StatusFinished
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "previous\nFinished! "+dir+"\n", string(data))
}

func TestLaunchFailureLeavesNoStatusLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	launcher := Launcher{Command: filepath.Join(dir, "missing-binary")}
	require.Error(t, launcher.Launch(context.Background(), dir))

	_, err := os.Stat(filepath.Join(dir, orchestrator.StatusLogName))
	require.True(t, os.IsNotExist(err), "got %v", err)
}

func TestResolvePrefersJavaPath(t *testing.T) {
	t.Parallel()

	javaDir := t.TempDir()
	java := filepath.Join(javaDir, "java")
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\n"), 0o755))

	_, err := Resolve(javaDir, filepath.Join(t.TempDir(), "Agent.jar"))
	require.ErrorIs(t, err, ErrNotFound)

	jar := filepath.Join(t.TempDir(), "Agent.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))
	launcher, err := Resolve(javaDir, jar)
	require.NoError(t, err)
	require.Equal(t, java, launcher.Command)
	require.Equal(t, []string{"-jar", jar}, launcher.Args)

	var path string
	for _, kv := range launcher.Env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	require.True(t, strings.HasPrefix(path, javaDir), "PATH=%q", path)
}

func TestWithPathPrefix(t *testing.T) {
	t.Parallel()

	env := withPathPrefix([]string{"HOME=/home/x", "PATH=/usr/bin"}, "/opt/java/bin")
	require.Equal(t, []string{"HOME=/home/x", "PATH=/opt/java/bin:/usr/bin"}, env)

	env = withPathPrefix([]string{"HOME=/home/x"}, "/opt/java/bin")
	require.Equal(t, []string{"HOME=/home/x", "PATH=/opt/java/bin"}, env)

	require.Equal(t, []string{"A=b"}, withPathPrefix([]string{"A=b"}, ""))
}
