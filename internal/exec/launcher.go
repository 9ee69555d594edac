// Package exec starts simulation processes detached from the orchestrator.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Jawbreaker1/evochain/internal/logging"
	"github.com/Jawbreaker1/evochain/internal/orchestrator"
)

var ErrNotFound = errors.New("executable not found")

// Launcher runs Command Args... <dir> for each generation directory, with
// stdout and stderr appended to the directory's status log.
type Launcher struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
}

// Launch starts the process and returns once it is running. The child is
// reaped in the background and is not tied to ctx.
func (l Launcher) Launch(ctx context.Context, dir string) error {
	if strings.TrimSpace(l.Command) == "" {
		return fmt.Errorf("launcher command is required")
	}
	logPath := filepath.Join(dir, orchestrator.StatusLogName)
	_, statErr := os.Stat(logPath)
	created := errors.Is(statErr, fs.ErrNotExist)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open status log: %w", err)
	}

	cmd := exec.Command(l.Command, append(append([]string{}, l.Args...), dir)...)
	cmd.Env = l.Env
	cmd.Dir = l.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureProcess(cmd)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		if created {
			// An empty log would read as running forever.
			_ = os.Remove(logPath)
		}
		return fmt.Errorf("start %s: %w", l.Command, err)
	}
	// The child holds its own descriptor.
	_ = logFile.Close()

	logger := logging.FromContext(ctx)
	pid := cmd.Process.Pid
	if err := lowerPriority(pid); err != nil {
		logger.Debug("could not lower process priority", "pid", pid, "error", err)
	}
	go func() {
		err := cmd.Wait()
		logger.Debug("simulation exited", "pid", pid, "dir", dir, "error", err)
	}()
	return nil
}

// Resolve builds the launcher for `java -jar <agentJar> <dir>`, with javaPath
// searched first and prepended to PATH.
func Resolve(javaPath, agentJar string) (Launcher, error) {
	java, err := findJava(javaPath)
	if err != nil {
		return Launcher{}, err
	}
	jar, err := filepath.Abs(agentJar)
	if err != nil {
		return Launcher{}, fmt.Errorf("resolve %s: %w", agentJar, err)
	}
	if info, err := os.Stat(jar); err != nil || info.IsDir() {
		return Launcher{}, fmt.Errorf("%w: agent jar %s", ErrNotFound, jar)
	}
	return Launcher{
		Command: java,
		Args:    []string{"-jar", jar},
		Env:     withPathPrefix(os.Environ(), javaPath),
	}, nil
}

func findJava(javaPath string) (string, error) {
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}
	if javaPath != "" {
		candidate := filepath.Join(javaPath, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s (java_path %q)", ErrNotFound, name, javaPath)
	}
	return path, nil
}

func withPathPrefix(env []string, dir string) []string {
	if dir == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(key, "PATH") && !found {
			out = append(out, key+"="+dir+string(os.PathListSeparator)+value)
			found = true
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}
