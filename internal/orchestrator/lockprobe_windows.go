//go:build windows

package orchestrator

// Open files cannot be renamed on windows, so the rename probe is enough.
func advisoryLocked(string) bool { return false }
