package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName lives in the run root; the leading underscore keeps it out of scans.
const ManifestName = "_manifest.yaml"

// Manifest snapshots the resolved configuration a run was started with.
type Manifest struct {
	Version   int       `yaml:"version"`
	WrittenAt time.Time `yaml:"written_at"`
	Config    Config    `yaml:"config"`
}

func ManifestPath(runRoot string) string {
	return filepath.Join(runRoot, ManifestName)
}

func WriteManifest(path string, cfg Config, now time.Time) error {
	data, err := yaml.Marshal(Manifest{Version: 1, WrittenAt: now.UTC(), Config: cfg})
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("manifest: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("manifest: rename %s: %w", tmp, err)
	}
	return nil
}

// ReadManifest returns ok=false when no manifest has been written yet.
func ReadManifest(path string) (Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, false, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return m, true, nil
}

// DiffManifest lists the yaml keys whose values changed between two configs.
func DiffManifest(previous, current Config) ([]string, error) {
	before, err := flatten(previous)
	if err != nil {
		return nil, err
	}
	after, err := flatten(current)
	if err != nil {
		return nil, err
	}
	changed := []string{}
	for key, value := range after {
		if before[key] != value {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func flatten(cfg Config) (map[string]string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[key] = fmt.Sprint(value)
	}
	return out, nil
}
