package orchestrator

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// anatomyRowIndex is the row of targets.csv that holds the anatomy vector.
const anatomyRowIndex = 1

// RewriteTargets copies a parent target table, replacing the row whose first
// field names an evolved target with that target's new parameters. When
// anatomy is non-nil it replaces the anatomy row. Every other row is kept as
// is, in order.
//
// Each evolved target must own exactly one row; anything else is reported as
// ErrSchemaMismatch and no table is returned.
func RewriteTargets(rows [][]string, evolved []EvolvedTarget, anatomy []string) ([][]string, error) {
	byName := make(map[string][]string, len(evolved))
	for _, t := range evolved {
		byName[t.Target] = t.Params
	}
	matched := make(map[string]int, len(evolved))
	out := make([][]string, 0, len(rows))
	for i, row := range rows {
		if anatomy != nil && i == anatomyRowIndex {
			out = append(out, append([]string(nil), anatomy...))
			continue
		}
		if i > 0 && len(row) > 0 {
			if params, ok := byName[row[0]]; ok {
				matched[row[0]]++
				out = append(out, append([]string{row[0]}, params...))
				continue
			}
		}
		out = append(out, append([]string(nil), row...))
	}
	for _, t := range evolved {
		switch n := matched[t.Target]; n {
		case 1:
		case 0:
			return nil, fmt.Errorf("%w: target %q has no row in %s", ErrSchemaMismatch, t.Target, TargetsName)
		default:
			return nil, fmt.Errorf("%w: target %q has %d rows in %s", ErrSchemaMismatch, t.Target, n, TargetsName)
		}
	}
	return out, nil
}

// checkEvolvedTargets compares the targets found in the phenotype log with
// the ones the generation was configured for.
func checkEvolvedTargets(evolved []EvolvedTarget, configured []string) error {
	names := make([]string, len(evolved))
	for i, t := range evolved {
		names[i] = t.Target
	}
	want := slices.Clone(configured)
	slices.Sort(names)
	slices.Sort(want)
	if !slices.Equal(names, want) {
		return fmt.Errorf("%w: phenotype log evolved %v, %s lists %v", ErrSchemaMismatch, names, GenerationConfigName, configured)
	}
	return nil
}

// configRecord returns the values of the first config.csv record named key.
func configRecord(dir, key string) ([]string, error) {
	path := filepath.Join(dir, GenerationConfigName)
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) > 0 && row[0] == key {
			return row[1:], nil
		}
	}
	return nil, fmt.Errorf("%s: no %s record", path, key)
}

// generationTargets reads the target symbols from a generation's config.csv.
func generationTargets(dir string) ([]string, error) {
	values, err := configRecord(dir, "targets")
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			targets = append(targets, v)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: empty targets record", filepath.Join(dir, GenerationConfigName))
	}
	return targets, nil
}

// generationAnatomyIndex reads iAnatomy from a generation's config.csv.
func generationAnatomyIndex(dir string) (int, error) {
	values, err := configRecord(dir, "iAnatomy")
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%s: empty iAnatomy record", filepath.Join(dir, GenerationConfigName))
	}
	idx, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%s: bad iAnatomy %q", filepath.Join(dir, GenerationConfigName), values[0])
	}
	return idx, nil
}

// anatomyVector returns the data row for an anatomy index without its name
// column.
func anatomyVector(dir string, index int) ([]string, error) {
	path := filepath.Join(dir, AnatomyName)
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	row := index + AnatomyHeaderRows
	if row >= len(rows) {
		return nil, fmt.Errorf("%s: anatomy %d missing (%d data rows)", path, index, len(rows)-AnatomyHeaderRows)
	}
	if len(rows[row]) == 0 {
		return []string{}, nil
	}
	return append([]string{}, rows[row][1:]...), nil
}
