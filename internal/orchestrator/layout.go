package orchestrator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	HiddenPrefix   = "_"
	ArchiveDirName = "_completed"
	tempDirPrefix  = "_tmp-"

	StatusLogName        = "output.txt"
	FinishedMarker       = "Finished!"
	GenerationConfigName = "config.csv"
	TargetsName          = "targets.csv"
	AnatomyName          = "anatomy.csv"
	PhenotypeLogName     = "logElitesPhenotypes.csv"

	// Rows 0 and 1 of an anatomy template are headers.
	AnatomyHeaderRows = 2
)

var ErrNotReplicationDir = errors.New("not a replication directory")

// Identity names one generation of one replication. It is encoded entirely
// in the directory path: <root>/<set>[/_completed]/rep<replication>.<generation>.
type Identity struct {
	Set         string
	Replication int
	Generation  int
	Archived    bool
}

func (id Identity) DirName() string {
	return ReplicationDirName(id.Replication, id.Generation)
}

func (id Identity) Path(root string) string {
	if id.Archived {
		return id.ArchivePath(root)
	}
	return id.LivePath(root)
}

func (id Identity) LivePath(root string) string {
	return filepath.Join(root, id.Set, id.DirName())
}

func (id Identity) ArchivePath(root string) string {
	return filepath.Join(root, id.Set, ArchiveDirName, id.DirName())
}

func (id Identity) Successor() Identity {
	return Identity{Set: id.Set, Replication: id.Replication, Generation: id.Generation + 1}
}

func (id Identity) String() string {
	if id.Archived {
		return id.Set + "/" + ArchiveDirName + "/" + id.DirName()
	}
	return id.Set + "/" + id.DirName()
}

func ReplicationDirName(replication, generation int) string {
	return fmt.Sprintf("rep%d.%d", replication, generation)
}

func ParseReplicationDirName(name string) (int, int, error) {
	rest, ok := strings.CutPrefix(name, "rep")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotReplicationDir, name)
	}
	repPart, genPart, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotReplicationDir, name)
	}
	rep, err := strconv.Atoi(repPart)
	if err != nil || rep < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotReplicationDir, name)
	}
	gen, err := strconv.Atoi(genPart)
	if err != nil || gen < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotReplicationDir, name)
	}
	return rep, gen, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, HiddenPrefix)
}

// Condition is one experiment variant: an anatomy plus a subset of targets.
type Condition struct {
	AnatomyIndex int
	AnatomyName  string
	Targets      []string
}

func (c Condition) SetName() string {
	return SetDirName(c.AnatomyName, c.Targets)
}

func SetDirName(anatomyName string, targets []string) string {
	return anatomyName + "." + strings.Join(targets, "_")
}

// LoadAnatomyNames reads the first column of every data row of the shared
// anatomy template, with spaces replaced so the names are path safe.
func LoadAnatomyNames(configRoot string) ([]string, error) {
	rows, err := readCSV(filepath.Join(configRoot, AnatomyName))
	if err != nil {
		return nil, fmt.Errorf("read anatomy template: %w", err)
	}
	if len(rows) <= AnatomyHeaderRows {
		return nil, fmt.Errorf("anatomy template has no data rows")
	}
	names := make([]string, 0, len(rows)-AnatomyHeaderRows)
	for _, row := range rows[AnatomyHeaderRows:] {
		names = append(names, strings.ReplaceAll(row[0], " ", "_"))
	}
	return names, nil
}

// BuildConditions crosses every anatomy index with every size-k combination
// of targets, anatomy-major, combinations in lexicographic index order.
func BuildConditions(anatomyIndices []int, anatomyNames, targets []string, k int) ([]Condition, error) {
	if k <= 0 || k > len(targets) {
		return nil, fmt.Errorf("targets per condition must be within [1, %d]", len(targets))
	}
	subsets := combinations(targets, k)
	out := make([]Condition, 0, len(anatomyIndices)*len(subsets))
	for _, idx := range anatomyIndices {
		if idx < 0 || idx >= len(anatomyNames) {
			return nil, fmt.Errorf("anatomy index %d out of range (%d anatomies)", idx, len(anatomyNames))
		}
		for _, subset := range subsets {
			out = append(out, Condition{AnatomyIndex: idx, AnatomyName: anatomyNames[idx], Targets: subset})
		}
	}
	return out, nil
}

func combinations(items []string, k int) [][]string {
	out := [][]string{}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		subset := make([]string, k)
		for i, j := range idx {
			subset[i] = items[j]
		}
		out = append(out, subset)

		i := k - 1
		for i >= 0 && idx[i] == len(items)-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}
