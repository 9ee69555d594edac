package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// makeGeneration creates a generation directory with the given files.
func makeGeneration(t *testing.T, root string, id Identity, files map[string]string) string {
	t.Helper()
	dir := id.Path(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for name, content := range files {
		writeFile(t, filepath.Join(dir, name), content)
	}
	return dir
}

// phenotypeCSV renders an elite phenotype log in the v1 layout. values holds
// one parameter vector per target for the last row; earlier rows are zeros.
func phenotypeCSV(formants int, targets, params []string, values [][]string, rows int) string {
	header := []string{"generation"}
	for _, target := range targets {
		for f := 1; f <= formants; f++ {
			header = append(header, fmt.Sprintf("F%d%s", f, target))
		}
	}
	for _, target := range targets {
		for _, param := range params {
			header = append(header, target+"_"+param)
		}
	}
	trailing := DefaultPhenotypeSchema.TrailingPerTarget*len(targets) + DefaultPhenotypeSchema.TrailingGlobal
	for i := 0; i < trailing; i++ {
		header = append(header, fmt.Sprintf("aux%d", i))
	}

	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for r := 0; r < rows; r++ {
		row := []string{fmt.Sprint(r)}
		for i := 0; i < formants*len(targets); i++ {
			row = append(row, "500")
		}
		for ti := range targets {
			for pi := range params {
				if r == rows-1 {
					row = append(row, values[ti][pi])
				} else {
					row = append(row, "0")
				}
			}
		}
		for i := 0; i < trailing; i++ {
			row = append(row, "1")
		}
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	return b.String()
}
