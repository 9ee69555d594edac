package orchestrator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

var ErrSchemaMismatch = errors.New("phenotype log schema mismatch")

// PhenotypeSchema fixes the column layout of the elite phenotype log. A
// header is: one generation column, formants x targets formant columns,
// targets x params parameter columns named <target>_<param>, then
// TrailingPerTarget x targets + TrailingGlobal auxiliary columns.
type PhenotypeSchema struct {
	Version           int
	TrailingPerTarget int
	TrailingGlobal    int
}

var DefaultPhenotypeSchema = PhenotypeSchema{Version: 1, TrailingPerTarget: 4, TrailingGlobal: 7}

// EvolvedTarget is the elite parameter vector for one target symbol.
type EvolvedTarget struct {
	Target string
	Params []string
}

// ParsePhenotypeLog returns the last row's parameter vectors, one per target,
// in header order. Column boundaries are checked against the header tokens;
// any disagreement is reported as ErrSchemaMismatch.
func ParsePhenotypeLog(r io.Reader, formants, targets int, schema PhenotypeSchema) ([]EvolvedTarget, error) {
	if targets <= 0 || formants < 0 {
		return nil, fmt.Errorf("%w: %d formants, %d targets", ErrSchemaMismatch, formants, targets)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read phenotype log: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows", ErrSchemaMismatch)
	}
	header := rows[0]
	start := formants*targets + 1
	end := len(header) - (schema.TrailingPerTarget*targets + schema.TrailingGlobal)
	if end <= start || (end-start)%targets != 0 {
		return nil, fmt.Errorf("%w: v%d header has %d columns, no parameter block for %d targets",
			ErrSchemaMismatch, schema.Version, len(header), targets)
	}
	nParams := (end - start) / targets

	names := make([]string, targets)
	var suffixes []string
	seen := map[string]struct{}{}
	for i := 0; i < targets; i++ {
		chunk := header[start+i*nParams : start+(i+1)*nParams]
		name, params, err := splitChunk(chunk)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: target %q appears twice", ErrSchemaMismatch, name)
		}
		seen[name] = struct{}{}
		if suffixes == nil {
			suffixes = params
		} else if !slices.Equal(suffixes, params) {
			return nil, fmt.Errorf("%w: target %q has parameters %v, expected %v", ErrSchemaMismatch, name, params, suffixes)
		}
		names[i] = name
	}

	last := rows[len(rows)-1]
	if len(last) < end {
		return nil, fmt.Errorf("%w: last row has %d columns, need %d", ErrSchemaMismatch, len(last), end)
	}
	out := make([]EvolvedTarget, targets)
	for i, name := range names {
		params := last[start+i*nParams : start+(i+1)*nParams]
		out[i] = EvolvedTarget{Target: name, Params: append([]string(nil), params...)}
	}
	return out, nil
}

// splitChunk checks that every column of one target's block is named
// <target>_<param> with a common target.
func splitChunk(chunk []string) (string, []string, error) {
	var target string
	params := make([]string, len(chunk))
	for i, col := range chunk {
		prefix, param, ok := strings.Cut(strings.TrimSpace(col), "_")
		if !ok || prefix == "" || param == "" {
			return "", nil, fmt.Errorf("%w: column %q is not <target>_<param>", ErrSchemaMismatch, col)
		}
		if i == 0 {
			target = prefix
		} else if prefix != target {
			return "", nil, fmt.Errorf("%w: column %q inside block of target %q", ErrSchemaMismatch, col, target)
		}
		params[i] = param
	}
	return target, params, nil
}
