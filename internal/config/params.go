package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// HiddenKey always loads as a sequence, even with a single value.
const HiddenKey = "nHidden"

// ParameterSet maps a parameter name to an int, float64, string, or []any.
type ParameterSet map[string]any

func DefaultPath() string {
	return "config.csv"
}

func LoadParameters(path string) (ParameterSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: parameter file not found: %s", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("open parameter file: %w", err)
	}
	defer f.Close()
	params, err := ParseParameters(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return params, nil
}

func ParseParameters(r io.Reader) (ParameterSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	params := ParameterSet{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		key := strings.TrimSpace(record[0])
		if key == "" {
			continue
		}
		raw := record[1:]
		for i, field := range raw {
			if field == "" {
				raw = raw[:i]
				break
			}
		}
		if len(raw) == 0 {
			return nil, &Error{Key: key, Reason: "record has no values"}
		}
		values := make([]any, 0, len(raw))
		for _, field := range raw {
			values = append(values, Coerce(field))
		}
		if len(values) == 1 && key != HiddenKey {
			params[key] = values[0]
			continue
		}
		params[key] = values
	}
	return params, nil
}

// Coerce types a raw field as int, float64, or string, in that order of
// preference. Floats holding an exact integer become ints.
func Coerce(field string) any {
	trimmed := strings.TrimSpace(field)
	if i, err := strconv.Atoi(trimmed); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return field
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

// FormatValue renders a scalar the way it is written back into CSV files.
func FormatValue(v any) string {
	switch value := v.(type) {
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case string:
		return value
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}
