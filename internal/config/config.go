package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

// Error reports a missing or malformed parameter.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Key, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrInvalidConfig
}

type Config struct {
	ConfigRoot string `yaml:"config_root"`
	DataRoot   string `yaml:"data_root"`
	ExpLabel   string `yaml:"exp_label"`
	JavaPath   string `yaml:"java_path"`
	AgentJar   string `yaml:"agent_jar"`

	MaxProcesses     int `yaml:"max_processes"`
	Iterations       int `yaml:"iterations"`
	ChainGenerations int `yaml:"chain_generations"`
	Replications     int `yaml:"replications"`
	Formants         int `yaml:"formants"`

	Targets             []string `yaml:"targets"`
	TargetsPerCondition int      `yaml:"targets_per_condition"`
	AnatomyIndices      []int    `yaml:"anatomy_indices"`

	Hidden         []int   `yaml:"hidden"`
	PopulationSize int     `yaml:"population_size"`
	Elites         int     `yaml:"elites"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	TauFactor      float64 `yaml:"tau_factor"`

	Fitness            string `yaml:"fitness"`
	Activation         string `yaml:"activation"`
	ParentSelection    string `yaml:"parent_selection"`
	OffspringSelection string `yaml:"offspring_selection"`
	RankingSelection   string `yaml:"ranking_selection"`
	PlusSelection      string `yaml:"plus_selection"`
	SigmaScaling       string `yaml:"sigma_scaling"`
	Wav                string `yaml:"wav"`

	DispatchDelay time.Duration `yaml:"dispatch_delay"`
	IdleDelay     time.Duration `yaml:"idle_delay"`
	LogLevel      string        `yaml:"log_level"`

	params ParameterSet
}

func Load(path string) (Config, error) {
	params, err := LoadParameters(path)
	if err != nil {
		return Config{}, err
	}
	return FromParameters(params)
}

func FromParameters(params ParameterSet) (Config, error) {
	p := decoder{params: params}
	cfg := Config{
		ConfigRoot: p.str("config_root"),
		DataRoot:   p.str("data_root"),
		ExpLabel:   p.str("expLabel"),
		JavaPath:   p.str("java_path"),
		AgentJar:   p.optionalStr("agentJar", "Agent.jar"),

		MaxProcesses:     p.intAtLeast("maxProcesses", 1),
		Iterations:       p.intAtLeast("nIterations", 1),
		ChainGenerations: p.intAtLeast("nChainGen", 1),
		Replications:     p.intAtLeast("nReplications", 1),
		Formants:         p.intAtLeast("nFormants", 1),

		Targets:             p.strs("targets"),
		TargetsPerCondition: p.intAtLeast("nTargets", 1),
		AnatomyIndices:      p.ints("iAnatomies"),

		Hidden:         p.ints(HiddenKey),
		PopulationSize: p.intAtLeast("popSize", 1),
		Elites:         p.intAtLeast("nElites", 0),
		MutationRate:   p.rate("mutationRate"),
		CrossoverRate:  p.rate("crossoverRate"),
		TauFactor:      p.float("tauFactor"),

		Fitness:            p.str("fitness"),
		Activation:         p.str("activation"),
		ParentSelection:    p.str("parentSelection"),
		OffspringSelection: p.str("offspringSelection"),
		RankingSelection:   p.str("rankingSelection"),
		PlusSelection:      p.str("plusSelection"),
		SigmaScaling:       p.str("sigmaScaling"),
		Wav:                p.str("wav"),

		DispatchDelay: p.seconds("dispatchDelay", time.Second),
		IdleDelay:     p.seconds("idleDelay", time.Minute),
		LogLevel:      strings.ToLower(p.optionalStr("logLevel", "info")),

		params: params,
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TargetsPerCondition > len(c.Targets) {
		return &Error{Key: "nTargets", Reason: fmt.Sprintf("must be <= %d targets", len(c.Targets))}
	}
	seen := map[string]struct{}{}
	for _, target := range c.Targets {
		if strings.Contains(target, "_") || strings.TrimSpace(target) == "" {
			return &Error{Key: "targets", Reason: fmt.Sprintf("invalid target symbol %q", target)}
		}
		if _, dup := seen[target]; dup {
			return &Error{Key: "targets", Reason: fmt.Sprintf("duplicate target symbol %q", target)}
		}
		seen[target] = struct{}{}
	}
	for _, idx := range c.AnatomyIndices {
		if idx < 0 {
			return &Error{Key: "iAnatomies", Reason: "indices must be >= 0"}
		}
	}
	for _, size := range c.Hidden {
		if size < 0 {
			return &Error{Key: HiddenKey, Reason: "layer sizes must be >= 0"}
		}
	}
	if c.Elites > c.PopulationSize {
		return &Error{Key: "nElites", Reason: "must be <= popSize"}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &Error{Key: "logLevel", Reason: err.Error()}
	}
	return nil
}

// RunRoot is the directory holding every condition of this experiment.
func (c Config) RunRoot() string {
	return filepath.Join(c.DataRoot, c.ExpLabel)
}

// LastGeneration is the generation index that ends a replication's chain.
func (c Config) LastGeneration() int {
	return c.ChainGenerations - 1
}

func (c Config) Scalar(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// decoder records the first failure so FromParameters reads as a flat list.
type decoder struct {
	params ParameterSet
	err    error
}

func (d *decoder) fail(key, reason string) {
	if d.err == nil {
		d.err = &Error{Key: key, Reason: reason}
	}
}

func (d *decoder) lookup(key string) (any, bool) {
	v, ok := d.params[key]
	if !ok {
		d.fail(key, "missing")
	}
	return v, ok
}

func (d *decoder) str(key string) string {
	v, ok := d.lookup(key)
	if !ok {
		return ""
	}
	if _, isSeq := v.([]any); isSeq {
		d.fail(key, "expected a single value")
		return ""
	}
	s := strings.TrimSpace(FormatValue(v))
	if s == "" {
		d.fail(key, "must not be empty")
	}
	return s
}

func (d *decoder) optionalStr(key, fallback string) string {
	if _, ok := d.params[key]; !ok {
		return fallback
	}
	return d.str(key)
}

func (d *decoder) intAtLeast(key string, floor int) int {
	v, ok := d.lookup(key)
	if !ok {
		return 0
	}
	i, isInt := v.(int)
	if !isInt {
		d.fail(key, fmt.Sprintf("expected an integer, got %q", FormatValue(v)))
		return 0
	}
	if i < floor {
		d.fail(key, fmt.Sprintf("must be >= %d", floor))
	}
	return i
}

func (d *decoder) float(key string) float64 {
	v, ok := d.lookup(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		d.fail(key, fmt.Sprintf("expected a number, got %q", FormatValue(v)))
		return 0
	}
}

func (d *decoder) rate(key string) float64 {
	f := d.float(key)
	if f < 0 || f > 1 {
		d.fail(key, "must be within [0, 1]")
	}
	return f
}

func (d *decoder) seconds(key string, fallback time.Duration) time.Duration {
	if _, ok := d.params[key]; !ok {
		return fallback
	}
	f := d.float(key)
	if f < 0 {
		d.fail(key, "must be >= 0")
	}
	return time.Duration(f * float64(time.Second))
}

func (d *decoder) seq(key string) []any {
	v, ok := d.lookup(key)
	if !ok {
		return nil
	}
	if items, isSeq := v.([]any); isSeq {
		return items
	}
	return []any{v}
}

func (d *decoder) strs(key string) []string {
	items := d.seq(key)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.TrimSpace(FormatValue(item)))
	}
	return out
}

func (d *decoder) ints(key string) []int {
	items := d.seq(key)
	if items == nil {
		return nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		i, ok := item.(int)
		if !ok {
			d.fail(key, fmt.Sprintf("expected integers, got %q", FormatValue(item)))
			return nil
		}
		out = append(out, i)
	}
	return out
}
