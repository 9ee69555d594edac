package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Jawbreaker1/evochain/internal/config"
	"github.com/Jawbreaker1/evochain/internal/logging"
)

// GenerationParams is everything needed to create a fresh generation-0
// directory for one replication.
type GenerationParams struct {
	ConfigRoot string

	AnatomyIndex int
	Targets      []string

	Fitness            string
	Activation         string
	ParentSelection    string
	OffspringSelection string
	RankingSelection   string
	PlusSelection      string
	SigmaScaling       string
	Wav                string

	Hidden         []int
	Iterations     int
	PopulationSize int
	MutationRate   float64
	CrossoverRate  float64
	Formants       int
	Elites         int
	TauFactor      float64
}

func NewGenerationParams(cfg config.Config, cond Condition) GenerationParams {
	return GenerationParams{
		ConfigRoot:         cfg.ConfigRoot,
		AnatomyIndex:       cond.AnatomyIndex,
		Targets:            append([]string(nil), cond.Targets...),
		Fitness:            cfg.Fitness,
		Activation:         cfg.Activation,
		ParentSelection:    cfg.ParentSelection,
		OffspringSelection: cfg.OffspringSelection,
		RankingSelection:   cfg.RankingSelection,
		PlusSelection:      cfg.PlusSelection,
		SigmaScaling:       cfg.SigmaScaling,
		Wav:                cfg.Wav,
		Hidden:             append([]int(nil), cfg.Hidden...),
		Iterations:         cfg.Iterations,
		PopulationSize:     cfg.PopulationSize,
		MutationRate:       cfg.MutationRate,
		CrossoverRate:      cfg.CrossoverRate,
		Formants:           cfg.Formants,
		Elites:             cfg.Elites,
		TauFactor:          cfg.TauFactor,
	}
}

// ConfigRows renders the generation config in the field order the
// simulation reads it.
func (p GenerationParams) ConfigRows() [][]string {
	hidden := []string{config.HiddenKey}
	for _, size := range p.Hidden {
		hidden = append(hidden, strconv.Itoa(size))
	}
	return [][]string{
		{"problem", "vtl"},
		{"type", "janssen"},
		{"fitness", p.Fitness},
		{"activation", p.Activation},
		{"parentSelection", p.ParentSelection},
		{"offspringSelection", p.OffspringSelection},
		{"rankingSelection", p.RankingSelection},
		{"plusSelection", p.PlusSelection},
		{"sigmaScaling", p.SigmaScaling},
		{"wav", p.Wav},
		hidden,
		append([]string{"targets"}, p.Targets...),
		{"mseExponent", "0.5"},
		{"nIterations", strconv.Itoa(p.Iterations)},
		{"popSize", strconv.Itoa(p.PopulationSize)},
		{"mutationRate", config.FormatValue(p.MutationRate)},
		{"crossoverRate", config.FormatValue(p.CrossoverRate)},
		{"nThreads", "1"},
		{"iAnatomy", strconv.Itoa(p.AnatomyIndex)},
		{"nFormants", strconv.Itoa(p.Formants)},
		{"nElites", strconv.Itoa(p.Elites)},
		{"tauFactor", config.FormatValue(p.TauFactor)},
		{"lambdaFactor", "1"},
	}
}

// Materialize replaces whatever lives at path with a fresh generation
// directory. The directory is assembled in a hidden staging dir and renamed
// into place.
func Materialize(ctx context.Context, path string, params GenerationParams) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove previous %s: %w", path, err)
	}
	tmp, err := stageDir(path)
	if err != nil {
		return err
	}
	if err := writeCSVFile(filepath.Join(tmp, GenerationConfigName), params.ConfigRows()); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	copyResources(ctx, params.ConfigRoot, tmp)
	return publishDir(tmp, path)
}

// copyResources copies the shared template assets; failures leave the
// simulation on its own defaults and are only logged.
func copyResources(ctx context.Context, resourceRoot, dst string) {
	logger := logging.FromContext(ctx)
	entries, err := os.ReadDir(resourceRoot)
	if err != nil {
		logger.Debug("resource root unavailable", "root", resourceRoot, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		target := name
		if strings.Contains(name, "anatomy") {
			target = AnatomyName
		}
		if err := copyFile(filepath.Join(resourceRoot, name), filepath.Join(dst, target)); err != nil {
			logger.Debug("resource copy failed", "asset", name, "error", err)
		}
	}
}
