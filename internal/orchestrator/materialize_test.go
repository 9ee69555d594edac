package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleParams(configRoot string) GenerationParams {
	return GenerationParams{
		ConfigRoot:         configRoot,
		AnatomyIndex:       1,
		Targets:            []string{"a", "i"},
		Fitness:            "mse",
		Activation:         "tanh",
		ParentSelection:    "tournament",
		OffspringSelection: "random",
		RankingSelection:   "1",
		PlusSelection:      "0",
		SigmaScaling:       "0.5",
		Wav:                "0",
		Hidden:             []int{10, 5},
		Iterations:         50,
		PopulationSize:     40,
		MutationRate:       0.1,
		CrossoverRate:      1,
		Formants:           3,
		Elites:             2,
		TauFactor:          1.5,
	}
}

const wantGenerationConfig = `problem,vtl
type,janssen
fitness,mse
activation,tanh
parentSelection,tournament
offspringSelection,random
rankingSelection,1
plusSelection,0
sigmaScaling,0.5
wav,0
nHidden,10,5
targets,a,i
mseExponent,0.5
nIterations,50
popSize,40
mutationRate,0.1
crossoverRate,1
nThreads,1
iAnatomy,1
nFormants,3
nElites,2
tauFactor,1.5
lambdaFactor,1
`

func TestMaterializeWritesConfigAndAssets(t *testing.T) {
	t.Parallel()

	resources := t.TempDir()
	writeFile(t, filepath.Join(resources, "vocal_anatomy_table.csv"), "anatomy")
	writeFile(t, filepath.Join(resources, TargetsName), "targets")
	writeFile(t, filepath.Join(resources, "nested", "skip.csv"), "nested")

	root := t.TempDir()
	path := Identity{Set: "child.a_i", Replication: 0}.LivePath(root)
	require.NoError(t, Materialize(context.Background(), path, sampleParams(resources)))

	require.Equal(t, wantGenerationConfig, readFile(t, filepath.Join(path, GenerationConfigName)))
	require.Equal(t, "anatomy", readFile(t, filepath.Join(path, AnatomyName)))
	require.Equal(t, "targets", readFile(t, filepath.Join(path, TargetsName)))
	_, err := os.Stat(filepath.Join(path, "nested"))
	require.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging directory left behind")
}

func TestMaterializeReplacesExistingDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "adult.a", "rep1.0")
	writeFile(t, filepath.Join(path, StatusLogName), "half run\n")

	require.NoError(t, Materialize(context.Background(), path, sampleParams(filepath.Join(root, "no-resources"))))

	_, err := os.Stat(filepath.Join(path, StatusLogName))
	require.True(t, os.IsNotExist(err), "old status log survived")
	require.True(t, strings.HasPrefix(readFile(t, filepath.Join(path, GenerationConfigName)), "problem,vtl\n"))
}
