package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytype/pipeline"
)

func TestGenerateWritesLoadableDataset(t *testing.T) {
	out := filepath.Join(t.TempDir(), "synthetic.csv")
	root := rootCmd()
	root.SetArgs([]string{"generate", "--rows", "25", "--seed", "3", "--out", out})
	require.NoError(t, root.Execute())

	dataset, err := pipeline.LoadFile(out)
	require.NoError(t, err)
	assert.Len(t, dataset.Records, 25)
	assert.True(t, dataset.HasLabels)
	assert.Equal(t, pipeline.Synthesize(25, 3), dataset.Records)
}

func TestTrainThenSchema(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "data.csv")
	file, err := os.Create(dataset)
	require.NoError(t, err)
	require.NoError(t, pipeline.WriteRecords(file, pipeline.Synthesize(90, 5)))
	require.NoError(t, file.Close())

	t.Setenv("BODYTYPE_STORE_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("BODYTYPE_DB_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("BODYTYPE_TRAIN_MODEL_TYPE", "decision_tree")
	t.Setenv("BODYTYPE_TRAIN_FOLDS", "3")
	t.Setenv("BODYTYPE_TRAIN_GRID_MAX_DEPTH", "0")
	t.Setenv("BODYTYPE_TRAIN_GRID_MIN_SAMPLES_SPLIT", "2")
	t.Setenv("BODYTYPE_LOG_LEVEL", "error")

	var trained bytes.Buffer
	root := rootCmd()
	root.SetOut(&trained)
	root.SetArgs([]string{"train", "--dataset", dataset})
	require.NoError(t, root.Execute())
	assert.Contains(t, trained.String(), `"run_id"`)

	var schema bytes.Buffer
	root = rootCmd()
	root.SetOut(&schema)
	root.SetArgs([]string{"schema"})
	require.NoError(t, root.Execute())
	assert.Contains(t, schema.String(), `"label_source": "dataset"`)

	var runs bytes.Buffer
	root = rootCmd()
	root.SetOut(&runs)
	root.SetArgs([]string{"runs"})
	require.NoError(t, root.Execute())
	lines := strings.Split(strings.TrimSpace(runs.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "decision_tree")
}
