package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytype/ml"
)

func TestSplit(t *testing.T) {
	train, test, err := Split(10, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)

	again, againTest, err := Split(10, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, again)
	assert.Equal(t, test, againTest)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "position %d used twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	// ceil(11 * 0.2) = 3
	_, test, err = Split(11, 0.2, 1)
	require.NoError(t, err)
	assert.Len(t, test, 3)

	_, _, err = Split(1, 0.2, 1)
	assert.Error(t, err)
	_, _, err = Split(10, 1.5, 1)
	assert.Error(t, err)
}

func TestStratifiedFolds(t *testing.T) {
	labels := []int{0, 1, 0, 2, 1, 0, 2, 1, 2}
	folds, err := StratifiedFolds(labels, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	total := 0
	for _, fold := range folds {
		total += len(fold)
		assert.Len(t, fold, 3)
		classes := map[int]bool{}
		for _, i := range fold {
			classes[labels[i]] = true
		}
		assert.Len(t, classes, 3, "fold %v misses a class", fold)
	}
	assert.Equal(t, len(labels), total)

	_, err = StratifiedFolds([]int{0, 1}, 5)
	assert.Error(t, err)
}

func TestGridExpand(t *testing.T) {
	grid := Grid{NEstimators: []int{50, 100}, MaxDepth: []int{0, 10, 20}, MinSamplesSplit: []int{2, 5}}

	forest, err := grid.Expand(ml.ModelRandomForest)
	require.NoError(t, err)
	assert.Len(t, forest, 12)
	assert.Equal(t, ml.Params{NEstimators: 50, MaxDepth: 0, MinSamplesSplit: 2}, forest[0])

	tree, err := grid.Expand(ml.ModelDecisionTree)
	require.NoError(t, err)
	assert.Len(t, tree, 6)
	assert.Equal(t, 0, tree[0].NEstimators)

	_, err = Grid{NEstimators: []int{10}, MaxDepth: []int{5}, MinSamplesSplit: []int{1}}.Expand(ml.ModelRandomForest)
	assert.Error(t, err)
	_, err = Grid{MaxDepth: []int{5}, MinSamplesSplit: []int{2}}.Expand(ml.ModelRandomForest)
	assert.Error(t, err)
}

func TestSelectBestPrefersSimplerOnTies(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       int
	}{
		{
			name: "highest accuracy wins",
			candidates: []Candidate{
				{Index: 0, Params: ml.Params{MaxDepth: 5}, MeanAccuracy: 0.8},
				{Index: 1, Params: ml.Params{MaxDepth: 0}, MeanAccuracy: 0.9},
			},
			want: 1,
		},
		{
			name: "unlimited depth is deepest",
			candidates: []Candidate{
				{Index: 0, Params: ml.Params{MaxDepth: 0}, MeanAccuracy: 0.9},
				{Index: 1, Params: ml.Params{MaxDepth: 20}, MeanAccuracy: 0.9},
			},
			want: 1,
		},
		{
			name: "fewer estimators",
			candidates: []Candidate{
				{Index: 0, Params: ml.Params{NEstimators: 100, MaxDepth: 10}, MeanAccuracy: 0.9},
				{Index: 1, Params: ml.Params{NEstimators: 50, MaxDepth: 10}, MeanAccuracy: 0.9},
			},
			want: 1,
		},
		{
			name: "larger min samples split",
			candidates: []Candidate{
				{Index: 0, Params: ml.Params{NEstimators: 50, MaxDepth: 10, MinSamplesSplit: 2}, MeanAccuracy: 0.9},
				{Index: 1, Params: ml.Params{NEstimators: 50, MaxDepth: 10, MinSamplesSplit: 5}, MeanAccuracy: 0.9},
			},
			want: 1,
		},
		{
			name: "grid order last",
			candidates: []Candidate{
				{Index: 0, Params: ml.Params{MaxDepth: 10}, MeanAccuracy: 0.9},
				{Index: 1, Params: ml.Params{MaxDepth: 10}, MeanAccuracy: 0.9},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best, err := selectBest(tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, best.Index)
		})
	}

	_, err := selectBest(nil)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	labels, err := ml.FitLabels([]string{"Fit", "Overweight", "Underweight"})
	require.NoError(t, err)
	model := ml.NewDecisionTree(ml.TreeParams{})
	require.NoError(t, model.Train([][]float64{{1}, {2}, {3}}, []int{0, 1, 2}))

	metrics, err := Evaluate(model, [][]float64{{1}, {2}, {3}, {3}}, []int{0, 1, 2, 1}, labels)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, metrics.TestAccuracy, 1e-9)
	assert.Equal(t, [][]int{{1, 0, 0}, {0, 1, 1}, {0, 0, 1}}, metrics.Confusion)
	require.Len(t, metrics.Classes, 3)
	assert.Equal(t, "Overweight", metrics.Classes[1].Label)
	assert.InDelta(t, 0.5, metrics.Classes[1].Recall, 1e-9)
	assert.InDelta(t, 0.5, metrics.Classes[2].Precision, 1e-9)

	precision, recall := macroAverages(metrics)
	assert.InDelta(t, (1+1+0.5)/3, precision, 1e-9)
	assert.InDelta(t, (1+0.5+1)/3, recall, 1e-9)
}
