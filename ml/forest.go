package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

type ForestParams struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"seed"`
}

// RandomForest bags decision trees over bootstrap samples, considering
// sqrt(features) candidates per split, and predicts by majority vote.
type RandomForest struct {
	Params  ForestParams    `json:"params"`
	Classes int             `json:"classes"`
	Trees   []*DecisionTree `json:"trees"`
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	return &RandomForest{Params: params}
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	classes, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	rf.Classes = classes

	n := len(features)
	maxFeatures := int(math.Sqrt(float64(len(features[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rng := rand.New(rand.NewSource(rf.Params.Seed))
	rf.Trees = make([]*DecisionTree, 0, rf.Params.NEstimators)
	for t := 0; t < rf.Params.NEstimators; t++ {
		treeSeed := rng.Int63()
		sampleX := make([][]float64, n)
		sampleY := make([]int, n)
		for i := 0; i < n; i++ {
			pick := rng.Intn(n)
			sampleX[i] = features[pick]
			sampleY[i] = labels[pick]
		}

		tree := NewDecisionTree(TreeParams{
			MaxDepth:        rf.Params.MaxDepth,
			MinSamplesSplit: rf.Params.MinSamplesSplit,
			MaxFeatures:     maxFeatures,
			Seed:            treeSeed,
		})
		tree.Classes = classes
		if err := tree.Train(sampleX, sampleY); err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
		rf.Trees = append(rf.Trees, tree)
	}
	return nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.Trees) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	votes := make([]int, rf.Classes)
	for _, tree := range rf.Trees {
		label, _, err := tree.Predict(features)
		if err != nil {
			return 0, 0, err
		}
		if label < 0 || label >= len(votes) {
			return 0, 0, fmt.Errorf("tree voted for unknown class %d", label)
		}
		votes[label]++
	}
	label, confidence := majorityLabel(votes, len(rf.Trees))
	return label, confidence, nil
}

func (rf *RandomForest) NumClasses() int {
	return rf.Classes
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is missing", i)
		}
		if tree.Classes > rf.Classes {
			return fmt.Errorf("tree %d has %d classes, forest has %d", i, tree.Classes, rf.Classes)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
