package trainer

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bodytype/ml"
)

// Grid lists the values tried for each hyperparameter. A max depth of 0 means
// unlimited.
type Grid struct {
	NEstimators     []int `yaml:"n_estimators" env:"N_ESTIMATORS" envSeparator:","`
	MaxDepth        []int `yaml:"max_depth" env:"MAX_DEPTH" envSeparator:","`
	MinSamplesSplit []int `yaml:"min_samples_split" env:"MIN_SAMPLES_SPLIT" envSeparator:","`
}

// Candidate is one grid point and its cross-validation scores.
type Candidate struct {
	Index        int           `json:"index"`
	Params       ml.Params     `json:"params"`
	FoldAccuracy []float64     `json:"fold_accuracy"`
	MeanAccuracy float64       `json:"mean_accuracy"`
	StdAccuracy  float64       `json:"std_accuracy"`
	Duration     time.Duration `json:"duration"`
}

// candidateRow is the CSV report layout.
type candidateRow struct {
	Rank            int     `csv:"rank"`
	Index           int     `csv:"index"`
	NEstimators     int     `csv:"n_estimators"`
	MaxDepth        int     `csv:"max_depth"`
	MinSamplesSplit int     `csv:"min_samples_split"`
	MeanAccuracy    float64 `csv:"mean_accuracy"`
	StdAccuracy     float64 `csv:"std_accuracy"`
	DurationMs      int64   `csv:"duration_ms"`
}

// Expand enumerates the grid in a fixed order. Estimator counts are ignored
// for single trees.
func (g Grid) Expand(modelType string) ([]ml.Params, error) {
	estimators := g.NEstimators
	if modelType == ml.ModelDecisionTree {
		estimators = []int{0}
	}
	if len(estimators) == 0 || len(g.MaxDepth) == 0 || len(g.MinSamplesSplit) == 0 {
		return nil, fmt.Errorf("grid has an empty dimension: %+v", g)
	}

	var params []ml.Params
	for _, depth := range g.MaxDepth {
		if depth < 0 {
			return nil, fmt.Errorf("max depth %d is negative", depth)
		}
		for _, split := range g.MinSamplesSplit {
			if split < 2 {
				return nil, fmt.Errorf("min samples split %d is below 2", split)
			}
			for _, n := range estimators {
				if modelType == ml.ModelRandomForest && n < 1 {
					return nil, fmt.Errorf("n estimators %d is below 1", n)
				}
				params = append(params, ml.Params{NEstimators: n, MaxDepth: depth, MinSamplesSplit: split})
			}
		}
	}
	return params, nil
}

type searcher struct {
	modelType string
	seed      int64
	workers   int
	logger    *zap.Logger
}

// search scores every candidate with k-fold cross-validation on the training
// partition. Results are stored by candidate index, so the outcome does not
// depend on which worker finishes first.
func (s *searcher) search(ctx context.Context, grid []ml.Params, features [][]float64, labels []int, folds [][]int) ([]Candidate, error) {
	results := make([]Candidate, len(grid))

	g, ctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for i, params := range grid {
		i, params := i, params
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			scores, err := s.crossValidate(ctx, params, features, labels, folds)
			if err != nil {
				return fmt.Errorf("candidate %d %+v: %w", i, params, err)
			}
			mean, _ := stats.Mean(scores)
			std, _ := stats.StandardDeviationPopulation(scores)
			results[i] = Candidate{
				Index:        i,
				Params:       params,
				FoldAccuracy: scores,
				MeanAccuracy: mean,
				StdAccuracy:  std,
				Duration:     time.Since(start),
			}
			s.logger.Debug("candidate scored",
				zap.Int("index", i),
				zap.Int("n_estimators", params.NEstimators),
				zap.Int("max_depth", params.MaxDepth),
				zap.Int("min_samples_split", params.MinSamplesSplit),
				zap.Float64("mean_accuracy", mean),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *searcher) crossValidate(ctx context.Context, params ml.Params, features [][]float64, labels []int, folds [][]int) ([]float64, error) {
	scores := make([]float64, 0, len(folds))
	for f, held := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trainX, trainY := gatherExcept(features, labels, folds, f)
		model, err := ml.NewModel(s.modelType, params, s.seed)
		if err != nil {
			return nil, err
		}
		if err := model.Train(trainX, trainY); err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		correct := 0
		for _, i := range held {
			predicted, _, err := model.Predict(features[i])
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", f, err)
			}
			if predicted == labels[i] {
				correct++
			}
		}
		scores = append(scores, float64(correct)/float64(len(held)))
	}
	return scores, nil
}

// selectBest picks the highest mean accuracy. Ties go to the simpler model.
func selectBest(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("no candidates")
	}
	ranked := rank(candidates)
	return ranked[0], nil
}

func rank(candidates []Candidate) []Candidate {
	ranked := append([]Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.MeanAccuracy-b.MeanAccuracy) > 1e-12 {
			return a.MeanAccuracy > b.MeanAccuracy
		}
		return simpler(a, b)
	})
	return ranked
}

// simpler orders shallower trees first (unlimited depth is deepest), then
// fewer estimators, then larger min_samples_split, then grid order.
func simpler(a, b Candidate) bool {
	da, db := depthRank(a.Params.MaxDepth), depthRank(b.Params.MaxDepth)
	if da != db {
		return da < db
	}
	if a.Params.NEstimators != b.Params.NEstimators {
		return a.Params.NEstimators < b.Params.NEstimators
	}
	if a.Params.MinSamplesSplit != b.Params.MinSamplesSplit {
		return a.Params.MinSamplesSplit > b.Params.MinSamplesSplit
	}
	return a.Index < b.Index
}

func depthRank(depth int) int {
	if depth <= 0 {
		return math.MaxInt
	}
	return depth
}

func writeReport(path string, candidates []Candidate) error {
	ranked := rank(candidates)
	rows := make([]candidateRow, len(ranked))
	for i, c := range ranked {
		rows[i] = candidateRow{
			Rank:            i + 1,
			Index:           c.Index,
			NEstimators:     c.Params.NEstimators,
			MaxDepth:        c.Params.MaxDepth,
			MinSamplesSplit: c.Params.MinSamplesSplit,
			MeanAccuracy:    c.MeanAccuracy,
			StdAccuracy:     c.StdAccuracy,
			DurationMs:      c.Duration.Milliseconds(),
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func gatherExcept(features [][]float64, labels []int, folds [][]int, skip int) ([][]float64, []int) {
	var x [][]float64
	var y []int
	for f, fold := range folds {
		if f == skip {
			continue
		}
		for _, i := range fold {
			x = append(x, features[i])
			y = append(y, labels[i])
		}
	}
	return x, y
}

func gather(features [][]float64, labels []int, positions []int) ([][]float64, []int) {
	x := make([][]float64, len(positions))
	y := make([]int, len(positions))
	for j, i := range positions {
		x[j] = features[i]
		y[j] = labels[i]
	}
	return x, y
}
