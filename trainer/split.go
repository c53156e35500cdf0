package trainer

import (
	"fmt"
	"math"
	"math/rand"
)

// Split shuffles row positions with a seeded source and holds out
// ceil(n*testFraction) of them for evaluation.
func Split(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	testSize := int(math.Ceil(float64(n) * testFraction))
	if testSize < 1 || testSize >= n {
		return nil, nil, fmt.Errorf("cannot hold out %d of %d rows", testSize, n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[testSize:], perm[:testSize], nil
}

// StratifiedFolds deals positions into k folds class by class, round robin,
// so each fold sees every class in roughly its overall proportion. The
// assignment depends only on the order of labels.
func StratifiedFolds(labels []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(labels) < k {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", len(labels), k)
	}
	byClass := make(map[int][]int)
	maxClass := 0
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
		if label > maxClass {
			maxClass = label
		}
	}

	folds := make([][]int, k)
	next := 0
	for class := 0; class <= maxClass; class++ {
		for _, i := range byClass[class] {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	return folds, nil
}
