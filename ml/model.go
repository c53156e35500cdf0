package ml

// Classifier is trained on scaled feature vectors and integer classes, and
// predicts a class with a confidence in [0, 1]. A trained classifier is only
// read by Predict, so one instance may serve concurrent callers.
type Classifier interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	NumClasses() int
}

const (
	ModelDecisionTree = "decision_tree"
	ModelRandomForest = "random_forest"
)

// Params is one point of the hyperparameter grid. MaxDepth 0 means unlimited.
type Params struct {
	NEstimators     int `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split" yaml:"min_samples_split"`
}
