package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bodytype/artifact"
	"bodytype/db"
	"bodytype/ml"
	"bodytype/pipeline"
)

// ErrDirtyData is returned in strict mode when cleaning rejected any row.
var ErrDirtyData = errors.New("dataset failed cleaning")

type Config struct {
	Dataset      string  `yaml:"dataset" env:"DATASET"`
	LabelSource  string  `yaml:"label_source" env:"LABEL_SOURCE"`
	Strict       bool    `yaml:"strict" env:"STRICT"`
	TestFraction float64 `yaml:"test_fraction" env:"TEST_FRACTION"`
	Seed         int64   `yaml:"seed" env:"SEED"`
	Folds        int     `yaml:"folds" env:"FOLDS"`
	Workers      int     `yaml:"workers" env:"WORKERS"`
	ModelType    string  `yaml:"model_type" env:"MODEL_TYPE"`
	Grid         Grid    `yaml:"grid" envPrefix:"GRID_"`
	ReportPath   string  `yaml:"report_path" env:"REPORT_PATH"`
	// Keep bounds the number of bundles left on disk after publishing; zero
	// keeps them all.
	Keep int `yaml:"keep" env:"KEEP"`
}

func DefaultConfig() Config {
	return Config{
		Dataset:      "data/body_type_dataset.csv",
		LabelSource:  string(ml.LabelsFromDataset),
		Strict:       true,
		TestFraction: 0.2,
		Seed:         42,
		Folds:        5,
		ModelType:    ml.ModelRandomForest,
		Grid: Grid{
			NEstimators:     []int{50, 100},
			MaxDepth:        []int{0, 10, 20},
			MinSamplesSplit: []int{2, 5},
		},
	}
}

// RunRecorder stores a summary of each finished run and the rows its
// cleaning rejected.
type RunRecorder interface {
	SaveRun(ctx context.Context, log db.TrainingLog) error
	SaveIssues(ctx context.Context, runID string, issues []db.QualityIssue) error
}

type Trainer struct {
	cfg    Config
	store  *artifact.Store
	runs   RunRecorder
	logger *zap.Logger
}

// Report summarises one training run.
type Report struct {
	RunID       string                  `json:"run_id"`
	Rows        int                     `json:"rows"`
	Rejected    int                     `json:"rejected"`
	Issues      []pipeline.QualityIssue `json:"issues,omitempty"`
	Best        Candidate               `json:"best"`
	Candidates  []Candidate             `json:"candidates"`
	Metrics     artifact.Metrics        `json:"metrics"`
	BundleDir   string                  `json:"bundle_dir,omitempty"`
	Duration    time.Duration           `json:"duration"`
	LabelSource ml.LabelSource          `json:"label_source"`
}

// Result is everything a run produced. Features holds the scaled rows of
// Records, in the same order.
type Result struct {
	Bundle   *artifact.Bundle
	Report   Report
	Records  []ml.RawRecord
	Features [][]float64
}

// New creates a trainer. store and runs may be nil, in which case the bundle
// is not published or not recorded.
func New(cfg Config, store *artifact.Store, runs RunRecorder, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{cfg: cfg, store: store, runs: runs, logger: logger}
}

// Run loads the configured dataset and fits it.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	dataset, err := pipeline.LoadFile(t.cfg.Dataset)
	if err != nil {
		return nil, err
	}
	t.logger.Info("dataset loaded", zap.String("path", t.cfg.Dataset), zap.Int("rows", len(dataset.Records)))
	return t.Fit(ctx, dataset)
}

func (t *Trainer) Fit(ctx context.Context, dataset *pipeline.Dataset) (*Result, error) {
	start := time.Now()
	source, err := ml.ParseLabelSource(t.cfg.LabelSource)
	if err != nil {
		return nil, err
	}
	if source == ml.LabelsFromDataset && !dataset.HasLabels {
		return nil, fmt.Errorf("%w: label source %s needs a %q column", pipeline.ErrSchema, source, pipeline.HeaderBodyType)
	}

	cleaner := pipeline.NewDataCleaner(t.logger)
	if source == ml.LabelsFromDataset {
		cleaner.AddRule(pipeline.NewLabelRule())
	}
	records, issues := cleaner.Clean(dataset.Records)
	stats := cleaner.GetStats()
	if len(issues) > 0 {
		for _, issue := range firstIssues(issues, 10) {
			t.logger.Warn("rejected row",
				zap.Int("row", issue.Row),
				zap.String("rule", issue.Rule),
				zap.String("message", issue.Message),
			)
		}
		if t.cfg.Strict {
			return nil, fmt.Errorf("%w: %d of %d rows rejected, first at row %d: %s",
				ErrDirtyData, stats.Rejected, stats.TotalProcessed, issues[0].Row, issues[0].Message)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no rows left after cleaning", ErrDirtyData)
	}

	codec, err := ml.FitCodec(ml.CategoricalColumns(), records)
	if err != nil {
		return nil, fmt.Errorf("fit codec: %w", err)
	}
	names, err := ml.GenerateLabels(records, source)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	labels, err := ml.FitLabels(names)
	if err != nil {
		return nil, fmt.Errorf("fit labels: %w", err)
	}

	rows := make([][]float64, len(records))
	classes := make([]int, len(records))
	for i, record := range records {
		vector, err := ml.Derive(record, codec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows[i] = vector
		if classes[i], err = labels.Encode(names[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	scaler, err := ml.FitScaler(rows)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	features, err := scaler.TransformAll(rows)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := Split(len(features), t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	trainX, trainY := gather(features, classes, trainIdx)
	testX, testY := gather(features, classes, testIdx)
	t.logger.Info("features prepared",
		zap.Int("rows", len(features)),
		zap.Int("train", len(trainX)),
		zap.Int("test", len(testX)),
		zap.Strings("labels", labels.Labels()),
		zap.String("label_source", string(source)),
	)

	grid, err := t.cfg.Grid.Expand(t.cfg.ModelType)
	if err != nil {
		return nil, err
	}
	folds, err := StratifiedFolds(trainY, t.cfg.Folds)
	if err != nil {
		return nil, err
	}
	s := &searcher{modelType: t.cfg.ModelType, seed: t.cfg.Seed, workers: t.cfg.Workers, logger: t.logger}
	candidates, err := s.search(ctx, grid, trainX, trainY, folds)
	if err != nil {
		return nil, fmt.Errorf("grid search: %w", err)
	}
	best, err := selectBest(candidates)
	if err != nil {
		return nil, err
	}
	t.logger.Info("best candidate",
		zap.Int("index", best.Index),
		zap.Int("n_estimators", best.Params.NEstimators),
		zap.Int("max_depth", best.Params.MaxDepth),
		zap.Int("min_samples_split", best.Params.MinSamplesSplit),
		zap.Float64("cv_accuracy", best.MeanAccuracy),
	)

	model, err := ml.NewModel(t.cfg.ModelType, best.Params, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := model.Train(trainX, trainY); err != nil {
		return nil, fmt.Errorf("refit: %w", err)
	}
	metrics, err := Evaluate(model, testX, testY, labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	metrics.CVAccuracy = best.MeanAccuracy
	metrics.TrainRows = len(trainX)

	bundle := &artifact.Bundle{
		Manifest: artifact.Manifest{
			RunID:   artifact.NewRunID(),
			Tag:     artifact.Tag{Features: ml.FeatureSpecVersion, Labels: source},
			Params:  best.Params,
			Metrics: metrics,
		},
		Codec:  codec,
		Labels: labels,
		Scaler: scaler,
		Model:  model,
	}
	if bundle.Manifest.ModelType, err = ml.ModelType(model); err != nil {
		return nil, err
	}

	report := Report{
		RunID:       bundle.Manifest.RunID,
		Rows:        len(records),
		Rejected:    len(dataset.Records) - len(records),
		Issues:      issues,
		Best:        best,
		Candidates:  candidates,
		Metrics:     metrics,
		LabelSource: source,
	}

	// The bundle is staged first and only made current once the report and
	// the registry entry are written, so a failed run is never served.
	if t.store != nil {
		dir, err := t.store.Stage(bundle)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		report.BundleDir = dir
	}
	if err := t.record(ctx, bundle, report); err != nil {
		t.discard(bundle.Manifest.RunID)
		return nil, err
	}
	if t.store != nil {
		if err := t.store.Activate(bundle.Manifest.RunID); err != nil {
			t.discard(bundle.Manifest.RunID)
			return nil, fmt.Errorf("publish: %w", err)
		}
		t.logger.Info("bundle published", zap.String("run_id", bundle.Manifest.RunID), zap.String("dir", report.BundleDir))
		if t.cfg.Keep > 0 {
			removed, err := t.store.Prune(t.cfg.Keep)
			if err != nil {
				t.logger.Warn("prune failed", zap.Error(err))
			} else if len(removed) > 0 {
				t.logger.Info("pruned bundles", zap.Strings("removed", removed))
			}
		}
	}

	report.Duration = time.Since(start)
	t.logger.Info("training finished",
		zap.String("run_id", report.RunID),
		zap.Float64("cv_accuracy", metrics.CVAccuracy),
		zap.Float64("test_accuracy", metrics.TestAccuracy),
		zap.Duration("duration", report.Duration),
	)
	return &Result{Bundle: bundle, Report: report, Records: records, Features: features}, nil
}

// record writes the candidate report and the registry entries for a run.
func (t *Trainer) record(ctx context.Context, bundle *artifact.Bundle, report Report) error {
	if t.cfg.ReportPath != "" {
		if err := writeReport(t.cfg.ReportPath, report.Candidates); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if t.runs == nil {
		return nil
	}
	precision, recall := macroAverages(report.Metrics)
	err := t.runs.SaveRun(ctx, db.TrainingLog{
		RunID:          bundle.Manifest.RunID,
		ModelName:      bundle.Manifest.ModelType,
		Params:         report.Best.Params,
		CVAccuracy:     report.Best.MeanAccuracy,
		Accuracy:       report.Metrics.TestAccuracy,
		Precision:      precision,
		Recall:         recall,
		DataPoints:     report.Rows,
		LabelSource:    report.LabelSource,
		FeatureVersion: ml.FeatureSpecVersion,
		TrainedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if err := t.runs.SaveIssues(ctx, bundle.Manifest.RunID, qualityIssues(report.Issues)); err != nil {
		return fmt.Errorf("record issues: %w", err)
	}
	return nil
}

func (t *Trainer) discard(runID string) {
	if t.store == nil {
		return
	}
	if err := t.store.Discard(runID); err != nil {
		t.logger.Warn("discard staged bundle failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func firstIssues(issues []pipeline.QualityIssue, n int) []pipeline.QualityIssue {
	if len(issues) <= n {
		return issues
	}
	return issues[:n]
}

func qualityIssues(issues []pipeline.QualityIssue) []db.QualityIssue {
	out := make([]db.QualityIssue, len(issues))
	for i, issue := range issues {
		out[i] = db.QualityIssue{
			Row:      issue.Row,
			Rule:     issue.Rule,
			Severity: issue.Severity,
			Message:  issue.Message,
		}
	}
	return out
}
