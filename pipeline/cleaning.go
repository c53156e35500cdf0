package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"bodytype/ml"
)

// CleaningRule checks one record and may return a corrected copy.
type CleaningRule interface {
	Apply(*ml.RawRecord) (*ml.RawRecord, error)
	Name() string
}

// QualityIssue is a rejected record. Row is the 1-based data row.
type QualityIssue struct {
	Rule      string    `json:"rule" csv:"rule"`
	Severity  string    `json:"severity" csv:"severity"` // low, medium, high
	Message   string    `json:"message" csv:"message"`
	Row       int       `json:"row" csv:"row"`
	Timestamp time.Time `json:"timestamp" csv:"-"`
}

// DataCleaner runs every rule over each record.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats summarises the records seen by a cleaner.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewDataCleaner creates a cleaner with the default rules.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	cleaner.AddRule(NewCategoryRule())
	cleaner.AddRule(NewRangeRule())
	cleaner.AddRule(NewPlausibilityRule())

	return cleaner
}

// AddRule appends a rule; rules run in the order they were added.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the records that passed every rule, in input order, and the
// issues raised by the rest.
func (dc *DataCleaner) Clean(records []ml.RawRecord) ([]ml.RawRecord, []QualityIssue) {
	cleaned := make([]ml.RawRecord, 0, len(records))
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for i := range records {
		dc.stats.TotalProcessed++

		original := records[i]
		record := &ml.RawRecord{}
		*record = original
		var recordIssues []QualityIssue

		for _, rule := range dc.rules {
			corrected, err := rule.Apply(record)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Rule:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Row:       i + 1,
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				continue
			}
			if corrected != nil {
				record = corrected
			}
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			continue
		}
		if *record != original {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, *record)
	}

	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

// GetStats returns a copy of the running statistics.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for rule, count := range dc.stats.Issues {
		stats.Issues[rule] = count
	}
	return stats
}

// ============ rules ============

// CategoryRule canonicalises categorical cells and rejects empty ones.
type CategoryRule struct{}

func NewCategoryRule() *CategoryRule {
	return &CategoryRule{}
}

func (r *CategoryRule) Name() string {
	return "category_validation"
}

func (r *CategoryRule) Apply(record *ml.RawRecord) (*ml.RawRecord, error) {
	out := *record
	out.Gender = ml.CanonicalCategory(record.Gender)
	out.Activity = ml.CanonicalCategory(record.Activity)
	out.Goal = ml.CanonicalCategory(record.Goal)
	out.BodyType = ml.CanonicalCategory(record.BodyType)
	for _, column := range ml.CategoricalColumns() {
		if value, _ := ml.CategoryValue(out, column); value == "" {
			return nil, fmt.Errorf("%w: %s is empty", ml.ErrMalformedInput, column)
		}
	}
	return &out, nil
}

// LabelRule rejects rows without a Body Type. Only used when labels come
// from the dataset.
type LabelRule struct{}

func NewLabelRule() *LabelRule {
	return &LabelRule{}
}

func (r *LabelRule) Name() string {
	return "label_validation"
}

func (r *LabelRule) Apply(record *ml.RawRecord) (*ml.RawRecord, error) {
	if ml.CanonicalCategory(record.BodyType) == "" {
		return nil, fmt.Errorf("%w: body type is empty", ml.ErrMalformedInput)
	}
	return record, nil
}

// RangeRule applies the same numeric checks as feature derivation.
type RangeRule struct{}

func NewRangeRule() *RangeRule {
	return &RangeRule{}
}

func (r *RangeRule) Name() string {
	return "range_validation"
}

func (r *RangeRule) Apply(record *ml.RawRecord) (*ml.RawRecord, error) {
	values := []struct {
		name  string
		value float64
	}{{"age", record.Age}, {"height", record.Height}, {"weight", record.Weight}}
	for _, v := range values {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return nil, fmt.Errorf("%w: %s is not a finite number", ml.ErrMalformedInput, v.name)
		}
	}
	if record.Age <= 0 || record.Age > 130 {
		return nil, fmt.Errorf("%w: age %v outside (0, 130]", ml.ErrInvalidRange, record.Age)
	}
	if _, err := ml.BMI(record.Height, record.Weight); err != nil {
		return nil, err
	}
	return record, nil
}

// PlausibilityRule rejects measurements no human body produces, which are
// almost always unit mistakes (metres for centimetres, pounds for kilograms).
type PlausibilityRule struct {
	MinHeight float64
	MaxHeight float64
	MinWeight float64
	MaxWeight float64
}

func NewPlausibilityRule() *PlausibilityRule {
	return &PlausibilityRule{
		MinHeight: 50,
		MaxHeight: 280,
		MinWeight: 10,
		MaxWeight: 650,
	}
}

func (r *PlausibilityRule) Name() string {
	return "plausibility"
}

func (r *PlausibilityRule) Apply(record *ml.RawRecord) (*ml.RawRecord, error) {
	if record.Height < r.MinHeight || record.Height > r.MaxHeight {
		return nil, fmt.Errorf("%w: height %.1fcm out of range [%.0f, %.0f]", ml.ErrInvalidRange, record.Height, r.MinHeight, r.MaxHeight)
	}
	if record.Weight < r.MinWeight || record.Weight > r.MaxWeight {
		return nil, fmt.Errorf("%w: weight %.1fkg out of range [%.0f, %.0f]", ml.ErrInvalidRange, record.Weight, r.MinWeight, r.MaxWeight)
	}
	return record, nil
}
