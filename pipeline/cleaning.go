package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Row is one sample as seen by the cleaning rules.
type Row struct {
	Index    int
	Features []float64
	Target   float64
}

type CleaningRule interface {
	Apply(Row) error
	Name() string
}

type QualityIssue struct {
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner drops every row that fails at least one rule.
type DataCleaner struct {
	rules []CleaningRule

	statsLock sync.RWMutex
	stats     CleaningStats
}

// NewDataCleaner installs the default rules for rows of width features.
func NewDataCleaner(width int) *DataCleaner {
	cleaner := &DataCleaner{stats: CleaningStats{Issues: make(map[string]int64)}}
	cleaner.AddRule(NewWidthRule(width))
	cleaner.AddRule(NewFiniteValuesRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

func (dc *DataCleaner) Clean(ds Dataset) (Dataset, []QualityIssue) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	var (
		keep   []int
		issues []QualityIssue
	)
	for i := range ds.X {
		dc.stats.TotalProcessed++
		row := Row{Index: i, Features: ds.X[i], Target: ds.Y[i]}

		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Apply(row); err != nil {
				issues = append(issues, QualityIssue{Rule: rule.Name(), Row: i, Message: err.Error()})
				dc.stats.Issues[rule.Name()]++
				rejected = true
			}
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		dc.stats.Passed++
		keep = append(keep, i)
	}
	return ds.subset(keep), issues
}

func (dc *DataCleaner) Stats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// Clean applies the default rules.
func Clean(ds Dataset) (Dataset, []QualityIssue) {
	return NewDataCleaner(len(ds.FeatureNames)).Clean(ds)
}

type WidthRule struct {
	Width int
}

func NewWidthRule(width int) *WidthRule {
	return &WidthRule{Width: width}
}

func (r *WidthRule) Name() string {
	return "width_validation"
}

func (r *WidthRule) Apply(row Row) error {
	if len(row.Features) != r.Width {
		return fmt.Errorf("expected %d features, got %d", r.Width, len(row.Features))
	}
	return nil
}

// FiniteValuesRule rejects NaN and infinite features or targets.
type FiniteValuesRule struct{}

func NewFiniteValuesRule() *FiniteValuesRule {
	return &FiniteValuesRule{}
}

func (r *FiniteValuesRule) Name() string {
	return "finite_values"
}

func (r *FiniteValuesRule) Apply(row Row) error {
	for i, v := range row.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is %v", i, v)
		}
	}
	if math.IsNaN(row.Target) || math.IsInf(row.Target, 0) {
		return fmt.Errorf("target is %v", row.Target)
	}
	return nil
}

// DuplicateDetectionRule rejects rows already seen by this rule. It is not
// a default: the classic datasets contain legitimate duplicates.
type DuplicateDetectionRule struct {
	mu      sync.Mutex
	seenMap map[string]struct{}
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{seenMap: make(map[string]struct{})}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Apply(row Row) error {
	var b strings.Builder
	for _, v := range row.Features {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte(',')
	}
	b.WriteString(strconv.FormatFloat(row.Target, 'g', -1, 64))
	key := b.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.seenMap[key]; exists {
		return errors.New("duplicate of an earlier row")
	}
	r.seenMap[key] = struct{}{}
	return nil
}
