package pipeline

import (
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const irisCSV = `sepal length (cm),sepal width (cm),petal length (cm),petal width (cm),species
5.1,3.5,1.4,0.2,setosa
7.0,3.2,4.7,1.4,versicolor
6.3,3.3,6.0,2.5,virginica
4.9,3.0,1.4,0.2,setosa
`

func TestLoadCSVCategorical(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(irisCSV), "species")
	require.NoError(t, err)

	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, "species", ds.Target)
	assert.Len(t, ds.FeatureNames, 4)
	assert.True(t, ds.Categorical())
	assert.Equal(t, []string{"setosa", "versicolor", "virginica"}, ds.Classes)
	assert.Equal(t, []int{0, 1, 2, 0}, ds.Labels())
	assert.Equal(t, []float64{6.3, 3.3, 6.0, 2.5}, ds.X[2])
}

func TestLoadCSVNumericTarget(t *testing.T) {
	data := "progression,age,bmi\n151,0.038,0.062\n75,-0.001,-0.051\n"
	ds, err := LoadCSV(strings.NewReader(data), "progression")
	require.NoError(t, err)

	assert.False(t, ds.Categorical())
	assert.Equal(t, []string{"age", "bmi"}, ds.FeatureNames)
	assert.Equal(t, []float64{151, 75}, ds.Y)
	assert.Equal(t, []float64{0.038, 0.062}, ds.X[0])
}

func TestLoadCSVDefaultsToLastColumn(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("a,b,y\n1,2,3\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "y", ds.Target)
	assert.Equal(t, []string{"a", "b"}, ds.FeatureNames)
}

func TestLoadCSVErrors(t *testing.T) {
	tests := map[string]struct {
		data   string
		target string
		want   string
	}{
		"empty":          {data: "", want: "empty"},
		"header only":    {data: "a,y\n", want: "no data rows"},
		"single column":  {data: "y\n1\n", want: "two columns"},
		"unknown target": {data: "a,y\n1,2\n", target: "label", want: "not found"},
		"bad number":     {data: "a,y\n1,2\nx,3\n", want: "line 3"},
		"ragged row":     {data: "a,y\n1,2\n1,2,3\n", want: "read row"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.data), tt.target)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCleanDropsNonFinite(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("a,b,y\n1,2,3\n,2,3\n1,2,\n4,5,6\n"), "y")
	require.NoError(t, err)
	require.True(t, math.IsNaN(ds.X[1][0]))

	cleaner := NewDataCleaner(2)
	cleaned, issues := cleaner.Clean(ds)
	assert.Equal(t, 2, cleaned.Len())
	assert.Equal(t, []float64{3, 6}, cleaned.Y)
	require.Len(t, issues, 2)
	assert.Equal(t, "finite_values", issues[0].Rule)
	assert.Equal(t, 1, issues[0].Row)

	stats := cleaner.Stats()
	assert.EqualValues(t, 4, stats.TotalProcessed)
	assert.EqualValues(t, 2, stats.Passed)
	assert.EqualValues(t, 2, stats.Rejected)
	assert.EqualValues(t, 2, stats.Issues["finite_values"])
}

func TestDuplicateDetection(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(irisCSV+"5.1,3.5,1.4,0.2,setosa\n"), "species")
	require.NoError(t, err)

	cleaned, issues := Clean(ds)
	assert.Equal(t, 5, cleaned.Len(), "duplicates are kept by default")
	assert.Empty(t, issues)

	cleaner := NewDataCleaner(4)
	cleaner.AddRule(NewDuplicateDetectionRule())
	cleaned, issues = cleaner.Clean(ds)
	assert.Equal(t, 4, cleaned.Len())
	require.Len(t, issues, 1)
	assert.Equal(t, 4, issues[0].Row)
}

func TestWidthRule(t *testing.T) {
	rule := NewWidthRule(3)
	assert.NoError(t, rule.Apply(Row{Features: []float64{1, 2, 3}}))
	assert.Error(t, rule.Apply(Row{Features: []float64{1, 2}}))
}

func TestSplit(t *testing.T) {
	ds := Dataset{FeatureNames: []string{"x"}, Target: "y"}
	for i := 0; i < 10; i++ {
		ds.X = append(ds.X, []float64{float64(i)})
		ds.Y = append(ds.Y, float64(i))
	}

	train, test := Split(ds, 0.2, 42)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, test.Len())

	var all []float64
	all = append(all, train.Y...)
	all = append(all, test.Y...)
	sort.Float64s(all)
	assert.Equal(t, ds.Y, all, "every row lands in exactly one side")
	for i := range train.X {
		assert.Equal(t, train.Y[i], train.X[i][0], "rows keep their targets")
	}

	again, _ := Split(ds, 0.2, 42)
	assert.Equal(t, train.Y, again.Y, "same seed, same split")

	train, test = Split(ds, 5, 1)
	assert.Equal(t, 2, test.Len(), "invalid ratio falls back to 0.2")

	train, test = Split(Dataset{X: [][]float64{{1}}, Y: []float64{1}}, 0.2, 1)
	assert.Equal(t, 1, train.Len())
	assert.Equal(t, 0, test.Len())
}
