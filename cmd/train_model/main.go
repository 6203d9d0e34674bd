package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
	"github.com/iclim/ml-app/config"
	"github.com/iclim/ml-app/db"
	"github.com/iclim/ml-app/logging"
	"github.com/iclim/ml-app/ml"
	"github.com/iclim/ml-app/pipeline"
)

type options struct {
	data       string
	target     string
	name       string
	kind       string
	out        string
	sqlitePath string
	estimators int
	maxDepth   int
	alpha      float64
	testRatio  float64
	seed       int64
	dedupe     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.data, "data", "", "training CSV with a header row")
	flag.StringVar(&opts.target, "target", "", "target column (default: last column)")
	flag.StringVar(&opts.name, "name", "", "model identifier, e.g. iris")
	flag.StringVar(&opts.kind, "kind", "", "classification or regression (default: from the target column)")
	flag.StringVar(&opts.out, "out", config.Default().Artifacts.Dir, "artifact output directory")
	flag.StringVar(&opts.sqlitePath, "sqlite", "", "also publish the artifact to this SQLite database")
	flag.IntVar(&opts.estimators, "estimators", 100, "random forest size")
	flag.IntVar(&opts.maxDepth, "max_depth", 10, "max tree depth")
	flag.Float64Var(&opts.alpha, "alpha", 1.0, "ridge penalty")
	flag.Float64Var(&opts.testRatio, "test_ratio", 0.2, "held-out fraction")
	flag.Int64Var(&opts.seed, "seed", 42, "random seed")
	flag.BoolVar(&opts.dedupe, "dedupe", false, "drop duplicate rows")
	flag.Parse()

	logger, closer, err := logging.New(config.LogConfig{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		logger.Error("training failed", zap.Error(err))
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer, logger *zap.Logger) error {
	if opts.data == "" || opts.name == "" {
		return errors.New("-data and -name are required")
	}
	file, err := os.Open(opts.data)
	if err != nil {
		return err
	}
	defer file.Close()

	ds, err := pipeline.LoadCSV(file, opts.target)
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.data, err)
	}
	cleaner := pipeline.NewDataCleaner(len(ds.FeatureNames))
	if opts.dedupe {
		cleaner.AddRule(pipeline.NewDuplicateDetectionRule())
	}
	ds, issues := cleaner.Clean(ds)
	stats := cleaner.Stats()
	logger.Info("dataset loaded",
		zap.String("path", opts.data),
		zap.Int64("rows", stats.TotalProcessed),
		zap.Int64("rejected", stats.Rejected),
		zap.Int("features", len(ds.FeatureNames)),
	)
	for _, issue := range issues {
		logger.Debug("row dropped", zap.Int("row", issue.Row), zap.String("rule", issue.Rule), zap.String("reason", issue.Message))
	}
	if ds.Len() < 2 {
		return fmt.Errorf("need at least 2 clean rows, got %d", ds.Len())
	}

	kind, err := resolveKind(opts.kind, ds)
	if err != nil {
		return err
	}
	train, test := pipeline.Split(ds, opts.testRatio, opts.seed)

	var (
		model ml.Estimator
		meta  = ml.Metadata{ModelType: kind.String(), FeatureNames: ds.FeatureNames, NFeatures: len(ds.FeatureNames)}
	)
	switch kind {
	case ml.KindClassification:
		classes := ds.Classes
		if !ds.Categorical() {
			classes, err = numericClasses(ds)
			if err != nil {
				return err
			}
		}
		forest, err := ml.TrainRandomForest(train.X, train.Labels(), len(classes), ml.ForestOptions{
			Estimators: opts.estimators,
			MaxDepth:   opts.maxDepth,
			Seed:       opts.seed,
		})
		if err != nil {
			return fmt.Errorf("train random forest: %w", err)
		}
		if err := reportClassification(stdout, forest, test, classes); err != nil {
			return err
		}
		model = forest
		meta.TargetNames = classes
	case ml.KindRegression:
		ridge := &ml.Ridge{Alpha: opts.alpha}
		if err := ridge.Fit(train.X, train.Y); err != nil {
			return fmt.Errorf("fit ridge: %w", err)
		}
		if err := reportRegression(stdout, ridge, test); err != nil {
			return err
		}
		model = ridge
		meta.Target = ds.Target
	}

	modelBlob, err := ml.EncodeArtifact(model)
	if err != nil {
		return err
	}
	metaBlob, err := ml.EncodeMetadata(meta)
	if err != nil {
		return err
	}
	blobs := artifact.Blobs{Model: modelBlob, Metadata: metaBlob}

	files := artifact.NewFileSource(opts.out)
	if err := files.Put(ctx, opts.name, blobs); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	modelPath, metaPath := files.Paths(opts.name)
	logger.Info("artifact written", zap.String("model", modelPath), zap.String("metadata", metaPath))

	if opts.sqlitePath != "" {
		store, err := db.Open(opts.sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Put(ctx, opts.name, blobs); err != nil {
			return fmt.Errorf("publish to sqlite: %w", err)
		}
		logger.Info("artifact published", zap.String("source", store.Describe(opts.name)))
	}

	fmt.Fprintf(stdout, "%s model saved successfully!\n", opts.name)
	return nil
}

func resolveKind(flagValue string, ds pipeline.Dataset) (ml.Kind, error) {
	if flagValue == "" {
		if ds.Categorical() {
			return ml.KindClassification, nil
		}
		return ml.KindRegression, nil
	}
	kind, err := ml.ParseKind(flagValue)
	if err != nil {
		return "", err
	}
	if kind == ml.KindRegression && ds.Categorical() {
		return "", fmt.Errorf("target %q is categorical and cannot be regressed", ds.Target)
	}
	return kind, nil
}

// numericClasses names integer labels 0..k-1 after themselves.
func numericClasses(ds pipeline.Dataset) ([]string, error) {
	max := 0
	for i, y := range ds.Y {
		if y < 0 || y != float64(int(y)) {
			return nil, fmt.Errorf("row %d: class label %v is not a non-negative integer", i, y)
		}
		if int(y) > max {
			max = int(y)
		}
	}
	classes := make([]string, max+1)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return classes, nil
}

func reportClassification(w io.Writer, model ml.Classifier, test pipeline.Dataset, classes []string) error {
	if test.Len() == 0 {
		fmt.Fprintln(w, "Model Performance: no held-out rows")
		return nil
	}
	predicted, _, err := model.PredictProba(test.X)
	if err != nil {
		return err
	}
	actual := test.Labels()

	fmt.Fprintln(w, "Model Performance:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tsupport\t")
	for _, r := range ml.ClassificationReport(predicted, actual, len(classes)) {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t\n", classes[r.Class], r.Precision, r.Recall, r.Support)
	}
	fmt.Fprintf(tw, "accuracy\t%.2f\t\t%d\t\n", ml.Accuracy(predicted, actual), len(actual))
	return tw.Flush()
}

func reportRegression(w io.Writer, model ml.Regressor, test pipeline.Dataset) error {
	if test.Len() == 0 {
		fmt.Fprintln(w, "Model Performance: no held-out rows")
		return nil
	}
	predicted, err := model.Predict(test.X)
	if err != nil {
		return err
	}
	report := ml.EvaluateRegression(predicted, test.Y)
	fmt.Fprintln(w, "Model Performance:")
	fmt.Fprintf(w, "R² Score: %g\n", report.R2)
	fmt.Fprintf(w, "Mean Squared Error: %g\n", report.MSE)
	fmt.Fprintf(w, "Root Mean Squared Error: %g\n", report.RMSE)
	fmt.Fprintf(w, "Mean Residuals: %g\n", report.ResidualMean)
	fmt.Fprintf(w, "Std Residuals: %g\n", report.ResidualStdev)
	return nil
}
