package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
	"github.com/iclim/ml-app/ml"
)

// Status is a snapshot of a unit's lifecycle state.
type Status struct {
	ID       string    `json:"model"`
	Loaded   bool      `json:"loaded"`
	Kind     ml.Kind   `json:"kind,omitempty"`
	Error    string    `json:"error,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Info describes a loaded model. When Available is false only ID and Error
// are set.
type Info struct {
	ID           string
	Available    bool
	Kind         ml.Kind
	ModelType    string
	FeatureNames []string
	TargetNames  []string
	Target       string
	NFeatures    int
	Error        string
}

// Unit wraps one model artifact. Load never fails loudly: callers check
// Loaded, and LoadError keeps the reason of the last failed attempt.
type Unit struct {
	id        string
	source    artifact.Source
	logger    *zap.Logger
	cacheSize int

	mu         sync.RWMutex
	kind       ml.Kind
	estimator  string
	classifier ml.Classifier
	regressor  ml.Regressor
	metadata   ml.Metadata
	loaded     bool
	loadErr    error
	loadedAt   time.Time
	cache      *lru.Cache[string, Prediction]
}

func newUnit(id string, source artifact.Source, logger *zap.Logger, cacheSize int) *Unit {
	return &Unit{
		id:        id,
		source:    source,
		logger:    logger.With(zap.String("model", id)),
		cacheSize: cacheSize,
	}
}

func (u *Unit) ID() string {
	return u.id
}

func (u *Unit) Loaded() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.loaded
}

// LoadError returns why the last load failed, or nil.
func (u *Unit) LoadError() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.loadErr
}

// Kind is empty until a load succeeds.
func (u *Unit) Kind() ml.Kind {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.kind
}

type loadedModel struct {
	kind       ml.Kind
	estimator  string
	classifier ml.Classifier
	regressor  ml.Regressor
	metadata   ml.Metadata
}

// Load deserializes the artifact and metadata from scratch. The outcome of
// the latest call wins.
func (u *Unit) Load(ctx context.Context) Status {
	start := time.Now()
	model, err := u.fetch(ctx)

	var cache *lru.Cache[string, Prediction]
	if err == nil && u.cacheSize > 0 {
		cache, err = lru.New[string, Prediction](u.cacheSize)
	}

	u.mu.Lock()
	if err != nil {
		u.kind = ""
		u.estimator = ""
		u.classifier = nil
		u.regressor = nil
		u.metadata = ml.Metadata{}
		u.loaded = false
		u.loadErr = err
		u.loadedAt = time.Time{}
		u.cache = nil
	} else {
		u.kind = model.kind
		u.estimator = model.estimator
		u.classifier = model.classifier
		u.regressor = model.regressor
		u.metadata = model.metadata
		u.loaded = true
		u.loadErr = nil
		u.loadedAt = time.Now()
		u.cache = cache
	}
	u.mu.Unlock()

	if err != nil {
		u.logger.Error("model load failed",
			zap.String("source", u.source.Describe(u.id)),
			zap.Error(err),
		)
	} else {
		u.logger.Info("model loaded",
			zap.String("kind", model.kind.String()),
			zap.String("estimator", model.estimator),
			zap.Int("n_features", model.metadata.NFeatures),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return u.Status()
}

func (u *Unit) fetch(ctx context.Context) (loadedModel, error) {
	blobs, err := u.source.Fetch(ctx, u.id)
	if err != nil {
		return loadedModel{}, fmt.Errorf("fetch artifact: %w", err)
	}
	meta, err := ml.DecodeMetadata(blobs.Metadata)
	if err != nil {
		return loadedModel{}, err
	}
	kind, err := ml.ParseKind(meta.ModelType)
	if err != nil {
		return loadedModel{}, fmt.Errorf("%w: %v", ErrInvalidModelState, err)
	}
	if meta.NFeatures <= 0 {
		return loadedModel{}, fmt.Errorf("%w: metadata n_features must be positive", ErrInvalidModelState)
	}
	if len(meta.FeatureNames) > 0 && len(meta.FeatureNames) != meta.NFeatures {
		return loadedModel{}, fmt.Errorf("%w: %d feature names for %d features", ErrInvalidModelState, len(meta.FeatureNames), meta.NFeatures)
	}

	estimator, err := ml.DecodeArtifact(blobs.Model)
	if err != nil {
		return loadedModel{}, err
	}
	if estimator.NumFeatures() != meta.NFeatures {
		return loadedModel{}, fmt.Errorf("%w: artifact expects %d features, metadata declares %d", ErrInvalidModelState, estimator.NumFeatures(), meta.NFeatures)
	}

	model := loadedModel{kind: kind, estimator: estimator.Name(), metadata: meta}
	switch kind {
	case ml.KindClassification:
		classifier, ok := estimator.(ml.Classifier)
		if !ok {
			return loadedModel{}, fmt.Errorf("%w: %s is not a classifier", ErrInvalidModelState, estimator.Name())
		}
		if classifier.NumClasses() != len(meta.TargetNames) {
			return loadedModel{}, fmt.Errorf("%w: artifact has %d classes, metadata names %d", ErrInvalidModelState, classifier.NumClasses(), len(meta.TargetNames))
		}
		model.classifier = classifier
	case ml.KindRegression:
		regressor, ok := estimator.(ml.Regressor)
		if !ok {
			return loadedModel{}, fmt.Errorf("%w: %s is not a regressor", ErrInvalidModelState, estimator.Name())
		}
		model.regressor = regressor
	}
	return model, nil
}

// Predict runs a single sample through the same path as PredictBatch.
func (u *Unit) Predict(features []float64) (Prediction, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if err := u.ready(); err != nil {
		return Prediction{}, err
	}
	if len(features) != u.metadata.NFeatures {
		return Prediction{}, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, u.metadata.NFeatures, len(features))
	}
	predictions, err := u.infer([][]float64{features})
	if err != nil {
		return Prediction{}, err
	}
	return predictions[0], nil
}

// PredictBatch validates every sample before running inference once for
// the whole batch. One malformed sample fails the call.
func (u *Unit) PredictBatch(samples [][]float64) ([]Prediction, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if err := u.ready(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: samples must not be empty", ErrInvalidInput)
	}
	for i, sample := range samples {
		if len(sample) != u.metadata.NFeatures {
			return nil, fmt.Errorf("%w: sample %d: expected %d features, got %d", ErrInvalidInput, i, u.metadata.NFeatures, len(sample))
		}
	}
	return u.infer(samples)
}

func (u *Unit) ready() error {
	if !u.loaded {
		return fmt.Errorf("model %q: %w", u.id, ErrNotLoaded)
	}
	return nil
}

func (u *Unit) infer(samples [][]float64) ([]Prediction, error) {
	results := make([]Prediction, len(samples))
	keys := make([]string, len(samples))
	pending := make([]int, 0, len(samples))
	for i, sample := range samples {
		if u.cache != nil {
			keys[i] = cacheKey(sample)
			if cached, ok := u.cache.Get(keys[i]); ok {
				results[i] = cached.clone()
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	batch := make([][]float64, len(pending))
	for j, i := range pending {
		batch[j] = samples[i]
	}
	computed, err := u.decide(batch)
	if err != nil {
		return nil, err
	}
	for j, i := range pending {
		results[i] = computed[j]
		if u.cache != nil {
			u.cache.Add(keys[i], computed[j].clone())
		}
	}
	return results, nil
}

func (u *Unit) decide(batch [][]float64) ([]Prediction, error) {
	switch u.kind {
	case ml.KindClassification:
		if u.classifier == nil {
			return nil, fmt.Errorf("model %q: %w: classifier missing", u.id, ErrInvalidModelState)
		}
		ids, proba, err := u.classifier.PredictProba(batch)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", u.id, err)
		}
		predictions, err := normalizeClasses(ids, proba, u.metadata.TargetNames)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", u.id, err)
		}
		return predictions, nil
	case ml.KindRegression:
		if u.regressor == nil {
			return nil, fmt.Errorf("model %q: %w: regressor missing", u.id, ErrInvalidModelState)
		}
		values, err := u.regressor.Predict(batch)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", u.id, err)
		}
		if len(values) != len(batch) {
			return nil, fmt.Errorf("model %q: %w: %d outputs for %d samples", u.id, ErrInvalidModelState, len(values), len(batch))
		}
		predictions, err := normalizeValues(values)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w: non-finite output", u.id, err)
		}
		return predictions, nil
	default:
		return nil, fmt.Errorf("model %q: %w: unknown kind %q", u.id, ErrInvalidModelState, u.kind)
	}
}

// Info never fails; an unloaded unit reports Available=false.
func (u *Unit) Info() Info {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if !u.loaded {
		info := Info{ID: u.id, Error: ErrNotLoaded.Error()}
		if u.loadErr != nil {
			info.Error = u.loadErr.Error()
		}
		return info
	}
	info := Info{
		ID:           u.id,
		Available:    true,
		Kind:         u.kind,
		ModelType:    u.estimator,
		FeatureNames: append([]string(nil), u.metadata.FeatureNames...),
		Target:       u.metadata.Target,
		NFeatures:    u.metadata.NFeatures,
	}
	if u.kind == ml.KindClassification {
		info.TargetNames = append([]string(nil), u.metadata.TargetNames...)
	}
	return info
}

func (u *Unit) Status() Status {
	u.mu.RLock()
	defer u.mu.RUnlock()

	status := Status{ID: u.id, Loaded: u.loaded, Kind: u.kind, LoadedAt: u.loadedAt}
	if u.loadErr != nil {
		status.Error = u.loadErr.Error()
	}
	return status
}

func cacheKey(sample []float64) string {
	buf := make([]byte, 8*len(sample))
	for i, v := range sample {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return string(buf)
}

