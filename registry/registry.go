// Package registry holds the named inference units served by the API.
//
// The lifecycle is init (Register every known identifier), load (LoadAll
// before traffic is accepted) and serve. Units are never removed.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iclim/ml-app/artifact"
)

// Observer is notified after every load attempt.
type Observer interface {
	OnLoad(status Status)
}

type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCacheSize enables a per-model LRU of that many predictions.
func WithCacheSize(size int) Option {
	return func(r *Registry) {
		r.cacheSize = size
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Registry) {
		if observer != nil {
			r.observers = append(r.observers, observer)
		}
	}
}

type Registry struct {
	source    artifact.Source
	logger    *zap.Logger
	cacheSize int
	observers []Observer

	mu    sync.RWMutex
	units map[string]*Unit
}

func New(source artifact.Source, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		logger: zap.NewNop(),
		units:  make(map[string]*Unit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an unloaded unit for id.
func (r *Registry) Register(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}
	r.units[id] = newUnit(id, r.source, r.logger, r.cacheSize)
	return nil
}

// Lookup returns the unit for id whether or not it is loaded.
func (r *Registry) Lookup(id string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return unit, nil
}

// List returns the registered identifiers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type LoadReport struct {
	Statuses []Status
	Err      error
}

func (lr LoadReport) Healthy() bool {
	return lr.Err == nil
}

// LoadAll loads every unit synchronously. A failing model never stops the
// others from loading.
func (r *Registry) LoadAll(ctx context.Context) LoadReport {
	var report LoadReport
	for _, id := range r.List() {
		status, err := r.Reload(ctx, id)
		if err != nil {
			report.Err = multierr.Append(report.Err, err)
			continue
		}
		report.Statuses = append(report.Statuses, status)
		if !status.Loaded {
			report.Err = multierr.Append(report.Err, fmt.Errorf("%s: %s", id, status.Error))
		}
	}

	loaded := 0
	for _, status := range report.Statuses {
		if status.Loaded {
			loaded++
		}
	}
	fields := []zap.Field{zap.Int("loaded", loaded), zap.Int("registered", len(report.Statuses))}
	if report.Err != nil {
		r.logger.Warn("models loaded with failures", append(fields, zap.Errors("failures", multierr.Errors(report.Err)))...)
	} else {
		r.logger.Info("models loaded", fields...)
	}
	return report
}

// Reload re-reads the artifact of one unit and notifies observers.
func (r *Registry) Reload(ctx context.Context, id string) (Status, error) {
	unit, err := r.Lookup(id)
	if err != nil {
		return Status{}, err
	}
	status := unit.Load(ctx)
	for _, observer := range r.observers {
		observer.OnLoad(status)
	}
	return status, nil
}

// Statuses snapshots every unit in identifier order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	units := make([]*Unit, 0, len(r.units))
	for _, unit := range r.units {
		units = append(units, unit)
	}
	r.mu.RUnlock()

	sort.Slice(units, func(i, j int) bool { return units[i].id < units[j].id })
	statuses := make([]Status, len(units))
	for i, unit := range units {
		statuses[i] = unit.Status()
	}
	return statuses
}
