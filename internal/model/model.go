package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mind-engage/pbpd/internal/powder"
)

var ErrModelNotFound = errors.New("model not found")

// NotFoundError is returned when no model is registered for a group.
type NotFoundError struct {
	Group powder.Group
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Model for '%s' not found. Make sure the model file exists.", e.Group.Code())
}

func (e *NotFoundError) Is(target error) bool { return target == ErrModelNotFound }

// Predictor is a pre-fitted regression model. It returns one PBPD value (%)
// for a feature vector laid out as powder.FeatureNames describes.
type Predictor interface {
	Predict(ctx context.Context, f powder.Features) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, f powder.Features) (float64, error)

func (fn PredictorFunc) Predict(ctx context.Context, f powder.Features) (float64, error) {
	return fn(ctx, f)
}

// Registry resolves the model for a material group.
type Registry interface {
	Lookup(g powder.Group) (Predictor, error)
}

// MapRegistry is an in-process Registry keyed by group.
type MapRegistry struct {
	mu     sync.RWMutex
	models map[powder.Group]Predictor
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{models: map[powder.Group]Predictor{}}
}

// Register installs p for g, replacing any previous model.
func (r *MapRegistry) Register(g powder.Group, p Predictor) {
	r.mu.Lock()
	r.models[g] = p
	r.mu.Unlock()
}

func (r *MapRegistry) Lookup(g powder.Group) (Predictor, error) {
	r.mu.RLock()
	p, ok := r.models[g]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Group: g}
	}
	return p, nil
}

// Groups lists registered groups, sorted.
func (r *MapRegistry) Groups() []powder.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]powder.Group, 0, len(r.models))
	for g := range r.models {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Available reports which routable groups currently resolve to a model.
func Available(reg Registry) map[powder.Group]bool {
	out := map[powder.Group]bool{}
	for _, g := range powder.Groups() {
		_, err := reg.Lookup(g)
		out[g] = err == nil
	}
	return out
}
