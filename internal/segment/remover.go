// Package segment separates foreground from background without a trained
// model. Strategies satisfy the Remover capability and are picked by name from
// a Registry, so a model-backed implementation can be added next to the
// heuristic one without touching callers.
package segment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dunamismax/pixelforge/internal/raster"
)

const HeuristicStrategy = "heuristic"

var (
	ErrUnknownStrategy   = errors.New("unknown background strategy")
	ErrDuplicateStrategy = errors.New("background strategy already registered")
)

// Remover returns a copy of src with the RGB samples untouched and the alpha
// channel replaced by a foreground matte. strength is clamped to [0, 1].
type Remover interface {
	RemoveBackground(ctx context.Context, src *raster.Buffer, strength float64, onProgress raster.ProgressFunc) (*raster.Buffer, error)
}

type Factory func(opts Options) (Remover, error)

// Options tunes the heuristic classifier. Non-positive fields fall back to
// DefaultOptions.
// Options tunes a remover. Non-positive Strength, SampleStep and MaxThreshold
// fall back to DefaultOptions. BaseThreshold and BlurMax fall back only when
// negative, so zero is a valid setting; a zero BlurMax leaves edges hard.
type Options struct {
	Strength      float64
	SampleStep    int
	BaseThreshold float64
	MaxThreshold  float64
	BlurMax       float64
}

func DefaultOptions() Options {
	return Options{
		Strength:      0.6,
		SampleStep:    8,
		BaseThreshold: 32,
		MaxThreshold:  180,
		BlurMax:       18,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Strength <= 0 {
		o.Strength = def.Strength
	}
	if o.SampleStep <= 0 {
		o.SampleStep = def.SampleStep
	}
	if o.BaseThreshold < 0 {
		o.BaseThreshold = def.BaseThreshold
	}
	if o.MaxThreshold <= 0 {
		o.MaxThreshold = def.MaxThreshold
	}
	if o.BlurMax < 0 {
		o.BlurMax = def.BlurMax
	}
	return o
}

// Registry maps strategy names to factories. The zero value is not usable;
// create one with NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry that already knows the heuristic strategy.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[HeuristicStrategy] = func(opts Options) (Remover, error) {
		return NewHeuristic(opts), nil
	}
	return r
}

func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register strategy %q: name and factory are required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.factories[name] = factory
	return nil
}

// New builds the named strategy.
func (r *Registry) New(name string, opts Options) (Remover, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}

	remover, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("build strategy %s: %w", name, err)
	}
	return remover, nil
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
