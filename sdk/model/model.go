package model

import (
	"fmt"

	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/ibs"
	"github.com/zintix-labs/ibslab/spec"
)

// Model is the simulator-side contract: a generative model that can only be
// sampled, never evaluated analytically.
//
// Items draws a synthetic dataset of n observations from the model
// (used by calibration runs and demos; real datasets come from outside).
//
// Probe binds one observation to a hit test: every Attempt must run one fresh
// simulation with rng and report whether it reproduced obs. Implementations
// must not cache simulation outcomes across attempts.
//
// NOTE: the *core.Core handed to Probe is owned by that probe alone. The
// caller guarantees per-item PRNGs, so implementations need no locking even
// when estimates run on the parallel path.
type Model interface {
	Items(rng *core.Core, n int) []int
	Probe(obs int, rng *core.Core) ibs.Probe
}

// Exact is an optional capability: models with a closed-form likelihood
// implement it so calibration can compare the estimate against ground truth.
type Exact interface {
	TrueLogP(obs int) float64
}

// Builder builds a Model from a decoded estimate setting
// (typically via spec.DecodeParams for the model-specific parameters).
type Builder func(es *spec.EstimateSetting) (Model, error)

type Registry struct {
	builders map[spec.ModelKey]Builder
}

func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[spec.ModelKey]Builder, 16),
	}
}

func (r *Registry) Register(mkey spec.ModelKey, b Builder) error {
	if _, ok := r.builders[mkey]; ok {
		return errs.NewFatal("duplicate model builder")
	}
	r.builders[mkey] = b
	return nil
}

func (r *Registry) Build(es *spec.EstimateSetting) (Model, error) {
	b, ok := r.builders[es.ModelKey]
	if !ok {
		return nil, errs.NewFatal(fmt.Sprintf("model is not exist: %s", es.ModelKey))
	}
	return b(es)
}

func (r *Registry) IsExist(mkey spec.ModelKey) bool {
	_, ok := r.builders[mkey]
	return ok
}

// Merge merges multiple registries into a new one.
//
// Function values are not comparable, so duplicate keys are an error
// unconditionally. This keeps behavior deterministic and avoids
// "last one wins" surprises.
func Merge(regs ...*Registry) (*Registry, error) {
	mr := NewRegistry()

	origin := make(map[spec.ModelKey]int, 16)
	for i, r := range regs {
		if r == nil {
			continue
		}
		for mkey, builder := range r.builders {
			if _, ok := mr.builders[mkey]; ok {
				prev := origin[mkey]
				return nil, errs.NewFatal(fmt.Sprintf("duplicate model key %s (registry #%d and #%d)", mkey, prev, i))
			}
			mr.builders[mkey] = builder
			origin[mkey] = i
		}
	}

	return mr, nil
}
