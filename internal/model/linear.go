package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mind-engage/pbpd/internal/powder"
)

// Linear is a fitted linear regression: intercept + coefficients·features.
type Linear struct {
	Group        powder.Group `yaml:"group" json:"group"`
	Features     []string     `yaml:"features" json:"features"`
	Coefficients []float64    `yaml:"coefficients" json:"coefficients"`
	Intercept    float64      `yaml:"intercept" json:"intercept"`
}

// Validate checks that the model matches the feature layout its group expects.
func (m *Linear) Validate() error {
	want := powder.FeatureNames(m.Group)
	if want == nil {
		return fmt.Errorf("model group %q is not routable", m.Group)
	}
	if len(m.Coefficients) != len(want) {
		return fmt.Errorf("model %s: %d coefficients, want %d", m.Group.Code(), len(m.Coefficients), len(want))
	}
	// feature names are optional in the file; when present they must match
	if len(m.Features) > 0 {
		if len(m.Features) != len(want) {
			return fmt.Errorf("model %s: features %v, want %v", m.Group.Code(), m.Features, want)
		}
		for i := range want {
			if m.Features[i] != want[i] {
				return fmt.Errorf("model %s: feature %d is %q, want %q", m.Group.Code(), i, m.Features[i], want[i])
			}
		}
	}
	for _, c := range append([]float64{m.Intercept}, m.Coefficients...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("model %s: non-finite coefficient", m.Group.Code())
		}
	}
	return nil
}

func (m *Linear) Predict(_ context.Context, f powder.Features) (float64, error) {
	if len(f) != len(m.Coefficients) {
		return 0, fmt.Errorf("model %s: got %d features, want %d", m.Group.Code(), len(f), len(m.Coefficients))
	}
	return m.Intercept + floats.Dot(m.Coefficients, f), nil
}
