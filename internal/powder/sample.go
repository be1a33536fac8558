package powder

import (
	"errors"
	"math"
)

// Sample holds one powder characterization. Diameters are in µm, densities
// in g/cm³.
type Sample struct {
	D10            float64 `json:"d10"`
	D50            float64 `json:"d50"`
	D90            float64 `json:"d90"`
	D23            float64 `json:"d23"`
	D34            float64 `json:"d34"`
	TapDensity     float64 `json:"tap_density"`
	HausnerRatio   float64 `json:"hausner_ratio"`
	LayerThickness float64 `json:"layer_thickness"`
	BulkDensity    float64 `json:"bulk_density"`
}

// DefaultSample holds the prefilled values of the entry form.
func DefaultSample() Sample {
	return Sample{
		D10:            15,
		D50:            35,
		D90:            55,
		D23:            30,
		D34:            42,
		TapDensity:     5.0,
		HausnerRatio:   1.2,
		LayerThickness: 60,
		BulkDensity:    4.5,
	}
}

// Validate reports every field outside its physical domain.
func (s Sample) Validate() error {
	var errs []error
	positive := []struct {
		name string
		v    float64
	}{
		{"d10", s.D10},
		{"d50", s.D50},
		{"d90", s.D90},
		{"d23", s.D23},
		{"d34", s.D34},
		{"tap_density", s.TapDensity},
		{"layer_thickness", s.LayerThickness},
	}
	for _, f := range positive {
		if !finite(f.v) || f.v <= 0 {
			errs = append(errs, &InputError{Field: f.name, Reason: "must be > 0"})
		}
	}
	if !finite(s.HausnerRatio) || s.HausnerRatio < 1.0 {
		errs = append(errs, &InputError{Field: "hausner_ratio", Reason: "must be >= 1.0"})
	}
	if !finite(s.BulkDensity) || s.BulkDensity < 0 {
		errs = append(errs, &InputError{Field: "bulk_density", Reason: "must be >= 0"})
	}
	return errors.Join(errs...)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
