package powder

// Metrics are the dimensionless ratios fed to the models.
type Metrics struct {
	Span float64 `json:"span"`
	R23  float64 `json:"r23"`
	R34  float64 `json:"r34"`
}

// Derive computes Span = (D90-D10)/D50, R23 = D23/layer and R34 = D34/layer.
// A zero denominator or any non-finite result is a ComputationError.
func Derive(s Sample) (Metrics, error) {
	if s.D50 == 0 {
		return Metrics{}, &ComputationError{Field: "d50", Reason: "is zero (span denominator)"}
	}
	if s.LayerThickness == 0 {
		return Metrics{}, &ComputationError{Field: "layer_thickness", Reason: "is zero (R23/R34 denominator)"}
	}
	m := Metrics{
		Span: (s.D90 - s.D10) / s.D50,
		R23:  s.D23 / s.LayerThickness,
		R34:  s.D34 / s.LayerThickness,
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"span", m.Span}, {"r23", m.R23}, {"r34", m.R34}} {
		if !finite(c.v) {
			return Metrics{}, &ComputationError{Field: c.name, Reason: "is not finite"}
		}
	}
	return m, nil
}
