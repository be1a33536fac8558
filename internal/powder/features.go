package powder

// Feature names as they appear in model files and reports.
const (
	FeatureR23        = "R23"
	FeatureR34        = "R34"
	FeatureSpan       = "Span"
	FeatureTapDensity = "Tap_Density"
	FeatureHR         = "HR"
)

// Features is the positional input of a group's model. The order is part of
// the model contract.
type Features []float64

var featureOrder = map[Group][]string{
	GroupTitanium:       {FeatureR23, FeatureSpan, FeatureTapDensity},
	GroupStainlessSteel: {FeatureR23, FeatureR34, FeatureSpan, FeatureTapDensity, FeatureHR},
	GroupAluminum:       {FeatureR34, FeatureSpan, FeatureTapDensity},
}

// FeatureNames returns the ordered feature names for g, or nil.
func FeatureNames(g Group) []string {
	names, ok := featureOrder[g]
	if !ok {
		return nil
	}
	return append([]string(nil), names...)
}

// BuildFeatures assembles the vector for g's model. A non-finite component
// is a ComputationError naming the feature.
func BuildFeatures(g Group, m Metrics, s Sample) (Features, error) {
	names, ok := featureOrder[g]
	if !ok {
		return nil, &RoutingError{Material: string(g)}
	}
	values := map[string]float64{
		FeatureR23:        m.R23,
		FeatureR34:        m.R34,
		FeatureSpan:       m.Span,
		FeatureTapDensity: s.TapDensity,
		FeatureHR:         s.HausnerRatio,
	}
	out := make(Features, len(names))
	for i, n := range names {
		v := values[n]
		if !finite(v) {
			return nil, &ComputationError{Field: n, Reason: "is not finite"}
		}
		out[i] = v
	}
	return out, nil
}
