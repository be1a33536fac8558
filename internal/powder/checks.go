package powder

// WarningCode identifies one advisory range check.
type WarningCode string

const (
	WarnSpanRange   WarningCode = "span_range"
	WarnR23Range    WarningCode = "r23_range"
	WarnR34Range    WarningCode = "r34_range"
	WarnBridging    WarningCode = "bridging"
	WarnFlowability WarningCode = "flowability"
)

// Warning is advisory; it never blocks a prediction.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func (w Warning) String() string { return w.Message }

type rangeCheck struct {
	code     WarningCode
	message  string
	outOfBox func(Sample, Metrics) bool
}

var checks = []rangeCheck{
	{WarnSpanRange, "Span is outside typical range (0.8–2.0).", func(_ Sample, m Metrics) bool {
		return m.Span < 0.8 || m.Span > 2.0
	}},
	{WarnR23Range, "R23 is outside expected range.", func(_ Sample, m Metrics) bool {
		return m.R23 < 0.05 || m.R23 > 1.2
	}},
	{WarnR34Range, "R34 is outside expected range.", func(_ Sample, m Metrics) bool {
		return m.R34 < 0.05 || m.R34 > 1.5
	}},
	{WarnBridging, "D[2,3] is greater than layer thickness — may cause bridging.", func(s Sample, _ Metrics) bool {
		return s.D23 > s.LayerThickness
	}},
	{WarnFlowability, "HR is high — flowability may be poor.", func(s Sample, _ Metrics) bool {
		return s.HausnerRatio > 1.4
	}},
}

// Check runs every range check independently and returns the ones that fired,
// in a stable order.
func Check(s Sample, m Metrics) []Warning {
	var out []Warning
	for _, c := range checks {
		if c.outOfBox(s, m) {
			out = append(out, Warning{Code: c.code, Message: c.message})
		}
	}
	return out
}
