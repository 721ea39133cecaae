package capture

import "math"

// DefaultAccuracyThreshold is the largest GPS accuracy radius, in metres,
// that may be submitted.
const DefaultAccuracyThreshold = 10.0

// AccuracyGate decides whether a GPS reading is precise enough to submit.
type AccuracyGate struct {
	Threshold float64
}

func DefaultGate() AccuracyGate {
	return AccuracyGate{Threshold: DefaultAccuracyThreshold}
}

// Acceptable reports accuracy <= Threshold. NaN never passes.
func (g AccuracyGate) Acceptable(accuracy float64) bool {
	if math.IsNaN(accuracy) {
		return false
	}
	return accuracy <= g.Threshold
}

// Allows reports whether c may be confirmed. Map picks carry no accuracy
// and always pass.
func (g AccuracyGate) Allows(c *Candidate) bool {
	if c == nil {
		return false
	}
	if c.Accuracy == nil {
		return true
	}
	return g.Acceptable(*c.Accuracy)
}
