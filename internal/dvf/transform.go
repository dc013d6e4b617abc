package dvf

import "math"

// LogTransform returns ln(v). Zero and negative values have no log and come
// back as null, so a zero price or distance never turns into -Inf.
func LogTransform(v float64) (float64, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return math.Log(v), true
}

// LogOrNaN is LogTransform with NaN as the null value.
func LogOrNaN(v float64) float64 {
	if l, ok := LogTransform(v); ok {
		return l
	}
	return math.NaN()
}
