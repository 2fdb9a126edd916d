package transcriber

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DetectEnvelope follows the amplitude contour of samples with a one-pole
// filter whose coefficient depends on whether the signal is rising (attack)
// or falling (release). The output has the same length as samples.
func DetectEnvelope(samples []float64, sampleRate int, attackSeconds, releaseSeconds float64) []float64 {
	ga := math.Exp(-1 / (float64(sampleRate) * attackSeconds))
	gr := math.Exp(-1 / (float64(sampleRate) * releaseSeconds))

	out := make([]float64, len(samples))
	envelope := 0.0
	for i, s := range samples {
		in := math.Abs(s)
		if envelope < in {
			envelope = envelope*ga + (1-ga)*in
		} else {
			envelope = envelope*gr + (1-gr)*in
		}
		out[i] = envelope
	}
	return out
}

// NormalizeUp boosts buf in place so its peak reaches target. Buffers whose
// peak is already at or above target, or is zero, are left untouched.
func NormalizeUp(buf []float64, target float64) {
	if len(buf) == 0 {
		return
	}
	peak := floats.Max(buf)
	if peak <= 0 || peak >= target {
		return
	}
	floats.Scale(target/peak, buf)
}
