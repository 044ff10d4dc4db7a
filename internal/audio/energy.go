package audio

import "math"

// Energy is the RMS of a frame, clamped to [0, 1].
func Energy(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	rms := math.Sqrt(s / float64(len(f)))
	if rms > 1 {
		return 1
	}
	return rms
}
