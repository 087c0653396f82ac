package dsp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

var pitchClassNames = [12]string{
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

// Krumhansl-Schmuckler tonal hierarchy profiles.
// Reference: Krumhansl, C. L. (1990). "Cognitive Foundations of Musical Pitch"
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// accumulateChroma folds spectral energy into 12 pitch classes. Bins below
// 27.5 Hz (A0) are skipped as rumble.
func accumulateChroma(chroma []float64, power []float64, sampleRate, windowSize int) {
	binHz := float64(sampleRate) / float64(windowSize)
	for i := 1; i < len(power); i++ {
		freq := float64(i) * binHz
		if freq < 27.5 {
			continue
		}
		// MIDI note number, folded to a pitch class with C = 0.
		note := 69 + 12*math.Log2(freq/440)
		pc := int(math.Round(note)) % 12
		if pc < 0 {
			pc += 12
		}
		chroma[pc] += power[i]
	}
}

// estimateKey correlates the accumulated chroma against all 24 rotated
// major/minor profiles and returns the best key label and mode.
func estimateKey(chroma []float64) (key, scale string) {
	bestCorr := math.Inf(-1)
	bestPC := 0
	bestScale := "major"

	for pc := 0; pc < 12; pc++ {
		rotated := rotate(chroma, pc)
		if corr := stat.Correlation(rotated, majorProfile, nil); corr > bestCorr {
			bestCorr = corr
			bestPC = pc
			bestScale = "major"
		}
		if corr := stat.Correlation(rotated, minorProfile, nil); corr > bestCorr {
			bestCorr = corr
			bestPC = pc
			bestScale = "minor"
		}
	}
	return pitchClassNames[bestPC], bestScale
}

// rotate shifts the chroma vector so the candidate tonic sits at index 0.
func rotate(chroma []float64, tonic int) []float64 {
	out := make([]float64, 12)
	for i := 0; i < 12; i++ {
		out[i] = chroma[(i+tonic)%12]
	}
	return out
}
