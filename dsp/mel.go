package dsp

import "math"

// melFilterBank maps a linear power spectrum onto triangular mel-spaced
// bands for MFCC computation.
type melFilterBank struct {
	filters [][]float64
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

func newMelFilterBank(numFilters, numBins, sampleRate int) *melFilterBank {
	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sampleRate) / 2)

	// numFilters triangles need numFilters+2 edge points.
	edges := make([]int, numFilters+2)
	for i := range edges {
		mel := lowMel + (highMel-lowMel)*float64(i)/float64(numFilters+1)
		hz := melToHz(mel)
		bin := int(math.Floor(hz * float64(2*(numBins-1)) / float64(sampleRate)))
		if bin > numBins-1 {
			bin = numBins - 1
		}
		edges[i] = bin
	}

	filters := make([][]float64, numFilters)
	for f := 0; f < numFilters; f++ {
		filters[f] = make([]float64, numBins)
		left, center, right := edges[f], edges[f+1], edges[f+2]
		for bin := left; bin < center; bin++ {
			if center > left {
				filters[f][bin] = float64(bin-left) / float64(center-left)
			}
		}
		for bin := center; bin <= right && bin < numBins; bin++ {
			if right > center {
				filters[f][bin] = float64(right-bin) / float64(right-center)
			} else if bin == center {
				filters[f][bin] = 1
			}
		}
	}
	return &melFilterBank{filters: filters}
}

// mfcc applies the filter bank to a power spectrum, takes log energies and
// projects them through the DCT matrix.
func (b *melFilterBank) mfcc(power []float64, dct [][]float64) []float64 {
	const eps = 1e-10
	logEnergies := make([]float64, len(b.filters))
	for f, filter := range b.filters {
		sum := 0.0
		for bin, w := range filter {
			if bin < len(power) {
				sum += w * power[bin]
			}
		}
		logEnergies[f] = math.Log(sum + eps)
	}

	coeffs := make([]float64, len(dct))
	for c, row := range dct {
		for f, w := range row {
			coeffs[c] += w * logEnergies[f]
		}
	}
	return coeffs
}

// newDCTMatrix builds a type-II DCT projection from numFilters log energies
// to numCoeffs cepstral coefficients.
func newDCTMatrix(numCoeffs, numFilters int) [][]float64 {
	m := make([][]float64, numCoeffs)
	for c := 0; c < numCoeffs; c++ {
		m[c] = make([]float64, numFilters)
		for f := 0; f < numFilters; f++ {
			m[c][f] = math.Cos(math.Pi * float64(c) * (float64(f) + 0.5) / float64(numFilters))
		}
	}
	return m
}
