// Package dsp is the bundled feature-extraction backend. It computes a
// small set of frame-averaged descriptors (energy, spectral shape, mean
// MFCCs, estimated key) from mono PCM. The pipeline only depends on the
// extraction contract, so this backend is replaceable.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/logging"
)

// Feature names the bundled extractor understands.
const (
	FeatureEnergy           = "energy"
	FeatureRMS              = "rms"
	FeatureZCR              = "zcr"
	FeatureSpectralCentroid = "spectralCentroid"
	FeatureSpectralRolloff  = "spectralRolloff"
	FeatureSpectralFlatness = "spectralFlatness"
	FeatureMFCC             = "mfcc"
	FeatureKey              = "key"
	FeatureScale            = "scale"
)

// KnownFeatures lists every feature name this extractor can produce.
func KnownFeatures() []string {
	return []string{
		FeatureEnergy, FeatureRMS, FeatureZCR,
		FeatureSpectralCentroid, FeatureSpectralRolloff, FeatureSpectralFlatness,
		FeatureMFCC, FeatureKey, FeatureScale,
	}
}

// FeatureKind reports the value kind a feature produces: scalar, vector or
// label.
func FeatureKind(name string) string {
	switch name {
	case FeatureMFCC:
		return "vector"
	case FeatureKey, FeatureScale:
		return "label"
	default:
		return "scalar"
	}
}

// Config holds analysis parameters.
type Config struct {
	WindowSize       int     `json:"window_size"`
	HopSize          int     `json:"hop_size"`
	MFCCCoefficients int     `json:"mfcc_coefficients"`
	MelFilters       int     `json:"mel_filters"`
	RolloffPercent   float64 `json:"rolloff_percent"`
}

// DefaultConfig returns sensible analysis defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:       2048,
		HopSize:          1024,
		MFCCCoefficients: 13,
		MelFilters:       26,
		RolloffPercent:   0.85,
	}
}

// Extractor computes feature bags from PCM samples.
type Extractor struct {
	cfg    Config
	logger logging.Logger
}

// NewExtractor creates an extractor with the given config; zero fields fall
// back to defaults.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.MFCCCoefficients <= 0 {
		cfg.MFCCCoefficients = def.MFCCCoefficients
	}
	if cfg.MelFilters <= 0 {
		cfg.MelFilters = def.MelFilters
	}
	if cfg.RolloffPercent <= 0 || cfg.RolloffPercent > 1 {
		cfg.RolloffPercent = def.RolloffPercent
	}
	return &Extractor{
		cfg:    cfg,
		logger: logging.WithFields(logging.Fields{"component": "dsp_extractor"}),
	}
}

// Warmup validates the configuration. It backs the one-shot readiness signal
// the extraction worker emits at startup.
func (e *Extractor) Warmup() error {
	if e.cfg.HopSize > e.cfg.WindowSize {
		return fmt.Errorf("hop size %d exceeds window size %d", e.cfg.HopSize, e.cfg.WindowSize)
	}
	if e.cfg.MFCCCoefficients > e.cfg.MelFilters {
		return fmt.Errorf("cannot take %d MFCC coefficients from %d mel filters",
			e.cfg.MFCCCoefficients, e.cfg.MelFilters)
	}
	return nil
}

// Extract computes the requested features for one song. Unknown feature
// names fail the whole song; requesting a feature the signal is too short
// for does too.
func (e *Extractor) Extract(songID string, samples []float64, sampleRate int, featureNames []string) (features.Bag, error) {
	if len(samples) < e.cfg.WindowSize {
		return nil, fmt.Errorf("song %s: %d samples is shorter than one analysis window (%d)",
			songID, len(samples), e.cfg.WindowSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("song %s: invalid sample rate %d", songID, sampleRate)
	}
	for _, name := range featureNames {
		if !knownFeature(name) {
			return nil, fmt.Errorf("song %s: unknown feature %q", songID, name)
		}
	}

	frames := e.analyzeFrames(samples, sampleRate)
	bag := make(features.Bag, len(featureNames))
	for _, name := range featureNames {
		switch name {
		case FeatureEnergy:
			bag[name] = features.Scalar(mean(frames.energy))
		case FeatureRMS:
			bag[name] = features.Scalar(mean(frames.rms))
		case FeatureZCR:
			bag[name] = features.Scalar(mean(frames.zcr))
		case FeatureSpectralCentroid:
			bag[name] = features.Scalar(mean(frames.centroid))
		case FeatureSpectralRolloff:
			bag[name] = features.Scalar(mean(frames.rolloff))
		case FeatureSpectralFlatness:
			bag[name] = features.Scalar(mean(frames.flatness))
		case FeatureMFCC:
			bag[name] = features.Vector(frames.mfccMeans)
		case FeatureKey:
			key, _ := estimateKey(frames.chroma)
			bag[name] = features.Label(key)
		case FeatureScale:
			_, scale := estimateKey(frames.chroma)
			bag[name] = features.Label(scale)
		}
	}

	e.logger.Debug("extraction finished", logging.Fields{
		"song_id":  songID,
		"features": len(bag),
		"frames":   frames.count,
	})
	return bag, nil
}

func knownFeature(name string) bool {
	for _, k := range KnownFeatures() {
		if k == name {
			return true
		}
	}
	return false
}

// frameStats accumulates per-frame measurements for later averaging.
type frameStats struct {
	count     int
	energy    []float64
	rms       []float64
	zcr       []float64
	centroid  []float64
	rolloff   []float64
	flatness  []float64
	mfccMeans []float64
	chroma    []float64 // 12-bin pitch class energy, summed over frames
}

func (e *Extractor) analyzeFrames(samples []float64, sampleRate int) *frameStats {
	win := e.cfg.WindowSize
	hop := e.cfg.HopSize
	hann := hannWindow(win)
	melBank := newMelFilterBank(e.cfg.MelFilters, win/2+1, sampleRate)
	dct := newDCTMatrix(e.cfg.MFCCCoefficients, e.cfg.MelFilters)

	stats := &frameStats{
		mfccMeans: make([]float64, e.cfg.MFCCCoefficients),
		chroma:    make([]float64, 12),
	}

	for start := 0; start+win <= len(samples); start += hop {
		frame := samples[start : start+win]

		stats.energy = append(stats.energy, frameEnergy(frame))
		stats.rms = append(stats.rms, math.Sqrt(frameEnergy(frame)/float64(win)))
		stats.zcr = append(stats.zcr, zeroCrossingRate(frame))

		windowed := make([]float64, win)
		for i, v := range frame {
			windowed[i] = v * hann[i]
		}
		spectrum := fft.FFTReal(windowed)
		power := make([]float64, win/2+1)
		for i := range power {
			power[i] = cmplx.Abs(spectrum[i]) * cmplx.Abs(spectrum[i])
		}

		stats.centroid = append(stats.centroid, spectralCentroid(power, sampleRate, win))
		stats.rolloff = append(stats.rolloff, spectralRolloff(power, sampleRate, win, e.cfg.RolloffPercent))
		stats.flatness = append(stats.flatness, spectralFlatness(power))

		coeffs := melBank.mfcc(power, dct)
		for i, c := range coeffs {
			stats.mfccMeans[i] += c
		}

		accumulateChroma(stats.chroma, power, sampleRate, win)
		stats.count++
	}

	if stats.count > 0 {
		for i := range stats.mfccMeans {
			stats.mfccMeans[i] /= float64(stats.count)
		}
	}
	return stats
}

func frameEnergy(frame []float64) float64 {
	sum := 0.0
	for _, v := range frame {
		sum += v * v
	}
	return sum
}

func zeroCrossingRate(frame []float64) float64 {
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

func spectralCentroid(power []float64, sampleRate, windowSize int) float64 {
	binHz := float64(sampleRate) / float64(windowSize)
	weighted := 0.0
	total := 0.0
	for i, p := range power {
		weighted += float64(i) * binHz * p
		total += p
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func spectralRolloff(power []float64, sampleRate, windowSize int, percent float64) float64 {
	total := 0.0
	for _, p := range power {
		total += p
	}
	if total == 0 {
		return 0
	}
	binHz := float64(sampleRate) / float64(windowSize)
	threshold := percent * total
	cum := 0.0
	for i, p := range power {
		cum += p
		if cum >= threshold {
			return float64(i) * binHz
		}
	}
	return float64(len(power)-1) * binHz
}

// spectralFlatness is the geometric over arithmetic mean of the power
// spectrum (Wiener entropy), 1 for noise and near 0 for pure tones.
func spectralFlatness(power []float64) float64 {
	const eps = 1e-12
	logSum := 0.0
	sum := 0.0
	for _, p := range power {
		logSum += math.Log(p + eps)
		sum += p + eps
	}
	n := float64(len(power))
	geometric := math.Exp(logSum / n)
	arithmetic := sum / n
	return geometric / arithmetic
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
