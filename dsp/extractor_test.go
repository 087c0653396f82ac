package dsp

import (
	"math"
	"testing"

	"github.com/XiaoTianFan/music-cluster/features"
)

func sineWave(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return samples
}

func TestExtractor_SineSanity(t *testing.T) {
	const sampleRate = 44100
	e := NewExtractor(DefaultConfig())
	samples := sineWave(440, sampleRate, sampleRate) // one second of A4

	bag, err := e.Extract("sine", samples, sampleRate, KnownFeatures())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	rms, ok := bag[FeatureRMS].(features.Scalar)
	if !ok {
		t.Fatalf("rms: want scalar, got %T", bag[FeatureRMS])
	}
	// A unit sine has RMS 1/sqrt(2).
	if math.Abs(float64(rms)-1/math.Sqrt2) > 0.05 {
		t.Fatalf("rms of unit sine: want ~%.3f, got %v", 1/math.Sqrt2, rms)
	}

	zcr, ok := bag[FeatureZCR].(features.Scalar)
	if !ok {
		t.Fatalf("zcr: want scalar, got %T", bag[FeatureZCR])
	}
	// A 440 Hz sine crosses zero 880 times per second.
	wantZCR := 2 * 440.0 / sampleRate
	if math.Abs(float64(zcr)-wantZCR) > wantZCR*0.1 {
		t.Fatalf("zcr: want ~%v, got %v", wantZCR, zcr)
	}

	centroid, ok := bag[FeatureSpectralCentroid].(features.Scalar)
	if !ok {
		t.Fatalf("centroid: want scalar, got %T", bag[FeatureSpectralCentroid])
	}
	// Nearly all spectral mass sits at the fundamental.
	if float64(centroid) < 300 || float64(centroid) > 700 {
		t.Fatalf("centroid of a 440 Hz sine: want near 440, got %v", centroid)
	}

	mfcc, ok := bag[FeatureMFCC].(features.Vector)
	if !ok {
		t.Fatalf("mfcc: want vector, got %T", bag[FeatureMFCC])
	}
	if len(mfcc) != DefaultConfig().MFCCCoefficients {
		t.Fatalf("mfcc length: want %d, got %d", DefaultConfig().MFCCCoefficients, len(mfcc))
	}

	if _, ok := bag[FeatureKey].(features.Label); !ok {
		t.Fatalf("key: want label, got %T", bag[FeatureKey])
	}
	if _, ok := bag[FeatureScale].(features.Label); !ok {
		t.Fatalf("scale: want label, got %T", bag[FeatureScale])
	}
}

func TestExtractor_SelectsOnlyRequestedFeatures(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	samples := sineWave(220, 44100, 8192)

	bag, err := e.Extract("s", samples, 44100, []string{FeatureEnergy, FeatureKey})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(bag) != 2 {
		t.Fatalf("bag size: want 2, got %d (%v)", len(bag), bag.Keys())
	}
	if _, ok := bag[FeatureEnergy]; !ok {
		t.Fatalf("energy missing from bag")
	}
	if _, ok := bag[FeatureMFCC]; ok {
		t.Fatalf("mfcc was not requested but appears in the bag")
	}
}

func TestExtractor_Errors(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	good := sineWave(440, 44100, 8192)

	if _, err := e.Extract("s", good, 44100, []string{"bogus"}); err == nil {
		t.Fatalf("unknown feature name should fail the song")
	}
	short := sineWave(440, 44100, DefaultConfig().WindowSize-1)
	if _, err := e.Extract("s", short, 44100, []string{FeatureEnergy}); err == nil {
		t.Fatalf("signal shorter than one window should fail")
	}
	if _, err := e.Extract("s", good, 0, []string{FeatureEnergy}); err == nil {
		t.Fatalf("invalid sample rate should fail")
	}
}

func TestExtractor_WarmupValidatesConfig(t *testing.T) {
	bad := DefaultConfig()
	bad.HopSize = bad.WindowSize * 2
	if err := NewExtractor(bad).Warmup(); err == nil {
		t.Fatalf("hop larger than window should fail warmup")
	}
	if err := NewExtractor(DefaultConfig()).Warmup(); err != nil {
		t.Fatalf("default config should warm up, got %v", err)
	}
}

func TestFeatureKind(t *testing.T) {
	if FeatureKind(FeatureMFCC) != "vector" {
		t.Fatalf("mfcc should be a vector feature")
	}
	if FeatureKind(FeatureKey) != "label" || FeatureKind(FeatureScale) != "label" {
		t.Fatalf("key and scale should be label features")
	}
	if FeatureKind(FeatureEnergy) != "scalar" {
		t.Fatalf("energy should be a scalar feature")
	}
}
