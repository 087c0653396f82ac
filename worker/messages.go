// Package worker hosts the four long-lived background execution contexts
// the pipeline dispatches to: extraction, scaling, reduction and clustering.
// Each worker is a single goroutine created once and reused across many
// dispatches, with at most one in-flight request at a time (the
// orchestrator's guard table enforces that, not the worker). Requests and
// results are closed tagged unions; an unrecognized message type cannot
// compile.
package worker

import (
	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/kmeans"
	"github.com/XiaoTianFan/music-cluster/matrix"
	"github.com/XiaoTianFan/music-cluster/reduce"
)

// ExtractionRequest asks for one song's features.
type ExtractionRequest struct {
	SongID       string
	Samples      []float64
	SampleRate   int
	FeatureNames []string
}

// ExtractionMessage is the closed set of extraction worker outputs.
type ExtractionMessage interface{ extractionMessage() }

// ExtractionReady is emitted exactly once at startup. A non-empty Err means
// the backend failed to initialize and every extraction trigger stays
// disabled.
type ExtractionReady struct {
	Err string
}

// ExtractionResult reports one song's outcome: either a feature bag or a
// per-song error.
type ExtractionResult struct {
	SongID   string
	Features features.Bag
	Err      string
}

func (ExtractionReady) extractionMessage()  {}
func (ExtractionResult) extractionMessage() {}

// ScalingRequest carries the prepared matrix plus the column role vector so
// encoded columns survive untouched.
type ScalingRequest struct {
	Vectors         [][]float64
	SongIDs         []string
	IsEncodedColumn []bool
	Method          matrix.ScalingMethod
	MinRange        float64
	MaxRange        float64
}

// ScalingMessage is the closed set of scaling worker outputs.
type ScalingMessage interface{ scalingMessage() }

// ScalingResult is the scaled matrix or a stage-level error.
type ScalingResult struct {
	Processed *matrix.Scaled
	Err       string
}

func (ScalingResult) scalingMessage() {}

// ReductionRequest carries the scaled vectors and the method parameters.
type ReductionRequest struct {
	FeatureVectors [][]float64
	SongIDs        []string
	Method         reduce.Method
	Dimensions     int
	Params         reduce.Params
}

// ReductionMessage is the closed set of reduction worker outputs.
type ReductionMessage interface{ reductionMessage() }

// ReductionResult is the per-row low-dimensional embedding or a stage-level
// error.
type ReductionResult struct {
	ReducedData [][]float64
	SongIDs     []string
	Err         string
}

func (ReductionResult) reductionMessage() {}

// ClusteringRequest is the closed set of clustering worker inputs.
type ClusteringRequest interface{ clusteringRequest() }

// InitializeTraining seeds the engine with points and k.
type InitializeTraining struct {
	ReducedData [][]float64
	SongIDs     []string
	K           int
}

// RunNextStep advances exactly one Lloyd iteration.
type RunNextStep struct{}

// ResetTraining discards all clustering state.
type ResetTraining struct{}

func (InitializeTraining) clusteringRequest() {}
func (RunNextStep) clusteringRequest()        {}
func (ResetTraining) clusteringRequest()      {}

// ClusteringMessage is the closed set of clustering worker outputs.
type ClusteringMessage interface{ clusteringMessage() }

// InitializationComplete carries the iteration-0 snapshot.
type InitializationComplete struct {
	Snapshot kmeans.Snapshot
}

// StepComplete carries the post-iteration snapshot.
type StepComplete struct {
	Snapshot kmeans.Snapshot
}

// ResetComplete acknowledges a reset.
type ResetComplete struct{}

// KMeansError reports a failed initialize or step; the engine is back to
// uninitialized when it arrives.
type KMeansError struct {
	Err string
}

func (InitializationComplete) clusteringMessage() {}
func (StepComplete) clusteringMessage()           {}
func (ResetComplete) clusteringMessage()          {}
func (KMeansError) clusteringMessage()            {}
