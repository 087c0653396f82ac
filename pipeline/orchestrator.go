// Package pipeline contains the multi-stage orchestration core: the
// per-song extraction coordinator with its frozen target set and completion
// detector, the scaling and reduction coordinators, the manual-step
// clustering state machine, and the single orchestrator that owns the stage
// marker, the guard table and the invalidation cascade.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/reduce"
	"github.com/XiaoTianFan/music-cluster/song"
	"github.com/XiaoTianFan/music-cluster/worker"
)

// AudioLoader decodes one song's audio ahead of extraction dispatch. It
// returns mono PCM and the sample rate.
type AudioLoader interface {
	Load(ctx context.Context, s song.Song) ([]float64, int, error)
}

// AudioLoaderFunc adapts a function to AudioLoader.
type AudioLoaderFunc func(ctx context.Context, s song.Song) ([]float64, int, error)

func (f AudioLoaderFunc) Load(ctx context.Context, s song.Song) ([]float64, int, error) {
	return f(ctx, s)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Extractor worker.ExtractorBackend
	Reducer   reduce.Reducer
	Loader    AudioLoader
	Cache     features.Loader
	// Seed makes clustering runs reproducible.
	Seed int64
}

// Trigger identifies one row of the enabled-state table.
type Trigger int

const (
	TriggerExtract Trigger = iota
	TriggerScale
	TriggerReduce
	TriggerClusterInit
	TriggerClusterStep
)

func (t Trigger) String() string {
	switch t {
	case TriggerExtract:
		return "extract"
	case TriggerScale:
		return "scale"
	case TriggerReduce:
		return "reduce"
	case TriggerClusterInit:
		return "cluster-init"
	case TriggerClusterStep:
		return "cluster-step"
	default:
		return "unknown"
	}
}

// Orchestrator is the single authority for the stage marker and for which
// stage triggers are enabled. It owns all pipeline state; workers only ever
// receive copies and deliver results back as messages.
type Orchestrator struct {
	mu      sync.Mutex
	library *song.Library
	state   State
	cfg     Config

	extraction *worker.Extraction
	scaling    *worker.Scaling
	reduction  *worker.Reduction
	clustering *worker.Clustering

	ready    bool
	readyErr string

	// Extraction batch bookkeeping: the frozen target set, the selected
	// feature names and the dispatch cancel hook.
	extracting  bool
	targets     map[string]bool
	batchCancel context.CancelFunc

	scalePending   bool
	reducePending  bool
	reduceRunIDs   map[string]bool
	reduceRunDims  int
	clusterPending bool

	updates chan struct{}
	logger  logging.Logger
}

// New creates the orchestrator and starts the four background workers.
func New(library *song.Library, cfg Config) *Orchestrator {
	o := &Orchestrator{
		library:    library,
		state:      newState(),
		cfg:        cfg,
		extraction: worker.NewExtraction(cfg.Extractor),
		scaling:    worker.NewScaling(),
		reduction:  worker.NewReduction(cfg.Reducer),
		clustering: worker.NewClustering(cfg.Seed),
		updates:    make(chan struct{}, 1),
		logger:     logging.WithFields(logging.Fields{"component": "orchestrator"}),
	}
	return o
}

// Run pumps worker result messages into the state handlers until the
// context is canceled. The orchestrator never blocks inside a handler;
// every dispatch is fire-and-forget with results delivered here.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-o.extraction.Messages():
			if !ok {
				return
			}
			o.handleExtractionMessage(msg)
		case msg, ok := <-o.scaling.Messages():
			if !ok {
				return
			}
			o.handleScalingMessage(msg)
		case msg, ok := <-o.reduction.Messages():
			if !ok {
				return
			}
			o.handleReductionMessage(msg)
		case msg, ok := <-o.clustering.Messages():
			if !ok {
				return
			}
			o.handleClusteringMessage(msg)
		}
	}
}

// Close shuts the workers down after any in-flight request finishes.
func (o *Orchestrator) Close() {
	o.extraction.Close()
	o.scaling.Close()
	o.reduction.Close()
	o.clustering.Close()
}

// Updates signals after every state change. The channel is coalescing;
// observers read a pulse and call Snapshot.
func (o *Orchestrator) Updates() <-chan struct{} {
	return o.updates
}

var (
	errBackendNotReady   = errors.New("extraction backend is not ready")
	errBatchInFlight     = errors.New("an extraction batch is already in flight")
	errNoFeatures        = errors.New("no features selected")
	errNoActiveSongs     = errors.New("no active songs")
	errNoCompleteSongs   = errors.New("no active song has complete features")
	errNoScaledMatrix    = errors.New("no scaled matrix available")
	errScalingInFlight   = errors.New("scaling is in flight")
	errReductionInFlight = errors.New("reduction is in flight")
	errClusterInFlight   = errors.New("a clustering operation is in flight")
	errNoReducedPoints   = errors.New("no active song has a reduced point of the current dimensionality")
	errNotInitialized    = errors.New("clustering is not initialized")
)

// triggerErrLocked is the enabled-state table: the AND of every condition
// for one trigger, returning the first unmet one. Argument-dependent
// conditions (selected feature count, k) are checked by the trigger
// methods themselves.
func (o *Orchestrator) triggerErrLocked(t Trigger) error {
	switch t {
	case TriggerExtract:
		if !o.ready {
			return errBackendNotReady
		}
		if o.extracting {
			return errBatchInFlight
		}
	case TriggerScale:
		if o.state.Unprocessed == nil || len(o.state.Unprocessed.Vectors) == 0 {
			return errNoCompleteSongs
		}
		if o.extracting {
			return errBatchInFlight
		}
		if o.reducePending {
			return errReductionInFlight
		}
		if o.scalePending {
			return errScalingInFlight
		}
	case TriggerReduce:
		if o.state.Scaled == nil || len(o.state.Scaled.Vectors) == 0 {
			return errNoScaledMatrix
		}
		if o.extracting {
			return errBatchInFlight
		}
		if o.scalePending {
			return errScalingInFlight
		}
		if o.reducePending {
			return errReductionInFlight
		}
	case TriggerClusterInit:
		if err := o.noStageInFlightLocked(); err != nil {
			return err
		}
		if !anyActiveReducedPoint(&o.state, o.library.ActiveSet()) {
			return errNoReducedPoints
		}
	case TriggerClusterStep:
		if err := o.noStageInFlightLocked(); err != nil {
			return err
		}
		if !o.state.Cluster.Initialized {
			return errNotInitialized
		}
	}
	return nil
}

func (o *Orchestrator) noStageInFlightLocked() error {
	if o.extracting {
		return errBatchInFlight
	}
	if o.scalePending {
		return errScalingInFlight
	}
	if o.reducePending {
		return errReductionInFlight
	}
	if o.clusterPending {
		return errClusterInFlight
	}
	return nil
}

// Enabled reports whether a trigger would currently pass its guard row.
func (o *Orchestrator) Enabled(t Trigger) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.triggerErrLocked(t) == nil
}

// rejectLocked logs a guard failure. Guard failures are warnings, never
// errors, and mutate nothing.
func (o *Orchestrator) rejectLocked(t Trigger, err error) {
	o.logger.Warn("trigger rejected", logging.Fields{
		"trigger": t.String(),
		"reason":  err.Error(),
	})
}

func (o *Orchestrator) notifyLocked() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// rederiveMarkerLocked recomputes the stage marker from current state.
func (o *Orchestrator) rederiveMarkerLocked() {
	o.state.Marker = deriveStageMarker(&o.state, o.library.ActiveSet())
}

// resetClusteringLocked wipes the orchestrator's cluster view and tells the
// worker to discard its engine state. Any in-flight clustering result that
// arrives later is dropped because the pending flag is cleared here.
func (o *Orchestrator) resetClusteringLocked() {
	o.clusterPending = false
	o.state.invalidateClustering()
	o.clustering.Submit(worker.ResetTraining{})
}

// Snapshot is a by-value view of orchestrator state for observers.
type Snapshot struct {
	Marker     Marker
	Ready      bool
	ReadyErr   string
	Extracting bool
	Scaling    bool
	Reducing   bool
	Clustering bool

	Statuses   map[string]song.Status
	SharedKeys []string

	MatrixRows  int
	MatrixCols  int
	ScaledRows  int
	Reduced     map[string][]float64
	ReducedDims int
	Cluster     ClusterState
}

// Snapshot copies the observable state. Observers never share memory with
// the orchestrator.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Marker:      o.state.Marker,
		Ready:       o.ready,
		ReadyErr:    o.readyErr,
		Extracting:  o.extracting,
		Scaling:     o.scalePending,
		Reducing:    o.reducePending,
		Clustering:  o.clusterPending,
		SharedKeys:  append([]string(nil), o.state.SharedKeys...),
		ReducedDims: o.state.ReducedDims,
		Statuses:    make(map[string]song.Status, len(o.state.Statuses)),
		Reduced:     make(map[string][]float64, len(o.state.Reduced)),
	}
	for id, st := range o.state.Statuses {
		snap.Statuses[id] = st
	}
	for id, p := range o.state.Reduced {
		snap.Reduced[id] = append([]float64(nil), p...)
	}
	if o.state.Unprocessed != nil {
		snap.MatrixRows = o.state.Unprocessed.Rows()
		snap.MatrixCols = o.state.Unprocessed.Cols()
	}
	if o.state.Scaled != nil {
		snap.ScaledRows = len(o.state.Scaled.Vectors)
	}
	snap.Cluster = ClusterState{
		Iteration:   o.state.Cluster.Iteration,
		Initialized: o.state.Cluster.Initialized,
		Assignments: make(map[string]int, len(o.state.Cluster.Assignments)),
	}
	for id, c := range o.state.Cluster.Assignments {
		snap.Cluster.Assignments[id] = c
	}
	for _, c := range o.state.Cluster.Centroids {
		snap.Cluster.Centroids = append(snap.Cluster.Centroids, append([]float64(nil), c...))
	}
	return snap
}

// Status returns one song's extraction status.
func (o *Orchestrator) Status(songID string) song.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Statuses[songID]
}

// Features returns a copy of one song's completed feature bag.
func (o *Orchestrator) Features(songID string) (features.Bag, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	bag, ok := o.state.Bags[songID]
	if !ok {
		return nil, false
	}
	return bag.Clone(), true
}
