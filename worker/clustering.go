package worker

import (
	"fmt"

	"github.com/XiaoTianFan/music-cluster/kmeans"
	"github.com/XiaoTianFan/music-cluster/logging"
)

// Clustering is the long-lived clustering context. It owns the manual-step
// k-means engine; the orchestrator only ever sees snapshots.
type Clustering struct {
	engine   *kmeans.Engine
	requests chan ClusteringRequest
	messages chan ClusteringMessage
	logger   logging.Logger
}

// NewClustering starts the worker goroutine with a seeded engine.
func NewClustering(seed int64) *Clustering {
	w := &Clustering{
		engine:   kmeans.NewEngine(seed),
		requests: make(chan ClusteringRequest, 4),
		messages: make(chan ClusteringMessage, 4),
		logger:   logging.WithFields(logging.Fields{"component": "clustering_worker"}),
	}
	go w.run()
	return w
}

// Submit hands the worker one request.
func (w *Clustering) Submit(req ClusteringRequest) {
	w.requests <- req
}

// Messages exposes the worker's output stream.
func (w *Clustering) Messages() <-chan ClusteringMessage {
	return w.messages
}

// Close stops the worker after any in-flight request finishes.
func (w *Clustering) Close() {
	close(w.requests)
}

func (w *Clustering) run() {
	defer close(w.messages)
	for req := range w.requests {
		w.messages <- w.process(req)
	}
}

func (w *Clustering) process(req ClusteringRequest) (msg ClusteringMessage) {
	defer func() {
		// Any panic discards in-flight tensors and reports uninitialized
		// state; observers never see a half-updated cluster assignment.
		if r := recover(); r != nil {
			w.engine.Reset()
			msg = KMeansError{Err: fmt.Sprintf("clustering panic: %v", r)}
			w.logger.Error(fmt.Errorf("%v", r), "clustering worker panicked")
		}
	}()

	switch req := req.(type) {
	case InitializeTraining:
		snap, err := w.engine.Initialize(req.SongIDs, req.ReducedData, req.K)
		if err != nil {
			w.engine.Reset()
			return KMeansError{Err: err.Error()}
		}
		return InitializationComplete{Snapshot: snap}

	case RunNextStep:
		snap, err := w.engine.Step()
		if err != nil {
			w.engine.Reset()
			return KMeansError{Err: err.Error()}
		}
		return StepComplete{Snapshot: snap}

	case ResetTraining:
		w.engine.Reset()
		return ResetComplete{}

	default:
		// The request union is closed; this is unreachable without a new
		// message type.
		return KMeansError{Err: fmt.Sprintf("unknown clustering request %T", req)}
	}
}
