package worker

import (
	"fmt"

	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/reduce"
)

// Reduction is the long-lived dimensionality-reduction context wrapping an
// opaque reducer backend.
type Reduction struct {
	backend  reduce.Reducer
	requests chan ReductionRequest
	messages chan ReductionMessage
	logger   logging.Logger
}

// NewReduction starts the worker goroutine.
func NewReduction(backend reduce.Reducer) *Reduction {
	w := &Reduction{
		backend:  backend,
		requests: make(chan ReductionRequest),
		messages: make(chan ReductionMessage, 4),
		logger:   logging.WithFields(logging.Fields{"component": "reduction_worker"}),
	}
	go w.run()
	return w
}

// Submit hands the worker one request.
func (w *Reduction) Submit(req ReductionRequest) {
	w.requests <- req
}

// Messages exposes the worker's output stream.
func (w *Reduction) Messages() <-chan ReductionMessage {
	return w.messages
}

// Close stops the worker after any in-flight request finishes.
func (w *Reduction) Close() {
	close(w.requests)
}

func (w *Reduction) run() {
	defer close(w.messages)
	for req := range w.requests {
		w.messages <- w.process(req)
	}
}

func (w *Reduction) process(req ReductionRequest) (res ReductionResult) {
	res.SongIDs = req.SongIDs
	defer func() {
		if r := recover(); r != nil {
			res.ReducedData = nil
			res.Err = fmt.Sprintf("reduction panic: %v", r)
			w.logger.Error(fmt.Errorf("%v", r), "reduction backend panicked")
		}
	}()

	reduced, err := w.backend.Reduce(req.FeatureVectors, req.Method, req.Dimensions, req.Params)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.ReducedData = reduced
	return res
}
