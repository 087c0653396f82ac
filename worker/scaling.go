package worker

import (
	"fmt"

	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/matrix"
)

// Scaling is the long-lived scaling context.
type Scaling struct {
	requests chan ScalingRequest
	messages chan ScalingMessage
	logger   logging.Logger
}

// NewScaling starts the worker goroutine.
func NewScaling() *Scaling {
	w := &Scaling{
		requests: make(chan ScalingRequest),
		messages: make(chan ScalingMessage, 4),
		logger:   logging.WithFields(logging.Fields{"component": "scaling_worker"}),
	}
	go w.run()
	return w
}

// Submit hands the worker one request.
func (w *Scaling) Submit(req ScalingRequest) {
	w.requests <- req
}

// Messages exposes the worker's output stream.
func (w *Scaling) Messages() <-chan ScalingMessage {
	return w.messages
}

// Close stops the worker after any in-flight request finishes.
func (w *Scaling) Close() {
	close(w.requests)
}

func (w *Scaling) run() {
	defer close(w.messages)
	for req := range w.requests {
		w.messages <- w.process(req)
	}
}

func (w *Scaling) process(req ScalingRequest) (res ScalingResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Processed = nil
			res.Err = fmt.Sprintf("scaling panic: %v", r)
			w.logger.Error(fmt.Errorf("%v", r), "scaling worker panicked")
		}
	}()

	m := &matrix.Unprocessed{
		Vectors:         req.Vectors,
		SongIDs:         req.SongIDs,
		IsEncodedColumn: req.IsEncodedColumn,
	}
	scaled, err := matrix.Scale(m, req.Method, req.MinRange, req.MaxRange)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Processed = scaled
	return res
}
