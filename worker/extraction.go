package worker

import (
	"fmt"

	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/logging"
)

// ExtractorBackend is the opaque feature-extraction service the worker
// wraps. Warmup is called once at startup to produce the readiness signal.
type ExtractorBackend interface {
	Warmup() error
	Extract(songID string, samples []float64, sampleRate int, featureNames []string) (features.Bag, error)
}

// Extraction is the long-lived extraction context. Requests are processed
// one at a time in arrival order; completions surface on Messages.
type Extraction struct {
	backend  ExtractorBackend
	requests chan ExtractionRequest
	messages chan ExtractionMessage
	logger   logging.Logger
}

// NewExtraction starts the worker goroutine. The first message is always
// ExtractionReady.
func NewExtraction(backend ExtractorBackend) *Extraction {
	w := &Extraction{
		backend:  backend,
		requests: make(chan ExtractionRequest),
		messages: make(chan ExtractionMessage, 16),
		logger:   logging.WithFields(logging.Fields{"component": "extraction_worker"}),
	}
	go w.run()
	return w
}

// Submit hands the worker one request. Blocks until the worker accepts it;
// the orchestrator's guard table keeps at most one batch dispatching.
func (w *Extraction) Submit(req ExtractionRequest) {
	w.requests <- req
}

// Messages exposes the worker's output stream.
func (w *Extraction) Messages() <-chan ExtractionMessage {
	return w.messages
}

// Close stops the worker after any in-flight request finishes.
func (w *Extraction) Close() {
	close(w.requests)
}

func (w *Extraction) run() {
	defer close(w.messages)

	ready := ExtractionReady{}
	if err := w.backend.Warmup(); err != nil {
		ready.Err = err.Error()
	}
	w.messages <- ready

	for req := range w.requests {
		w.messages <- w.process(req)
	}
}

func (w *Extraction) process(req ExtractionRequest) (res ExtractionResult) {
	res.SongID = req.SongID
	defer func() {
		// A panicking backend must surface as a per-song error message,
		// never cross the worker boundary.
		if r := recover(); r != nil {
			res.Features = nil
			res.Err = fmt.Sprintf("extraction panic: %v", r)
			w.logger.Error(fmt.Errorf("%v", r), "extraction backend panicked",
				logging.Fields{"song_id": req.SongID})
		}
	}()

	bag, err := w.backend.Extract(req.SongID, req.Samples, req.SampleRate, req.FeatureNames)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	res.Features = bag
	return res
}
