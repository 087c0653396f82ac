package pipeline

import (
	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/reduce"
	"github.com/XiaoTianFan/music-cluster/worker"
)

// Reduce dispatches a dimensionality-reduction run over the scaled matrix.
// Only the songs in this run have their reduced points replaced on success;
// songs outside the run keep whatever points they had, which is why the run
// membership is recorded at dispatch time.
func (o *Orchestrator) Reduce(method reduce.Method, dimensions int, params reduce.Params) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.triggerErrLocked(TriggerReduce); err != nil {
		o.rejectLocked(TriggerReduce, err)
		return
	}

	m := o.state.Scaled
	rows := len(m.Vectors)
	cols := len(m.Vectors[0])
	if dimensions < 1 {
		o.logger.Warn("reduction rejected: dimensions must be at least 1", logging.Fields{
			"dimensions": dimensions,
		})
		return
	}
	if dimensions >= cols {
		o.logger.Warn("reduction rejected: target dimensionality must be below the column count", logging.Fields{
			"dimensions": dimensions,
			"cols":       cols,
		})
		return
	}
	if rows <= dimensions {
		o.logger.Warn("reduction rejected: need more rows than target dimensions", logging.Fields{
			"rows":       rows,
			"dimensions": dimensions,
		})
		return
	}

	clone := m.Clone()
	o.reducePending = true
	o.reduceRunDims = dimensions
	o.reduceRunIDs = make(map[string]bool, len(clone.SongIDs))
	for _, id := range clone.SongIDs {
		o.reduceRunIDs[id] = true
		delete(o.state.Reduced, id)
	}
	// A new run supersedes any clustering built on the old embedding.
	o.resetClusteringLocked()
	o.rederiveMarkerLocked()

	o.logger.Info("reduction dispatched", logging.Fields{
		"method":     string(method),
		"rows":       rows,
		"dimensions": dimensions,
	})
	o.reduction.Submit(worker.ReductionRequest{
		FeatureVectors: clone.Vectors,
		SongIDs:        clone.SongIDs,
		Method:         method,
		Dimensions:     dimensions,
		Params:         params,
	})
	o.notifyLocked()
}

func (o *Orchestrator) handleReductionMessage(msg worker.ReductionMessage) {
	res, ok := msg.(worker.ReductionResult)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.reducePending {
		o.logger.Debug("dropping stale reduction result")
		return
	}
	o.reducePending = false
	runIDs := o.reduceRunIDs
	runDims := o.reduceRunDims
	o.reduceRunIDs = nil

	if res.Err != "" {
		// The run's old points were already cleared at dispatch; zeroing
		// the dimensionality keeps any leftover points from other runs
		// out of the marker derivation.
		o.state.ReducedDims = 0
		o.rederiveMarkerLocked()
		o.logger.Warn("reduction failed", logging.Fields{"reason": res.Err})
		o.notifyLocked()
		return
	}

	for i, id := range res.SongIDs {
		if !runIDs[id] || i >= len(res.ReducedData) {
			continue
		}
		o.state.Reduced[id] = res.ReducedData[i]
	}
	o.state.ReducedDims = runDims
	o.rederiveMarkerLocked()
	o.logger.Info("reduction complete", logging.Fields{
		"rows":       len(res.ReducedData),
		"dimensions": runDims,
	})
	o.notifyLocked()
}
