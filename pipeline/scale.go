package pipeline

import (
	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/matrix"
	"github.com/XiaoTianFan/music-cluster/worker"
)

// Scale dispatches a scaling pass over the unprocessed matrix. The worker
// receives a deep copy; the orchestrator's matrix is never mutated in
// place, so re-scaling with a different method always starts from the same
// unprocessed values.
func (o *Orchestrator) Scale(method matrix.ScalingMethod, minRange, maxRange float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.triggerErrLocked(TriggerScale); err != nil {
		o.rejectLocked(TriggerScale, err)
		return
	}
	m := o.state.Unprocessed
	if len(m.IsEncodedColumn) != m.Cols() {
		o.rejectLocked(TriggerScale, matrix.ErrColumnMismatch)
		return
	}

	o.scalePending = true
	o.logger.Info("scaling dispatched", logging.Fields{
		"method": string(method),
		"rows":   m.Rows(),
		"cols":   m.Cols(),
	})
	clone := m.Clone()
	o.scaling.Submit(worker.ScalingRequest{
		Vectors:         clone.Vectors,
		SongIDs:         clone.SongIDs,
		IsEncodedColumn: clone.IsEncodedColumn,
		Method:          method,
		MinRange:        minRange,
		MaxRange:        maxRange,
	})
	o.notifyLocked()
}

func (o *Orchestrator) handleScalingMessage(msg worker.ScalingMessage) {
	res, ok := msg.(worker.ScalingResult)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.scalePending {
		o.logger.Debug("dropping stale scaling result")
		return
	}
	o.scalePending = false

	if res.Err != "" {
		// The previous scaled matrix, if any, stays usable.
		o.logger.Warn("scaling failed", logging.Fields{"reason": res.Err})
		o.notifyLocked()
		return
	}

	o.state.Scaled = res.Processed
	// A fresh scaled matrix invalidates everything downstream of it.
	o.state.invalidateReduction()
	o.resetClusteringLocked()
	o.rederiveMarkerLocked()
	o.logger.Info("scaling complete", logging.Fields{
		"rows": len(res.Processed.Vectors),
	})
	o.notifyLocked()
}
