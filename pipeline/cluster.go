package pipeline

import (
	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/worker"
)

// InitClusters seeds a k-means run over the active songs' reduced points.
// Points whose dimensionality does not match the current embedding are
// skipped with a warning rather than poisoning the run.
func (o *Orchestrator) InitClusters(k int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.triggerErrLocked(TriggerClusterInit); err != nil {
		o.rejectLocked(TriggerClusterInit, err)
		return
	}
	if k < 1 {
		o.logger.Warn("cluster init rejected: k must be at least 1", logging.Fields{"k": k})
		return
	}

	active := o.library.ActiveSet()
	var ids []string
	var points [][]float64
	for _, s := range o.library.List() {
		if !active[s.ID] {
			continue
		}
		p, ok := o.state.Reduced[s.ID]
		if !ok {
			continue
		}
		if len(p) != o.state.ReducedDims {
			o.logger.Warn("skipping point with stale dimensionality", logging.Fields{
				"song_id": s.ID,
				"dims":    len(p),
			})
			continue
		}
		ids = append(ids, s.ID)
		points = append(points, append([]float64(nil), p...))
	}
	if len(points) < k {
		o.logger.Warn("cluster init rejected: fewer points than clusters", logging.Fields{
			"points": len(points),
			"k":      k,
		})
		return
	}

	o.clusterPending = true
	o.logger.Info("cluster initialization dispatched", logging.Fields{
		"k":      k,
		"points": len(points),
	})
	o.clustering.Submit(worker.InitializeTraining{
		ReducedData: points,
		SongIDs:     ids,
		K:           k,
	})
	o.notifyLocked()
}

// StepClusters advances the current run by exactly one Lloyd iteration.
func (o *Orchestrator) StepClusters() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.triggerErrLocked(TriggerClusterStep); err != nil {
		o.rejectLocked(TriggerClusterStep, err)
		return
	}

	o.clusterPending = true
	o.clustering.Submit(worker.RunNextStep{})
	o.notifyLocked()
}

// ResetClusters discards the current run. Unlike the other triggers this is
// always allowed; resetting nothing is a no-op.
func (o *Orchestrator) ResetClusters() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetClusteringLocked()
	o.rederiveMarkerLocked()
	o.notifyLocked()
}

func (o *Orchestrator) handleClusteringMessage(msg worker.ClusteringMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch msg := msg.(type) {
	case worker.InitializationComplete:
		if !o.clusterPending {
			o.logger.Debug("dropping stale cluster initialization")
			return
		}
		o.clusterPending = false
		o.commitClusterSnapshotLocked(msg.Snapshot.Iteration, msg.Snapshot.Centroids, msg.Snapshot.Assignments)
		o.logger.Info("clustering initialized", logging.Fields{
			"clusters": len(msg.Snapshot.Centroids),
		})

	case worker.StepComplete:
		if !o.clusterPending {
			o.logger.Debug("dropping stale cluster step")
			return
		}
		o.clusterPending = false
		o.commitClusterSnapshotLocked(msg.Snapshot.Iteration, msg.Snapshot.Centroids, msg.Snapshot.Assignments)
		o.logger.Debug("cluster step applied", logging.Fields{
			"iteration": msg.Snapshot.Iteration,
		})

	case worker.ResetComplete:
		o.logger.Debug("cluster engine reset acknowledged")
		return

	case worker.KMeansError:
		if !o.clusterPending {
			return
		}
		o.clusterPending = false
		o.state.invalidateClustering()
		o.rederiveMarkerLocked()
		o.logger.Warn("clustering failed", logging.Fields{"reason": msg.Err})
	}
	o.notifyLocked()
}

// commitClusterSnapshotLocked installs a worker snapshot as the current
// clustering view.
func (o *Orchestrator) commitClusterSnapshotLocked(iteration int, centroids [][]float64, assignments map[string]int) {
	o.state.Cluster = ClusterState{
		Initialized: true,
		Iteration:   iteration,
		Centroids:   centroids,
		Assignments: assignments,
	}
	o.rederiveMarkerLocked()
}
