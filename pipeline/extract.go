package pipeline

import (
	"context"

	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/logging"
	"github.com/XiaoTianFan/music-cluster/matrix"
	"github.com/XiaoTianFan/music-cluster/song"
	"github.com/XiaoTianFan/music-cluster/worker"
)

// Extract starts a feature-extraction batch over the current active set.
// Completion is observed through status transitions and the Updates signal,
// not a return value. Guard failures log a warning and change nothing.
//
// The active set is snapshotted into a frozen target set: changes to the
// live selection while the batch runs do not affect which songs this batch
// is responsible for.
func (o *Orchestrator) Extract(selectedFeatures []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.triggerErrLocked(TriggerExtract); err != nil {
		o.rejectLocked(TriggerExtract, err)
		return
	}
	if len(selectedFeatures) == 0 {
		o.rejectLocked(TriggerExtract, errNoFeatures)
		return
	}
	activeIDs := o.library.ActiveIDs()
	if len(activeIDs) == 0 {
		o.rejectLocked(TriggerExtract, errNoActiveSongs)
		return
	}

	// Freeze the target set for this batch.
	o.targets = make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		o.targets[id] = true
	}

	// A new batch invalidates every downstream artifact before anything is
	// dispatched.
	o.state.invalidateMatrices()
	o.resetClusteringLocked()
	for id := range o.targets {
		o.state.Statuses[id] = song.StatusIdle
		delete(o.state.Bags, id)
	}
	o.rederiveMarkerLocked()

	cache := o.resolveCacheLocked(selectedFeatures)

	// Partition targets into cache hits and the to-extract subset, in song
	// list order so dispatch is deterministic.
	var toExtract []song.Song
	for _, s := range o.library.List() {
		if !o.targets[s.ID] {
			continue
		}
		if cache != nil && s.Source == song.SourceDefault {
			if bag, ok := cache.Lookup(s.ID); ok {
				o.state.Bags[s.ID] = bag.Clone()
				o.state.Statuses[s.ID] = song.StatusComplete
				continue
			}
		}
		toExtract = append(toExtract, s)
	}

	o.logger.Info("extraction batch starting", logging.Fields{
		"targets":    len(o.targets),
		"from_cache": len(o.targets) - len(toExtract),
		"features":   selectedFeatures,
	})

	if len(toExtract) == 0 {
		// Fully cache-satisfied: the batch never goes active and the
		// completion detector finalizes immediately.
		o.maybeFinishExtractionLocked()
		o.notifyLocked()
		return
	}

	o.extracting = true
	ctx, cancel := context.WithCancel(context.Background())
	o.batchCancel = cancel
	names := append([]string(nil), selectedFeatures...)
	go o.dispatchBatch(ctx, toExtract, names)
	o.notifyLocked()
}

// resolveCacheLocked loads the precomputed cache and returns it only when
// its declared feature set equals the selection exactly. Any mismatch, load
// failure or absence is a full miss.
func (o *Orchestrator) resolveCacheLocked(selected []string) *features.Cache {
	if o.cfg.Cache == nil {
		return nil
	}
	cache, err := o.cfg.Cache.Load()
	if err != nil {
		o.logger.Warn("feature cache unusable", logging.Fields{"reason": err.Error()})
		return nil
	}
	if cache == nil {
		return nil
	}
	if !cache.Matches(selected) {
		o.logger.Debug("feature cache is a full miss: feature set mismatch", logging.Fields{
			"cached":   cache.CachedFeatureKeys,
			"selected": selected,
		})
		return nil
	}
	return cache
}

// dispatchBatch decodes and dispatches each song in order, one in-flight
// request at a time. Decode failure is terminal for that song only and
// never aborts the batch.
func (o *Orchestrator) dispatchBatch(ctx context.Context, songs []song.Song, featureNames []string) {
	for _, s := range songs {
		if ctx.Err() != nil {
			return
		}
		if !o.beginSong(s.ID) {
			continue
		}

		samples, sampleRate, err := o.cfg.Loader.Load(ctx, s)
		if err != nil {
			o.logger.Warn("audio decode failed", logging.Fields{
				"song_id": s.ID,
				"reason":  err.Error(),
			})
			o.failSong(s.ID)
			continue
		}

		o.extraction.Submit(worker.ExtractionRequest{
			SongID:       s.ID,
			Samples:      samples,
			SampleRate:   sampleRate,
			FeatureNames: featureNames,
		})
	}
}

// beginSong flips a target song to processing; a song no longer in the
// target set (batch abandoned) is skipped.
func (o *Orchestrator) beginSong(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.targets[id] {
		return false
	}
	o.state.Statuses[id] = song.StatusProcessing
	o.notifyLocked()
	return true
}

func (o *Orchestrator) failSong(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.targets[id] {
		return
	}
	o.state.Statuses[id] = song.StatusError
	o.maybeFinishExtractionLocked()
	o.notifyLocked()
}

// handleExtractionMessage applies one extraction worker message.
func (o *Orchestrator) handleExtractionMessage(msg worker.ExtractionMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch msg := msg.(type) {
	case worker.ExtractionReady:
		o.ready = msg.Err == ""
		o.readyErr = msg.Err
		if o.ready {
			o.logger.Info("extraction backend ready")
		} else {
			o.logger.Error(nil, "extraction backend failed to initialize", logging.Fields{
				"reason": msg.Err,
			})
			o.abortBatchLocked(msg.Err)
		}
		o.notifyLocked()

	case worker.ExtractionResult:
		// Stale results from an abandoned batch are dropped, never applied.
		if !o.targets[msg.SongID] || o.state.Statuses[msg.SongID] != song.StatusProcessing {
			o.logger.Debug("dropping stale extraction result", logging.Fields{
				"song_id": msg.SongID,
			})
			return
		}
		if msg.Err != "" {
			o.state.Statuses[msg.SongID] = song.StatusError
			o.logger.Warn("song extraction failed", logging.Fields{
				"song_id": msg.SongID,
				"reason":  msg.Err,
			})
		} else {
			o.state.Bags[msg.SongID] = msg.Features
			o.state.Statuses[msg.SongID] = song.StatusComplete
		}
		o.maybeFinishExtractionLocked()
		o.notifyLocked()
	}
}

// abortBatchLocked handles a fatal backend failure: the whole batch is
// abandoned, the active flag drops and late results are disregarded.
func (o *Orchestrator) abortBatchLocked(reason string) {
	if !o.extracting && len(o.targets) == 0 {
		return
	}
	o.logger.Error(nil, "extraction batch aborted", logging.Fields{"reason": reason})
	o.extracting = false
	o.targets = nil
	if o.batchCancel != nil {
		o.batchCancel()
		o.batchCancel = nil
	}
	o.rederiveMarkerLocked()
}

// maybeFinishExtractionLocked is the completion detector. It runs after
// every status transition and finalizes the batch once every target reached
// a terminal state. Running it after the target set has been cleared is a
// no-op, so it is safe to invoke from anywhere.
func (o *Orchestrator) maybeFinishExtractionLocked() {
	if len(o.targets) == 0 {
		return
	}
	for id := range o.targets {
		if !o.state.Statuses[id].Terminal() {
			return
		}
	}

	targets := o.targets
	o.targets = nil
	o.extracting = false
	if o.batchCancel != nil {
		o.batchCancel()
		o.batchCancel = nil
	}

	// Rows come from targets that are still active and completed, in song
	// list order.
	active := o.library.ActiveSet()
	var rows []matrix.Row
	for _, s := range o.library.List() {
		if targets[s.ID] && active[s.ID] && o.state.Statuses[s.ID] == song.StatusComplete {
			rows = append(rows, matrix.Row{SongID: s.ID, Bag: o.state.Bags[s.ID]})
		}
	}

	m, err := matrix.Build(rows)
	if err != nil {
		o.state.Unprocessed = nil
		o.state.SharedKeys = nil
		o.logger.Warn("no usable feature matrix from batch", logging.Fields{
			"reason": err.Error(),
		})
	} else {
		o.state.Unprocessed = m
		o.state.SharedKeys = sharedFeatureKeys(rows)
		o.logger.Info("extraction batch complete", logging.Fields{
			"rows": m.Rows(),
			"cols": m.Cols(),
		})
	}
	o.rederiveMarkerLocked()
}
