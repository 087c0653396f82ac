package worker

import (
	"fmt"
	"testing"
	"time"

	"github.com/XiaoTianFan/music-cluster/features"
)

type stubBackend struct {
	warmupErr error
	extract   func(songID string) (features.Bag, error)
}

func (s *stubBackend) Warmup() error { return s.warmupErr }

func (s *stubBackend) Extract(songID string, samples []float64, sampleRate int, names []string) (features.Bag, error) {
	return s.extract(songID)
}

func recvExtraction(t *testing.T, w *Extraction) ExtractionMessage {
	t.Helper()
	select {
	case msg := <-w.Messages():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for extraction message")
		return nil
	}
}

func TestExtraction_ReadyIsFirstMessage(t *testing.T) {
	w := NewExtraction(&stubBackend{
		extract: func(string) (features.Bag, error) { return features.Bag{}, nil },
	})
	defer w.Close()

	msg := recvExtraction(t, w)
	ready, ok := msg.(ExtractionReady)
	if !ok {
		t.Fatalf("first message: want ExtractionReady, got %T", msg)
	}
	if ready.Err != "" {
		t.Fatalf("healthy backend should report ready, got %q", ready.Err)
	}
}

func TestExtraction_WarmupFailureReported(t *testing.T) {
	w := NewExtraction(&stubBackend{
		warmupErr: fmt.Errorf("no runtime"),
		extract:   func(string) (features.Bag, error) { return nil, nil },
	})
	defer w.Close()

	ready, ok := recvExtraction(t, w).(ExtractionReady)
	if !ok || ready.Err == "" {
		t.Fatalf("warmup failure must surface in the ready message, got %+v", ready)
	}
}

func TestExtraction_ResultsInOrder(t *testing.T) {
	w := NewExtraction(&stubBackend{
		extract: func(id string) (features.Bag, error) {
			if id == "bad" {
				return nil, fmt.Errorf("broken song")
			}
			return features.Bag{"energy": features.Scalar(1)}, nil
		},
	})
	defer w.Close()
	recvExtraction(t, w) // ready

	for _, id := range []string{"a", "bad", "b"} {
		w.Submit(ExtractionRequest{SongID: id, FeatureNames: []string{"energy"}})
	}

	for _, want := range []struct {
		id      string
		wantErr bool
	}{{"a", false}, {"bad", true}, {"b", false}} {
		res, ok := recvExtraction(t, w).(ExtractionResult)
		if !ok {
			t.Fatalf("want ExtractionResult")
		}
		if res.SongID != want.id {
			t.Fatalf("result order: want %s, got %s", want.id, res.SongID)
		}
		if (res.Err != "") != want.wantErr {
			t.Fatalf("song %s: err=%q, wantErr=%v", res.SongID, res.Err, want.wantErr)
		}
	}
}

func TestExtraction_PanicBecomesPerSongError(t *testing.T) {
	w := NewExtraction(&stubBackend{
		extract: func(id string) (features.Bag, error) {
			if id == "boom" {
				panic("backend exploded")
			}
			return features.Bag{}, nil
		},
	})
	defer w.Close()
	recvExtraction(t, w) // ready

	w.Submit(ExtractionRequest{SongID: "boom"})
	res, ok := recvExtraction(t, w).(ExtractionResult)
	if !ok || res.SongID != "boom" || res.Err == "" {
		t.Fatalf("panic should surface as a per-song error, got %+v", res)
	}

	// The worker survives the panic and keeps serving.
	w.Submit(ExtractionRequest{SongID: "ok"})
	res, ok = recvExtraction(t, w).(ExtractionResult)
	if !ok || res.SongID != "ok" || res.Err != "" {
		t.Fatalf("worker should keep serving after a panic, got %+v", res)
	}
}

func TestExtraction_CloseDrainsMessages(t *testing.T) {
	w := NewExtraction(&stubBackend{
		extract: func(string) (features.Bag, error) { return features.Bag{}, nil },
	})
	recvExtraction(t, w)
	w.Close()

	select {
	case _, open := <-w.Messages():
		if open {
			t.Fatalf("expected closed message stream")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message stream never closed")
	}
}
