package song

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/XiaoTianFan/music-cluster/logging"
)

// Source identifies where a song came from. Cached features only ever apply
// to default-sourced songs.
type Source string

const (
	SourceDefault Source = "default"
	SourceUser    Source = "user"
)

// Song is the unit of work for the pipeline. The ID is the join key across
// every derived artifact (status, feature bag, matrix row, reduced point,
// cluster assignment).
type Song struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Source Source `json:"source"`
}

// Status tracks per-song extraction progress.
type Status int

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a batch-terminal state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Library holds the ordered song list plus the active-set flags. The order is
// load order; extraction dispatch walks it deterministically.
type Library struct {
	mu     sync.RWMutex
	songs  []Song
	byID   map[string]int
	active map[string]bool
	logger logging.Logger

	// OnRemove runs after a song leaves the library, for releasing whatever
	// transient resource backs a user-sourced URL (temp file, etc).
	OnRemove func(Song)
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		byID:   make(map[string]int),
		active: make(map[string]bool),
		logger: logging.WithFields(logging.Fields{"component": "song_library"}),
	}
}

// Add inserts a song with a caller-chosen stable id. Duplicate ids are
// rejected. New songs start active.
func (l *Library) Add(s Song) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("song id must not be empty")
	}
	if _, ok := l.byID[s.ID]; ok {
		return fmt.Errorf("duplicate song id %q", s.ID)
	}
	l.byID[s.ID] = len(l.songs)
	l.songs = append(l.songs, s)
	l.active[s.ID] = true
	return nil
}

// AddUserFile registers a user-supplied audio file under a fresh uuid and
// returns the new song.
func (l *Library) AddUserFile(path string) (Song, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s := Song{
		ID:     uuid.New().String(),
		Name:   name,
		URL:    path,
		Source: SourceUser,
	}
	if err := l.Add(s); err != nil {
		return Song{}, err
	}
	l.logger.Debug("added user song", logging.Fields{"id": s.ID, "name": s.Name})
	return s, nil
}

// Remove deletes a song and runs the OnRemove hook.
func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	idx, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	removed := l.songs[idx]
	l.songs = append(l.songs[:idx], l.songs[idx+1:]...)
	delete(l.byID, id)
	delete(l.active, id)
	for i := idx; i < len(l.songs); i++ {
		l.byID[l.songs[i].ID] = i
	}
	hook := l.OnRemove
	l.mu.Unlock()

	if hook != nil {
		hook(removed)
	}
	return true
}

// Get looks a song up by id.
func (l *Library) Get(id string) (Song, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[id]
	if !ok {
		return Song{}, false
	}
	return l.songs[idx], true
}

// List returns the songs in load order.
func (l *Library) List() []Song {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Song, len(l.songs))
	copy(out, l.songs)
	return out
}

// SetActive flags or unflags a song for inclusion in the next stage run.
// Activation is independent of extraction status.
func (l *Library) SetActive(id string, active bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; !ok {
		return false
	}
	if active {
		l.active[id] = true
	} else {
		delete(l.active, id)
	}
	return true
}

// ActiveIDs returns the active set as a sorted id list.
func (l *Library) ActiveIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveSet returns a copy of the active-set membership map.
func (l *Library) ActiveSet() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]bool, len(l.active))
	for id := range l.active {
		out[id] = true
	}
	return out
}

// Len returns the number of songs in the library.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.songs)
}
