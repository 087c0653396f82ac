package features

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCache_Matches(t *testing.T) {
	tests := []struct {
		name     string
		declared []string
		selected []string
		want     bool
	}{
		{
			name:     "exact match in same order",
			declared: []string{"mfcc", "energy"},
			selected: []string{"mfcc", "energy"},
			want:     true,
		},
		{
			name:     "exact match in different order",
			declared: []string{"mfcc", "energy"},
			selected: []string{"energy", "mfcc"},
			want:     true,
		},
		{
			name:     "subset selection is a full miss",
			declared: []string{"mfcc", "energy"},
			selected: []string{"mfcc"},
			want:     false,
		},
		{
			name:     "superset selection is a full miss",
			declared: []string{"mfcc"},
			selected: []string{"mfcc", "energy"},
			want:     false,
		},
		{
			name:     "disjoint sets",
			declared: []string{"rms"},
			selected: []string{"zcr"},
			want:     false,
		},
		{
			name:     "empty selection against empty cache",
			declared: nil,
			selected: nil,
			want:     true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			c := &Cache{CachedFeatureKeys: tc.declared}
			if got := c.Matches(tc.selected); got != tc.want {
				t.Fatalf("Matches(%v) on %v: want %v, got %v",
					tc.selected, tc.declared, tc.want, got)
			}
		})
	}
}

func TestCache_NilReceiver(t *testing.T) {
	var c *Cache
	if c.Matches([]string{"energy"}) {
		t.Fatalf("nil cache must never match")
	}
	if _, ok := c.Lookup("a"); ok {
		t.Fatalf("nil cache must never hit")
	}
}

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	payload := `{
		"cachedFeatureKeys": ["energy", "key"],
		"songData": {
			"song-1": {"energy": 0.4, "key": "C"}
		}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cache, err := NewFileLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cache == nil {
		t.Fatalf("Load() returned no cache")
	}
	if !cache.Matches([]string{"key", "energy"}) {
		t.Fatalf("loaded cache should match its declared keys")
	}
	bag, ok := cache.Lookup("song-1")
	if !ok {
		t.Fatalf("song-1 should be cached")
	}
	want := Bag{"energy": Scalar(0.4), "key": Label("C")}
	if !reflect.DeepEqual(bag, want) {
		t.Fatalf("cached bag: want %v, got %v", want, bag)
	}
}

func TestFileLoader_AbsenceIsAMiss(t *testing.T) {
	cache, err := NewFileLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if cache != nil {
		t.Fatalf("missing file should load no cache")
	}
}

func TestFileLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := NewFileLoader(path).Load(); err == nil {
		t.Fatalf("malformed cache should error")
	}
}
