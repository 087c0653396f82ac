package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/XiaoTianFan/music-cluster/dsp"
	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/matrix"
	"github.com/XiaoTianFan/music-cluster/pipeline"
	"github.com/XiaoTianFan/music-cluster/reduce"
	"github.com/XiaoTianFan/music-cluster/song"
	"github.com/XiaoTianFan/music-cluster/transcode"
)

var (
	runFeatures     []string
	runExtraFiles   []string
	runCachePath    string
	runScaling      string
	runMinRange     float64
	runMaxRange     float64
	runMethod       string
	runDimensions   int
	runPerplexity   float64
	runLearningRate float64
	runIterations   int
	runClusters     int
	runMaxSteps     int
	runSeed         int64
	runTimeout      time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [music directory]",
	Short: "Runs the full pipeline over a directory of audio files",
	Long: `Scans the directory for audio files, extracts the selected features,
builds and scales the feature matrix, reduces it to the target
dimensionality and iterates k-means until the assignments stabilize.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPipeline(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runFeatures, "features", dsp.KnownFeatures(),
		"feature names to extract")
	runCmd.Flags().StringSliceVar(&runExtraFiles, "file", nil,
		"extra audio files to include alongside the directory")
	runCmd.Flags().StringVar(&runCachePath, "cache", "",
		"path to a precomputed feature cache (JSON)")
	runCmd.Flags().StringVar(&runScaling, "scaling", string(matrix.ScaleStandardize),
		"scaling method: none, standardize or normalize")
	runCmd.Flags().Float64Var(&runMinRange, "min-range", 0, "normalize lower bound")
	runCmd.Flags().Float64Var(&runMaxRange, "max-range", 1, "normalize upper bound")
	runCmd.Flags().StringVar(&runMethod, "method", string(reduce.MethodPCA),
		"reduction method: pca or tsne")
	runCmd.Flags().IntVar(&runDimensions, "dimensions", 2, "target dimensionality")
	runCmd.Flags().Float64Var(&runPerplexity, "perplexity", reduce.DefaultParams().Perplexity,
		"t-SNE perplexity")
	runCmd.Flags().Float64Var(&runLearningRate, "learning-rate", reduce.DefaultParams().LearningRate,
		"t-SNE learning rate")
	runCmd.Flags().IntVar(&runIterations, "iterations", reduce.DefaultParams().Iterations,
		"t-SNE iteration count")
	runCmd.Flags().IntVarP(&runClusters, "clusters", "k", 3, "number of clusters")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 100, "k-means iteration cap")
	runCmd.Flags().Int64Var(&runSeed, "seed", time.Now().UnixNano(), "clustering seed")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall pipeline deadline")
}

func runPipeline(dir string) error {
	library := song.NewLibrary()
	if err := loadDirectory(library, dir); err != nil {
		return err
	}
	for _, path := range runExtraFiles {
		if _, err := library.AddUserFile(path); err != nil {
			return fmt.Errorf("adding %s: %w", path, err)
		}
	}
	if library.Len() == 0 {
		return fmt.Errorf("no audio files found under %s", dir)
	}

	decoder := transcode.NewDecoder(transcode.DefaultConfig())
	cfg := pipeline.Config{
		Extractor: dsp.NewExtractor(dsp.DefaultConfig()),
		Reducer:   reduce.NewBackend(),
		Loader: pipeline.AudioLoaderFunc(func(ctx context.Context, s song.Song) ([]float64, int, error) {
			audio, err := decoder.DecodeFile(ctx, s.URL)
			if err != nil {
				return nil, 0, err
			}
			return audio.PCM, audio.SampleRate, nil
		}),
		Seed: runSeed,
	}
	if runCachePath != "" {
		cfg.Cache = features.NewFileLoader(runCachePath)
	}

	o := pipeline.New(library, cfg)
	defer o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	go o.Run(ctx)

	// The extraction worker announces readiness before any trigger can
	// pass its guard.
	snap, err := waitFor(ctx, o, func(s pipeline.Snapshot) bool {
		return s.Ready || s.ReadyErr != ""
	})
	if err != nil {
		return err
	}
	if snap.ReadyErr != "" {
		return fmt.Errorf("extraction backend: %s", snap.ReadyErr)
	}

	o.Extract(runFeatures)
	snap, err = waitFor(ctx, o, func(s pipeline.Snapshot) bool {
		return !s.Extracting && s.Marker != pipeline.MarkerNone
	})
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if snap.MatrixRows == 0 {
		return fmt.Errorf("no song produced usable features")
	}

	o.Scale(matrix.ScalingMethod(runScaling), runMinRange, runMaxRange)
	if _, err = waitFor(ctx, o, func(s pipeline.Snapshot) bool {
		return !s.Scaling && s.ScaledRows > 0
	}); err != nil {
		return fmt.Errorf("scaling: %w", err)
	}

	o.Reduce(reduce.Method(runMethod), runDimensions, reduce.Params{
		Perplexity:   runPerplexity,
		LearningRate: runLearningRate,
		Iterations:   runIterations,
	})
	snap, err = waitFor(ctx, o, func(s pipeline.Snapshot) bool {
		return !s.Reducing
	})
	if err != nil {
		return fmt.Errorf("reduction: %w", err)
	}
	if snap.ReducedDims != runDimensions {
		return fmt.Errorf("reduction produced no %d-dimensional embedding", runDimensions)
	}

	o.InitClusters(runClusters)
	snap, err = waitFor(ctx, o, func(s pipeline.Snapshot) bool {
		return !s.Clustering && s.Cluster.Initialized
	})
	if err != nil {
		return fmt.Errorf("cluster init: %w", err)
	}

	// Step until the assignments stop moving or the cap is reached.
	prev := snap.Cluster.Assignments
	for step := 0; step < runMaxSteps; step++ {
		o.StepClusters()
		snap, err = waitFor(ctx, o, func(s pipeline.Snapshot) bool {
			return !s.Clustering
		})
		if err != nil {
			return fmt.Errorf("cluster step: %w", err)
		}
		if maps.Equal(prev, snap.Cluster.Assignments) {
			break
		}
		prev = snap.Cluster.Assignments
	}

	return printAssignments(library, snap)
}

// audioExts are the extensions the decoder handles, natively or through
// ffmpeg.
var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true, ".aac": true,
}

func loadDirectory(library *song.Library, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audioExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return library.Add(song.Song{
			ID:     rel,
			Name:   name,
			URL:    path,
			Source: song.SourceDefault,
		})
	})
}

// waitFor blocks until the snapshot satisfies cond. Updates is coalescing,
// so a pulse only means "look again".
func waitFor(ctx context.Context, o *pipeline.Orchestrator, cond func(pipeline.Snapshot) bool) (pipeline.Snapshot, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := o.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-o.Updates():
		case <-ticker.C:
		}
	}
}

func printAssignments(library *song.Library, snap pipeline.Snapshot) error {
	type rowData struct {
		cluster int
		name    string
		point   []float64
	}
	var rows []rowData
	for _, s := range library.List() {
		cluster, ok := snap.Cluster.Assignments[s.ID]
		if !ok {
			continue
		}
		rows = append(rows, rowData{cluster: cluster, name: s.Name, point: snap.Reduced[s.ID]})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].cluster != rows[j].cluster {
			return rows[i].cluster < rows[j].cluster
		}
		return rows[i].name < rows[j].name
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Cluster", "Song", "Position"})
	for _, r := range rows {
		coords := make([]string, len(r.point))
		for i, v := range r.point {
			coords[i] = strconv.FormatFloat(v, 'f', 3, 64)
		}
		if err := table.Append([]string{
			strconv.Itoa(r.cluster), r.name, strings.Join(coords, ", "),
		}); err != nil {
			return fmt.Errorf("rendering table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	fmt.Printf("%d songs in %d clusters after %d iterations\n",
		len(rows), len(snap.Cluster.Centroids), snap.Cluster.Iteration)
	return nil
}
