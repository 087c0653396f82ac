package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/XiaoTianFan/music-cluster/dsp"
)

var listFeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "Lists the feature names the extractor understands",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listFeatures(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(listFeaturesCmd)
}

func listFeatures() error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Feature", "Kind"})
	for _, name := range dsp.KnownFeatures() {
		if err := table.Append([]string{name, dsp.FeatureKind(name)}); err != nil {
			return err
		}
	}
	return table.Render()
}
