package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mmsb-sampler/pkg/dataset"
	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
)

var (
	snapshotsDir  string
	snapshotsRun  string
	snapshotsNode int
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored runs or show one node's memberships",
	Long: `List the runs stored in a snapshot directory. With --run and --node, print
the community memberships (one row of pi) of that node instead.`,
	RunE: runSnapshots,
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the known dataset names",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range dataset.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(datasetsCmd)

	snapshotsCmd.Flags().StringVar(&snapshotsDir, "snapshot-dir", "", "Badger directory for resumable snapshots")
	snapshotsCmd.Flags().StringVar(&snapshotsRun, "run", "", "Run id")
	snapshotsCmd.Flags().IntVar(&snapshotsNode, "node", -1, "Node whose memberships to print")
	_ = snapshotsCmd.MarkFlagRequired("snapshot-dir")
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	store, err := snapshot.Open(snapshotsDir, snapshotCacheSize, zerolog.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if snapshotsNode >= 0 {
		runID := snapshotsRun
		if runID == "" {
			latest, err := store.Latest()
			if err != nil {
				return err
			}
			runID = latest.RunID
		}
		row, err := store.PiRow(runID, snapshotsNode)
		if err != nil {
			return err
		}
		parts := make([]string, len(row))
		for k, v := range row {
			parts[k] = fmt.Sprintf("%.6f", v)
		}
		fmt.Fprintf(out, "%s node %d: %s\n", runID, snapshotsNode, strings.Join(parts, " "))
		return nil
	}

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, id := range runs {
		m, err := store.Meta(id)
		if err != nil {
			return err
		}
		perplexity := "-"
		if n := len(m.History); n > 0 {
			perplexity = fmt.Sprintf("%.6f", m.History[n-1].Perplexity)
		}
		fmt.Fprintf(out, "%s  step=%d  nodes=%d  k=%d  seed=%d  perplexity=%s  saved=%s\n",
			m.RunID, m.Step, m.N, m.K, m.Seed, perplexity, m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
