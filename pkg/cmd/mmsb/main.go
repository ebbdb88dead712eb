package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mmsb",
	Short: "Stochastic gradient MCMC for mixed membership stochastic blockmodels",
	Long: `mmsb fits a mixed membership stochastic blockmodel to an undirected graph
with stochastic gradient Riemannian Langevin dynamics and reports held-out
perplexity as it goes.

Examples:
  mmsb run --dataset netscience --file netscience.gml --k 20
  mmsb run --planted 300,6 --max-iteration 5000 --snapshot-dir ./snapshots
  mmsb resume --snapshot-dir ./snapshots --dataset netscience --file netscience.gml
  mmsb snapshots --snapshot-dir ./snapshots
  mmsb serve --snapshot-dir ./snapshots --addr :8080
  mmsb datasets`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
