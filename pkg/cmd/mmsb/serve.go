package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/mmsb-sampler/pkg/api"
	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
)

var (
	serveDir      string
	serveOptions  = api.DefaultOptions()
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP",
	Long: `Serve the runs in a snapshot directory as a read-only JSON API:

  GET /api/v1/health
  GET /api/v1/runs
  GET /api/v1/runs/latest
  GET /api/v1/runs/{runId}
  GET /api/v1/runs/{runId}/nodes/{node}
  GET /api/v1/runs/{runId}/communities/{k}/members?limit=20`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	fs := serveCmd.Flags()
	fs.StringVar(&serveDir, "snapshot-dir", "", "Badger directory holding the runs to serve")
	fs.StringVar(&serveOptions.Address, "addr", serveOptions.Address, "Listen address")
	fs.StringSliceVar(&serveOptions.AllowedOrigins, "cors-origin", serveOptions.AllowedOrigins, "Allowed CORS origins")
	fs.StringVar(&serveLogLevel, "log-level", "info", "Log level")
	_ = serveCmd.MarkFlagRequired("snapshot-dir")
}

func runServe(cmd *cobra.Command, args []string) error {
	config := mmsb.NewConfig()
	config.Set("logging.level", serveLogLevel)
	logger := config.CreateLogger()

	store, err := snapshot.Open(serveDir, snapshotCacheSize, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.Serve(ctx, store, serveOptions, logger)
}
