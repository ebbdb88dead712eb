package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanted(t *testing.T) {
	tests := []struct {
		in          string
		nodes, comm int
		wantErr     bool
	}{
		{"300,6", 300, 6, false},
		{" 40 , 2 ", 40, 2, false},
		{"300", 0, 0, true},
		{"a,2", 0, 0, true},
		{"3,b", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			nodes, comm, err := parsePlanted(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.nodes, nodes)
			assert.Equal(t, tt.comm, comm)
		})
	}
}

func TestBuildConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmsb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  k: 12\n  alpha: 0.2\n"), 0o644))

	var configFile string
	cmd := &cobra.Command{Use: "test"}
	registerConfigFlags(cmd, &configFile)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--config", path, "--k", "5", "--strategy", "random_node", "--deterministic", "--seed", "9",
	}))

	config, err := buildConfig(cmd, configFile)
	require.NoError(t, err)
	assert.Equal(t, 5, config.K())
	assert.Equal(t, 0.2, config.Alpha())
	assert.Equal(t, "random_node", config.StrategyName())
	assert.True(t, config.Deterministic())
	assert.Equal(t, int64(9), config.RandomSeed())
	assert.Equal(t, 0.05, config.Epsilon())
}

func TestRunAndResumePlanted(t *testing.T) {
	dir := t.TempDir()
	snapshots := filepath.Join(dir, "snapshots")
	common := []string{
		"--planted", "40,2", "--k", "2", "--num-node-sample", "5", "--interval", "5",
		"--deterministic", "--parallel=false", "--log-level", "error",
		"--snapshot-dir", snapshots,
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"run", "--max-iteration", "10",
		"--trace", filepath.Join(dir, "trace.jsonl"), "--summary", filepath.Join(dir, "summary.yaml")}, common...))
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "steps:               10")
	assert.Contains(t, out.String(), "nmi vs planted:")
	assert.FileExists(t, filepath.Join(dir, "summary.yaml"))
	assert.FileExists(t, filepath.Join(dir, "trace.jsonl"))

	out.Reset()
	rootCmd.SetArgs(append([]string{"resume", "--max-iteration", "20"}, common...))
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "steps:               20")

	out.Reset()
	rootCmd.SetArgs([]string{"snapshots", "--snapshot-dir", snapshots})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "step=20")
	assert.Contains(t, out.String(), "nodes=40")
}
