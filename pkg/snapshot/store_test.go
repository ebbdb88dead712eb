package snapshot

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(runID string, step int) *Model {
	return &Model{
		RunID:     runID,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Step:      step,
		Seed:      42,
		N:         3,
		K:         2,
		Alpha:     0.01,
		Eta0:      1,
		Eta1:      1,
		Epsilon:   0.05,
		Phi: [][]float64{
			{1, 3},
			{0.5, 0.5},
			{2, 6},
		},
		Theta:         [][2]float64{{1, 2}, {3, 4}},
		AvgLikelihood: []float64{0.9, 0.1},
		History:       []Point{{Step: 1, Perplexity: 4.5, AveragedPerplexity: 4.5, ElapsedNS: 10}},
		Streams:       map[string][]byte{"phi update": {1, 2, 3}},
	}
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	st, err := Open(dir, 8, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveLoad(t *testing.T) {
	st := openTestStore(t, "")

	want := testModel("run-a", 7)
	require.NoError(t, st.Save(want))

	got, err := st.Load("run-a")
	require.NoError(t, err)
	assert.Equal(t, want.Phi, got.Phi)
	assert.Equal(t, want.Theta, got.Theta)
	assert.Equal(t, want.Step, got.Step)
	assert.Equal(t, want.Streams, got.Streams)
	assert.Equal(t, want.History, got.History)
	assert.Equal(t, want.AvgLikelihood, got.AvgLikelihood)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestLatestAndRuns(t *testing.T) {
	st := openTestStore(t, "")

	_, err := st.Latest()
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.Save(testModel("run-a", 1)))
	require.NoError(t, st.Save(testModel("run-b", 5)))

	latest, err := st.Latest()
	require.NoError(t, err)
	assert.Equal(t, "run-b", latest.RunID)

	runs, err := st.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)

	_, err = st.Load("run-c")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPiRow(t *testing.T) {
	st := openTestStore(t, "")
	require.NoError(t, st.Save(testModel("run-a", 1)))

	row, err := st.PiRow("run-a", 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, row, 1e-15)

	// cached copies are not shared with callers
	row[0] = 99
	again, err := st.PiRow("run-a", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, again[0], 1e-15)

	// a new save of the run invalidates cached rows
	m := testModel("run-a", 2)
	m.Phi[0] = []float64{3, 1}
	require.NoError(t, st.Save(m))
	row, err = st.PiRow("run-a", 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, row, 1e-15)

	_, err = st.PiRow("run-a", 17)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPiRowRejectsNodesOutsideKeySpace(t *testing.T) {
	st := openTestStore(t, "")
	require.NoError(t, st.Save(testModel("run-a", 1)))

	// 1<<32 would wrap onto node 0 in the key
	for _, node := range []int{-1, 1 << 32, 1<<32 + 1} {
		_, err := st.PiRow("run-a", node)
		assert.True(t, errors.Is(err, ErrNotFound), "node %d: got %v", node, err)
	}
}

func TestSaveRejectsBadModel(t *testing.T) {
	st := openTestStore(t, "")

	tests := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"no run id", func(m *Model) { m.RunID = "" }},
		{"missing row", func(m *Model) { m.Phi = m.Phi[:2] }},
		{"ragged row", func(m *Model) { m.Phi[1] = []float64{1} }},
		{"theta rows", func(m *Model) { m.Theta = m.Theta[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel("run-x", 1)
			tt.mutate(m)
			err := st.Save(m)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestPersistsOnDisk(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(dir, 4, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(testModel("run-disk", 3)))
	require.NoError(t, st.Close())

	reopened := openTestStore(t, dir)
	m, err := reopened.Latest()
	require.NoError(t, err)
	assert.Equal(t, "run-disk", m.RunID)
	assert.Equal(t, 3, m.Step)
}

func TestMetaSkipsPhi(t *testing.T) {
	st := openTestStore(t, "")
	require.NoError(t, st.Save(testModel("run-a", 3)))

	m, err := st.Meta("run-a")
	require.NoError(t, err)
	assert.Nil(t, m.Phi)
	assert.Equal(t, 3, m.Step)
	assert.Equal(t, [][2]float64{{1, 2}, {3, 4}}, m.Theta)

	_, err = st.Meta("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
