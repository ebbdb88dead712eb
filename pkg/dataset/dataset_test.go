package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

const relativitySample = `# Directed graph (each unordered pair of nodes is saved once): CA-GrQc.txt
# FromNodeId	ToNodeId
3466	937
3466	5233
937	3466
5233	5233

10	3466
`

func TestReadEdgeList(t *testing.T) {
	data, err := ReadEdgeList("relativity", strings.NewReader(relativitySample))
	require.NoError(t, err)

	assert.Equal(t, 4, data.NumNodes)
	assert.Equal(t, []int64{3466, 937, 5233, 10}, data.OriginalIDs)
	assert.Len(t, data.Edges, 3)
	assert.True(t, data.Edges.Contains(network.NewEdge(0, 1)))
	assert.True(t, data.Edges.Contains(network.NewEdge(0, 2)))
	assert.True(t, data.Edges.Contains(network.NewEdge(0, 3)))
	assert.Equal(t, 1, data.SelfLoops)
	assert.Equal(t, 1, data.Duplicates)
}

func TestReadEdgeListErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"single column", "1 2\n3\n", ErrMalformed},
		{"not a number", "1 x\n", ErrMalformed},
		{"only comments", "# nothing\n\n", ErrEmpty},
		{"only self loops", "4 4\n", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEdgeList("t", strings.NewReader(tt.input))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

const netscienceSample = `Creator "test"
graph
[
  directed 0
  node
  [
    id 0
    label "ABBE, A"
  ]
  node [ id 1 label "ADAMCZYK, Z" ]
  node [ id 2 label "ADAMIC, L" ]
  edge
  [
    source 1
    target 0
    value 2.5
  ]
  edge [ source 2 target 1 value 0.5 ]
  edge [ source 0 target 1 value 1 ]
]
`

func TestReadGML(t *testing.T) {
	data, err := ReadGML("netscience", strings.NewReader(netscienceSample))
	require.NoError(t, err)

	assert.Equal(t, 3, data.NumNodes)
	assert.Equal(t, []int64{1, 0, 2}, data.OriginalIDs)
	assert.Len(t, data.Edges, 2)
	assert.Equal(t, 1, data.Duplicates)
}

func TestReadGMLErrors(t *testing.T) {
	_, err := ReadGML("t", strings.NewReader(`graph [ edge [ source 1 ] ]`))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = ReadGML("t", strings.NewReader(`Creator "x"`))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = ReadGML("t", strings.NewReader(`graph [ node [ id 1 ] ]`))
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "ca-grqc.txt")
	gml := filepath.Join(dir, "netscience.gml")
	require.NoError(t, os.WriteFile(txt, []byte(relativitySample), 0644))
	require.NoError(t, os.WriteFile(gml, []byte(netscienceSample), 0644))

	tests := []struct {
		name     string
		dataset  string
		file     string
		numNodes int
		wantErr  error
	}{
		{"relativity", "relativity", txt, 4, nil},
		{"netscience", "netscience", gml, 3, nil},
		{"by extension", "", gml, 3, nil},
		{"default edge list", "", txt, 4, nil},
		{"unknown", "facebook", txt, 0, ErrUnknownDataset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Load(tt.dataset, tt.file, zerolog.Nop())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.numNodes, data.NumNodes)
		})
	}

	_, err := Load("relativity", filepath.Join(dir, "missing.txt"), zerolog.Nop())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPlantedPartition(t *testing.T) {
	pp := PlantedPartition{Nodes: 60, Communities: 3, PIn: 0.5, POut: 0.01}

	data, labels, err := pp.Generate(rng.NewSource(17))
	require.NoError(t, err)
	require.Len(t, labels, 60)
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, 2, labels[59])

	within := 0
	for e := range data.Edges {
		if labels[e.First] == labels[e.Second] {
			within++
		}
	}
	assert.Greater(t, within, len(data.Edges)/2)

	again, _, err := pp.Generate(rng.NewSource(17))
	require.NoError(t, err)
	assert.Equal(t, data.Edges.Sorted(), again.Edges.Sorted())

	net, err := data.Network(network.Options{HeldOutRatio: 0.1, MiniBatchSize: 10}, rng.NewSource(17), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 60, net.NumNodes())
}

func TestPlantedPartitionInvalid(t *testing.T) {
	tests := []PlantedPartition{
		{Nodes: 1, Communities: 1, PIn: 0.5},
		{Nodes: 10, Communities: 11, PIn: 0.5},
		{Nodes: 10, Communities: 2, PIn: 1.5},
		{Nodes: 10, Communities: 2, PIn: 0, POut: 0},
	}
	for _, pp := range tests {
		_, _, err := pp.Generate(rng.NewSource(1))
		assert.Error(t, err, "%+v", pp)
	}
}

func TestStats(t *testing.T) {
	edges := make(network.EdgeSet)
	for _, p := range [][2]int32{{0, 1}, {1, 2}, {0, 2}, {3, 4}} {
		edges.Add(network.NewEdge(p[0], p[1]))
	}
	d := &Data{Name: "toy", NumNodes: 6, Edges: edges}

	s := d.Stats()
	assert.Equal(t, 6, s.Nodes)
	assert.Equal(t, 4, s.Edges)
	assert.Equal(t, 3, s.Components)
	assert.Equal(t, 3, s.LargestComponent)
	assert.Equal(t, 1, s.Isolated)
	assert.Equal(t, 2, s.MaxDegree)
	assert.InDelta(t, 8.0/6, s.MeanDegree, 1e-12)
	assert.InDelta(t, 4.0/15, s.Density, 1e-12)

	assert.Equal(t, Stats{}, (&Data{}).Stats())
}
