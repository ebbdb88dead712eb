package dataset

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Errors
var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrMalformed      = errors.New("malformed graph file")
	ErrEmpty          = errors.New("graph has no edges")
)

// Reader loads a named dataset from a file
type Reader func(name, filename string) (*Data, error)

var readers = map[string]Reader{
	"relativity": ReadEdgeListFile,
	"hep_ph":     ReadEdgeListFile,
	"astro_ph":   ReadEdgeListFile,
	"condmat":    ReadEdgeListFile,
	"hep_th":     ReadEdgeListFile,
	"edgelist":   ReadEdgeListFile,
	"netscience": ReadGMLFile,
	"gml":        ReadGMLFile,
}

// Names lists the registered dataset names, sorted
func Names() []string {
	names := make([]string, 0, len(readers))
	for name := range readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads filename with the reader registered for name. An empty name
// picks a reader from the file extension.
func Load(name, filename string, logger zerolog.Logger) (*Data, error) {
	if name == "" {
		name = guessFormat(filename)
	}
	read, ok := readers[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDataset, "%q (known: %s)", name, strings.Join(Names(), ", "))
	}

	data, err := read(name, filename)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s from %s", name, filename)
	}
	logLoaded(logger, data, filename)
	return data, nil
}

func guessFormat(filename string) string {
	if strings.EqualFold(filepath.Ext(filename), ".gml") {
		return "gml"
	}
	return "edgelist"
}
