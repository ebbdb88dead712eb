package dataset

import (
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// GML is a tree of key/value pairs where a value is a number, a quoted
// string or a bracketed list of further pairs:
//
//	graph [ node [ id 1 label "A" ] edge [ source 1 target 2 ] ]
type gmlDocument struct {
	Entries []*gmlEntry `parser:"@@*"`
}

type gmlEntry struct {
	Key   string    `parser:"@Ident"`
	Value *gmlValue `parser:"@@"`
}

type gmlValue struct {
	Str  *string     `parser:"  @String"`
	Num  *float64    `parser:"| @Number"`
	List []*gmlEntry `parser:"| \"[\" @@* \"]\""`
}

var gmlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[\[\]]`},
	{Name: "whitespace", Pattern: `\s+`},
})

var parseGML = participle.MustBuild[gmlDocument](
	participle.Lexer(gmlLexer),
	participle.Unquote("String"),
	participle.Elide("Comment"),
)

// ReadGML extracts the edges of the first "graph" block. Node ids come from
// the "source" and "target" keys of each "edge" entry; isolated nodes are not
// represented.
func ReadGML(name string, r io.Reader) (*Data, error) {
	doc, err := parseGML.Parse(name, r)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "gml: %v", err)
	}

	var graph []*gmlEntry
	for _, entry := range doc.Entries {
		if entry.Key == "graph" && entry.Value.List != nil {
			graph = entry.Value.List
			break
		}
	}
	if graph == nil {
		return nil, errors.Wrap(ErrMalformed, "gml: no graph block")
	}

	b := newBuilder(name)
	for _, entry := range graph {
		if entry.Key != "edge" {
			continue
		}
		src, srcOK := gmlInt(entry.Value.List, "source")
		dst, dstOK := gmlInt(entry.Value.List, "target")
		if !srcOK || !dstOK {
			return nil, errors.Wrap(ErrMalformed, "gml: edge without source or target")
		}
		b.addEdge(src, dst)
	}
	if len(b.edges) == 0 {
		return nil, errors.Wrap(ErrEmpty, name)
	}

	return b.data(), nil
}

// ReadGMLFile opens filename and parses it with ReadGML
func ReadGMLFile(name, filename string) (*Data, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadGML(name, file)
}

func gmlInt(entries []*gmlEntry, key string) (int64, bool) {
	for _, e := range entries {
		if e.Key == key && e.Value.Num != nil {
			return int64(*e.Value.Num), true
		}
	}
	return 0, false
}
