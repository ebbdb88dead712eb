package dataset

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadEdgeList parses whitespace separated "src dst" lines. Blank lines and
// lines starting with '#' or '%' are skipped, extra columns are ignored.
func ReadEdgeList(name string, r io.Reader) (*Data, error) {
	b := newBuilder(name)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, errors.Wrapf(ErrMalformed, "line %d: expected two node ids, got %q", lineNo, line)
		}
		src, err1 := strconv.ParseInt(parts[0], 10, 64)
		dst, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, errors.Wrapf(ErrMalformed, "line %d: non-integer node id in %q", lineNo, line)
		}
		b.addEdge(src, dst)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading edge list")
	}
	if len(b.edges) == 0 {
		return nil, errors.Wrap(ErrEmpty, name)
	}

	return b.data(), nil
}

// ReadEdgeListFile opens filename and parses it with ReadEdgeList
func ReadEdgeListFile(name, filename string) (*Data, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadEdgeList(name, file)
}
