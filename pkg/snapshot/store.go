package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

/*
Key layout:

	latest                      => run id of the most recent Save
	run/<id>/meta               => JSON encoded Model without phi
	run/<id>/phi/<node u32 BE>  => K little-endian float64
*/

var latestKey = []byte("latest")

func metaKey(runID string) []byte { return []byte("run/" + runID + "/meta") }

func phiPrefix(runID string) []byte { return []byte("run/" + runID + "/phi/") }

func phiKey(runID string, node int) []byte {
	prefix := phiPrefix(runID)
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(node))
	return key
}

func encodeRow(row []float64) []byte {
	buf := make([]byte, 8*len(row))
	for i, v := range row {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeRow(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "row of %d bytes", len(buf))
	}
	row := make([]float64, len(buf)/8)
	for i := range row {
		row[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return row, nil
}

// Store persists sampler snapshots in badger. Membership rows read through
// PiRow are kept in an LRU cache.
type Store struct {
	db     *badger.DB
	cache  *lru.Cache[string, []float64]
	logger zerolog.Logger
}

// Open opens (or creates) a store in dir. An empty dir keeps everything in
// memory.
func Open(dir string, cacheSize int, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.MetricsEnabled = false
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening snapshot store %q", dir)
	}

	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cache: cache, logger: logger}, nil
}

// Close releases the database
func (st *Store) Close() error {
	st.cache.Purge()
	return st.db.Close()
}

// Save writes m under its run id, replacing an earlier snapshot of the run,
// and marks it as the latest.
func (st *Store) Save(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	meta, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding snapshot meta")
	}

	wb := st.db.NewWriteBatch()
	defer wb.Cancel()
	for i, row := range m.Phi {
		if err := wb.Set(phiKey(m.RunID, i), encodeRow(row)); err != nil {
			return errors.Wrapf(err, "writing phi row %d", i)
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.Wrap(err, "flushing phi rows")
	}

	err = st.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(m.RunID), meta); err != nil {
			return err
		}
		return txn.Set(latestKey, []byte(m.RunID))
	})
	if err != nil {
		return errors.Wrap(err, "writing snapshot meta")
	}

	st.purgeRun(m.RunID)
	st.logger.Info().
		Str("run_id", m.RunID).
		Int("step", m.Step).
		Int("nodes", m.N).
		Int("k", m.K).
		Msg("Snapshot saved")
	return nil
}

func readMeta(txn *badger.Txn, runID string, m *Model) error {
	item, err := txn.Get(metaKey(runID))
	if err == badger.ErrKeyNotFound {
		return errors.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return err
	}
	meta, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(meta, m); err != nil {
		return errors.Wrapf(ErrCorrupt, "run %s meta: %v", runID, err)
	}
	return nil
}

// Meta reads the snapshot of runID without its phi rows
func (st *Store) Meta(runID string) (*Model, error) {
	m := &Model{}
	if err := st.db.View(func(txn *badger.Txn) error {
		return readMeta(txn, runID, m)
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the snapshot of runID
func (st *Store) Load(runID string) (*Model, error) {
	m := &Model{}
	err := st.db.View(func(txn *badger.Txn) error {
		if err := readMeta(txn, runID, m); err != nil {
			return err
		}

		m.Phi = make([][]float64, m.N)
		prefix := phiPrefix(runID)
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   100,
			Prefix:         prefix,
		})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			node := int(binary.BigEndian.Uint32(key[len(prefix):]))
			if node >= m.N {
				return errors.Wrapf(ErrCorrupt, "run %s: phi row %d beyond %d nodes", runID, node, m.N)
			}
			buf, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if m.Phi[node], err = decodeRow(buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Latest loads the most recently saved snapshot
func (st *Store) Latest() (*Model, error) {
	var runID string
	err := st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey)
		if err == badger.ErrKeyNotFound {
			return errors.Wrap(ErrNotFound, "no snapshot saved yet")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			runID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return st.Load(runID)
}

// Runs lists the ids of all stored runs in key order
func (st *Store) Runs() ([]string, error) {
	var runs []string
	prefix := []byte("run/")
	err := st.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			if strings.HasSuffix(key, "/meta") {
				runs = append(runs, strings.TrimSuffix(strings.TrimPrefix(key, "run/"), "/meta"))
			}
		}
		return nil
	})
	return runs, err
}

// PiRow returns the membership distribution of node, i.e. its phi row
// normalized to sum to one
func (st *Store) PiRow(runID string, node int) ([]float64, error) {
	if node < 0 || int64(node) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrNotFound, "run %s node %d", runID, node)
	}
	cacheKey := fmt.Sprintf("%s/%d", runID, node)
	if row, ok := st.cache.Get(cacheKey); ok {
		return append([]float64(nil), row...), nil
	}

	var row []float64
	err := st.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(phiKey(runID, node))
		if err == badger.ErrKeyNotFound {
			return errors.Wrapf(ErrNotFound, "run %s node %d", runID, node)
		}
		if err != nil {
			return err
		}
		buf, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		row, err = decodeRow(buf)
		return err
	})
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, v := range row {
		sum += v
	}
	if sum <= 0 {
		return nil, errors.Wrapf(ErrCorrupt, "run %s node %d: phi row sums to %g", runID, node, sum)
	}
	for i := range row {
		row[i] /= sum
	}

	st.cache.Add(cacheKey, row)
	return append([]float64(nil), row...), nil
}

func (st *Store) purgeRun(runID string) {
	prefix := runID + "/"
	for _, key := range st.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			st.cache.Remove(key)
		}
	}
}
