package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
)

// Snapshots is the read side of snapshot.Store
type Snapshots interface {
	Runs() ([]string, error)
	Meta(runID string) (*snapshot.Model, error)
	Load(runID string) (*snapshot.Model, error)
	Latest() (*snapshot.Model, error)
	PiRow(runID string, node int) ([]float64, error)
}

// RunSummary is one entry of the run list
type RunSummary struct {
	RunID      string    `json:"runId"`
	Step       int       `json:"step"`
	Nodes      int       `json:"nodes"`
	K          int       `json:"k"`
	Seed       int64     `json:"seed"`
	Perplexity *float64  `json:"perplexity,omitempty"`
	SavedAt    time.Time `json:"savedAt"`
}

// RunDetail adds the model parameters and the evaluation trace
type RunDetail struct {
	RunSummary
	Alpha   float64          `json:"alpha"`
	Eta     [2]float64       `json:"eta"`
	Epsilon float64          `json:"epsilon"`
	Beta    []float64        `json:"beta"`
	History []snapshot.Point `json:"history"`
}

// Membership is the community distribution of one node
type Membership struct {
	Node      int       `json:"node"`
	Pi        []float64 `json:"pi"`
	Community int       `json:"community"`
}

// Member is a node ranked by its membership in one community
type Member struct {
	Node       int     `json:"node"`
	Membership float64 `json:"membership"`
}

// Handlers serves the stored runs
type Handlers struct {
	store  Snapshots
	logger zerolog.Logger
}

// NewHandlers creates handlers over store
func NewHandlers(store Snapshots, logger zerolog.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

func summarize(m *snapshot.Model) RunSummary {
	s := RunSummary{
		RunID:   m.RunID,
		Step:    m.Step,
		Nodes:   m.N,
		K:       m.K,
		Seed:    m.Seed,
		SavedAt: m.CreatedAt,
	}
	if n := len(m.History); n > 0 {
		p := m.History[n-1].Perplexity
		s.Perplexity = &p
	}
	return s
}

func detail(m *snapshot.Model) RunDetail {
	beta := make([]float64, len(m.Theta))
	for k, row := range m.Theta {
		beta[k] = row[1] / (row[0] + row[1])
	}
	return RunDetail{
		RunSummary: summarize(m),
		Alpha:      m.Alpha,
		Eta:        [2]float64{m.Eta0, m.Eta1},
		Epsilon:    m.Epsilon,
		Beta:       beta,
		History:    m.History,
	}
}

// storeError maps store failures onto HTTP status codes
func (h *Handlers) storeError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, snapshot.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, message, err)
		return
	}
	h.logger.Error().Err(err).Msg(message)
	writeError(w, h.logger, http.StatusInternalServerError, message, err)
}

// HealthCheck reports that the server is up
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.logger, "ok", map[string]string{"status": "healthy"})
}

// ListRuns lists every stored run
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.Runs()
	if err != nil {
		h.storeError(w, err, "Failed to list runs")
		return
	}

	runs := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		m, err := h.store.Meta(id)
		if err != nil {
			h.storeError(w, err, "Failed to read run "+id)
			return
		}
		runs = append(runs, summarize(m))
	}
	writeSuccess(w, h.logger, "Runs retrieved", runs)
}

// GetRun returns one run
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	m, err := h.store.Meta(runID)
	if err != nil {
		h.storeError(w, err, "Run not available")
		return
	}
	writeSuccess(w, h.logger, "Run retrieved", detail(m))
}

// GetLatestRun returns the most recently saved run
func (h *Handlers) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Latest()
	if err != nil {
		h.storeError(w, err, "No run available")
		return
	}
	writeSuccess(w, h.logger, "Run retrieved", detail(m))
}

// GetMembership returns the pi row of one node
func (h *Handlers) GetMembership(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	node, err := strconv.Atoi(vars["node"])
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid node", err)
		return
	}

	pi, err := h.store.PiRow(vars["runId"], node)
	if err != nil {
		h.storeError(w, err, "Membership not available")
		return
	}
	writeSuccess(w, h.logger, "Membership retrieved", Membership{
		Node:      node,
		Pi:        pi,
		Community: floats.MaxIdx(pi),
	})
}

// GetCommunityMembers ranks the nodes of a run by their membership in one
// community. ?limit= bounds the list (default 20, at most 1000).
func (h *Handlers) GetCommunityMembers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	community, err := strconv.Atoi(vars["community"])
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid community", err)
		return
	}
	limit := queryInt(r, "limit", 20, 1000)

	m, err := h.store.Load(vars["runId"])
	if err != nil {
		h.storeError(w, err, "Run not available")
		return
	}
	if community >= m.K {
		writeError(w, h.logger, http.StatusBadRequest, "Community out of range",
			errors.Errorf("community %d, run has %d", community, m.K))
		return
	}

	members := make([]Member, m.N)
	for i, row := range m.Phi {
		members[i] = Member{Node: i, Membership: row[community] / floats.Sum(row)}
	}
	sort.SliceStable(members, func(a, b int) bool {
		return members[a].Membership > members[b].Membership
	})
	if len(members) > limit {
		members = members[:limit]
	}
	writeSuccess(w, h.logger, "Members retrieved", members)
}
