// Package index keeps an in-memory HNSW graph per strategy for 1:N
// identification over enrolled fingerprints.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
)

const maxNeighbors = 16

// Lister is the part of the enrollment store the index rebuilds from.
type Lister interface {
	List(ctx context.Context, strategy domain.Strategy) ([]domain.Enrollment, error)
}

// Candidate is one enrolled employee near the searched fingerprint. Distance
// uses the matcher's metric for the strategy, not the graph's internal one.
type Candidate struct {
	Enrollment domain.Enrollment
	Distance   float64
}

type strategyGraph struct {
	graph   *hnsw.Graph[string]
	dims    int
	entries map[string]domain.Enrollment
}

func newStrategyGraph() *strategyGraph {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return &strategyGraph{graph: g, entries: make(map[string]domain.Enrollment)}
}

// Index is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	graphs map[domain.Strategy]*strategyGraph
	logger *slog.Logger
}

func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		graphs: make(map[domain.Strategy]*strategyGraph),
		logger: logger.With("component", "index"),
	}
}

// Rebuild replaces the graph of every given strategy with the store contents.
func (ix *Index) Rebuild(ctx context.Context, store Lister, strategies ...domain.Strategy) error {
	for _, s := range strategies {
		enrollments, err := store.List(ctx, s)
		if err != nil {
			return fmt.Errorf("rebuild %s index: %w", s, err)
		}
		ix.Build(s, enrollments)
	}
	return nil
}

// Build replaces the graph of one strategy. Enrollments whose fingerprint
// length differs from the first one are skipped.
func (ix *Index) Build(strategy domain.Strategy, enrollments []domain.Enrollment) {
	sg := newStrategyGraph()
	for _, e := range enrollments {
		if err := sg.add(e); err != nil {
			ix.logger.Warn("skipping enrollment",
				slog.String("employee_id", e.EmployeeID),
				slog.String("strategy", string(strategy)),
				slog.String("error", err.Error()),
			)
		}
	}

	ix.mu.Lock()
	ix.graphs[strategy] = sg
	ix.mu.Unlock()

	ix.logger.Info("index built",
		slog.String("strategy", string(strategy)),
		slog.Int("count", len(sg.entries)),
	)
}

// Add inserts or replaces the enrollment of an employee.
func (ix *Index) Add(e domain.Enrollment) error {
	if e.Fingerprint == nil {
		return domain.ErrInvalidFingerprint
	}
	strategy := e.Fingerprint.Strategy()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	sg, ok := ix.graphs[strategy]
	if !ok {
		sg = newStrategyGraph()
		ix.graphs[strategy] = sg
	}
	return sg.add(e)
}

// Remove drops an employee from one strategy, or from all of them when
// strategy is empty.
func (ix *Index) Remove(employeeID string, strategy domain.Strategy) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for s, sg := range ix.graphs {
		if strategy != "" && s != strategy {
			continue
		}
		sg.remove(employeeID)
	}
}

func (ix *Index) Len(strategy domain.Strategy) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if sg, ok := ix.graphs[strategy]; ok {
		return len(sg.entries)
	}
	return 0
}

// Search returns up to k enrollments nearest to fp, closest first.
func (ix *Index) Search(fp *domain.Fingerprint, k int) ([]Candidate, error) {
	if fp == nil || fp.Len() == 0 {
		return nil, domain.ErrInvalidFingerprint
	}
	if k <= 0 {
		k = 1
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sg, ok := ix.graphs[fp.Strategy()]
	if !ok || len(sg.entries) == 0 {
		return nil, domain.ErrIndexEmpty
	}
	if fp.Len() != sg.dims {
		return nil, domain.ErrInvalidFingerprint
	}

	nodes := sg.graph.Search(toFloat32(fp), k)

	out := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		e, ok := sg.entries[n.Key]
		if !ok {
			continue
		}
		d, err := matcher.Distance(e.Fingerprint, fp)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Enrollment: e, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	return out, nil
}

func (sg *strategyGraph) add(e domain.Enrollment) error {
	if e.Fingerprint == nil || e.Fingerprint.Len() == 0 {
		return domain.ErrInvalidFingerprint
	}
	if sg.dims == 0 {
		sg.dims = e.Fingerprint.Len()
	}
	if e.Fingerprint.Len() != sg.dims {
		return fmt.Errorf("%w: length %d, index holds %d", domain.ErrInvalidFingerprint, e.Fingerprint.Len(), sg.dims)
	}

	if _, exists := sg.entries[e.EmployeeID]; exists {
		sg.entries[e.EmployeeID] = e
		sg.reindex()
		return nil
	}
	sg.graph.Add(hnsw.MakeNode(e.EmployeeID, toFloat32(e.Fingerprint)))
	sg.entries[e.EmployeeID] = e
	return nil
}

func (sg *strategyGraph) remove(employeeID string) {
	if _, ok := sg.entries[employeeID]; !ok {
		return
	}
	delete(sg.entries, employeeID)
	sg.reindex()
}

// reindex rebuilds the graph from entries; nodes are never deleted in place.
func (sg *strategyGraph) reindex() {
	fresh := newStrategyGraph()
	if len(sg.entries) > 0 {
		fresh.dims = sg.dims
	}
	keys := make([]string, 0, len(sg.entries))
	for k := range sg.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := sg.entries[k]
		fresh.graph.Add(hnsw.MakeNode(k, toFloat32(e.Fingerprint)))
	}
	fresh.entries = sg.entries
	*sg = *fresh
}

func toFloat32(fp *domain.Fingerprint) []float32 {
	v := make([]float32, fp.Len())
	for i := range v {
		v[i] = float32(fp.At(i))
	}
	return v
}
