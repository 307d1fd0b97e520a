package neighbor

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/dynsph/internal/dynamo"
	"gonum.org/v1/gonum/spatial/kdtree"
)

type site struct {
	p   [3]float64
	idx int
}

func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 { return s.p[d] - c.(site).p[d] }
func (s site) Dims() int                                        { return 3 }

func (s site) Distance(c kdtree.Comparable) float64 {
	o := c.(site)
	dx, dy, dz := s.p[0]-o.p[0], s.p[1]-o.p[1], s.p[2]-o.p[2]
	return dx*dx + dy*dy + dz*dz
}

type sites []site

func (s sites) Index(i int) kdtree.Comparable         { return s[i] }
func (s sites) Len() int                              { return len(s) }
func (s sites) Pivot(d kdtree.Dim) int                { return plane{sites: s, dim: d}.Pivot() }
func (s sites) Slice(start, end int) kdtree.Interface { return s[start:end] }

type plane struct {
	sites
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool                     { return p.sites[i].p[p.dim] < p.sites[j].p[p.dim] }
func (p plane) Swap(i, j int)                          { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer { p.sites = p.sites[start:end]; return p }
func (p plane) Pivot() int                             { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

// KDTree is a neighbour index over one step's particle positions. It is
// rebuilt every step and safe for concurrent queries once built.
type KDTree struct {
	support float64
	pos     []site
	tree    *kdtree.Tree
	keys    []uint32
	order   []int
}

func New() *KDTree {
	return &KDTree{}
}

// Build indexes pos with interaction radius support. Cell keys use cells of
// size support anchored at the minimum corner of pos.
func (t *KDTree) Build(pos []dynamo.Double3, support float64) error {
	if support <= 0 || math.IsNaN(support) {
		return fmt.Errorf("neighbor: invalid support radius %g", support)
	}
	t.support = support
	n := len(pos)

	t.pos = resize(t.pos, n)
	build := make(sites, n)
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	for i, p := range pos {
		s := site{p: [3]float64{p.X, p.Y, p.Z}, idx: i}
		t.pos[i] = s
		build[i] = s
		for d := range lo {
			lo[d] = math.Min(lo[d], s.p[d])
		}
	}
	t.tree = kdtree.New(build, false)

	t.keys = resize(t.keys, n)
	t.order = resize(t.order, n)
	dynamo.ParallelFor(n, 4096, func(start, end int) {
		for i := start; i < end; i++ {
			t.keys[i] = cellKey(t.pos[i].p, lo, support)
			t.order[i] = i
		}
	})
	sort.SliceStable(t.order, func(a, b int) bool {
		return t.keys[t.order[a]] < t.keys[t.order[b]]
	})
	return nil
}

func cellKey(p, lo [3]float64, size float64) uint32 {
	var c [3]int
	for d := range c {
		c[d] = int(math.Floor((p[d] - lo[d]) / size))
	}
	return dynamo.PackCell(c[0], c[1], c[2])
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// Len is the number of indexed positions.
func (t *KDTree) Len() int { return len(t.pos) }

// CellKey returns the packed cell of particle i.
func (t *KDTree) CellKey(i int) uint32 { return t.keys[i] }

// Order lists particle indices sorted by cell key.
func (t *KDTree) Order() []int { return t.order }

// Neighbors appends to dst every particle other than i within the support
// radius of particle i.
func (t *KDTree) Neighbors(i int, dst []int) []int {
	if t.tree == nil || i >= len(t.pos) {
		return dst
	}
	keep := kdtree.NewDistKeeper(t.support * t.support)
	t.tree.NearestSet(keep, t.pos[i])
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		if j := c.Comparable.(site).idx; j != i {
			dst = append(dst, j)
		}
	}
	return dst
}
