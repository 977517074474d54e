/*
Copyright © 2026 the magg authors.
This file is part of magg.

magg is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

magg is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with magg.  If not, see <http://www.gnu.org/licenses/>.
*/

package magg

import (
	"fmt"
	"math"
	"sort"
)

// Vertex is a point on a region boundary, in degrees.
type Vertex struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CoverageConfig holds the parameters of the coverage solver.
type CoverageConfig struct {
	// ProbeOrder is the order at which boundary vertices are indexed.
	ProbeOrder int

	// MaxOrder is the coarsest order allowed in the cover. Coalescing
	// never produces cells coarser than this.
	MaxOrder int

	// MaxBoxes is the number of cells the cover should not exceed.
	MaxBoxes int

	// TargetOrder is the order of the final shard cells.
	TargetOrder int
}

// Validate checks the configuration.
func (cfg CoverageConfig) Validate() error {
	for _, o := range []struct {
		name  string
		order int
	}{{"probe", cfg.ProbeOrder}, {"max", cfg.MaxOrder}, {"target", cfg.TargetOrder}} {
		if err := checkOrder(o.order); err != nil {
			return fmt.Errorf("magg: %s order: %w", o.name, err)
		}
	}
	if cfg.MaxOrder > cfg.ProbeOrder {
		return fmt.Errorf("magg: max order %d is finer than probe order %d: %w",
			cfg.MaxOrder, cfg.ProbeOrder, ErrInvalidOrder)
	}
	if cfg.MaxBoxes < 1 {
		return fmt.Errorf("magg: max boxes must be at least 1 but is %d", cfg.MaxBoxes)
	}
	// A cell at MaxOrder may need to be expanded to TargetOrder.
	if d := cfg.TargetOrder - cfg.MaxOrder; d > 0 && uint64(1)<<uint(2*d) > MaxExpansion {
		return fmt.Errorf("magg: target order %d is %d orders finer than max order %d: %w",
			cfg.TargetOrder, d, cfg.MaxOrder, ErrExpansionTooLarge)
	}
	return nil
}

// Coverage is the result of the coverage solver.
type Coverage struct {
	// Cover is the mixed-resolution cover, with orders between
	// MaxOrder and ProbeOrder, sorted by order and code.
	Cover []Cell

	// Shards is the cover normalized to TargetOrder: unique and sorted
	// by code.
	Shards []Cell

	// BudgetExceeded is true when Cover has more than MaxBoxes cells
	// because further coalescing would go coarser than MaxOrder.
	BudgetExceeded bool

	Config CoverageConfig
}

// Warning returns an error wrapping ErrBudgetExceeded if the cover is over
// budget, and nil otherwise. The cover is still complete in either case.
func (c *Coverage) Warning() error {
	if !c.BudgetExceeded {
		return nil
	}
	return fmt.Errorf("magg: cover has %d cells with max order %d but budget is %d: %w",
		len(c.Cover), c.Config.MaxOrder, c.Config.MaxBoxes, ErrBudgetExceeded)
}

// Solve finds a set of cells at cfg.TargetOrder that covers the given
// boundary vertices.
//
// Each vertex is indexed at cfg.ProbeOrder. Complete groups of four
// siblings are then repeatedly replaced by their parent. If the result
// still has more than cfg.MaxBoxes cells, the sibling groups at the finest
// order are merged into their parents, fullest first, which enlarges the
// covered area but never loses any of it. No merge goes coarser than
// cfg.MaxOrder; if the budget cannot be met, the finer cover is kept and
// Coverage.BudgetExceeded is set. Finally, the cover is expanded or
// collapsed to cfg.TargetOrder.
//
// An invalid vertex fails the whole solve with a *CoordinateError.
func Solve(vertices []Vertex, cfg CoverageConfig) (*Coverage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(vertices) == 0 {
		return nil, fmt.Errorf("magg: no vertices: %w", ErrEmptyCoverage)
	}
	s := newCoverSet(cfg.ProbeOrder, cfg.MaxOrder)
	for i, v := range vertices {
		code, err := Index(v.Lat, v.Lon, cfg.ProbeOrder)
		if err != nil {
			return nil, fmt.Errorf("magg: region vertex %d: %w", i, err)
		}
		s.add(cfg.ProbeOrder, code)
	}

	var work []sibling
	for code := range s.levels[cfg.ProbeOrder] {
		work = append(work, sibling{order: cfg.ProbeOrder, parent: code >> 2})
	}
	s.coalesce(work)

	cov := &Coverage{Config: cfg}
	for s.size > cfg.MaxBoxes {
		if !s.mergeFullest() {
			cov.BudgetExceeded = true
			break
		}
	}
	cov.Cover = s.cells()

	shards, err := normalize(cov.Cover, cfg.TargetOrder)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, ErrEmptyCoverage
	}
	cov.Shards = shards
	return cov, nil
}

// normalize converts a mixed-resolution cover to unique cells at the
// target order.
func normalize(cover []Cell, target int) ([]Cell, error) {
	set := make(map[uint64]struct{})
	for _, c := range cover {
		switch {
		case int(c.Order) < target:
			children, err := Children(c.Code, int(c.Order), target)
			if err != nil {
				return nil, err
			}
			for _, ch := range children {
				set[ch] = struct{}{}
			}
		case int(c.Order) > target:
			set[c.Code>>uint(2*(int(c.Order)-target))] = struct{}{}
		default:
			set[c.Code] = struct{}{}
		}
	}
	o := make([]Cell, 0, len(set))
	for code := range set {
		o = append(o, Cell{Order: uint8(target), Code: code})
	}
	SortCells(o)
	return o, nil
}

// sibling identifies a group of four sibling cells at order by the code
// of their parent.
type sibling struct {
	order  int
	parent uint64
}

// coverSet is a set of cells at mixed orders in which no cell contains
// another.
type coverSet struct {
	levels   []map[uint64]struct{} // indexed by order
	finest   int
	coarsest int
	size     int
}

func newCoverSet(finest, coarsest int) *coverSet {
	s := &coverSet{
		levels:   make([]map[uint64]struct{}, finest+1),
		finest:   finest,
		coarsest: coarsest,
	}
	for i := range s.levels {
		s.levels[i] = make(map[uint64]struct{})
	}
	return s
}

func (s *coverSet) add(order int, code uint64) {
	if _, ok := s.levels[order][code]; ok {
		return
	}
	s.levels[order][code] = struct{}{}
	s.size++
}

func (s *coverSet) remove(order int, code uint64) {
	if _, ok := s.levels[order][code]; !ok {
		return
	}
	delete(s.levels[order], code)
	s.size--
}

// members returns how many cells of the sibling group are in the set.
func (s *coverSet) members(g sibling) int {
	n := 0
	base := g.parent << 2
	for i := uint64(0); i < 4; i++ {
		if _, ok := s.levels[g.order][base+i]; ok {
			n++
		}
	}
	return n
}

// merge replaces the members of g with their parent.
func (s *coverSet) merge(g sibling) {
	base := g.parent << 2
	for i := uint64(0); i < 4; i++ {
		s.remove(g.order, base+i)
	}
	s.add(g.order-1, g.parent)
}

// coalesce merges complete sibling groups, starting from the groups in
// work, until no complete group remains above the coarsest order.
func (s *coverSet) coalesce(work []sibling) {
	for len(work) > 0 {
		g := work[len(work)-1]
		work = work[:len(work)-1]
		if g.order <= s.coarsest || s.members(g) != 4 {
			continue
		}
		s.merge(g)
		work = append(work, sibling{order: g.order - 1, parent: g.parent >> 2})
	}
}

// mergeFullest merges the sibling group with the most members at the
// finest populated order, breaking ties by the lowest parent code, and
// then coalesces any group the merge completed. It returns false if all
// cells are already at the coarsest order.
func (s *coverSet) mergeFullest() bool {
	order := -1
	for o := s.finest; o > s.coarsest; o-- {
		if len(s.levels[o]) > 0 {
			order = o
			break
		}
	}
	if order < 0 {
		return false
	}
	best := sibling{order: order, parent: math.MaxUint64}
	bestN := 0
	for code := range s.levels[order] {
		g := sibling{order: order, parent: code >> 2}
		n := s.members(g)
		if n > bestN || (n == bestN && g.parent < best.parent) {
			best, bestN = g, n
		}
	}
	s.merge(best)
	s.coalesce([]sibling{{order: order - 1, parent: best.parent >> 2}})
	return true
}

// cells returns the contents of the set sorted by order and code.
func (s *coverSet) cells() []Cell {
	o := make([]Cell, 0, s.size)
	for order, level := range s.levels {
		codes := make([]uint64, 0, len(level))
		for code := range level {
			codes = append(codes, code)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
		for _, code := range codes {
			o = append(o, Cell{Order: uint8(order), Code: code})
		}
	}
	return o
}

// Densify returns the vertices with additional points inserted along
// the great circle between each consecutive pair, so that no two
// consecutive vertices are more than maxStep degrees of arc apart. It
// does not close the ring. Vertices are returned unchanged if maxStep is
// not positive.
func Densify(vertices []Vertex, maxStep float64) []Vertex {
	if maxStep <= 0 || len(vertices) < 2 {
		return append([]Vertex(nil), vertices...)
	}
	o := make([]Vertex, 0, len(vertices))
	for i := 0; i < len(vertices)-1; i++ {
		o = append(o, vertices[i])
		o = append(o, interpolate(vertices[i], vertices[i+1], maxStep)...)
	}
	return append(o, vertices[len(vertices)-1])
}

// interpolate returns the points strictly between a and b along the
// great circle joining them, spaced at most maxStep degrees apart.
func interpolate(a, b Vertex, maxStep float64) []Vertex {
	pa, pb := toUnit(a), toUnit(b)
	dot := pa[0]*pb[0] + pa[1]*pb[1] + pa[2]*pb[2]
	dot = math.Max(-1, math.Min(1, dot))
	d := math.Acos(dot)
	sind := math.Sin(d)
	// Coincident or antipodal points have no unique great circle.
	if sind < 1e-12 {
		return nil
	}
	n := int(math.Ceil(d * 180 / math.Pi / maxStep))
	if n < 2 {
		return nil
	}
	o := make([]Vertex, 0, n-1)
	for k := 1; k < n; k++ {
		f := float64(k) / float64(n)
		wa := math.Sin((1-f)*d) / sind
		wb := math.Sin(f*d) / sind
		x := wa*pa[0] + wb*pb[0]
		y := wa*pa[1] + wb*pb[1]
		z := wa*pa[2] + wb*pb[2]
		o = append(o, Vertex{
			Lat: math.Atan2(z, math.Hypot(x, y)) * 180 / math.Pi,
			Lon: math.Atan2(y, x) * 180 / math.Pi,
		})
	}
	return o
}

func toUnit(v Vertex) [3]float64 {
	lat := v.Lat * math.Pi / 180
	lon := v.Lon * math.Pi / 180
	return [3]float64{math.Cos(lat) * math.Cos(lon), math.Cos(lat) * math.Sin(lon), math.Sin(lat)}
}
