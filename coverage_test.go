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
	"errors"
	"math"
	"reflect"
	"testing"
)

func containsCell(cells []Cell, c Cell) bool {
	for _, cc := range cells {
		if cc == c {
			return true
		}
	}
	return false
}

func TestSolveSinglePoint(t *testing.T) {
	cfg := CoverageConfig{ProbeOrder: 12, MaxOrder: 3, MaxBoxes: 64, TargetOrder: 6}
	cov, err := SolveRegion(PointRegion(-77.85, 166.67), cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	want, err := IndexCell(-77.85, 166.67, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cov.Shards, []Cell{want}) {
		t.Errorf("have %v, want %v", cov.Shards, []Cell{want})
	}
	if cov.BudgetExceeded || cov.Warning() != nil {
		t.Error("single point should be within budget")
	}
}

func TestSolveCoalesce(t *testing.T) {
	parent := Cell{Order: 7, Code: 100017}
	children, err := parent.Children(8)
	if err != nil {
		t.Fatal(err)
	}
	var vertices []Vertex
	for _, c := range children {
		lat, lon, err := c.Center()
		if err != nil {
			t.Fatal(err)
		}
		vertices = append(vertices, Vertex{Lat: lat, Lon: lon})
	}
	cfg := CoverageConfig{ProbeOrder: 8, MaxOrder: 3, MaxBoxes: 64, TargetOrder: 7}
	cov, err := Solve(vertices, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cov.Cover, []Cell{parent}) {
		t.Errorf("cover: have %v, want %v", cov.Cover, []Cell{parent})
	}
	if !reflect.DeepEqual(cov.Shards, []Cell{parent}) {
		t.Errorf("shards: have %v, want %v", cov.Shards, []Cell{parent})
	}

	// Coalescing must stop at the coarsest allowed order.
	cfg.MaxOrder = 8
	cov, err = Solve(vertices, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cov.Cover, children) {
		t.Errorf("cover: have %v, want %v", cov.Cover, children)
	}
}

func rectangle(south, west, north, east float64) Region {
	return Region{Rings: [][]Vertex{{
		{Lat: south, Lon: west}, {Lat: south, Lon: east},
		{Lat: north, Lon: east}, {Lat: north, Lon: west},
	}}}
}

func TestSolveCoverage(t *testing.T) {
	region := rectangle(10, 30, 20, 45).Densify(0.1)
	vertices := region.Vertices()
	for _, cfg := range []CoverageConfig{
		{ProbeOrder: 10, MaxOrder: 2, MaxBoxes: 8, TargetOrder: 5},
		{ProbeOrder: 10, MaxOrder: 6, MaxBoxes: 8, TargetOrder: 5},
		{ProbeOrder: 10, MaxOrder: 2, MaxBoxes: 1000, TargetOrder: 8},
		{ProbeOrder: 9, MaxOrder: 4, MaxBoxes: 20, TargetOrder: 11},
	} {
		cov, err := Solve(vertices, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(cov.Cover) > cfg.MaxBoxes && !cov.BudgetExceeded {
			t.Errorf("%+v: cover has %d cells", cfg, len(cov.Cover))
		}
		if cov.BudgetExceeded {
			if !errors.Is(cov.Warning(), ErrBudgetExceeded) {
				t.Errorf("%+v: missing budget warning", cfg)
			}
			for _, c := range cov.Cover {
				if int(c.Order) != cfg.MaxOrder {
					t.Errorf("%+v: over budget with cell %v finer than the max order", cfg, c)
				}
			}
		}
		for _, c := range cov.Cover {
			if int(c.Order) < cfg.MaxOrder || int(c.Order) > cfg.ProbeOrder {
				t.Errorf("%+v: cover cell %v out of order range", cfg, c)
			}
		}
		shards := make(map[Cell]bool)
		for i, c := range cov.Shards {
			shards[c] = true
			if int(c.Order) != cfg.TargetOrder {
				t.Errorf("%+v: shard %v not at target order", cfg, c)
			}
			if i > 0 && cov.Shards[i-1].Code >= c.Code {
				t.Errorf("%+v: shards not sorted and unique", cfg)
			}
		}
		for _, v := range vertices {
			probe, err := IndexCell(v.Lat, v.Lon, cfg.ProbeOrder)
			if err != nil {
				t.Fatal(err)
			}
			covered := false
			for _, c := range cov.Cover {
				if c.Contains(probe) {
					covered = true
					break
				}
			}
			if !covered {
				t.Errorf("%+v: probe cell %v is not covered", cfg, probe)
			}
			target, err := IndexCell(v.Lat, v.Lon, cfg.TargetOrder)
			if err != nil {
				t.Fatal(err)
			}
			if !shards[target] {
				t.Errorf("%+v: vertex (%g, %g) cell %v missing from shards", cfg, v.Lat, v.Lon, target)
			}
		}
	}
}

func TestSolveBudget(t *testing.T) {
	// A small region inside one base cell can always be reduced to one cell.
	region := rectangle(-1, -1, 1, 1).Densify(0.05)
	cfg := CoverageConfig{ProbeOrder: 10, MaxOrder: 0, MaxBoxes: 1, TargetOrder: 0}
	cov, err := Solve(region.Vertices(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(cov.Cover) != 1 || cov.BudgetExceeded {
		t.Errorf("have cover %v (budget exceeded %v), want one cell", cov.Cover, cov.BudgetExceeded)
	}
	if !reflect.DeepEqual(cov.Shards, []Cell{{Order: 0, Code: 4}}) {
		t.Errorf("shards: have %v", cov.Shards)
	}

	// Points in three base cells cannot be covered by two cells.
	vertices := []Vertex{{0, 0}, {0, 90}, {0, 180}}
	cfg = CoverageConfig{ProbeOrder: 4, MaxOrder: 0, MaxBoxes: 2, TargetOrder: 1}
	cov, err = Solve(vertices, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !cov.BudgetExceeded || !errors.Is(cov.Warning(), ErrBudgetExceeded) {
		t.Error("expected the budget to be exceeded")
	}
	wantCover := []Cell{{0, 4}, {0, 5}, {0, 6}}
	if !reflect.DeepEqual(cov.Cover, wantCover) {
		t.Errorf("cover: have %v, want %v", cov.Cover, wantCover)
	}
	if len(cov.Shards) != 12 {
		t.Errorf("have %d shards, want 12", len(cov.Shards))
	}
}

func TestSolveFinerTarget(t *testing.T) {
	cfg := CoverageConfig{ProbeOrder: 4, MaxOrder: 2, MaxBoxes: 10, TargetOrder: 6}
	cov, err := Solve([]Vertex{{Lat: 45, Lon: -100}}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(cov.Shards) != 16 {
		t.Errorf("have %d shards, want 16", len(cov.Shards))
	}
	want, _ := IndexCell(45, -100, 6)
	if !containsCell(cov.Shards, want) {
		t.Errorf("shards do not contain %v", want)
	}
}

func TestSolveErrors(t *testing.T) {
	cfg := CoverageConfig{ProbeOrder: 10, MaxOrder: 3, MaxBoxes: 10, TargetOrder: 5}
	_, err := Solve([]Vertex{{0, 0}, {95, 10}}, cfg)
	if !errors.Is(err, ErrInvalidCoordinate) {
		t.Errorf("want invalid coordinate error, have %v", err)
	}
	var ce *CoordinateError
	if !errors.As(err, &ce) || ce.Lat != 95 {
		t.Errorf("error should report the invalid latitude: %v", err)
	}
	if _, err := Solve(nil, cfg); !errors.Is(err, ErrEmptyCoverage) {
		t.Errorf("want empty coverage error, have %v", err)
	}
	for _, bad := range []CoverageConfig{
		{ProbeOrder: 3, MaxOrder: 5, MaxBoxes: 10, TargetOrder: 5},
		{ProbeOrder: 10, MaxOrder: 3, MaxBoxes: 0, TargetOrder: 5},
		{ProbeOrder: 30, MaxOrder: 3, MaxBoxes: 10, TargetOrder: 5},
		{ProbeOrder: 10, MaxOrder: 3, MaxBoxes: 10, TargetOrder: -1},
	} {
		if _, err := Solve([]Vertex{{0, 0}}, bad); err == nil {
			t.Errorf("%+v: expected a configuration error", bad)
		}
	}

	deep := CoverageConfig{ProbeOrder: 20, MaxOrder: 3, MaxBoxes: 10, TargetOrder: 16}
	if err := deep.Validate(); !errors.Is(err, ErrExpansionTooLarge) {
		t.Errorf("target 13 orders below max order: want expansion error, have %v", err)
	}
	deep.TargetOrder = 15
	if err := deep.Validate(); err != nil {
		t.Errorf("target 12 orders below max order: %v", err)
	}
}

func TestDensify(t *testing.T) {
	const step = 1.5
	in := []Vertex{{0, 0}, {0, 10}, {5, 10}}
	out := Densify(in, step)
	if out[0] != in[0] || out[len(out)-1] != in[2] {
		t.Fatalf("endpoints changed: %v", out)
	}
	if len(out) <= len(in) {
		t.Fatalf("no vertices were added: %v", out)
	}
	for i := 1; i < len(out); i++ {
		a, b := toUnit(out[i-1]), toUnit(out[i])
		d := math.Acos(math.Min(1, a[0]*b[0]+a[1]*b[1]+a[2]*b[2])) * 180 / math.Pi
		if d > step+1e-9 {
			t.Errorf("vertices %d and %d are %g degrees apart", i-1, i, d)
		}
	}
	for _, v := range out {
		if v.Lon <= 10-1e-9 && math.Abs(v.Lat) > 1e-9 {
			t.Errorf("vertex %v should be on the equator", v)
		}
	}
	if !reflect.DeepEqual(Densify(in, 0), in) {
		t.Error("zero step should not change the vertices")
	}
}
