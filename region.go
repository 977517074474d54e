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

	"github.com/ctessum/geom"
)

// MaxInteriorOrder is the finest order at which InteriorCells will
// search for cells.
const MaxInteriorOrder = 9

// Region is an area on the sphere bounded by one or more rings of
// vertices. Rings are combined with the even-odd rule, so a ring inside
// another ring is a hole. Rings do not need to be closed.
type Region struct {
	Rings [][]Vertex
}

// PointRegion returns a region consisting of a single coordinate.
func PointRegion(lat, lon float64) Region {
	return Region{Rings: [][]Vertex{{{Lat: lat, Lon: lon}}}}
}

// RegionFromGeom converts a geometry with X as longitude and Y as
// latitude into a Region. Polygons, multi-polygons, line strings, points
// and multi-points are supported.
func RegionFromGeom(g geom.Geom) (Region, error) {
	var r Region
	addRing := func(pts []geom.Point) {
		ring := make([]Vertex, len(pts))
		for i, p := range pts {
			ring[i] = Vertex{Lat: p.Y, Lon: p.X}
		}
		if len(ring) > 0 {
			r.Rings = append(r.Rings, ring)
		}
	}
	switch t := g.(type) {
	case geom.Point:
		addRing([]geom.Point{t})
	case *geom.Point:
		addRing([]geom.Point{*t})
	case geom.MultiPoint:
		addRing(t)
	case geom.LineString:
		addRing(t)
	case geom.Polygonal:
		for _, poly := range t.Polygons() {
			for _, ring := range poly {
				addRing(ring)
			}
		}
	default:
		return Region{}, fmt.Errorf("magg: unsupported region geometry type %T", g)
	}
	if len(r.Rings) == 0 {
		return Region{}, fmt.Errorf("magg: region geometry has no vertices: %w", ErrEmptyCoverage)
	}
	return r, nil
}

// Vertices returns the vertices of all rings.
func (r Region) Vertices() []Vertex {
	var o []Vertex
	for _, ring := range r.Rings {
		o = append(o, ring...)
	}
	return o
}

// Densify returns a copy of r where each ring, including its closing
// edge, has vertices at most maxStep degrees of arc apart.
func (r Region) Densify(maxStep float64) Region {
	o := Region{Rings: make([][]Vertex, len(r.Rings))}
	for i, ring := range r.Rings {
		if len(ring) > 2 && ring[0] != ring[len(ring)-1] {
			closed := append(append([]Vertex(nil), ring...), ring[0])
			d := Densify(closed, maxStep)
			o.Rings[i] = d[:len(d)-1]
			continue
		}
		o.Rings[i] = Densify(ring, maxStep)
	}
	return o
}

// polygon returns r as a polygon with longitude as X and latitude as Y,
// along with its bounds. Rings with fewer than three vertices are
// omitted.
func (r Region) polygon() (geom.Polygon, *geom.Bounds) {
	var p geom.Polygon
	b := geom.NewBounds()
	for _, ring := range r.Rings {
		if len(ring) < 3 {
			continue
		}
		pts := make([]geom.Point, len(ring))
		for i, v := range ring {
			pts[i] = geom.Point{X: v.Lon, Y: v.Lat}
		}
		p = append(p, pts)
	}
	if len(p) > 0 {
		b = p.Bounds()
	}
	return p, b
}

// InteriorCells returns the cells at the given order whose centers are
// inside the region, sorted by code. Regions are treated as planar in
// longitude and latitude, so rings that cross the antimeridian or
// enclose a pole are not supported.
func InteriorCells(r Region, order int) ([]Cell, error) {
	if err := checkOrder(order); err != nil {
		return nil, err
	}
	if order > MaxInteriorOrder {
		return nil, fmt.Errorf("magg: interior fill at order %d is finer than %d: %w",
			order, MaxInteriorOrder, ErrInvalidOrder)
	}
	poly, b := r.polygon()
	if len(poly) == 0 {
		return nil, nil
	}
	// Cell centers are in [0, 360); shift them to the region's convention.
	west := b.Min.X < 0
	var o []Cell
	n := NumCells(order)
	for code := uint64(0); code < n; code++ {
		lat, lon, err := Center(code, order)
		if err != nil {
			return nil, err
		}
		if west && lon > 180 {
			lon -= 360
		}
		if lat < b.Min.Y || lat > b.Max.Y || lon < b.Min.X || lon > b.Max.X {
			continue
		}
		if (geom.Point{X: lon, Y: lat}).Within(poly) != geom.Outside {
			o = append(o, Cell{Order: uint8(order), Code: code})
		}
	}
	return o, nil
}

// SolveRegion runs Solve on the vertices of r. If fill is true, the cells
// at cfg.TargetOrder whose centers are inside r are added to the shards,
// which catches regions too large for their boundary to touch every
// interior shard.
func SolveRegion(r Region, cfg CoverageConfig, fill bool) (*Coverage, error) {
	cov, err := Solve(r.Vertices(), cfg)
	if err != nil {
		return nil, err
	}
	if !fill {
		return cov, nil
	}
	interior, err := InteriorCells(r, cfg.TargetOrder)
	if err != nil {
		return nil, err
	}
	if len(interior) == 0 {
		return cov, nil
	}
	seen := make(map[Cell]bool, len(cov.Shards))
	for _, c := range cov.Shards {
		seen[c] = true
	}
	for _, c := range interior {
		if !seen[c] {
			cov.Shards = append(cov.Shards, c)
			seen[c] = true
		}
	}
	SortCells(cov.Shards)
	return cov, nil
}
