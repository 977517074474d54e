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
	"sort"
	"strconv"
	"strings"
)

// Cell is a grid cell at a given order.
type Cell struct {
	Order uint8  `json:"order"`
	Code  uint64 `json:"code"`
}

// NewCell returns a cell after checking that code exists at order.
func NewCell(code uint64, order int) (Cell, error) {
	if err := checkCode(code, order); err != nil {
		return Cell{}, err
	}
	return Cell{Order: uint8(order), Code: code}, nil
}

// ParseCell parses a cell in the "order/code" format produced by
// Cell.String.
func ParseCell(s string) (Cell, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Cell{}, fmt.Errorf("magg: invalid cell %q: want order/code", s)
	}
	order, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cell{}, fmt.Errorf("magg: invalid order in cell %q: %v", s, err)
	}
	code, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Cell{}, fmt.Errorf("magg: invalid code in cell %q: %v", s, err)
	}
	return NewCell(code, order)
}

func (c Cell) String() string {
	return fmt.Sprintf("%d/%d", c.Order, c.Code)
}

// Valid returns whether the cell exists.
func (c Cell) Valid() bool {
	return checkCode(c.Code, int(c.Order)) == nil
}

// Parent returns the ancestor of c at the given order, which must not be
// finer than c.
func (c Cell) Parent(order int) (Cell, error) {
	code, err := Parent(c.Code, int(c.Order), order)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Order: uint8(order), Code: code}, nil
}

// Children returns all descendants of c at the given order.
func (c Cell) Children(order int) ([]Cell, error) {
	codes, err := Children(c.Code, int(c.Order), order)
	if err != nil {
		return nil, err
	}
	o := make([]Cell, len(codes))
	for i, code := range codes {
		o[i] = Cell{Order: uint8(order), Code: code}
	}
	return o, nil
}

// Ancestors returns the ancestors of c from the parent down to the
// base cell at order 0.
func (c Cell) Ancestors() []Cell {
	o := make([]Cell, 0, c.Order)
	for order := int(c.Order) - 1; order >= 0; order-- {
		o = append(o, Cell{Order: uint8(order), Code: c.Code >> uint(2*(int(c.Order)-order))})
	}
	return o
}

// Contains returns whether o is c or one of its descendants.
func (c Cell) Contains(o Cell) bool {
	if o.Order < c.Order {
		return false
	}
	return o.Code>>uint(2*(o.Order-c.Order)) == c.Code
}

// Center returns the latitude and longitude of the center of c.
func (c Cell) Center() (lat, lon float64, err error) {
	return Center(c.Code, int(c.Order))
}

// FirstDescendant returns the code of the first descendant of c at the
// given order. Descendant codes are contiguous, so the offset of a
// descendant within c is its code minus this value.
func (c Cell) FirstDescendant(order int) (uint64, error) {
	if order < int(c.Order) || order > MaxOrder {
		return 0, fmt.Errorf("magg: descendant order %d of cell %v: %w", order, c, ErrInvalidOrder)
	}
	return c.Code << uint(2*(order-int(c.Order))), nil
}

// SortCells sorts cells by order and then by code.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Order != cells[j].Order {
			return cells[i].Order < cells[j].Order
		}
		return cells[i].Code < cells[j].Code
	})
}

// SortSouthFirst sorts cells by the latitude of their centers and then by
// longitude, so that processing sweeps the grid from south to north.
// Invalid cells sort last.
func SortSouthFirst(cells []Cell) {
	type key struct {
		lat, lon float64
		ok       bool
	}
	keys := make(map[Cell]key, len(cells))
	for _, c := range cells {
		lat, lon, err := c.Center()
		keys[c] = key{lat: lat, lon: lon, ok: err == nil}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		ki, kj := keys[cells[i]], keys[cells[j]]
		if ki.ok != kj.ok {
			return ki.ok
		}
		if ki.lat != kj.lat {
			return ki.lat < kj.lat
		}
		if ki.lon != kj.lon {
			return ki.lon < kj.lon
		}
		return cells[i].Code < cells[j].Code
	})
}
