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
	"reflect"
	"testing"
)

func TestParseCell(t *testing.T) {
	c := Cell{Order: 6, Code: 40001}
	have, err := ParseCell(c.String())
	if err != nil {
		t.Fatal(err)
	}
	if have != c {
		t.Errorf("have %v, want %v", have, c)
	}
	for _, s := range []string{"", "6", "6/x", "a/1", "0/12", "30/1", "1/2/3"} {
		if _, err := ParseCell(s); err == nil {
			t.Errorf("%q: expected an error", s)
		}
	}
}

func TestCellTree(t *testing.T) {
	c := Cell{Order: 2, Code: 37}

	children, err := c.Children(3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Cell{{3, 148}, {3, 149}, {3, 150}, {3, 151}}
	if !reflect.DeepEqual(children, want) {
		t.Errorf("children: have %v, want %v", children, want)
	}
	for _, ch := range children {
		if !c.Contains(ch) {
			t.Errorf("%v should contain %v", c, ch)
		}
		p, err := ch.Parent(2)
		if err != nil {
			t.Fatal(err)
		}
		if p != c {
			t.Errorf("parent of %v: have %v, want %v", ch, p, c)
		}
	}
	if c.Contains(Cell{Order: 3, Code: 152}) {
		t.Error("cell should not contain a child of its sibling")
	}
	if c.Contains(Cell{Order: 1, Code: 9}) {
		t.Error("cell should not contain its parent")
	}
	if !c.Contains(c) {
		t.Error("cell should contain itself")
	}

	wantAnc := []Cell{{1, 9}, {0, 2}}
	if anc := c.Ancestors(); !reflect.DeepEqual(anc, wantAnc) {
		t.Errorf("ancestors: have %v, want %v", anc, wantAnc)
	}

	first, err := c.FirstDescendant(4)
	if err != nil {
		t.Fatal(err)
	}
	if first != 37*16 {
		t.Errorf("first descendant: have %d, want %d", first, 37*16)
	}
	if _, err := c.FirstDescendant(1); err == nil {
		t.Error("expected an error for a coarser order")
	}
	if _, err := c.Parent(3); err == nil {
		t.Error("expected an error for a finer parent order")
	}
}

func TestSortCells(t *testing.T) {
	cells := []Cell{{3, 1}, {1, 7}, {3, 0}, {1, 2}}
	SortCells(cells)
	want := []Cell{{1, 2}, {1, 7}, {3, 0}, {3, 1}}
	if !reflect.DeepEqual(cells, want) {
		t.Errorf("have %v, want %v", cells, want)
	}
}

func TestSortSouthFirst(t *testing.T) {
	cells := []Cell{{0, 0}, {0, 4}, {0, 8}, {0, 5}}
	SortSouthFirst(cells)
	want := []Cell{{0, 8}, {0, 4}, {0, 5}, {0, 0}}
	if !reflect.DeepEqual(cells, want) {
		t.Errorf("have %v, want %v", cells, want)
	}
}
