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
)

// Cell codes are unsigned HEALPix NESTED indices:
//
//	code = face<<(2*order) | interleave(ix, iy)
//
// where face in [0, 12) is the base cell and the bits of ix and iy
// alternate, with ix in the even positions. The four children of a cell
// are therefore code<<2 + i for i in [0, 4), and the ancestor of a cell
// at a coarser order is found by shifting the code right by two bits per
// order.

const (
	// MaxOrder is the finest supported order. At this order there are
	// 12*4^29 cells, which fits in 63 bits.
	MaxOrder = 29

	// NumBaseCells is the number of cells at order 0.
	NumBaseCells = 12

	// MaxExpansion is the largest number of descendants that Children
	// will enumerate in one call.
	MaxExpansion = 1 << 24
)

// Ring numbers and longitude offsets of the base cells.
var (
	jrll = [NumBaseCells]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [NumBaseCells]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}
)

// NumCells returns the number of cells at the given order.
func NumCells(order int) uint64 {
	return NumBaseCells << uint(2*order)
}

func checkOrder(order int) error {
	if order < 0 || order > MaxOrder {
		return fmt.Errorf("magg: order %d outside of [0, %d]: %w", order, MaxOrder, ErrInvalidOrder)
	}
	return nil
}

func checkCode(code uint64, order int) error {
	if err := checkOrder(order); err != nil {
		return err
	}
	if code >= NumCells(order) {
		return fmt.Errorf("magg: code %d at order %d: %w", code, order, ErrInvalidCode)
	}
	return nil
}

func checkCoordinate(lat, lon float64) error {
	// NaN fails every comparison, so check it separately.
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 360 {
		return &CoordinateError{Lat: lat, Lon: lon}
	}
	return nil
}

// Index returns the code of the cell at the given order that contains the
// point at lat and lon, in degrees. Latitude must be in [-90, 90] and
// longitude in [-180, 360]; otherwise the returned error is a
// *CoordinateError.
func Index(lat, lon float64, order int) (uint64, error) {
	if err := checkOrder(order); err != nil {
		return 0, err
	}
	if err := checkCoordinate(lat, lon); err != nil {
		return 0, err
	}
	nside := int64(1) << uint(order)
	z := math.Sin(lat * math.Pi / 180)
	za := math.Abs(z)

	// tt is the longitude in units of 90 degrees, in [0, 4).
	tt := math.Mod(lon, 360)
	if tt < 0 {
		tt += 360
	}
	tt /= 90
	if tt >= 4 {
		tt = 0
	}

	var face, ix, iy int64
	if za <= 2.0/3.0 { // equatorial region
		temp1 := float64(nside) * (0.5 + tt)
		temp2 := float64(nside) * z * 0.75
		jp := int64(temp1 - temp2) // ascending edge line index
		jm := int64(temp1 + temp2) // descending edge line index
		ifp := jp >> uint(order)
		ifm := jm >> uint(order)
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
		ix = jm & (nside - 1)
		iy = nside - (jp & (nside - 1)) - 1
	} else { // polar caps
		ntt := int64(tt)
		if ntt > 3 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := float64(nside) * math.Cos(lat*math.Pi/180) / math.Sqrt((1+za)/3)
		jp := int64(tp * tmp)
		jm := int64((1 - tp) * tmp)
		if jp > nside-1 {
			jp = nside - 1
		}
		if jm > nside-1 {
			jm = nside - 1
		}
		if z >= 0 {
			face = ntt
			ix = nside - jm - 1
			iy = nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}
	return uint64(face)<<uint(2*order) | interleave(uint64(ix), uint64(iy)), nil
}

// IndexCell is like Index but returns a Cell.
func IndexCell(lat, lon float64, order int) (Cell, error) {
	code, err := Index(lat, lon, order)
	if err != nil {
		return Cell{}, err
	}
	return Cell{Order: uint8(order), Code: code}, nil
}

// Parent returns the code of the ancestor at order target of the cell
// with the given code at the given order. target must not be finer than
// order.
func Parent(code uint64, order, target int) (uint64, error) {
	if err := checkCode(code, order); err != nil {
		return 0, err
	}
	if err := checkOrder(target); err != nil {
		return 0, err
	}
	if target > order {
		return 0, fmt.Errorf("magg: parent order %d is finer than %d: %w", target, order, ErrInvalidOrder)
	}
	return code >> uint(2*(order-target)), nil
}

// Children returns the codes of all descendants at order target of the
// cell with the given code at the given order, in ascending order.
// There are 4^(target-order) of them.
func Children(code uint64, order, target int) ([]uint64, error) {
	if err := checkCode(code, order); err != nil {
		return nil, err
	}
	if err := checkOrder(target); err != nil {
		return nil, err
	}
	if target < order {
		return nil, fmt.Errorf("magg: child order %d is coarser than %d: %w", target, order, ErrInvalidOrder)
	}
	shift := uint(2 * (target - order))
	n := uint64(1) << shift
	if n > MaxExpansion {
		return nil, fmt.Errorf("magg: expanding cell %d from order %d to %d gives %d cells: %w",
			code, order, target, n, ErrExpansionTooLarge)
	}
	base := code << shift
	o := make([]uint64, n)
	for i := range o {
		o[i] = base + uint64(i)
	}
	return o, nil
}

// Center returns the latitude and longitude, in degrees, of the center
// of the given cell. Longitude is in [0, 360).
func Center(code uint64, order int) (lat, lon float64, err error) {
	if err = checkCode(code, order); err != nil {
		return 0, 0, err
	}
	nside := int64(1) << uint(order)
	face := int64(code >> uint(2*order))
	ix, iy := deinterleave(code & (uint64(1)<<uint(2*order) - 1))
	x, y := int64(ix), int64(iy)

	fact2 := 4 / float64(NumCells(order))
	fact1 := float64(nside<<1) * fact2

	jr := jrll[face]<<uint(order) - x - y - 1 // ring number
	var nr, kshift int64
	var z float64
	switch {
	case jr < nside: // north cap
		nr = jr
		z = 1 - float64(nr*nr)*fact2
	case jr > 3*nside: // south cap
		nr = 4*nside - jr
		z = float64(nr*nr)*fact2 - 1
	default:
		nr = nside
		z = float64(2*nside-jr) * fact1
		kshift = (jr - nside) & 1
	}
	jp := (jpll[face]*nr + x - y + 1 + kshift) / 2
	if jp > 4*nside {
		jp -= 4 * nside
	}
	if jp < 1 {
		jp += 4 * nside
	}
	phi := (float64(jp) - float64(kshift+1)*0.5) * (90 / float64(nr))
	if phi >= 360 {
		phi -= 360
	}
	return math.Asin(z) * 180 / math.Pi, phi, nil
}

// interleave spreads the bits of x into the even bit positions and the
// bits of y into the odd bit positions of the result.
func interleave(x, y uint64) uint64 {
	return spread(x) | spread(y)<<1
}

func deinterleave(v uint64) (x, y uint64) {
	return compact(v), compact(v >> 1)
}

func spread(v uint64) uint64 {
	v &= 0x00000000ffffffff
	v = (v | v<<16) & 0x0000ffff0000ffff
	v = (v | v<<8) & 0x00ff00ff00ff00ff
	v = (v | v<<4) & 0x0f0f0f0f0f0f0f0f
	v = (v | v<<2) & 0x3333333333333333
	v = (v | v<<1) & 0x5555555555555555
	return v
}

func compact(v uint64) uint64 {
	v &= 0x5555555555555555
	v = (v | v>>1) & 0x3333333333333333
	v = (v | v>>2) & 0x0f0f0f0f0f0f0f0f
	v = (v | v>>4) & 0x00ff00ff00ff00ff
	v = (v | v>>8) & 0x0000ffff0000ffff
	v = (v | v>>16) & 0x00000000ffffffff
	return v
}
