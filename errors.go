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
	"fmt"
)

var (
	// ErrInvalidCoordinate is matched by errors caused by a latitude
	// outside of [-90, 90] or a longitude outside of [-180, 360].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidOrder is returned for orders outside of [0, MaxOrder]
	// or for order pairs in the wrong direction.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidCode is returned for cell codes that do not exist at
	// the given order.
	ErrInvalidCode = errors.New("invalid cell code")

	// ErrExpansionTooLarge is returned when a descendant enumeration
	// would produce more than MaxExpansion cells.
	ErrExpansionTooLarge = errors.New("descendant expansion too large")

	// ErrEmptyCoverage is returned when a region resolves to zero cells.
	ErrEmptyCoverage = errors.New("region has empty coverage")

	// ErrBudgetExceeded is reported (but not returned as a failure) when
	// a cover cannot be coarsened to the box budget without going
	// coarser than the coarsest allowed order.
	ErrBudgetExceeded = errors.New("cover exceeds box budget")

	// ErrNoObservations marks a shard result with no observations.
	// An empty shard is a valid result; see ShardResult.Err.
	ErrNoObservations = errors.New("no observations in shard")
)

// CoordinateError reports an out-of-range coordinate.
type CoordinateError struct {
	Lat, Lon float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate (lat=%g, lon=%g): latitude must be in [-90, 90] and longitude in [-180, 360]", e.Lat, e.Lon)
}

// Is allows CoordinateError to match ErrInvalidCoordinate.
func (e *CoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}
