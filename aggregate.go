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

// Point is a single observation.
type Point struct {
	Lat, Lon float64
	Value    float64

	// Uncertainty is the one-sigma uncertainty of Value. It is only
	// used if HasUncertainty is true.
	Uncertainty    float64
	HasUncertainty bool
}

// WithUncertainty returns a copy of p with the given uncertainty.
func (p Point) WithUncertainty(sigma float64) Point {
	p.Uncertainty = sigma
	p.HasUncertainty = true
	return p
}

// CellStatistics holds summary statistics for the observations in one
// child cell of a shard.
type CellStatistics struct {
	ChildCode uint64 `json:"child_code"`
	Count     int    `json:"count"`

	// Mean is weighted by inverse variance when every observation in
	// the cell has an uncertainty, and unweighted otherwise.
	Mean float64 `json:"mean"`

	// Sigma is the uncertainty of Mean: 1/sqrt(sum of weights) for the
	// weighted mean and the standard error for the unweighted mean.
	Sigma float64 `json:"sigma"`

	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	Q25      float64 `json:"q25"`
	Q50      float64 `json:"q50"`
	Q75      float64 `json:"q75"`
}

// ShardResult holds the statistics for one shard.
type ShardResult struct {
	Shard      Cell `json:"shard"`
	ChildOrder int  `json:"child_order"`

	CellsWithData int `json:"cells_with_data"`
	TotalObs      int `json:"total_obs"`

	// Discarded is the number of points that fell outside the shard.
	Discarded int `json:"discarded"`

	// RejectedUncertainty is the number of points excluded because their
	// uncertainty was present but not a positive finite number.
	RejectedUncertainty int `json:"rejected_uncertainty"`

	// RejectedValue is the number of points excluded because their value
	// was not finite.
	RejectedValue int `json:"rejected_value"`

	// Statistics holds one entry per child cell with data, sorted by
	// child code.
	Statistics []CellStatistics `json:"statistics"`
}

// Empty returns whether no observations survived in the shard.
func (r *ShardResult) Empty() bool {
	return r.CellsWithData == 0
}

// Err returns an error wrapping ErrNoObservations if the result is
// empty and nil otherwise. An empty result is still a valid result.
func (r *ShardResult) Err() error {
	if !r.Empty() {
		return nil
	}
	return fmt.Errorf("magg: shard %v (%d points discarded): %w", r.Shard, r.Discarded, ErrNoObservations)
}

// Aggregator accumulates the points of one shard. Points may be added in
// any order and in any number of batches; the result is the same.
// An Aggregator is not safe for concurrent use.
//
// The mean of a cell is weighted by inverse variance only when every point
// in the cell has an uncertainty. A point without one has no variance to
// invert, and any fixed weight given to it would depend on the units of
// the other points, so a cell with such a point is averaged uniformly.
type Aggregator struct {
	shard      Cell
	childOrder int
	shift      uint

	groups map[uint64][]observation

	discarded, rejectedSigma, rejectedValue int
}

type observation struct {
	value, sigma float64
	hasSigma     bool
}

// NewAggregator returns an aggregator for the given shard that computes
// statistics for cells at childOrder.
func NewAggregator(shard Cell, childOrder int) (*Aggregator, error) {
	if err := checkCode(shard.Code, int(shard.Order)); err != nil {
		return nil, fmt.Errorf("magg: shard: %w", err)
	}
	if err := checkOrder(childOrder); err != nil {
		return nil, fmt.Errorf("magg: child order: %w", err)
	}
	if childOrder < int(shard.Order) {
		return nil, fmt.Errorf("magg: child order %d is coarser than shard %v: %w", childOrder, shard, ErrInvalidOrder)
	}
	return &Aggregator{
		shard:      shard,
		childOrder: childOrder,
		shift:      uint(2 * (childOrder - int(shard.Order))),
		groups:     make(map[uint64][]observation),
	}, nil
}

// Add adds points to the aggregation. Points outside of the shard are
// skipped. An invalid coordinate returns a *CoordinateError, after which
// the Aggregator should not be used.
func (a *Aggregator) Add(points ...Point) error {
	for _, p := range points {
		code, err := Index(p.Lat, p.Lon, a.childOrder)
		if err != nil {
			return fmt.Errorf("magg: shard %v: %w", a.shard, err)
		}
		if code>>a.shift != a.shard.Code {
			a.discarded++
			continue
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			a.rejectedValue++
			continue
		}
		if p.HasUncertainty && !validUncertainty(p.Uncertainty) {
			a.rejectedSigma++
			continue
		}
		a.groups[code] = append(a.groups[code], observation{
			value:    p.Value,
			sigma:    p.Uncertainty,
			hasSigma: p.HasUncertainty,
		})
	}
	return nil
}

// validUncertainty returns whether sigma is positive and gives a finite,
// nonzero weight.
func validUncertainty(sigma float64) bool {
	if !(sigma > 0) {
		return false
	}
	w := 1 / (sigma * sigma)
	return w > 0 && !math.IsInf(w, 0)
}

// Result returns the statistics of the points added so far.
func (a *Aggregator) Result() *ShardResult {
	r := &ShardResult{
		Shard:               a.shard,
		ChildOrder:          a.childOrder,
		Discarded:           a.discarded,
		RejectedUncertainty: a.rejectedSigma,
		RejectedValue:       a.rejectedValue,
		Statistics:          make([]CellStatistics, 0, len(a.groups)),
	}
	for code, obs := range a.groups {
		r.Statistics = append(r.Statistics, cellStatistics(code, obs))
		r.TotalObs += len(obs)
	}
	sort.Slice(r.Statistics, func(i, j int) bool {
		return r.Statistics[i].ChildCode < r.Statistics[j].ChildCode
	})
	r.CellsWithData = len(r.Statistics)
	return r
}

// AggregateShard computes the statistics for points in the given shard
// at childOrder.
func AggregateShard(shard Cell, childOrder int, points []Point) (*ShardResult, error) {
	a, err := NewAggregator(shard, childOrder)
	if err != nil {
		return nil, err
	}
	if err := a.Add(points...); err != nil {
		return nil, err
	}
	return a.Result(), nil
}
