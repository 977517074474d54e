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
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// cellStatistics reduces the observations in one cell. The observations
// are sorted first so that the floating point result does not depend on
// the order in which they arrived.
func cellStatistics(code uint64, obs []observation) CellStatistics {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].value != obs[j].value {
			return obs[i].value < obs[j].value
		}
		if obs[i].hasSigma != obs[j].hasSigma {
			return !obs[i].hasSigma
		}
		return obs[i].sigma < obs[j].sigma
	})

	n := len(obs)
	values := make([]float64, n)
	weighted := true
	for i, o := range obs {
		values[i] = o.value
		weighted = weighted && o.hasSigma
	}

	s := CellStatistics{
		ChildCode: code,
		Count:     n,
		Min:       floats.Min(values),
		Max:       floats.Max(values),
		Variance:  stat.PopVariance(values, nil),
		Q25:       quantile(0.25, values),
		Q50:       quantile(0.5, values),
		Q75:       quantile(0.75, values),
	}
	if weighted {
		weights := make([]float64, n)
		for i, o := range obs {
			weights[i] = 1 / (o.sigma * o.sigma)
		}
		s.Mean = stat.Mean(values, weights)
		s.Sigma = 1 / math.Sqrt(floats.Sum(weights))
	} else {
		s.Mean = stat.Mean(values, nil)
		s.Sigma = math.Sqrt(s.Variance / float64(n))
	}
	return s
}

// quantile returns the p quantile of the sorted values, interpolating
// linearly between the two nearest order statistics.
// stat.Quantile does not offer this estimator.
func quantile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
