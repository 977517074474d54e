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

// Package magg maps sparse geographic point observations onto the
// hierarchical HEALPix grid (NESTED scheme) and reduces the observations
// that fall in each grid cell to summary statistics.
//
// The package provides four pieces that build on each other:
// a spatial indexer (Index, Parent, Children, Center), a tree expander
// (the methods of Cell), a coverage solver (Solve, SolveRegion) that finds
// the coarse "shard" cells covering a region, and a shard aggregator
// (Aggregator, AggregateShard) that computes per-cell statistics for the
// points belonging to one shard.
//
// Nothing in this package performs I/O or keeps state between calls, so
// shards can be processed in parallel without synchronization. Fetching
// observations and persisting results is handled by the dispatch package.
package magg

// Version gives the version number.
const Version = "0.3.1"
