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

// Package dispatch lists the shards covering a region, fetches the
// observations for each shard, aggregates them, and publishes the
// results. The interfaces in this package separate the aggregation from
// how shards are enumerated, where points come from, and where results go.
package dispatch

import (
	"context"
	"io"

	"github.com/spatialmodel/magg"
)

// A Lister enumerates the shards that cover a region.
type Lister interface {
	ListCoverage(ctx context.Context, region magg.Region, cfg magg.CoverageConfig) ([]magg.Cell, error)
}

// A PointSequence yields the points for a shard in batches. Next returns
// io.EOF after the last batch.
type PointSequence interface {
	Next() ([]magg.Point, error)
}

// A Fetcher returns the points that may belong to a shard. The points may
// include points outside of the shard, which are discarded during
// aggregation.
type Fetcher interface {
	FetchPoints(ctx context.Context, shard magg.Cell) (PointSequence, error)
}

// A Publisher stores the result of aggregating one shard.
type Publisher interface {
	Publish(ctx context.Context, res *magg.ShardResult, sum *Summary) error
}

// SourceStats describes the data sources read for a shard.
type SourceStats struct {
	// Sources is the number of sources catalogued for the shard.
	Sources int

	// Files is the number of sources actually read.
	Files int

	// SkippedQuality is the number of points skipped because of a
	// nonzero quality flag.
	SkippedQuality int
}

// statser is implemented by point sequences that can report which
// sources they read.
type statser interface {
	Stats() SourceStats
}

// SlicePoints returns a PointSequence that yields the given batches.
func SlicePoints(batches ...[]magg.Point) PointSequence {
	return &sliceSequence{batches: batches}
}

type sliceSequence struct {
	batches [][]magg.Point
}

func (s *sliceSequence) Next() ([]magg.Point, error) {
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

// Summary describes the processing of one shard.
type Summary struct {
	Shard      string `json:"shard"`
	ShardCode  uint64 `json:"shard_code"`
	ShardOrder int    `json:"shard_order"`
	ChildOrder int    `json:"child_order"`

	CellsWithData       int `json:"cells_with_data"`
	TotalObs            int `json:"total_obs"`
	Discarded           int `json:"discarded"`
	RejectedUncertainty int `json:"rejected_uncertainty"`
	RejectedValue       int `json:"rejected_value"`

	GranuleCount   int `json:"granule_count"`
	FilesProcessed int `json:"files_processed"`
	SkippedQuality int `json:"skipped_quality"`

	Duration float64 `json:"duration_s"`
	Error    string  `json:"error,omitempty"`
	Version  string  `json:"version"`
}

func newSummary(shard magg.Cell, childOrder int) *Summary {
	return &Summary{
		Shard:      shard.String(),
		ShardCode:  shard.Code,
		ShardOrder: int(shard.Order),
		ChildOrder: childOrder,
		Version:    magg.Version,
	}
}

func (s *Summary) setResult(r *magg.ShardResult) {
	s.CellsWithData = r.CellsWithData
	s.TotalObs = r.TotalObs
	s.Discarded = r.Discarded
	s.RejectedUncertainty = r.RejectedUncertainty
	s.RejectedValue = r.RejectedValue
}

func (s *Summary) setSources(st SourceStats) {
	s.GranuleCount = st.Sources
	s.FilesProcessed = st.Files
	s.SkippedQuality = st.SkippedQuality
}
