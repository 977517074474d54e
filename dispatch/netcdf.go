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

package dispatch

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/magg"
)

// maxOffsetDepth is the largest difference between the child and shard
// orders for which child offsets fit in an int32.
const maxOffsetDepth = 15

var statVars = []struct {
	name, description string
	get               func(*magg.CellStatistics) *float64
}{
	{"mean", "Mean value, weighted by inverse variance when all observations have uncertainties", func(s *magg.CellStatistics) *float64 { return &s.Mean }},
	{"sigma", "Uncertainty of the mean", func(s *magg.CellStatistics) *float64 { return &s.Sigma }},
	{"min", "Minimum value", func(s *magg.CellStatistics) *float64 { return &s.Min }},
	{"max", "Maximum value", func(s *magg.CellStatistics) *float64 { return &s.Max }},
	{"variance", "Population variance", func(s *magg.CellStatistics) *float64 { return &s.Variance }},
	{"q25", "25th percentile", func(s *magg.CellStatistics) *float64 { return &s.Q25 }},
	{"q50", "Median", func(s *magg.CellStatistics) *float64 { return &s.Q50 }},
	{"q75", "75th percentile", func(s *magg.CellStatistics) *float64 { return &s.Q75 }},
}

// WriteShardNetCDF writes the cells of res to f in NetCDF format. Only
// cells with data are written; each is identified by its offset from the
// first descendant of the shard at the child order. The result must have
// at least one cell.
func WriteShardNetCDF(f *os.File, res *magg.ShardResult) error {
	if res.Empty() {
		return fmt.Errorf("dispatch: writing netcdf: %w", res.Err())
	}
	if res.ChildOrder-int(res.Shard.Order) > maxOffsetDepth {
		return fmt.Errorf("dispatch: writing netcdf: child order %d is more than %d orders below shard %v",
			res.ChildOrder, maxOffsetDepth, res.Shard)
	}
	first, err := res.Shard.FirstDescendant(res.ChildOrder)
	if err != nil {
		return fmt.Errorf("dispatch: writing netcdf: %w", err)
	}
	n := len(res.Statistics)

	h := cdf.NewHeader([]string{"cell"}, []int{n})
	h.AddAttribute("", "comment", "Statistics of observations in hierarchical grid cells")
	h.AddAttribute("", "shard", res.Shard.String())
	h.AddAttribute("", "shard_order", []int32{int32(res.Shard.Order)})
	h.AddAttribute("", "child_order", []int32{int32(res.ChildOrder)})
	h.AddAttribute("", "cells_with_data", []int32{int32(res.CellsWithData)})
	h.AddAttribute("", "total_obs", []int32{int32(res.TotalObs)})
	h.AddAttribute("", "magg_version", magg.Version)

	h.AddVariable("child_offset", []string{"cell"}, []int32{0})
	h.AddAttribute("child_offset", "description", "Child cell code minus the code of the first child of the shard")
	h.AddVariable("count", []string{"cell"}, []int32{0})
	h.AddAttribute("count", "description", "Number of observations")
	for _, v := range statVars {
		h.AddVariable(v.name, []string{"cell"}, []float64{0})
		h.AddAttribute(v.name, "description", v.description)
	}
	h.Define()

	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("dispatch: writing netcdf header: %w", err)
	}

	offsets := make([]int32, n)
	counts := make([]int32, n)
	for i, s := range res.Statistics {
		offsets[i] = int32(s.ChildCode - first)
		counts[i] = int32(s.Count)
	}
	if err := writeNCF(ff, "child_offset", offsets); err != nil {
		return err
	}
	if err := writeNCF(ff, "count", counts); err != nil {
		return err
	}
	for _, v := range statVars {
		data := make([]float64, n)
		for i := range res.Statistics {
			data[i] = *v.get(&res.Statistics[i])
		}
		if err := writeNCF(ff, v.name, data); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("dispatch: writing netcdf: %w", err)
	}
	return nil
}

func writeNCF(f *cdf.File, name string, data interface{}) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("dispatch: writing netcdf variable %s: %w", name, err)
	}
	return nil
}

// ReadShardNetCDF reads a file written by WriteShardNetCDF. The
// rejection counts are not stored in the file and are zero in the
// returned result.
func ReadShardNetCDF(r cdf.ReaderWriterAt) (*magg.ShardResult, error) {
	f, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("dispatch: reading netcdf: %w", err)
	}
	shardStr, ok := f.Header.GetAttribute("", "shard").(string)
	if !ok {
		return nil, fmt.Errorf("dispatch: reading netcdf: missing shard attribute")
	}
	shard, err := magg.ParseCell(shardStr)
	if err != nil {
		return nil, fmt.Errorf("dispatch: reading netcdf: %w", err)
	}
	res := &magg.ShardResult{Shard: shard}
	for _, a := range []struct {
		name string
		v    *int
	}{{"child_order", &res.ChildOrder}, {"cells_with_data", &res.CellsWithData}, {"total_obs", &res.TotalObs}} {
		vals, ok := f.Header.GetAttribute("", a.name).([]int32)
		if !ok || len(vals) != 1 {
			return nil, fmt.Errorf("dispatch: reading netcdf: missing %s attribute", a.name)
		}
		*a.v = int(vals[0])
	}
	first, err := shard.FirstDescendant(res.ChildOrder)
	if err != nil {
		return nil, fmt.Errorf("dispatch: reading netcdf: %w", err)
	}

	offsets, err := readNCF(f, "child_offset")
	if err != nil {
		return nil, err
	}
	counts, err := readNCF(f, "count")
	if err != nil {
		return nil, err
	}
	off32, ok1 := offsets.([]int32)
	cnt32, ok2 := counts.([]int32)
	if !ok1 || !ok2 || len(off32) != len(cnt32) {
		return nil, fmt.Errorf("dispatch: reading netcdf: malformed cell variables")
	}
	res.Statistics = make([]magg.CellStatistics, len(off32))
	for i := range off32 {
		res.Statistics[i].ChildCode = first + uint64(off32[i])
		res.Statistics[i].Count = int(cnt32[i])
	}
	for _, v := range statVars {
		buf, err := readNCF(f, v.name)
		if err != nil {
			return nil, err
		}
		data, ok := buf.([]float64)
		if !ok || len(data) != len(res.Statistics) {
			return nil, fmt.Errorf("dispatch: reading netcdf: malformed variable %s", v.name)
		}
		for i, d := range data {
			*v.get(&res.Statistics[i]) = d
		}
	}
	return res, nil
}

func readNCF(f *cdf.File, name string) (interface{}, error) {
	if len(f.Header.Lengths(name)) == 0 {
		return nil, fmt.Errorf("dispatch: reading netcdf: variable %s not in file", name)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("dispatch: reading netcdf variable %s: %w", name, err)
	}
	return buf, nil
}
