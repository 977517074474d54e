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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spatialmodel/magg"
)

var columnAliases = map[string]string{
	"lat":         "lat",
	"latitude":    "lat",
	"lon":         "lon",
	"lng":         "lon",
	"longitude":   "lon",
	"value":       "value",
	"h_li":        "value",
	"sigma":       "sigma",
	"uncertainty": "sigma",
	"quality":     "quality",
}

// ReadPoints reads points from CSV with a header row. The lat, lon and
// value columns are required; sigma and quality are optional. A row with
// an empty sigma has no uncertainty. Rows with a nonzero quality flag
// are skipped, and their number is returned.
func ReadPoints(r io.Reader) (points []magg.Point, skippedQuality int, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("dispatch: reading point header: %w", err)
	}
	cols := map[string]int{"sigma": -1, "quality": -1}
	for i, h := range header {
		if name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[name] = i
		}
	}
	for _, req := range []string{"lat", "lon", "value"} {
		if _, ok := cols[req]; !ok {
			return nil, 0, fmt.Errorf("dispatch: point file is missing column %q", req)
		}
	}
	cr.FieldsPerRecord = len(header)

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("dispatch: reading points: %w", err)
		}
		if i := cols["quality"]; i >= 0 {
			q := strings.TrimSpace(rec[i])
			if q != "" && q != "0" {
				skippedQuality++
				continue
			}
		}
		var p magg.Point
		for _, f := range []struct {
			col string
			v   *float64
		}{{"lat", &p.Lat}, {"lon", &p.Lon}, {"value", &p.Value}} {
			if *f.v, err = parseField(rec[cols[f.col]]); err != nil {
				return nil, 0, fmt.Errorf("dispatch: line %d column %s: %w", line, f.col, err)
			}
		}
		if i := cols["sigma"]; i >= 0 && strings.TrimSpace(rec[i]) != "" {
			sigma, err := parseField(rec[i])
			if err != nil {
				return nil, 0, fmt.Errorf("dispatch: line %d column sigma: %w", line, err)
			}
			p = p.WithUncertainty(sigma)
		}
		points = append(points, p)
	}
	return points, skippedQuality, nil
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
