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
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/magg"
)

// CoverageLister lists shards using the coverage solver.
type CoverageLister struct {
	// Fill adds the shards whose centers are inside the region.
	Fill bool

	// Densify is the maximum spacing in degrees between boundary
	// vertices. Zero disables densification.
	Densify float64

	Log logrus.FieldLogger
}

// ListCoverage implements Lister. A cover that exceeds its budget is
// logged as a warning and still returned.
func (l CoverageLister) ListCoverage(ctx context.Context, region magg.Region, cfg magg.CoverageConfig) ([]magg.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Densify > 0 {
		region = region.Densify(l.Densify)
	}
	cov, err := magg.SolveRegion(region, cfg, l.Fill)
	if err != nil {
		return nil, err
	}
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"vertices": len(region.Vertices()),
		"cover":    len(cov.Cover),
		"shards":   len(cov.Shards),
		"order":    cfg.TargetOrder,
	}
	if err := cov.Warning(); err != nil {
		log.WithFields(fields).Warn(err)
	} else {
		log.WithFields(fields).Info("coverage solved")
	}
	return cov.Shards, nil
}
