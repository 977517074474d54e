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

package maggutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctessum/geom/encoding/geojson"
	"github.com/spatialmodel/magg"
	"github.com/spatialmodel/magg/cloud"
	"github.com/spatialmodel/magg/dispatch"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// intOption returns the named option as an integer.
func intOption(name string) (int, error) {
	i, err := cast.ToIntE(Cfg.Get(name))
	if err != nil {
		return 0, fmt.Errorf("magg: invalid %s: %v", name, err)
	}
	return i, nil
}

func parseCoordinate(latStr, lonStr string) (lat, lon float64, err error) {
	if lat, err = cast.ToFloat64E(latStr); err != nil {
		return 0, 0, fmt.Errorf("magg: invalid latitude: %v", err)
	}
	if lon, err = cast.ToFloat64E(lonStr); err != nil {
		return 0, 0, fmt.Errorf("magg: invalid longitude: %v", err)
	}
	return lat, lon, nil
}

// CoverageConfig unmarshals the coverage options of a viper configuration.
// The target order of the cover is the shard order.
func CoverageConfig(cfg *viper.Viper) (magg.CoverageConfig, error) {
	var c magg.CoverageConfig
	for _, o := range []struct {
		name string
		v    *int
	}{
		{"Coverage.ProbeOrder", &c.ProbeOrder},
		{"Coverage.MaxOrder", &c.MaxOrder},
		{"Coverage.MaxBoxes", &c.MaxBoxes},
		{"Coverage.ShardOrder", &c.TargetOrder},
	} {
		i, err := cast.ToIntE(cfg.Get(o.name))
		if err != nil {
			return c, fmt.Errorf("magg: invalid %s: %v", o.name, err)
		}
		*o.v = i
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadRegion reads a GeoJSON region from the given location.
func LoadRegion(ctx context.Context, location string) (magg.Region, error) {
	b, err := readInput(ctx, location)
	if err != nil {
		return magg.Region{}, err
	}
	r, err := DecodeRegion(b)
	if err != nil {
		return magg.Region{}, fmt.Errorf("magg: region %s: %v", location, err)
	}
	return r, nil
}

// geoJSONObject holds the members of a GeoJSON object that wrap
// geometries.
type geoJSONObject struct {
	Type     string          `json:"type"`
	Geometry json.RawMessage `json:"geometry"`
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// DecodeRegion decodes a region from a GeoJSON geometry, Feature, or
// FeatureCollection. The rings of all features in a collection are
// combined.
func DecodeRegion(b []byte) (magg.Region, error) {
	var obj geoJSONObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return magg.Region{}, err
	}
	var geoms []json.RawMessage
	switch obj.Type {
	case "Feature":
		geoms = append(geoms, obj.Geometry)
	case "FeatureCollection":
		for _, f := range obj.Features {
			geoms = append(geoms, f.Geometry)
		}
	default:
		geoms = append(geoms, b)
	}
	var r magg.Region
	for i, raw := range geoms {
		g, err := geojson.Decode(raw)
		if err != nil {
			return magg.Region{}, fmt.Errorf("geometry %d: %v", i, err)
		}
		gr, err := magg.RegionFromGeom(g)
		if err != nil {
			return magg.Region{}, fmt.Errorf("geometry %d: %w", i, err)
		}
		r.Rings = append(r.Rings, gr.Rings...)
	}
	if len(r.Rings) == 0 {
		return r, fmt.Errorf("no geometries: %w", magg.ErrEmptyCoverage)
	}
	return r, nil
}

// SaveCatalog writes c to a local path or blob URL.
func SaveCatalog(ctx context.Context, c *dispatch.Catalog, location string) error {
	if location == "" {
		return fmt.Errorf("magg: no catalog location specified")
	}
	var b bytes.Buffer
	if err := c.Save(&b); err != nil {
		return err
	}
	location = os.ExpandEnv(location)
	if cloud.IsBlob(location) {
		return cloud.WriteURL(ctx, location, b.Bytes())
	}
	if dir := filepath.Dir(location); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("magg: creating catalog directory: %v", err)
		}
	}
	if err := os.WriteFile(location, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("magg: writing catalog: %v", err)
	}
	return nil
}

// LoadCatalog reads a catalog from a local path, http(s) URL, or blob URL.
func LoadCatalog(ctx context.Context, location string) (*dispatch.Catalog, error) {
	b, err := readInput(ctx, location)
	if err != nil {
		return nil, err
	}
	return dispatch.LoadCatalog(bytes.NewReader(b))
}
