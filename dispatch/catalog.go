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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spatialmodel/magg"
)

// Track is the ground track of one data source, such as a satellite
// granule.
type Track struct {
	// Source is the location of the source, either a local path or a
	// blob URL.
	Source   string        `json:"source"`
	Vertices []magg.Vertex `json:"vertices"`
}

// ReadTracks reads a JSON array of tracks.
func ReadTracks(r io.Reader) ([]Track, error) {
	var tracks []Track
	if err := json.NewDecoder(r).Decode(&tracks); err != nil {
		return nil, fmt.Errorf("dispatch: reading tracks: %w", err)
	}
	return tracks, nil
}

// CatalogMetadata describes how a catalog was built.
type CatalogMetadata struct {
	Order       int       `json:"order"`
	Tracks      int       `json:"tracks"`
	Shards      int       `json:"shards"`
	DensifyStep float64   `json:"densify_step"`
	Created     time.Time `json:"created"`
	Version     string    `json:"version"`
}

// Catalog maps shards to the sources whose tracks touch them.
type Catalog struct {
	Metadata CatalogMetadata `json:"metadata"`

	// Entries maps the decimal code of each shard at Metadata.Order to
	// the sorted sources that touch it.
	Entries map[string][]string `json:"catalog"`
}

// BuildCatalog indexes the tracks at the given order. The tracks are
// densified to at most densifyStep degrees between vertices first, so
// that a track crossing a shard without a vertex in it is still
// catalogued.
func BuildCatalog(tracks []Track, order int, densifyStep float64) (*Catalog, error) {
	if _, err := magg.NewCell(0, order); err != nil {
		return nil, fmt.Errorf("dispatch: catalog order: %w", err)
	}
	sets := make(map[uint64]map[string]struct{})
	for i, t := range tracks {
		if t.Source == "" {
			return nil, fmt.Errorf("dispatch: track %d has no source", i)
		}
		for _, v := range magg.Densify(t.Vertices, densifyStep) {
			code, err := magg.Index(v.Lat, v.Lon, order)
			if err != nil {
				return nil, fmt.Errorf("dispatch: track %s: %w", t.Source, err)
			}
			s, ok := sets[code]
			if !ok {
				s = make(map[string]struct{})
				sets[code] = s
			}
			s[t.Source] = struct{}{}
		}
	}
	c := &Catalog{
		Metadata: CatalogMetadata{
			Order:       order,
			Tracks:      len(tracks),
			Shards:      len(sets),
			DensifyStep: densifyStep,
			Created:     time.Now().UTC(),
			Version:     magg.Version,
		},
		Entries: make(map[string][]string, len(sets)),
	}
	for code, s := range sets {
		c.Entries[strconv.FormatUint(code, 10)] = sortedKeys(s)
	}
	return c, nil
}

func sortedKeys(s map[string]struct{}) []string {
	o := make([]string, 0, len(s))
	for k := range s {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}

// Sources returns the sorted sources that may contain points in the given
// shard. The shard may be at any order: a finer shard gets the sources of
// its catalogued ancestor and a coarser shard gets the sources of all of
// its catalogued descendants.
func (c *Catalog) Sources(shard magg.Cell) ([]string, error) {
	order := c.Metadata.Order
	switch {
	case int(shard.Order) == order:
		return c.Entries[strconv.FormatUint(shard.Code, 10)], nil
	case int(shard.Order) > order:
		p, err := shard.Parent(order)
		if err != nil {
			return nil, err
		}
		return c.Entries[strconv.FormatUint(p.Code, 10)], nil
	}
	s := make(map[string]struct{})
	shift := uint(2 * (order - int(shard.Order)))
	for key, sources := range c.Entries {
		code, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dispatch: catalog key %q: %w", key, err)
		}
		if code>>shift != shard.Code {
			continue
		}
		for _, src := range sources {
			s[src] = struct{}{}
		}
	}
	if len(s) == 0 {
		return nil, nil
	}
	return sortedKeys(s), nil
}

// Shards returns the catalogued shards sorted by code.
func (c *Catalog) Shards() ([]magg.Cell, error) {
	o := make([]magg.Cell, 0, len(c.Entries))
	for key := range c.Entries {
		code, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dispatch: catalog key %q: %w", key, err)
		}
		cell, err := magg.NewCell(code, c.Metadata.Order)
		if err != nil {
			return nil, fmt.Errorf("dispatch: catalog key %q: %w", key, err)
		}
		o = append(o, cell)
	}
	magg.SortCells(o)
	return o, nil
}

// Save writes the catalog as indented JSON.
func (c *Catalog) Save(w io.Writer) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(c); err != nil {
		return fmt.Errorf("dispatch: saving catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads a catalog written by Save.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	c := new(Catalog)
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("dispatch: loading catalog: %w", err)
	}
	if c.Entries == nil {
		c.Entries = make(map[string][]string)
	}
	if _, err := magg.NewCell(0, c.Metadata.Order); err != nil {
		return nil, fmt.Errorf("dispatch: loading catalog: %w", err)
	}
	return c, nil
}
