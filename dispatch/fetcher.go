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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/magg"
	"github.com/spatialmodel/magg/cloud"
)

// BlobFetcher fetches points from the CSV sources listed in a catalog.
// Sources may be local files or blob URLs. Concurrent requests for the
// same source are combined and recently read sources are kept in memory.
type BlobFetcher struct {
	Catalog *Catalog

	// Base is prepended to relative source locations. It may be a
	// directory or a blob URL.
	Base string

	// CacheSize is the number of decoded sources kept in memory.
	CacheSize int

	Log logrus.FieldLogger

	cacheInit sync.Once
	cache     *requestcache.Cache
}

// granule holds the points of one source. It is shared through the
// cache and must not be modified.
type granule struct {
	points  []magg.Point
	skipped int
}

// FetchPoints implements Fetcher. Sources are read lazily as the
// returned sequence is consumed.
func (f *BlobFetcher) FetchPoints(ctx context.Context, shard magg.Cell) (PointSequence, error) {
	if f.Catalog == nil {
		return nil, fmt.Errorf("dispatch: fetcher has no catalog")
	}
	f.cacheInit.Do(func() {
		size := f.CacheSize
		if size <= 0 {
			size = 16
		}
		f.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			return f.load(ctx, request.(string))
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate(), requestcache.Memory(size))
	})
	sources, err := f.Catalog.Sources(shard)
	if err != nil {
		return nil, err
	}
	f.log().WithFields(logrus.Fields{
		"shard":   shard.String(),
		"sources": len(sources),
	}).Debug("fetching points")
	return &granuleSequence{ctx: ctx, f: f, sources: sources}, nil
}

func (f *BlobFetcher) log() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

// location resolves a source against Base.
func (f *BlobFetcher) location(source string) string {
	if f.Base == "" || cloud.IsBlob(source) || filepath.IsAbs(source) {
		return source
	}
	if cloud.IsBlob(f.Base) {
		return strings.TrimSuffix(f.Base, "/") + "/" + strings.TrimPrefix(source, "/")
	}
	return filepath.Join(f.Base, source)
}

func (f *BlobFetcher) load(ctx context.Context, source string) (*granule, error) {
	loc := f.location(source)
	var r io.Reader
	if cloud.IsBlob(loc) {
		b, err := cloud.ReadURL(ctx, loc)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	} else {
		file, err := os.Open(loc)
		if err != nil {
			return nil, fmt.Errorf("dispatch: opening source: %w", err)
		}
		defer file.Close()
		r = file
	}
	points, skipped, err := ReadPoints(r)
	if err != nil {
		return nil, fmt.Errorf("dispatch: source %s: %w", source, err)
	}
	f.log().WithFields(logrus.Fields{
		"source":          source,
		"points":          len(points),
		"skipped_quality": skipped,
	}).Debug("read source")
	return &granule{points: points, skipped: skipped}, nil
}

type granuleSequence struct {
	ctx     context.Context
	f       *BlobFetcher
	sources []string
	next    int
	stats   SourceStats
}

func (s *granuleSequence) Next() ([]magg.Point, error) {
	if s.next >= len(s.sources) {
		return nil, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	src := s.sources[s.next]
	req := s.f.cache.NewRequest(s.ctx, src, src)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	s.next++
	g := result.(*granule)
	s.stats.Files++
	s.stats.SkippedQuality += g.skipped
	return g.points, nil
}

func (s *granuleSequence) Stats() SourceStats {
	st := s.stats
	st.Sources = len(s.sources)
	return st
}
