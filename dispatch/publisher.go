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
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/spatialmodel/magg"
	"github.com/spatialmodel/magg/cloud"
	"gocloud.dev/blob"
)

// BlobPublisher writes each shard to a bucket as
// <Prefix>/orderNN/<code>.nc and a summary as <Prefix>/orderNN/<code>.json.
// Shards without data get only the summary.
type BlobPublisher struct {
	Bucket *blob.Bucket
	Prefix string
}

// ShardKey returns the key of the given shard without an extension.
func (p *BlobPublisher) ShardKey(shard magg.Cell) string {
	return cloud.JoinKey(p.Prefix, fmt.Sprintf("order%02d", shard.Order), strconv.FormatUint(shard.Code, 10))
}

// Publish implements Publisher.
func (p *BlobPublisher) Publish(ctx context.Context, res *magg.ShardResult, sum *Summary) error {
	key := p.ShardKey(res.Shard)
	if !res.Empty() {
		if err := p.publishNetCDF(ctx, key+".nc", res); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("dispatch: encoding summary: %w", err)
	}
	return cloud.WriteBlob(ctx, p.Bucket, key+".json", b)
}

func (p *BlobPublisher) publishNetCDF(ctx context.Context, key string, res *magg.ShardResult) error {
	f, err := os.CreateTemp("", "magg_*.nc")
	if err != nil {
		return fmt.Errorf("dispatch: creating temporary file: %w", err)
	}
	defer os.Remove(f.Name())
	if err := WriteShardNetCDF(f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("dispatch: closing temporary file: %w", err)
	}
	return cloud.UploadFile(ctx, p.Bucket, key, f.Name())
}

// MemoryPublisher keeps published results in memory. It is safe for
// concurrent use.
type MemoryPublisher struct {
	mu        sync.Mutex
	results   map[magg.Cell]*magg.ShardResult
	summaries map[magg.Cell]Summary
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(ctx context.Context, res *magg.ShardResult, sum *Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = make(map[magg.Cell]*magg.ShardResult)
		p.summaries = make(map[magg.Cell]Summary)
	}
	p.results[res.Shard] = res
	p.summaries[res.Shard] = *sum
	return nil
}

// Result returns the result published for shard, or nil.
func (p *MemoryPublisher) Result(shard magg.Cell) *magg.ShardResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results[shard]
}

// Summary returns the summary published for shard.
func (p *MemoryPublisher) Summary(shard magg.Cell) (Summary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.summaries[shard]
	return s, ok
}

// Shards returns the published shards sorted by order and code.
func (p *MemoryPublisher) Shards() []magg.Cell {
	p.mu.Lock()
	defer p.mu.Unlock()
	o := make([]magg.Cell, 0, len(p.results))
	for c := range p.results {
		o = append(o, c)
	}
	magg.SortCells(o)
	return o
}
