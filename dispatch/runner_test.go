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
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/magg"
)

const (
	northLat, northLon = 10.0, 20.0
	southLat, southLon = -40.0, 100.0
	shardOrder         = 6
	childOrder         = 12
)

func testCell(t *testing.T, lat, lon float64, order int) magg.Cell {
	c, err := magg.IndexCell(lat, lon, order)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func quickBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 4)
}

var errTransient = errors.New("transient")

// flakyFetcher fails the first failures fetches of each shard, and
// returns invalid points for the shards in bad.
type flakyFetcher struct {
	points   map[magg.Cell][]magg.Point
	bad      map[magg.Cell]bool
	failures int

	mu       sync.Mutex
	attempts map[magg.Cell]int
}

func (f *flakyFetcher) FetchPoints(ctx context.Context, shard magg.Cell) (PointSequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[magg.Cell]int)
	}
	f.attempts[shard]++
	if f.attempts[shard] <= f.failures {
		return nil, errTransient
	}
	if f.bad[shard] {
		return SlicePoints([]magg.Point{{Lat: math.NaN(), Lon: 0, Value: 1}}), nil
	}
	pts := f.points[shard]
	return SlicePoints(pts[:1], pts[1:]), nil
}

func TestRunnerRetry(t *testing.T) {
	north := testCell(t, northLat, northLon, shardOrder)
	south := testCell(t, southLat, southLon, shardOrder)
	f := &flakyFetcher{
		points: map[magg.Cell][]magg.Point{
			north: {
				{Lat: northLat, Lon: northLon, Value: 1},
				{Lat: northLat, Lon: northLon, Value: 3},
				{Lat: southLat, Lon: southLon, Value: 100},
			},
			south: {
				{Lat: southLat, Lon: southLon, Value: 5},
			},
		},
		failures: 2,
	}
	pub := new(MemoryPublisher)
	r := &Runner{
		Fetcher:    f,
		Publisher:  pub,
		ChildOrder: childOrder,
		Workers:    2,
		NewBackOff: quickBackOff,
		Log:        testLogger(),
	}
	report, err := r.Run(context.Background(), []magg.Cell{north, south})
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 0 || report.CellsWithData != 2 || report.TotalObs != 3 {
		t.Errorf("report: %+v", report)
	}
	if report.Summaries[0].Shard != south.String() {
		t.Errorf("first shard is %s, want %s", report.Summaries[0].Shard, south)
	}
	for _, shard := range []magg.Cell{north, south} {
		if f.attempts[shard] != 3 {
			t.Errorf("%v: %d attempts, want 3", shard, f.attempts[shard])
		}
	}
	res := pub.Result(north)
	if res == nil {
		t.Fatal("north shard was not published")
	}
	if res.Discarded != 1 || res.TotalObs != 2 || res.Statistics[0].Mean != 2 {
		t.Errorf("north result: %+v", res)
	}
	sum, ok := pub.Summary(north)
	if !ok || sum.TotalObs != 2 || sum.Discarded != 1 || sum.ShardOrder != shardOrder || sum.ChildOrder != childOrder {
		t.Errorf("north summary: %+v", sum)
	}
}

func TestRunnerFailureIsolation(t *testing.T) {
	north := testCell(t, northLat, northLon, shardOrder)
	south := testCell(t, southLat, southLon, shardOrder)
	f := &flakyFetcher{
		points: map[magg.Cell][]magg.Point{
			north: {{Lat: northLat, Lon: northLon, Value: 1}},
		},
		bad: map[magg.Cell]bool{south: true},
	}
	pub := new(MemoryPublisher)
	r := &Runner{
		Fetcher:    f,
		Publisher:  pub,
		ChildOrder: childOrder,
		NewBackOff: quickBackOff,
		Log:        testLogger(),
	}
	report, err := r.Run(context.Background(), []magg.Cell{north, south})
	if !errors.Is(err, magg.ErrInvalidCoordinate) {
		t.Fatalf("have error %v, want invalid coordinate", err)
	}
	if f.attempts[south] != 1 {
		t.Errorf("invalid coordinates were retried %d times", f.attempts[south])
	}
	if report.Failed != 1 || report.CellsWithData != 1 {
		t.Errorf("report: %+v", report)
	}
	if report.Summaries[0].Error == "" {
		t.Error("failed shard has no error in its summary")
	}
	if pub.Result(north) == nil || pub.Result(south) != nil {
		t.Errorf("published shards: %v", pub.Shards())
	}
}

func TestRunnerEmptyShard(t *testing.T) {
	north := testCell(t, northLat, northLon, shardOrder)
	pub := new(MemoryPublisher)
	r := &Runner{
		Fetcher:    &flakyFetcher{points: map[magg.Cell][]magg.Point{north: {{Lat: southLat, Lon: southLon, Value: 1}}}},
		Publisher:  pub,
		ChildOrder: childOrder,
		Log:        testLogger(),
	}
	report, err := r.Run(context.Background(), []magg.Cell{north})
	if err != nil {
		t.Fatal(err)
	}
	if report.Empty != 1 {
		t.Errorf("report: %+v", report)
	}
	res := pub.Result(north)
	if res == nil || !errors.Is(res.Err(), magg.ErrNoObservations) {
		t.Errorf("empty shard result: %+v", res)
	}
}

func TestRunnerCanceled(t *testing.T) {
	north := testCell(t, northLat, northLon, shardOrder)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{
		Fetcher:    &flakyFetcher{},
		Publisher:  new(MemoryPublisher),
		ChildOrder: childOrder,
		Log:        testLogger(),
	}
	_, err := r.Run(ctx, []magg.Cell{north})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("have error %v, want context.Canceled", err)
	}
}

func TestCoverageLister(t *testing.T) {
	l := CoverageLister{Densify: 0.5, Log: testLogger()}
	cfg := magg.CoverageConfig{ProbeOrder: 10, MaxOrder: 3, MaxBoxes: 8, TargetOrder: shardOrder}
	var _ Lister = l
	shards, err := l.ListCoverage(context.Background(), magg.PointRegion(northLat, northLon), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := testCell(t, northLat, northLon, shardOrder)
	if len(shards) != 1 || shards[0] != want {
		t.Errorf("have %v, want [%v]", shards, want)
	}
}
