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
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/magg"
	"golang.org/x/sync/errgroup"
)

// Runner aggregates shards concurrently.
type Runner struct {
	Fetcher   Fetcher
	Publisher Publisher

	// ChildOrder is the order of the cells statistics are computed for.
	ChildOrder int

	// Workers is the maximum number of shards processed at once.
	// The default is the number of CPUs.
	Workers int

	// NewBackOff returns the retry policy for fetching and publishing
	// one shard. The default is exponential backoff for up to five
	// minutes.
	NewBackOff func() backoff.BackOff

	// Log receives progress messages. The default is the standard
	// logrus logger.
	Log logrus.FieldLogger
}

// Report summarizes a run.
type Report struct {
	// Summaries holds one summary per shard, in processing order.
	Summaries []*Summary

	Failed        int
	Empty         int
	CellsWithData int
	TotalObs      int
}

func (r *Runner) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Runner) newBackOff() backoff.BackOff {
	if r.NewBackOff != nil {
		return r.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Minute
	return b
}

// Run aggregates and publishes the given shards, southernmost first.
// A shard that fails does not stop the others; the returned error
// combines the errors of all failed shards.
func (r *Runner) Run(ctx context.Context, shards []magg.Cell) (*Report, error) {
	if r.Fetcher == nil || r.Publisher == nil {
		return nil, fmt.Errorf("dispatch: runner needs a fetcher and a publisher")
	}
	ordered := append([]magg.Cell(nil), shards...)
	magg.SortSouthFirst(ordered)

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(-1)
	}
	report := &Report{Summaries: make([]*Summary, len(ordered))}
	errs := make([]error, len(ordered))

	start := time.Now()
	var mu sync.Mutex
	var done int
	var g errgroup.Group
	g.SetLimit(workers)
	for i, shard := range ordered {
		i, shard := i, shard
		g.Go(func() error {
			report.Summaries[i], errs[i] = r.RunShard(ctx, shard)
			mu.Lock()
			done++
			r.log().WithFields(logrus.Fields{
				"done":    done,
				"total":   len(ordered),
				"elapsed": time.Since(start).Round(time.Second),
			}).Debug("shard finished")
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // shard errors are collected in errs

	for _, s := range report.Summaries {
		switch {
		case s.Error != "":
			report.Failed++
		case s.CellsWithData == 0:
			report.Empty++
		}
		report.CellsWithData += s.CellsWithData
		report.TotalObs += s.TotalObs
	}
	r.log().WithFields(logrus.Fields{
		"shards":          len(ordered),
		"failed":          report.Failed,
		"empty":           report.Empty,
		"cells_with_data": report.CellsWithData,
		"total_obs":       report.TotalObs,
		"duration":        time.Since(start).Round(time.Millisecond),
	}).Info("run complete")
	return report, errors.Join(errs...)
}

// RunShard aggregates and publishes one shard. The summary is returned
// even if an error occurs.
func (r *Runner) RunShard(ctx context.Context, shard magg.Cell) (*Summary, error) {
	start := time.Now()
	sum := newSummary(shard, r.ChildOrder)
	log := r.log().WithField("shard", shard.String())

	fail := func(err error) (*Summary, error) {
		sum.Duration = time.Since(start).Seconds()
		sum.Error = err.Error()
		log.WithError(err).Error("shard failed")
		return sum, fmt.Errorf("dispatch: shard %v: %w", shard, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	var res *magg.ShardResult
	err := backoff.RetryNotify(
		func() error {
			var err error
			res, err = r.aggregate(ctx, shard, sum)
			return err
		},
		backoff.WithContext(r.newBackOff(), ctx),
		func(err error, d time.Duration) {
			log.WithError(err).Warnf("fetching points: retrying in %v", d)
		},
	)
	if err != nil {
		return fail(err)
	}
	sum.setResult(res)
	sum.Duration = time.Since(start).Seconds()

	err = backoff.RetryNotify(
		func() error {
			return r.Publisher.Publish(ctx, res, sum)
		},
		backoff.WithContext(r.newBackOff(), ctx),
		func(err error, d time.Duration) {
			log.WithError(err).Warnf("publishing: retrying in %v", d)
		},
	)
	if err != nil {
		return fail(err)
	}

	fields := logrus.Fields{
		"cells_with_data": res.CellsWithData,
		"total_obs":       res.TotalObs,
		"discarded":       res.Discarded,
		"duration":        time.Since(start).Round(time.Millisecond),
	}
	if res.RejectedUncertainty > 0 || res.RejectedValue > 0 {
		fields["rejected_uncertainty"] = res.RejectedUncertainty
		fields["rejected_value"] = res.RejectedValue
		log.WithFields(fields).Warn("shard complete with rejected points")
	} else if res.Empty() {
		log.WithFields(fields).Info("shard has no observations")
	} else {
		log.WithFields(fields).Info("shard complete")
	}
	return sum, nil
}

// aggregate fetches and aggregates the points of one shard. Invalid
// coordinates are permanent errors; other errors are retried.
func (r *Runner) aggregate(ctx context.Context, shard magg.Cell, sum *Summary) (*magg.ShardResult, error) {
	a, err := magg.NewAggregator(shard, r.ChildOrder)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	seq, err := r.Fetcher.FetchPoints(ctx, shard)
	if err != nil {
		return nil, err
	}
	for {
		batch, err := seq.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := a.Add(batch...); err != nil {
			return nil, backoff.Permanent(err)
		}
	}
	if s, ok := seq.(statser); ok {
		sum.setSources(s.Stats())
	}
	return a.Result(), nil
}
