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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/magg"
	"github.com/spatialmodel/magg/cloud"
	"github.com/spatialmodel/magg/dispatch"
	"github.com/spatialmodel/magg/internal/hash"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gocloud.dev/blob"
)

// RunConfig holds the settings of a run.
type RunConfig struct {
	Region   string
	Catalog  string
	Granules string
	Output   string

	Coverage   magg.CoverageConfig
	Densify    float64
	Fill       bool
	ChildOrder int

	Workers   int
	CacheSize int

	// Clean removes the output of an earlier run with the same
	// identifier.
	Clean bool
}

// RunConfigFromViper reads the run settings from a viper configuration.
func RunConfigFromViper(cfg *viper.Viper) (*RunConfig, error) {
	cov, err := CoverageConfig(cfg)
	if err != nil {
		return nil, err
	}
	rc := &RunConfig{
		Region:   os.ExpandEnv(cfg.GetString("Region")),
		Catalog:  os.ExpandEnv(cfg.GetString("Catalog")),
		Granules: os.ExpandEnv(cfg.GetString("Granules")),
		Output:   os.ExpandEnv(cfg.GetString("Output")),
		Coverage: cov,
		Fill:     cfg.GetBool("Coverage.Fill"),
		Clean:    cfg.GetBool("Clean"),
	}
	if rc.Densify, err = cast.ToFloat64E(cfg.Get("Coverage.Densify")); err != nil {
		return nil, fmt.Errorf("magg: invalid Coverage.Densify: %v", err)
	}
	for _, o := range []struct {
		name string
		v    *int
	}{{"ChildOrder", &rc.ChildOrder}, {"Workers", &rc.Workers}, {"CacheSize", &rc.CacheSize}} {
		if *o.v, err = cast.ToIntE(cfg.Get(o.name)); err != nil {
			return nil, fmt.Errorf("magg: invalid %s: %v", o.name, err)
		}
	}
	if rc.ChildOrder < rc.Coverage.TargetOrder {
		return nil, fmt.Errorf("magg: ChildOrder %d is coarser than Coverage.ShardOrder %d: %w",
			rc.ChildOrder, rc.Coverage.TargetOrder, magg.ErrInvalidOrder)
	}
	return rc, nil
}

// ID returns the identifier of the run. Runs with the same inputs and
// settings that affect the results have the same identifier.
func (rc *RunConfig) ID() string {
	return hash.Short(struct {
		Region, Catalog, Granules string
		Coverage                  magg.CoverageConfig
		Densify                   float64
		Fill                      bool
		ChildOrder                int
		Version                   string
	}{
		rc.Region, rc.Catalog, rc.Granules,
		rc.Coverage, rc.Densify, rc.Fill, rc.ChildOrder, magg.Version,
	}, 16)
}

// shards returns the shards covering the region of the run.
func (rc *RunConfig) shards(ctx context.Context, log logrus.FieldLogger) ([]magg.Cell, error) {
	region, err := LoadRegion(ctx, rc.Region)
	if err != nil {
		return nil, err
	}
	l := dispatch.CoverageLister{Fill: rc.Fill, Densify: rc.Densify, Log: log}
	return l.ListCoverage(ctx, region, rc.Coverage)
}

// PlannedShard is a shard in a dry run.
type PlannedShard struct {
	Shard   magg.Cell
	Sources int
}

// Plan returns the shards of the run, southernmost first, with the
// number of catalogued data sources for each.
func Plan(ctx context.Context, rc *RunConfig, log logrus.FieldLogger) ([]PlannedShard, error) {
	shards, err := rc.shards(ctx, log)
	if err != nil {
		return nil, err
	}
	c, err := LoadCatalog(ctx, rc.Catalog)
	if err != nil {
		return nil, err
	}
	magg.SortSouthFirst(shards)
	plan := make([]PlannedShard, len(shards))
	total := 0
	for i, s := range shards {
		sources, err := c.Sources(s)
		if err != nil {
			return nil, err
		}
		plan[i] = PlannedShard{Shard: s, Sources: len(sources)}
		total += len(sources)
	}
	log.WithFields(logrus.Fields{
		"run":     rc.ID(),
		"shards":  len(plan),
		"sources": total,
	}).Info("dry run")
	return plan, nil
}

// runManifest is saved alongside the results of a run.
type runManifest struct {
	ID            string     `json:"id"`
	Version       string     `json:"version"`
	Config        *RunConfig `json:"config"`
	Started       time.Time  `json:"started"`
	Duration      float64    `json:"duration_s"`
	Shards        int        `json:"shards"`
	Failed        int        `json:"failed"`
	Empty         int        `json:"empty"`
	CellsWithData int        `json:"cells_with_data"`
	TotalObs      int        `json:"total_obs"`
}

// Run aggregates all shards of the run and writes the results under
// <Output>/<run id>/. It returns the run report and identifier. The
// report is returned even if some shards fail.
func Run(ctx context.Context, rc *RunConfig, log logrus.FieldLogger) (*dispatch.Report, string, error) {
	start := time.Now()
	id := rc.ID()
	log = log.WithField("run", id)

	shards, err := rc.shards(ctx, log)
	if err != nil {
		return nil, id, err
	}
	c, err := LoadCatalog(ctx, rc.Catalog)
	if err != nil {
		return nil, id, err
	}
	bucket, prefix, err := openOutput(ctx, rc.Output)
	if err != nil {
		return nil, id, err
	}
	defer bucket.Close()
	prefix = cloud.JoinKey(prefix, id)
	if rc.Clean {
		if err := clean(ctx, bucket, prefix, log); err != nil {
			return nil, id, err
		}
	}

	r := &dispatch.Runner{
		Fetcher: &dispatch.BlobFetcher{
			Catalog:   c,
			Base:      rc.Granules,
			CacheSize: rc.CacheSize,
			Log:       log,
		},
		Publisher:  &dispatch.BlobPublisher{Bucket: bucket, Prefix: prefix},
		ChildOrder: rc.ChildOrder,
		Workers:    rc.Workers,
		Log:        log,
	}
	report, runErr := r.Run(ctx, shards)
	if report == nil {
		return nil, id, runErr
	}

	m := runManifest{
		ID:            id,
		Version:       magg.Version,
		Config:        rc,
		Started:       start.UTC(),
		Duration:      time.Since(start).Seconds(),
		Shards:        len(report.Summaries),
		Failed:        report.Failed,
		Empty:         report.Empty,
		CellsWithData: report.CellsWithData,
		TotalObs:      report.TotalObs,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return report, id, err
	}
	if err := cloud.WriteBlob(ctx, bucket, cloud.JoinKey(prefix, "run.json"), b); err != nil {
		return report, id, err
	}
	return report, id, runErr
}

// openOutput opens the bucket for the given output location, which may
// be a local directory or a blob URL, and returns the key prefix within
// the bucket.
func openOutput(ctx context.Context, location string) (*blob.Bucket, string, error) {
	if location == "" {
		return nil, "", fmt.Errorf("magg: no output location specified")
	}
	if !cloud.IsBlob(location) {
		dir, err := filepath.Abs(location)
		if err != nil {
			return nil, "", fmt.Errorf("magg: output directory: %v", err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, "", fmt.Errorf("magg: creating output directory: %v", err)
		}
		bucket, err := cloud.OpenBucket(ctx, "file://"+filepath.ToSlash(dir))
		if err != nil {
			return nil, "", err
		}
		return bucket, "", nil
	}
	bucketName, prefix, err := cloud.SplitURL(location)
	if err != nil {
		return nil, "", err
	}
	bucket, err := cloud.OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, "", err
	}
	return bucket, prefix, nil
}

// clean deletes everything under the output prefix of a run.
func clean(ctx context.Context, bucket *blob.Bucket, prefix string, log logrus.FieldLogger) error {
	keys, err := cloud.ListKeys(ctx, bucket, prefix+"/")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	log.WithField("blobs", len(keys)).Info("deleting earlier results")
	return cloud.DeletePrefix(ctx, bucket, prefix+"/")
}
