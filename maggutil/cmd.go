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

// Package maggutil contains the command-line interface for magg.
package maggutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/magg"
	"github.com/spatialmodel/magg/dispatch"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	coverFlags := []*pflag.FlagSet{coverCmd.Flags(), runCmd.Flags()}
	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location. TOML, YAML and
              JSON files are accepted.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print: one of
              debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Order",
			usage: `
              Order is the order of the cell that a coordinate is indexed to.`,
			shorthand:  "o",
			defaultVal: 12,
			flagsets:   []*pflag.FlagSet{indexCmd.Flags()},
		},
		{
			name: "Region",
			usage: `
              Region is the location of a GeoJSON file holding the region of
              interest as a Polygon, LineString, or Point geometry, a Feature,
              or a FeatureCollection. It may be a local path, an http(s) URL,
              or a blob URL (file://, gs://, or s3://).`,
			defaultVal: "",
			flagsets:   coverFlags,
		},
		{
			name: "Coverage.ProbeOrder",
			usage: `
              Coverage.ProbeOrder is the order at which region vertices are
              indexed before coalescing.`,
			defaultVal: 12,
			flagsets:   coverFlags,
		},
		{
			name: "Coverage.MaxOrder",
			usage: `
              Coverage.MaxOrder is the coarsest order that coalescing can reach.`,
			defaultVal: 3,
			flagsets:   coverFlags,
		},
		{
			name: "Coverage.MaxBoxes",
			usage: `
              Coverage.MaxBoxes is the number of cells that the region cover
              should not exceed.`,
			defaultVal: 64,
			flagsets:   coverFlags,
		},
		{
			name: "Coverage.ShardOrder",
			usage: `
              Coverage.ShardOrder is the order of the shards that work is
              divided into. It is also the order of the catalog.`,
			defaultVal: 6,
			flagsets:   []*pflag.FlagSet{coverCmd.Flags(), runCmd.Flags(), catalogCmd.Flags()},
		},
		{
			name: "Coverage.Densify",
			usage: `
              Coverage.Densify is the maximum spacing in degrees between vertices
              of region boundaries and ground tracks. Zero disables densification.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{coverCmd.Flags(), runCmd.Flags(), catalogCmd.Flags()},
		},
		{
			name: "Coverage.Fill",
			usage: `
              Coverage.Fill specifies whether to add the shards whose centers are
              inside of the region in addition to the shards on its boundary.`,
			defaultVal: false,
			flagsets:   coverFlags,
		},
		{
			name: "ChildOrder",
			usage: `
              ChildOrder is the order of the cells that statistics are
              calculated for.`,
			defaultVal: 12,
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Shard",
			usage: `
              Shard is the shard to aggregate, in the format order/code.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Tracks",
			usage: `
              Tracks is the location of a JSON file holding the ground tracks of
              the data sources to catalog.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{catalogCmd.Flags()},
		},
		{
			name: "Catalog",
			usage: `
              Catalog is the location of the source catalog. The catalog command
              writes it and the run command reads it.`,
			defaultVal: "catalog.json",
			flagsets:   []*pflag.FlagSet{catalogCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Granules",
			usage: `
              Granules is the directory or blob URL that relative source locations
              in the catalog are relative to.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Output",
			usage: `
              Output is the directory or blob URL that results are written to.
              Each run writes to a subdirectory named after its run identifier.`,
			defaultVal: "magg_output",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of shards processed at once.`,
			shorthand:  "w",
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of decoded data sources kept in memory.`,
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DryRun",
			usage: `
              DryRun lists the shards of the run and the number of data sources
              for each, without aggregating anything.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Clean",
			usage: `
              Clean deletes the results of an earlier run with the same run
              identifier before starting.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables, so that,
	// for example, Coverage.MaxBoxes can be set with MAGG_COVERAGE_MAXBOXES.
	Cfg.SetEnvPrefix("MAGG")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(indexCmd)
	Root.AddCommand(coverCmd)
	Root.AddCommand(catalogCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("magg: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("magg: invalid LogLevel: %v", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "magg",
	Short: "Aggregate point observations on a hierarchical equal-area grid.",
	Long: `magg aggregates large sets of point observations into statistics on a
hierarchical equal-area grid. Work is divided into shards: grid cells that
cover a region of interest. Each shard is processed independently and the
results are written as one NetCDF file and one JSON summary per shard.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'MAGG_var' where 'var' is the
name of the variable to be set, with '.' replaced by '_'.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of magg.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("magg v%s\n", magg.Version)
	},
	DisableAutoGenTag: true,
}

var indexCmd = &cobra.Command{
	Use:   "index lat lon",
	Short: "Find the cell containing a coordinate",
	Long: `index prints the cell at the specified order that contains the given
latitude and longitude in degrees, along with the center of the cell.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := parseCoordinate(args[0], args[1])
		if err != nil {
			return err
		}
		order, err := intOption("Order")
		if err != nil {
			return err
		}
		c, err := magg.IndexCell(lat, lon, order)
		if err != nil {
			return err
		}
		clat, clon, err := c.Center()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6f\t%.6f\n", c, clat, clon)
		return nil
	},
	DisableAutoGenTag: true,
}

// coverOutput is the output of the cover command.
type coverOutput struct {
	Cover          []magg.Cell `json:"cover"`
	Shards         []magg.Cell `json:"shards"`
	BudgetExceeded bool        `json:"budget_exceeded"`
}

var coverCmd = &cobra.Command{
	Use:   "cover",
	Short: "Find the shards covering a region",
	Long: `cover finds the set of shards that covers the region specified by the
Region option and prints it as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		region, err := LoadRegion(ctx, Cfg.GetString("Region"))
		if err != nil {
			return err
		}
		cfg, err := CoverageConfig(Cfg)
		if err != nil {
			return err
		}
		if step := Cfg.GetFloat64("Coverage.Densify"); step > 0 {
			region = region.Densify(step)
		}
		cov, err := magg.SolveRegion(region, cfg, Cfg.GetBool("Coverage.Fill"))
		if err != nil {
			return err
		}
		if err := cov.Warning(); err != nil {
			logrus.Warn(err)
		}
		return writeJSON(cmd, coverOutput{Cover: cov.Cover, Shards: cov.Shards, BudgetExceeded: cov.BudgetExceeded})
	},
	DisableAutoGenTag: true,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog data sources by shard",
	Long: `catalog reads the ground tracks of data sources from the Tracks file,
determines which shards each track passes through, and saves the result
to the Catalog location.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := readInput(ctx, Cfg.GetString("Tracks"))
		if err != nil {
			return err
		}
		tracks, err := dispatch.ReadTracks(strings.NewReader(string(b)))
		if err != nil {
			return err
		}
		order, err := intOption("Coverage.ShardOrder")
		if err != nil {
			return err
		}
		c, err := dispatch.BuildCatalog(tracks, order, Cfg.GetFloat64("Coverage.Densify"))
		if err != nil {
			return err
		}
		if err := SaveCatalog(ctx, c, Cfg.GetString("Catalog")); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"tracks": c.Metadata.Tracks,
			"shards": c.Metadata.Shards,
			"order":  c.Metadata.Order,
		}).Info("catalog saved")
		return nil
	},
	DisableAutoGenTag: true,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate file.csv...",
	Short: "Aggregate the points in one shard",
	Long: `aggregate reads points from the given CSV files, calculates statistics
for the child cells of the specified Shard, and prints them as JSON.
The CSV files must have a header row with lat, lon, and value columns
and may have sigma and quality columns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		shard, err := magg.ParseCell(Cfg.GetString("Shard"))
		if err != nil {
			return err
		}
		childOrder, err := intOption("ChildOrder")
		if err != nil {
			return err
		}
		a, err := magg.NewAggregator(shard, childOrder)
		if err != nil {
			return err
		}
		for _, f := range args {
			b, err := readInput(ctx, f)
			if err != nil {
				return err
			}
			points, skipped, err := dispatch.ReadPoints(strings.NewReader(string(b)))
			if err != nil {
				return fmt.Errorf("magg: %s: %v", f, err)
			}
			logrus.WithFields(logrus.Fields{
				"file":            f,
				"points":          len(points),
				"skipped_quality": skipped,
			}).Debug("read points")
			if err := a.Add(points...); err != nil {
				return err
			}
		}
		res := a.Result()
		if err := res.Err(); err != nil {
			logrus.Warn(err)
		}
		return writeJSON(cmd, res)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Aggregate all shards covering a region",
	Long: `run finds the shards covering the Region, looks up the data sources for
each shard in the Catalog, aggregates them, and writes the results to the
Output location under a subdirectory named after the run identifier.
Shards are processed southernmost first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, err := RunConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		if Cfg.GetBool("DryRun") {
			plan, err := Plan(ctx, cfg, logrus.StandardLogger())
			if err != nil {
				return err
			}
			for _, p := range plan {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", p.Shard, p.Sources)
			}
			return nil
		}
		report, id, err := Run(ctx, cfg, logrus.StandardLogger())
		if report != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d shards, %d failed, %d empty, %d cells, %d observations\n",
				id, len(report.Summaries), report.Failed, report.Empty, report.CellsWithData, report.TotalObs)
		}
		return err
	},
	DisableAutoGenTag: true,
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	e := json.NewEncoder(cmd.OutOrStdout())
	e.SetIndent("", "  ")
	return e.Encode(v)
}
