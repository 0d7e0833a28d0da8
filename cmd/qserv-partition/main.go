// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command qserv-partition is the offline bulk partitioner: it reads a
// director-table or match-table CSV, spatially partitions it via the
// map-reduce engine, and writes per-chunk output files plus a merged
// chunk index.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/qservgo/libraries/chunker"
	"github.com/lsst-dm/qservgo/libraries/chunkindex"
	"github.com/lsst-dm/qservgo/libraries/mapreduce"
	"github.com/lsst-dm/qservgo/libraries/partition"
	"github.com/lsst-dm/qservgo/libraries/utils/argparser"
	"github.com/lsst-dm/qservgo/libraries/utils/filesys"
)

// config is the partitioner's ambient configuration surface. CLI flags
// parsed by argparser override whatever a --config TOML file supplies.
type config struct {
	Part struct {
		Type                   string  `toml:"type"` // "pos" or "match"
		Prefix                 string  `toml:"prefix"`
		ChunkCol               int     `toml:"chunk"`
		SubChunkCol            int     `toml:"sub-chunk"`
		LonCol                 int     `toml:"lon"`
		LatCol                 int     `toml:"lat"`
		NumStripes             int32   `toml:"num-stripes"`
		NumSubStripesPerStripe int32   `toml:"num-sub-stripes-per-stripe"`
		Overlap                float64 `toml:"overlap"`

		// Match-table columns: the two endpoints' positions or director
		// IDs, plus the director index file ID mode resolves against.
		Pos1LonCol      int    `toml:"pos1-lon"`
		Pos1LatCol      int    `toml:"pos1-lat"`
		Pos2LonCol      int    `toml:"pos2-lon"`
		Pos2LatCol      int    `toml:"pos2-lat"`
		Id1Col          int    `toml:"id1"`
		Id2Col          int    `toml:"id2"`
		IdIndexPath     string `toml:"id-index"`
		Id1MissingAbort bool   `toml:"id1-missing-abort"`
		Id2MissingAbort bool   `toml:"id2-missing-abort"`
	} `toml:"part"`
	Out struct {
		Dir      string `toml:"dir"`
		NumNodes int    `toml:"num-nodes"`
	} `toml:"out"`
	Mr struct {
		BlockSizeMiB int `toml:"block-size"`
		NumWorkers   int `toml:"num-workers"`
		PoolSizeMiB  int `toml:"pool-size"`
	} `toml:"mr"`
}

func defaultConfig() config {
	var c config
	c.Part.Type = "pos"
	c.Part.Prefix = "chunk"
	c.Part.LonCol = 1
	c.Part.LatCol = 2
	c.Part.NumStripes = 18
	c.Part.NumSubStripesPerStripe = 5
	c.Part.Overlap = 0.01667
	c.Out.Dir = "."
	c.Out.NumNodes = 1
	c.Mr.BlockSizeMiB = 8
	c.Mr.NumWorkers = 4
	c.Mr.PoolSizeMiB = 256
	return c
}

func newParser() *argparser.ArgParser {
	ap := argparser.NewArgParserWithVariableArgs("qserv-partition")
	ap.SupportsString("config", "c", "path", "TOML configuration file")
	ap.SupportsString("part.type", "", "pos|match", "partition a positional or a match table")
	ap.SupportsString("out.dir", "", "dir", "output directory")
	ap.SupportsInt("out.num-nodes", "", "n", "number of output nodes, 1-99999")
	ap.SupportsInt("mr.num-workers", "", "n", "map-reduce worker pool size")
	ap.SupportsInt("mr.block-size", "", "mib", "input block size in MiB")
	ap.SupportsInt("mr.pool-size", "", "mib", "silo pool size in MiB")
	ap.SupportsString("part.prefix", "", "prefix", "output file prefix")
	ap.SupportsString("part.id-index", "", "path", "director index TSV for match-table ID mode")
	return ap
}

func loadConfig(path string) (config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return config{}, errors.Wrapf(err, "decoding config file %q", path)
	}
	return c, nil
}

func applyOverrides(c *config, res *argparser.ArgParseResults) {
	if v, ok := res.GetValue("part.type"); ok {
		c.Part.Type = v
	}
	if v, ok := res.GetValue("out.dir"); ok {
		c.Out.Dir = v
	}
	if v, ok := res.GetInt("out.num-nodes"); ok {
		c.Out.NumNodes = v
	}
	if v, ok := res.GetInt("mr.num-workers"); ok {
		c.Mr.NumWorkers = v
	}
	if v, ok := res.GetInt("mr.block-size"); ok {
		c.Mr.BlockSizeMiB = v
	}
	if v, ok := res.GetInt("mr.pool-size"); ok {
		c.Mr.PoolSizeMiB = v
	}
	if v, ok := res.GetValue("part.prefix"); ok {
		c.Part.Prefix = v
	}
	if v, ok := res.GetValue("part.id-index"); ok {
		c.Part.IdIndexPath = v
	}
}

// loadObjectIndex reads a director index dump (TSV: id, chunkId,
// subChunkId) into memory for match-table ID mode.
func loadObjectIndex(path string) (*partition.MapObjectIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening director index %q", path)
	}
	defer f.Close()

	idx := partition.NewMapObjectIndex()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		chunkId, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "director index %q has non-numeric chunk id %q", path, fields[1])
		}
		subChunkId, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "director index %q has non-numeric sub-chunk id %q", path, fields[2])
		}
		idx.Set(fields[0], chunker.ChunkLocation{ChunkId: int32(chunkId), SubChunkId: int32(subChunkId)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading director index %q", path)
	}
	return idx, nil
}

func newWorkerFactory(cfg config, ck *chunker.Chunker, fs filesys.Filesys) (func(rank int) mapreduce.Worker[int64], error) {
	switch cfg.Part.Type {
	case "", "pos":
		return func(rank int) mapreduce.Worker[int64] {
			return partition.NewPositionalWorker(partition.PositionalConfig{
				Chunker:     ck,
				FS:          fs,
				OutDir:      cfg.Out.Dir,
				Prefix:      cfg.Part.Prefix,
				NumNodes:    cfg.Out.NumNodes,
				LonCol:      cfg.Part.LonCol,
				LatCol:      cfg.Part.LatCol,
				WithOverlap: cfg.Part.Overlap > 0,
			})
		}, nil
	case "match":
		mcfg := partition.MatchConfig{
			Chunker:         ck,
			FS:              fs,
			OutDir:          cfg.Out.Dir,
			Prefix:          cfg.Part.Prefix,
			NumNodes:        cfg.Out.NumNodes,
			Mode:            partition.PositionMode,
			Pos1LonCol:      cfg.Part.Pos1LonCol,
			Pos1LatCol:      cfg.Part.Pos1LatCol,
			Pos2LonCol:      cfg.Part.Pos2LonCol,
			Pos2LatCol:      cfg.Part.Pos2LatCol,
			Id1Col:          cfg.Part.Id1Col,
			Id2Col:          cfg.Part.Id2Col,
			Id1MissingAbort: cfg.Part.Id1MissingAbort,
			Id2MissingAbort: cfg.Part.Id2MissingAbort,
			OverlapDegrees:  cfg.Part.Overlap,
		}
		if cfg.Part.IdIndexPath != "" {
			idx, err := loadObjectIndex(cfg.Part.IdIndexPath)
			if err != nil {
				return nil, err
			}
			mcfg.Mode = partition.IDMode
			mcfg.ObjIndex = idx
		}
		return func(rank int) mapreduce.Worker[int64] {
			return partition.NewMatchWorker(mcfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown part.type %q, want pos or match", cfg.Part.Type)
	}
}

func run(args []string) error {
	ap := newParser()
	res, err := ap.Parse(args)
	if err != nil {
		return err
	}
	if res.NArg() < 1 {
		return fmt.Errorf("usage: qserv-partition [options] <input.csv>")
	}

	cfgPath, _ := res.GetValue("config")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, res)

	fs := filesys.LocalFS
	inputPath := res.Arg(0)
	f, err := os.Open(inputPath)
	if err != nil {
		return errors.Wrapf(err, "opening input file %q", inputPath)
	}
	defer f.Close()

	var inputBytes uint64
	if info, err := f.Stat(); err == nil {
		inputBytes = uint64(info.Size())
	}
	logrus.WithFields(logrus.Fields{
		"input":   inputPath,
		"size":    humanize.IBytes(inputBytes),
		"type":    cfg.Part.Type,
		"workers": cfg.Mr.NumWorkers,
	}).Info("qserv-partition: starting")

	ck := chunker.New(cfg.Part.NumStripes, cfg.Part.NumSubStripesPerStripe, cfg.Part.Overlap)
	input := mapreduce.NewLineReader(f, cfg.Mr.BlockSizeMiB*1024*1024)

	newWorker, err := newWorkerFactory(cfg, ck, fs)
	if err != nil {
		return err
	}

	less := func(a, b int64) bool { return a < b }

	engine := mapreduce.New[int64](mapreduce.Params{
		BlockSizeMiB: cfg.Mr.BlockSizeMiB,
		NumWorkers:   cfg.Mr.NumWorkers,
		PoolSizeMiB:  cfg.Mr.PoolSizeMiB,
	}, input, less, partition.ChunkKeyHash, newWorker)

	if err := engine.Run(); err != nil {
		return errors.Wrapf(err, "partitioning %q", inputPath)
	}

	merged := chunkindex.New()
	for _, r := range engine.Results() {
		if ci, ok := r.(*chunkindex.ChunkIndex); ok {
			merged.Merge(ci)
		}
	}

	indexPath := fmt.Sprintf("%s/%s_index.bin", cfg.Out.Dir, cfg.Part.Prefix)
	if err := merged.Write(fs, indexPath, true); err != nil {
		return errors.Wrapf(err, "writing chunk index %q", indexPath)
	}

	stats := merged.ChunkStats()
	logrus.WithFields(logrus.Fields{
		"chunks": stats.Count,
		"rows":   humanize.Comma(int64(stats.Sum)),
		"index":  indexPath,
	}).Info("qserv-partition: done")

	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
