// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	randv1 "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/metamorphic"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/tokenbucket"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

const (
	opInsert = "insert"
	opMove   = "move"
	opDelete = "delete"
)

// benchMix is the operation mix of a tree below --max-nodes. cappedMix
// replaces it once the tree is full.
var (
	benchMix = metamorphic.Weighted[string]{
		{Item: opInsert, Weight: 5},
		{Item: opMove, Weight: 3},
		{Item: opDelete, Weight: 2},
	}
	cappedMix = metamorphic.Weighted[string]{
		{Item: opMove, Weight: 3},
		{Item: opDelete, Weight: 2},
	}
)

var benchConfig struct {
	concurrency int
	duration    time.Duration
	tick        time.Duration
	rate        float64
	seed        uint64
	maxNodes    int
	treeBase    int64
}

func benchCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "run a concurrent insert/move/delete workload",
		Long: `
Run concurrent workers, each owning one tree key, that issue a random mix of
inserts, moves and deletes. Per-operation latencies are reported every tick
and summarized at the end, after which every tree is checked.
`,
		Args: cobra.NoArgs,
		RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
			return runBench(ctx, eng, w)
		}),
	}
	cmd.Flags().IntVarP(
		&benchConfig.concurrency, "concurrency", "c", 4, "number of concurrent workers")
	cmd.Flags().DurationVarP(
		&benchConfig.duration, "duration", "d", 10*time.Second, "the duration to run")
	cmd.Flags().DurationVar(
		&benchConfig.tick, "tick", time.Second, "the interval between progress lines")
	cmd.Flags().Float64Var(
		&benchConfig.rate, "rate", 0, "maximum operations per second across workers (0 for unlimited)")
	cmd.Flags().Uint64Var(
		&benchConfig.seed, "seed", 0, "random seed (0 picks one from the clock)")
	cmd.Flags().IntVar(
		&benchConfig.maxNodes, "max-nodes", 200, "stop inserting once a tree holds this many nodes")
	cmd.Flags().Int64Var(
		&benchConfig.treeBase, "tree-base", 1000, "tree key of the first worker")
	return cmd
}

// rateLimiter shares a token bucket between workers.
type rateLimiter struct {
	mu sync.Mutex
	tb tokenbucket.TokenBucket
}

func newRateLimiter(rate float64) *rateLimiter {
	if rate <= 0 {
		return nil
	}
	l := &rateLimiter{}
	l.tb.Init(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(max(rate/10, 1)))
	return l
}

func (l *rateLimiter) wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	for {
		l.mu.Lock()
		ok, d := l.tb.TryToFulfill(1)
		l.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

// benchWorker mutates a single tree. ids[0] is the first root, which the
// worker never moves or deletes.
type benchWorker struct {
	eng      *engine
	treeKey  int64
	rng      *rand.Rand
	mix      func() string
	capped   func() string
	ids      []int64
	hists    map[string]*namedHistogram
	rejected *atomic.Int64
}

func (w *benchWorker) init(ctx context.Context) error {
	root, err := w.eng.PlantTree(ctx, nestedset.Attributes{"title": "root"}, w.treeKey)
	if err == nil {
		w.ids = []int64{root.PrimaryKey()}
		return nil
	}
	if !errors.Is(err, nestedset.ErrInvalidOperation) {
		return err
	}
	// The tree survives from an earlier run.
	return w.reload(ctx, 0)
}

// reload rebuilds the list of live ids, keeping first (when non-zero) at the
// front.
func (w *benchWorker) reload(ctx context.Context, first int64) error {
	rows, err := w.eng.Dump(ctx, w.treeKey)
	if err != nil {
		return err
	}
	if first == 0 && len(rows) > 0 {
		first = rows[0].ID
	}
	w.ids = append(w.ids[:0], first)
	for _, r := range rows {
		if r.ID != first {
			w.ids = append(w.ids, r.ID)
		}
	}
	return nil
}

func (w *benchWorker) pick() int64 {
	return w.ids[w.rng.Intn(len(w.ids))]
}

func (w *benchWorker) pickMovable() int64 {
	return w.ids[1+w.rng.Intn(len(w.ids)-1)]
}

func (w *benchWorker) nextOp() string {
	switch {
	case len(w.ids) < 2:
		return opInsert
	case len(w.ids) >= benchConfig.maxNodes:
		return w.capped()
	default:
		return w.mix()
	}
}

func (w *benchWorker) step(ctx context.Context) error {
	op := w.nextOp()
	start := time.Now()
	var err error
	switch op {
	case opInsert:
		var n *nestedset.Node
		n, err = w.eng.InsertIntoParent(ctx, nestedset.Attributes{"title": "node"}, w.pick())
		if err == nil {
			w.ids = append(w.ids, n.PrimaryKey())
		}
	case opMove:
		id, target := w.pickMovable(), w.pick()
		switch w.rng.Intn(3) {
		case 0:
			err = w.eng.MoveIntoParent(ctx, id, target)
		case 1:
			err = w.eng.MoveToNeighbor(ctx, id, target, nestedset.Before)
		default:
			err = w.eng.MoveToNeighbor(ctx, id, target, nestedset.After)
		}
	case opDelete:
		if err = w.eng.Delete(ctx, w.pickMovable()); err == nil {
			w.hists[op].Record(time.Since(start))
			return w.reload(ctx, w.ids[0])
		}
	}
	if nestedset.IsValidation(err) {
		// Moves into the node's own subtree or next to itself.
		w.rejected.Add(1)
		err = nil
	}
	w.hists[op].Record(time.Since(start))
	return err
}

func runBench(ctx context.Context, eng *engine, out io.Writer) error {
	seed := benchConfig.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	fmt.Fprintf(out, "seed: %d\n", seed)

	reg := newHistogramRegistry()
	limiter := newRateLimiter(benchConfig.rate)
	var rejected atomic.Int64

	workers := make([]*benchWorker, benchConfig.concurrency)
	for i := range workers {
		deck := randv1.New(randv1.NewSource(int64(seed) + int64(i)))
		workers[i] = &benchWorker{
			eng:      eng,
			treeKey:  benchConfig.treeBase + int64(i),
			rng:      rand.New(rand.NewSource(seed + uint64(i))),
			mix:      benchMix.RandomDeck(deck),
			capped:   cappedMix.RandomDeck(deck),
			rejected: &rejected,
			hists: map[string]*namedHistogram{
				opInsert: reg.Register(opInsert),
				opMove:   reg.Register(opMove),
				opDelete: reg.Register(opDelete),
			},
		}
		if err := workers[i].init(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, benchConfig.duration)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)
	for _, w := range workers {
		g.Go(func() error {
			for {
				if err := limiter.wait(gCtx); err != nil {
					return nil
				}
				if err := w.step(gCtx); err != nil {
					if gCtx.Err() != nil {
						return nil
					}
					return errors.Wrapf(err, "tree %d", w.treeKey)
				}
			}
		})
	}

	var throughput []float64
	cumulative := make(map[string]*hdrhistogram.Histogram)
	tick := func(print bool) {
		var ops float64
		reg.Tick(func(t histogramTick) {
			ops += float64(t.Hist.TotalCount()) / t.Elapsed.Seconds()
			cumulative[t.Name] = t.Cumulative
			if print {
				fmt.Fprintf(out, "%8s %-7s %10.1f %8.2f %8.2f %8.2f\n",
					time.Duration(time.Since(reg.start).Seconds()+0.5)*time.Second,
					t.Name,
					float64(t.Hist.TotalCount())/t.Elapsed.Seconds(),
					time.Duration(t.Hist.ValueAtQuantile(50)).Seconds()*1000,
					time.Duration(t.Hist.ValueAtQuantile(99)).Seconds()*1000,
					time.Duration(t.Hist.Max()).Seconds()*1000)
			}
		})
		throughput = append(throughput, ops)
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	ticker := time.NewTicker(benchConfig.tick)
	defer ticker.Stop()
	fmt.Fprintln(out, "_elapsed_op_______ops/sec___p50(ms)___p99(ms)__pMax(ms)")
	var err error
loop:
	for {
		select {
		case <-ticker.C:
			tick(true)
		case err = <-done:
			break loop
		}
	}
	tick(false)
	if err != nil {
		return err
	}

	elapsed := time.Since(reg.start)
	tbl := tablewriter.NewWriter(out)
	tbl.SetHeader([]string{"op", "ops", "ops/sec", "avg(ms)", "p50(ms)", "p95(ms)", "p99(ms)", "max(ms)"})
	for _, op := range []string{opInsert, opMove, opDelete} {
		h, ok := cumulative[op]
		if !ok {
			continue
		}
		ms := func(v int64) string {
			return fmt.Sprintf("%.2f", time.Duration(v).Seconds()*1000)
		}
		tbl.Append([]string{
			op,
			fmt.Sprint(h.TotalCount()),
			fmt.Sprintf("%.1f", float64(h.TotalCount())/elapsed.Seconds()),
			fmt.Sprintf("%.2f", h.Mean()/1e6),
			ms(h.ValueAtQuantile(50)),
			ms(h.ValueAtQuantile(95)),
			ms(h.ValueAtQuantile(99)),
			ms(h.Max()),
		})
	}
	tbl.Render()
	fmt.Fprintf(out, "rejected moves: %d\n", rejected.Load())

	if len(throughput) > 1 {
		fmt.Fprintln(out, asciigraph.Plot(throughput, asciigraph.Height(10), asciigraph.Caption("ops/sec")))
	}

	for _, w := range workers {
		if err := eng.Check(ctx, w.treeKey); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "verified %d trees\n", len(workers))
	return nil
}
