// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/nestedset/kvstore"
	"github.com/cockroachdb/nestedset/pgstore"
	"github.com/cockroachdb/pebble"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// env holds the global flags and the lazily opened store shared by all
// commands.
type env struct {
	storeLocator string
	optionsPath  string
	verbose      bool
	metricsAddr  string
	attrs        []string

	engine  *nestedset.Engine[*nestedset.Node]
	closers []func() error
}

// loadOptions reads the options file, if any, and wires the logging event
// listener and metrics according to the flags.
func (e *env) loadOptions() (*nestedset.Options, error) {
	opts := &nestedset.Options{}
	if e.optionsPath != "" {
		data, err := os.ReadFile(e.optionsPath)
		if err != nil {
			return nil, err
		}
		if err := opts.Parse(string(data), nil); err != nil {
			return nil, errors.Wrapf(err, "%s", e.optionsPath)
		}
	}
	if e.verbose {
		l := nestedset.MakeLoggingEventListener(opts.Logger)
		opts.EventListener = &l
	}
	if e.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Metrics = nestedset.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: e.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics: %v", err)
			}
		}()
		e.closers = append(e.closers, srv.Close)
	}
	return opts, nil
}

// openStore interprets locator as pebble:mem, pebble:<dir> or a PostgreSQL URL.
func openStore(
	ctx context.Context, locator string, opts *nestedset.Options,
) (nestedset.Storage, func() error, error) {
	switch {
	case locator == "pebble:mem":
		s, err := kvstore.OpenMem()
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case strings.HasPrefix(locator, "pebble:"):
		s, err := kvstore.Open(strings.TrimPrefix(locator, "pebble:"), &pebble.Options{})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case strings.HasPrefix(locator, "postgres://"), strings.HasPrefix(locator, "postgresql://"):
		pool, err := pgxpool.New(ctx, locator)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to postgres")
		}
		s, err := pgstore.New(pool, opts)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, errors.Newf("unrecognized store %q", locator)
	}
}

// Engine returns the engine, opening the store on first use.
func (e *env) Engine(ctx context.Context) (*nestedset.Engine[*nestedset.Node], error) {
	if e.engine != nil {
		return e.engine, nil
	}
	opts, err := e.loadOptions()
	if err != nil {
		return nil, err
	}
	store, closeFn, err := openStore(ctx, e.storeLocator, opts)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeFn)
	e.engine, err = nestedset.New(store, opts)
	if err != nil {
		return nil, err
	}
	return e.engine, nil
}

// Close releases everything Engine opened, in reverse order.
func (e *env) Close() error {
	var err error
	for i := len(e.closers) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, e.closers[i]())
	}
	e.closers = nil
	e.engine = nil
	return err
}
