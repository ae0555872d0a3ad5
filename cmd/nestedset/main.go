// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false

	e := &env{}
	rootCmd := newRootCmd(e)
	err := rootCmd.Execute()
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every command shares e, which opens
// the store on first use.
func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nestedset [command] (flags)",
		Short:        "nested-set tree store introspection and benchmarking tool",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(
		&e.storeLocator, "store", "pebble:mem",
		"store to operate on: pebble:<dir>, pebble:mem or a postgres:// URL")
	rootCmd.PersistentFlags().StringVar(
		&e.optionsPath, "options", "", "path to an options file")
	rootCmd.PersistentFlags().BoolVarP(
		&e.verbose, "verbose", "v", false, "log every structural event")
	rootCmd.PersistentFlags().StringVar(
		&e.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(treeCommands(e)...)
	rootCmd.AddCommand(benchCommand(e))
	return rootCmd
}
