/*
Copyright © 2024 the TDAC authors.
This file is part of TDAC.

TDAC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TDAC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TDAC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command tdac is the command-line entry point for the acceleration core.
// main only builds and executes a cobra root command; all flag registration
// and subcommand wiring happens in rootCmd.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tdac",
		Short: "tdac accelerates chemistry integration with DAC and ISAT",
		Long: "tdac runs a tabulated dynamic adaptive chemistry acceleration core: " +
			"it reduces and tabulates chemistry solves so that repeated or " +
			"nearby cell states can be answered from cache instead of full " +
			"integration.",
	}

	demo := newDemoCmd()

	registerOptions([]option{
		{name: "config", usage: "path to a TOML config file", defaultVal: "",
			flagsets: []*pflag.FlagSet{root.PersistentFlags()}},
		{name: "cells", usage: "number of synthetic cells to solve", defaultVal: 100,
			flagsets: []*pflag.FlagSet{demo.Flags()}},
		{name: "dt", usage: "integration step, seconds", defaultVal: 1e-4,
			flagsets: []*pflag.FlagSet{demo.Flags()}},
		{name: "fuel", usage: "fuel species name seeding DAC's search-initiating set", defaultVal: "CH4",
			flagsets: []*pflag.FlagSet{demo.Flags()}},
	})

	root.AddCommand(demo)
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the tdac version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "tdac (development build)")
			return nil
		},
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
