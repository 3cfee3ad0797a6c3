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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spatialmodel/tdac"
	"github.com/spatialmodel/tdac/config"
	"github.com/spatialmodel/tdac/integrator"
	"github.com/spatialmodel/tdac/kinetics/simplemech"
)

// newDemoCmd returns the "demo" subcommand. Its flags (cells, dt, fuel) and
// the inherited --config persistent flag are registered by registerOptions
// in rootCmd, not here, so RunE reads every value back out of the flag set
// by name instead of closing over bound variables.
func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "solve a small batch of synthetic cells and report cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			nCells, err := cmd.Flags().GetInt("cells")
			if err != nil {
				return err
			}
			dt, err := cmd.Flags().GetFloat64("dt")
			if err != nil {
				return err
			}
			fuel, err := cmd.Flags().GetString("fuel")
			if err != nil {
				return err
			}
			cfgFile, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			cfg := config.Default()
			if cfgFile != "" {
				loaded, err := config.Load(cfgFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cfg.AutomaticSIS && len(cfg.FuelSpecies) == 0 {
				cfg.FuelSpecies = map[string]float64{fuel: 1}
			}

			log := newLogger(cfg.LogLevel)
			observer := tdac.NewLogObserver(log)

			kin := simplemech.New()
			integ := integrator.New(kin)
			solver, err := tdac.New(tdac.Config{
				EpsDAC:           cfg.EpsDAC,
				AutomaticSIS:     cfg.AutomaticSIS,
				SearchInitSet:    cfg.SearchInitSet,
				FuelSpecies:      cfg.FuelSpecies,
				NbCLarge:         cfg.NbCLarge,
				PhiTol:           cfg.PhiTol,
				NOxThreshold:     cfg.NOxThreshold,
				Tolerance:        cfg.ISAT.Tolerance,
				MaxElements:      cfg.ISAT.MaxElements,
				MaxBalanceTests:  cfg.ISAT.MaxNbBalanceTest,
				BalanceThreshold: cfg.ISAT.BalanceThreshold,
				Max2ndSearch:     cfg.ISAT.Max2ndSearch,
				ScaleFactor:      cfg.ScaleFactor,
			}, kin, integ, observer)
			if err != nil {
				return err
			}

			ctx := context.Background()
			for i := 0; i < nCells; i++ {
				phi := syntheticCell(kin, i)
				if _, _, err := solver.Solve(ctx, phi, 0, dt); err != nil {
					return fmt.Errorf("cell %d: %w", i, err)
				}
			}

			return solver.Report(cmd.OutOrStdout())
		},
	}
	return cmd
}

// syntheticCell builds a deterministic, slowly-varying composition so that
// repeated demo runs exercise both cache hits (nearby cells) and misses
// (the first cell, and any cell far from what has been cached so far).
func syntheticCell(kin *simplemech.Mechanism, i int) tdac.Phi {
	c := make([]float64, kin.NumSpecies())
	jitter := float64(i%5) * 1e-4
	c[0] = 0.1 + jitter  // CH4
	c[1] = 0.2 - jitter  // O2
	c[5] = 1e-7          // OH seed
	c[13] = 0.7          // N2
	return tdac.Phi{C: c, T: 1400 + float64(i%3)*5, P: 101325}
}
