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

package integrator

import (
	"context"
	"testing"

	"github.com/spatialmodel/tdac/dac"
	"github.com/spatialmodel/tdac/kinetics/simplemech"
	"github.com/spatialmodel/tdac/state"
)

func TestIntegrateConservesInactiveSpecies(t *testing.T) {
	kin := simplemech.New()
	mask := make([]bool, kin.NumSpecies())
	mask[0] = true // only CH4 active; every other species is frozen
	si := &StiffIntegrator{Kin: kin, NSubsteps: 2}

	c := make([]float64, kin.NumSpecies())
	c[0] = 0.1
	c[1] = 0.2
	phi := state.Phi{C: c, T: 1200, P: 101325}

	out, err := si.Integrate(context.Background(), phi, dac.Reduction{Active: mask}, 0, 1e-3)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if out.C[1] != c[1] {
		t.Fatalf("inactive species O2 changed: got %v, want %v", out.C[1], c[1])
	}
}

func TestIntegrateSkipsDisabledReactions(t *testing.T) {
	kin := simplemech.New()
	si := New(kin)

	disabled := make([]bool, len(kin.Reactions()))
	for i := range disabled {
		disabled[i] = true
	}

	c := make([]float64, kin.NumSpecies())
	c[0] = 0.05
	c[1] = 0.21
	c[5] = 1e-5
	phi := state.Phi{C: c, T: 1800, P: 101325}

	out, err := si.Integrate(context.Background(), phi, dac.Reduction{DisabledRxn: disabled}, 0, 1e-4)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	for i, v := range out.C {
		if v != c[i] {
			t.Fatalf("species %d changed with every reaction disabled: got %v, want %v", i, v, c[i])
		}
	}
}

func TestIntegrateKeepsConcentrationsNonNegative(t *testing.T) {
	kin := simplemech.New()
	si := New(kin)
	si.NSubsteps = 8

	c := make([]float64, kin.NumSpecies())
	c[0] = 0.05 // CH4
	c[1] = 0.21 // O2
	c[5] = 1e-5 // OH, small seed to kick off chemistry
	phi := state.Phi{C: c, T: 1800, P: 101325}

	out, err := si.Integrate(context.Background(), phi, dac.Reduction{}, 0, 1e-4)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	for i, v := range out.C {
		if v < 0 {
			t.Fatalf("species %d went negative: %v", i, v)
		}
	}
}

func TestIntegrateRespectsCancellation(t *testing.T) {
	kin := simplemech.New()
	si := New(kin)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	phi := state.Phi{C: make([]float64, kin.NumSpecies()), T: 300, P: 101325}
	if _, err := si.Integrate(ctx, phi, dac.Reduction{}, 0, 1); err == nil {
		t.Fatalf("expected Integrate to report the cancelled context")
	}
}
