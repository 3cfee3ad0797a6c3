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

// Package integrator provides StiffIntegrator, a fixed-step Runge-Kutta
// integrator used by tests and the cmd/tdac demo to exercise tdac.Solver
// end to end: a package-level coefficient table plus a substep loop behind
// the single black-box Integrate(phi, red, t0, dt) call the Facade expects.
// It is explicitly a reference collaborator, not a production
// stiff-chemistry solver: real deployments are expected to supply their own
// tdac.Integrator backed by a validated ODE package.
package integrator

import (
	"context"
	"fmt"

	"github.com/spatialmodel/tdac/dac"
	"github.com/spatialmodel/tdac/errs"
	"github.com/spatialmodel/tdac/kinetics"
	"github.com/spatialmodel/tdac/state"
)

// classicRK is the Butcher tableau for the classic fourth-order
// Runge-Kutta method, kept as a package-level table rather than recomputed
// per step.
var classicRK = struct {
	c    [4]float64
	a    [4][4]float64
	b    [4]float64
}{
	c: [4]float64{0, 0.5, 0.5, 1},
	b: [4]float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
	a: [4][4]float64{
		{},
		{0.5},
		{0, 0.5},
		{0, 0, 1},
	},
}

// StiffIntegrator integrates a kinetics.Kinetics mechanism's species
// concentrations forward in time at fixed temperature and pressure, over
// NSubsteps equal substeps of classic RK4, per reduced-system call. Each
// Integrate call receives the dac.Reduction for the state being advanced
// and honors it in place: reactions the reduction disabled are skipped and
// inactive species keep their concentrations, so the caller never needs to
// compact the state vector.
type StiffIntegrator struct {
	Kin       kinetics.Kinetics
	NSubsteps int
}

// New constructs a StiffIntegrator over kin with a reasonable default
// substep count.
func New(kin kinetics.Kinetics) *StiffIntegrator {
	return &StiffIntegrator{Kin: kin, NSubsteps: 4}
}

// derivative computes dC/dt from the net rates of the reactions the
// reduction left enabled, zeroing inactive species' derivatives and
// reporting a KineticsError for any rate that evaluates to a non-finite
// value rather than propagating NaNs into the state. Nil masks mean the
// full mechanism.
func (si *StiffIntegrator) derivative(c []float64, t, p float64, active, disabled []bool) ([]float64, error) {
	n := len(c)
	dcdt := make([]float64, n)
	for ri, rxn := range si.Kin.Reactions() {
		if disabled != nil && disabled[ri] {
			continue
		}
		omega, _, _, _, _, _, _ := si.Kin.Omega(rxn, c, t, p)
		if isNonFinite(omega) {
			return nil, &errs.KineticsError{Msg: fmt.Sprintf("non-finite reaction rate at T=%g", t)}
		}
		for _, part := range rxn.LHS {
			if active == nil || active[part.Species] {
				dcdt[part.Species] -= part.StoichCoeff * omega
			}
		}
		for _, part := range rxn.RHS {
			if active == nil || active[part.Species] {
				dcdt[part.Species] += part.StoichCoeff * omega
			}
		}
	}
	return dcdt, nil
}

// Integrate advances phi by dt starting at t0 under red's species and
// reaction masks, holding temperature and pressure fixed across the step
// (a simplification appropriate for a reference/test integrator;
// production integrators are expected to couple energy and species
// equations). A zero-value red integrates the full mechanism. It satisfies
// tdac's Integrator interface structurally.
func (si *StiffIntegrator) Integrate(ctx context.Context, phi state.Phi, red dac.Reduction, t0, dt float64) (state.Phi, error) {
	if err := ctx.Err(); err != nil {
		return state.Phi{}, err
	}
	if si.NSubsteps <= 0 {
		return state.Phi{}, &errs.ConfigError{Msg: "integrator: NSubsteps must be positive"}
	}

	h := dt / float64(si.NSubsteps)
	c := append([]float64(nil), phi.C...)

	for step := 0; step < si.NSubsteps; step++ {
		if err := ctx.Err(); err != nil {
			return state.Phi{}, err
		}
		t := t0 + float64(step)*h

		var k [4][]float64
		for stage := 0; stage < 4; stage++ {
			trial := append([]float64(nil), c...)
			for s := 0; s < stage; s++ {
				coeff := classicRK.a[stage][s]
				if coeff == 0 {
					continue
				}
				for i := range trial {
					trial[i] += h * coeff * k[s][i]
				}
			}
			var err error
			k[stage], err = si.derivative(trial, t+classicRK.c[stage]*h, phi.P, red.Active, red.DisabledRxn)
			if err != nil {
				return state.Phi{}, err
			}
		}

		for i := range c {
			var sum float64
			for stage := 0; stage < 4; stage++ {
				sum += classicRK.b[stage] * k[stage][i]
			}
			c[i] += h * sum
			if c[i] < 0 {
				c[i] = 0
			}
		}
	}

	return state.Phi{C: c, T: phi.T, P: phi.P}, nil
}

func isNonFinite(x float64) bool {
	return x != x || x > 1e308 || x < -1e308
}
