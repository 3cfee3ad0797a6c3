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

package linalg

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestApply(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	got := Apply(a, []float64{1, 1})
	want := []float64{3, 7}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("Apply()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGrowEOACoversNewPoint(t *testing.T) {
	l := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	d := []float64{2, 0}

	ok := GrowEOA(l, d)
	if !ok {
		t.Fatalf("GrowEOA reported no growth for a point outside the unit ellipsoid")
	}

	ld := Apply(l, d)
	norm := math.Hypot(ld[0], ld[1])
	if math.Abs(norm-1) > 1e-9 {
		t.Fatalf("growth did not land d on the new boundary: ||L*d|| = %v", norm)
	}
}

func TestGrowEOAPreservesOldEllipsoid(t *testing.T) {
	l := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	old := mat.DenseCopyOf(l)

	d := []float64{3, 4}
	if !GrowEOA(l, d) {
		t.Fatalf("expected growth")
	}

	// Sample points on the boundary of the old ellipsoid and check they
	// remain inside the new one.
	for theta := 0.0; theta < 2*math.Pi; theta += 0.3 {
		w := []float64{math.Cos(theta), math.Sin(theta)}
		// w is already on the old unit sphere, i.e. ||old*w|| == 1.
		oldNorm := math.Hypot(Apply(old, w)[0], Apply(old, w)[1])
		if math.Abs(oldNorm-1) > 1e-9 {
			t.Fatalf("test point not on old boundary, got %v", oldNorm)
		}
		newNorm := math.Hypot(Apply(l, w)[0], Apply(l, w)[1])
		if newNorm > 1+1e-9 {
			t.Fatalf("point on old boundary fell outside new ellipsoid: %v", newNorm)
		}
	}
}

func TestGrowEOARejectsPointAlreadyInside(t *testing.T) {
	l := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	if GrowEOA(l, []float64{0.1, 0.1}) {
		t.Fatalf("expected GrowEOA to reject a point already inside the ellipsoid")
	}
}

func TestUpdateJacobianBroydenMatchesSecant(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	dphi := []float64{1, 0}
	dR := []float64{2, 1}

	UpdateJacobianBroyden(a, dphi, dR)

	got := Apply(a, dphi)
	for i := range dR {
		if math.Abs(got[i]-dR[i]) > 1e-9 {
			t.Fatalf("updated Jacobian does not satisfy secant equation: A*dphi[%d] = %v, want %v", i, got[i], dR[i])
		}
	}
}

func TestUpdateJacobianBroydenSkipsZeroStep(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	before := mat.DenseCopyOf(a)

	UpdateJacobianBroyden(a, []float64{0, 0}, []float64{5, 5})

	if !mat.Equal(a, before) {
		t.Fatalf("zero-step update should leave the Jacobian unchanged")
	}
}
