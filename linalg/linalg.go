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

// Package linalg holds the small set of dense linear-algebra kernels the
// ISAT cache needs: applying the stored Jacobian to a state perturbation,
// growing an ellipsoid of accuracy to cover a point that just missed it,
// and updating a Jacobian approximation with a Broyden rank-one step. All
// three sit on top of gonum/mat rather than hand-rolled loops.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// singularFloor is the smallest singular value GrowEOA will tolerate before
// refusing to grow; below it the update is numerically meaningless.
const singularFloor = 1e-30

// Apply returns A*dphi.
func Apply(a *mat.Dense, dphi []float64) []float64 {
	r, _ := a.Dims()
	in := mat.NewVecDense(len(dphi), dphi)
	out := mat.NewVecDense(r, nil)
	out.MulVec(a, in)
	return out.RawVector().Data
}

// GrowEOA enlarges the ellipsoid of accuracy described by the Cholesky
// factor L (L^T*L is the shape matrix) so that it exactly contains the
// direction of d, a state that tested outside the current ellipsoid. It
// implements the rank-one update from Pope's ISAT growth algorithm: with
// u = L*d/||L*d|| and alpha = 1 - 1/||L*d||, the new factor is
//
//	L' = (I - alpha*u*u^T) * L
//
// This both places d exactly on the new ellipsoid's boundary and provably
// keeps every point the old ellipsoid contained inside the new one. L is
// updated in place. GrowEOA returns false, leaving L unchanged, when d is
// (numerically) already inside the ellipsoid or the update would be
// singular; callers should treat that as a rejected growth attempt.
func GrowEOA(l *mat.Dense, d []float64) bool {
	n := len(d)
	dVec := mat.NewVecDense(n, append([]float64(nil), d...))

	ld := mat.NewVecDense(n, nil)
	ld.MulVec(l, dVec)
	ldNorm := mat.Norm(ld, 2)
	if ldNorm <= 1 || math.IsNaN(ldNorm) || math.IsInf(ldNorm, 0) {
		// d is already inside (or on) the current ellipsoid; nothing to grow.
		return false
	}

	dNorm := mat.Norm(dVec, 2)
	if dNorm == 0 {
		return false
	}
	u := mat.NewVecDense(n, nil)
	u.ScaleVec(1/ldNorm, ld)

	alpha := 1 - 1/ldNorm

	var uut mat.Dense
	uut.Outer(1, u, u)

	t := mat.NewDense(n, n, nil)
	t.Scale(-alpha, &uut)
	for i := 0; i < n; i++ {
		t.Set(i, i, t.At(i, i)+1)
	}

	var svd mat.SVD
	if ok := svd.Factorize(t, mat.SVDNone); ok {
		sv := svd.Values(nil)
		if len(sv) > 0 && sv[len(sv)-1] < singularFloor {
			return false
		}
	}

	var lNew mat.Dense
	lNew.Mul(t, l)
	l.Copy(&lNew)
	return true
}

// UpdateJacobianBroyden updates the Jacobian approximation a in place given
// an observed state change dphi and the corresponding change in mapping
// output dR, using the classic rank-one secant (Broyden) update:
//
//	A' = A + ((dR - A*dphi) * dphi^T) / (dphi^T * dphi)
//
// If dphi is (numerically) zero the update is skipped, since the secant
// direction is undefined.
func UpdateJacobianBroyden(a *mat.Dense, dphi, dR []float64) {
	n := len(dphi)
	dphiVec := mat.NewVecDense(n, append([]float64(nil), dphi...))
	denom := mat.Dot(dphiVec, dphiVec)
	if denom == 0 {
		return
	}

	aDphi := Apply(a, dphi)
	residual := make([]float64, n)
	for i := range residual {
		residual[i] = dR[i] - aDphi[i]
	}
	residualVec := mat.NewVecDense(n, residual)

	var correction mat.Dense
	correction.Outer(1/denom, residualVec, dphiVec)
	a.Add(a, &correction)
}
