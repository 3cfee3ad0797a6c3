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

// Package state holds the thermochemical state vector shared by the root
// tdac package and its dac/isat subpackages. It exists as its own leaf
// package, with no dependencies of its own, so that dac and isat can accept
// and return Phi values without importing the root tdac package, which
// itself imports dac and isat.
package state

// Phi is a cell's thermochemical state: species mass (or mole) fractions
// plus temperature and pressure. The root tdac package exposes this same
// type as tdac.Phi.
type Phi struct {
	C    []float64
	T, P float64
}

// Clone returns a deep copy of phi.
func (phi Phi) Clone() Phi {
	return Phi{C: append([]float64(nil), phi.C...), T: phi.T, P: phi.P}
}
