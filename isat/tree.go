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

package isat

import (
	"gonum.org/v1/gonum/mat"

	"github.com/google/uuid"
)

// ref addresses either a node or a leaf by arena index. The tree lives in
// two parallel arenas instead of a single pointer-linked structure; using
// (index, isLeaf) pairs instead of *node/*Leaf pointers sidesteps the
// back-reference cycle between a leaf and its parent node, since an index
// is not an owning pointer.
type ref struct {
	idx  int
	leaf bool
}

var nilRef = ref{idx: -1}

func (r ref) valid() bool { return r.idx >= 0 }

// node is an internal binary-tree node: a cutting hyperplane (v, a) that
// routes a query to the left child when v.phi - a <= 0 and to the right
// child otherwise.
type node struct {
	v           []float64
	a           float64
	left, right ref
	parent      ref
}

// Leaf is one cached linearization: a tabulation point Phi (species
// concentrations with temperature and pressure in the last two slots), its
// mapping result R, the Jacobian A used for linear interpolation, and the
// factor L of the ellipsoid of accuracy in scaled coordinates. Tau carries
// the chemical time scale measured when the point was tabulated.
// NUsed/NGrown/LastUsed back the retrieval and growth statistics the Facade
// reports; ID is a diagnostic handle suitable for logging or an Observer,
// not used by any cache logic itself.
type Leaf struct {
	ID     uuid.UUID
	Phi    []float64
	R      []float64
	A      *mat.Dense
	L      *mat.Dense
	Tau    float64
	Parent ref
	alive  bool

	NUsed, NGrown int
	LastUsed      int64
}

// Record is the read-only view of a cached leaf returned to callers.
type Record struct {
	ID            uuid.UUID
	Phi           []float64
	R             []float64
	A             *mat.Dense
	Tau           float64
	NUsed, NGrown int
}

// Handle identifies a specific cached leaf for a later Grow call. It is
// only valid until the next Add, Balance, or Clear call on the same Cache.
type Handle struct {
	idx int
}

func recordOf(l *Leaf) *Record {
	return &Record{
		ID:     l.ID,
		Phi:    l.Phi,
		R:      l.R,
		A:      l.A,
		Tau:    l.Tau,
		NUsed:  l.NUsed,
		NGrown: l.NGrown,
	}
}
