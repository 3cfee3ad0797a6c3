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

// Package simplemech is a small, self-contained reference mechanism used to
// exercise the DAC reducer and ISAT cache in tests and the cmd/tdac demo.
// It is not a validated combustion mechanism; it exists to give
// tdac/kinetics.Kinetics a genuine multi-species, multi-reaction body with
// realistic topology for the reducer's graph search to walk.
package simplemech

import (
	"math"

	"github.com/spatialmodel/tdac/kinetics"
)

// Universal gas constant, J mol^-1 K^-1.
const gasConstant = 8.314462618

// Species indices, in the order SpecieName/SpecieComp/SpecieThermo report
// them. The name-based lookups that automatic SIS selection relies on (CO,
// CO2, HO2, H2O, NO) are all present.
const (
	iCH4 int = iota
	iO2
	iCH3
	iCH2O
	iCHO
	iOH
	iH2O
	iCO
	iCO2
	iHO2
	iH
	iO
	iH2
	iN2
	iNO
	iN
	numSpecies
)

var names = [numSpecies]string{
	iCH4: "CH4", iO2: "O2", iCH3: "CH3", iCH2O: "CH2O", iCHO: "CHO",
	iOH: "OH", iH2O: "H2O", iCO: "CO", iCO2: "CO2", iHO2: "HO2",
	iH: "H", iO: "O", iH2: "H2", iN2: "N2", iNO: "NO", iN: "N",
}

// molar masses, g/mol.
var molarMass = [numSpecies]float64{
	iCH4: 16.0425, iO2: 31.9988, iCH3: 15.0345, iCH2O: 30.026, iCHO: 29.018,
	iOH: 17.0073, iH2O: 18.0153, iCO: 28.01, iCO2: 44.0095, iHO2: 33.0062,
	iH: 1.008, iO: 15.9994, iH2: 2.016, iN2: 28.0134, iNO: 30.0061, iN: 14.0067,
}

// elemental composition of each species.
var comp = [numSpecies]map[string]float64{
	iCH4:  {"C": 1, "H": 4},
	iO2:   {"O": 2},
	iCH3:  {"C": 1, "H": 3},
	iCH2O: {"C": 1, "H": 2, "O": 1},
	iCHO:  {"C": 1, "H": 1, "O": 1},
	iOH:   {"O": 1, "H": 1},
	iH2O:  {"H": 2, "O": 1},
	iCO:   {"C": 1, "O": 1},
	iCO2:  {"C": 1, "O": 2},
	iHO2:  {"H": 1, "O": 2},
	iH:    {"H": 1},
	iO:    {"O": 1},
	iH2:   {"H": 2},
	iN2:   {"N": 2},
	iNO:   {"N": 1, "O": 1},
	iN:    {"N": 1},
}

type thermo struct{ w float64 }

func (t thermo) W() float64 { return t.w }

type arrhenius struct {
	A, Ea float64 // pre-exponential factor, activation energy [J/mol]
}

func (rc arrhenius) rate(T float64) float64 {
	return rc.A * math.Exp(-rc.Ea/(gasConstant*T))
}

// rxn pairs a kinetics.Reaction topology with its forward Arrhenius
// parameters.
type rxn struct {
	kinetics.Reaction
	fwd arrhenius
}

// Mechanism is a toy 16-species, 10-reaction methane oxidation skeleton
// fulfilling tdac/kinetics.Kinetics. All reactions are treated as
// irreversible, which keeps Omega's forward/reverse split degenerate
// (pr=cr=0, rRef=-1) but is sufficient to exercise rate evaluation, SIS
// selection, and reaction flagging.
type Mechanism struct {
	reactions []rxn
}

// New builds the reference mechanism.
func New() *Mechanism {
	p := func(i int, coeff float64) kinetics.Participant {
		return kinetics.Participant{Species: i, StoichCoeff: coeff}
	}
	r := func(fwd arrhenius, lhs, rhs []kinetics.Participant) rxn {
		return rxn{Reaction: kinetics.Reaction{LHS: lhs, RHS: rhs}, fwd: fwd}
	}
	m := &Mechanism{
		reactions: []rxn{
			// CH4 + OH -> CH3 + H2O
			r(arrhenius{A: 2.2e6, Ea: 2.0e4},
				[]kinetics.Participant{p(iCH4, 1), p(iOH, 1)},
				[]kinetics.Participant{p(iCH3, 1), p(iH2O, 1)}),
			// CH3 + O2 -> CH2O + OH
			r(arrhenius{A: 3.3e5, Ea: 3.1e4},
				[]kinetics.Participant{p(iCH3, 1), p(iO2, 1)},
				[]kinetics.Participant{p(iCH2O, 1), p(iOH, 1)}),
			// CH2O + OH -> CHO + H2O
			r(arrhenius{A: 5.4e6, Ea: 1.2e4},
				[]kinetics.Participant{p(iCH2O, 1), p(iOH, 1)},
				[]kinetics.Participant{p(iCHO, 1), p(iH2O, 1)}),
			// CHO + O2 -> CO + HO2
			r(arrhenius{A: 4.2e6, Ea: 8.0e3},
				[]kinetics.Participant{p(iCHO, 1), p(iO2, 1)},
				[]kinetics.Participant{p(iCO, 1), p(iHO2, 1)}),
			// CO + OH -> CO2 + H
			r(arrhenius{A: 1.5e6, Ea: 9.0e3},
				[]kinetics.Participant{p(iCO, 1), p(iOH, 1)},
				[]kinetics.Participant{p(iCO2, 1), p(iH, 1)}),
			// H + O2 -> OH + O
			r(arrhenius{A: 9.8e7, Ea: 6.9e4},
				[]kinetics.Participant{p(iH, 1), p(iO2, 1)},
				[]kinetics.Participant{p(iOH, 1), p(iO, 1)}),
			// H2 + OH -> H + H2O
			r(arrhenius{A: 2.1e6, Ea: 2.6e4},
				[]kinetics.Participant{p(iH2, 1), p(iOH, 1)},
				[]kinetics.Participant{p(iH, 1), p(iH2O, 1)}),
			// HO2 + H -> OH + OH
			r(arrhenius{A: 6.6e7, Ea: 4.0e3},
				[]kinetics.Participant{p(iHO2, 1), p(iH, 1)},
				[]kinetics.Participant{p(iOH, 1), p(iOH, 1)}),
			// N2 + O -> NO + N
			r(arrhenius{A: 1.8e8, Ea: 3.15e5},
				[]kinetics.Participant{p(iN2, 1), p(iO, 1)},
				[]kinetics.Participant{p(iNO, 1), p(iN, 1)}),
			// N + O2 -> NO + O
			r(arrhenius{A: 6.4e3, Ea: 2.65e4},
				[]kinetics.Participant{p(iN, 1), p(iO2, 1)},
				[]kinetics.Participant{p(iNO, 1), p(iO, 1)}),
		},
	}
	return m
}

func (m *Mechanism) NumSpecies() int { return numSpecies }

func (m *Mechanism) Reactions() []kinetics.Reaction {
	out := make([]kinetics.Reaction, len(m.reactions))
	for i, r := range m.reactions {
		out[i] = r.Reaction
	}
	return out
}

// Omega evaluates the forward mass-action rate of reaction r: k(T) times
// the product of reactant concentrations raised to their stoichiometric
// coefficients. All ten reactions here are irreversible, so the reverse
// terms are always zero and rRef is -1.
func (m *Mechanism) Omega(r kinetics.Reaction, c []float64, T, P float64) (omegaNet, pf, cf float64, lRef int, pr, cr float64, rRef int) {
	idx := m.indexOf(r)
	kf := m.reactions[idx].fwd.rate(T)
	rate := kf
	lRef = r.LHS[0].Species
	for _, part := range r.LHS {
		conc := c[part.Species]
		if conc < 0 {
			conc = 0
		}
		rate *= math.Pow(conc, part.StoichCoeff)
	}
	return rate, rate, rate, lRef, 0, 0, -1
}

func (m *Mechanism) indexOf(r kinetics.Reaction) int {
	for i := range m.reactions {
		if len(m.reactions[i].LHS) == len(r.LHS) && len(m.reactions[i].RHS) == len(r.RHS) &&
			m.reactions[i].LHS[0].Species == r.LHS[0].Species {
			return i
		}
	}
	return 0
}

func (m *Mechanism) SpecieComp(i int) map[string]float64 { return comp[i] }

func (m *Mechanism) SpecieThermo(i int) kinetics.Thermo { return thermo{w: molarMass[i]} }

func (m *Mechanism) SpecieName(i int) string { return names[i] }
