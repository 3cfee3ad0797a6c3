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

// Package dac implements Dynamic Adaptive Chemistry mechanism reduction:
// given a cell's composition, it selects the subset of species that must
// stay active to reproduce the full mechanism's behavior to within a
// tolerance, and flags every reaction any inactive species participates in
// as safe to skip. The search is a direct-interaction-coefficient
// relaxation: per-reaction net rates feed sparse rAB rows owned by the
// Reducer, and a slice used as a FIFO queue drives the breadth-first
// spread of retained importance from the search-initiating set.
package dac

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/spatialmodel/tdac/errs"
	"github.com/spatialmodel/tdac/kinetics"
	"github.com/spatialmodel/tdac/state"
)

// Config configures a Reducer. It is immutable after NewReducer validates
// it: every field a Reducer reads during Reduce is fixed at construction
// time.
type Config struct {
	// EpsDAC is the direct-interaction-coefficient threshold: species whose
	// retained importance never reaches it stay inactive.
	EpsDAC float64

	// AutomaticSIS selects the search-initiating set from the progress
	// equivalence ratio and the large-hydrocarbon equivalence ratio instead
	// of using SearchInitSet.
	AutomaticSIS bool

	// SearchInitSet names the seed species used when AutomaticSIS is off.
	SearchInitSet []string

	// FuelSpecies maps fuel species names to their mass fractions. Required
	// when AutomaticSIS is on; it fixes the fuel's O/C atom ratio used by
	// the progress equivalence ratio.
	FuelSpecies map[string]float64

	// NbCLarge is the carbon count above which a species counts as a large
	// hydrocarbon for the fuel-decomposition equivalence ratio.
	NbCLarge int

	// PhiTol is the equivalence-ratio tolerance for SIS switching. Zero
	// means "use EpsDAC".
	PhiTol float64

	// NOxThreshold is the temperature, in Kelvin, above which NO joins the
	// search-initiating set.
	NOxThreshold float64
}

// Reduction is the result of reducing one cell's composition.
type Reduction struct {
	// Active reports, per full-mechanism species index, whether the species
	// was selected by this call's relaxation.
	Active []bool

	// EverActive reports, per species index, whether the species has been
	// active in any reduction since the Reducer was constructed. Activations
	// persist so the integrator can keep the slot alive and avoid
	// discontinuities across successive cells.
	EverActive []bool

	// S2C maps a simplified-system index to its full-mechanism species
	// index. Its length is NsSimp.
	S2C []int

	// C2S maps a full-mechanism species index to its simplified-system
	// index, or -1 if the species is inactive this call.
	C2S []int

	// SimplifiedC is the compressed composition vector, length NsSimp+2,
	// with temperature and pressure in the last two slots.
	SimplifiedC []float64

	// NsSimp is the number of active species this call.
	NsSimp int

	// DisabledRxn reports, per reaction index (in the order
	// kinetics.Kinetics.Reactions returns them), whether the reaction
	// involves an inactive species and can be skipped this step.
	DisabledRxn []bool

	// PhiProgress and PhiLarge are the equivalence ratios behind automatic
	// SIS selection, surfaced for diagnostics. Both are zero when
	// AutomaticSIS is off.
	PhiProgress, PhiLarge float64
}

// Reducer performs DAC reduction against a fixed kinetics mechanism.
// A Reducer is not safe for concurrent use; callers that need to reduce
// several cells concurrently should construct one Reducer per worker.
type Reducer struct {
	cfg Config
	kin kinetics.Kinetics

	// per-species C, H, O, N atom counts, fixed at construction.
	sC, sH, sO, sN []float64

	// atom counts masked to the equivalence-ratio pools: prog* excludes the
	// fully-oxidized products, large* keeps only large hydrocarbons and O2.
	// Fixed at construction so each Reduce evaluates the ratios as dot
	// products against the live composition.
	progC, progH, progO    []float64
	largeC, largeH, largeO []float64

	co2ID, coID, ho2ID, h2oID, noID, o2ID int

	fuelIDs   []int
	fuelProps []float64
	zprime    float64

	manualSIS []int

	everActive []bool

	// reusable per-call scratch, per the memory discipline of keeping the
	// hot path allocation-free after steady state.
	pa, ca     []float64
	rvalue     []float64
	active     []bool
	nbInit     []int
	rabNum     [][]float64
	rabOther   [][]int
	rabPos     []int // n*n flattened, -1 when uninitialized
	deltaB     []bool
	usedIdx    []int
	queue      []int
	wA         []float64
	wAID       []int

	// Warn receives non-fatal diagnostics, e.g. a clamped rAB coefficient.
	// Wired to an Observer by the caller; nil drops them.
	Warn func(string)
}

// NewReducer validates cfg against kin and constructs a Reducer.
func NewReducer(cfg Config, kin kinetics.Kinetics) (*Reducer, error) {
	if cfg.EpsDAC <= 0 {
		return nil, &errs.ConfigError{Msg: "dac: epsDAC must be positive"}
	}
	if cfg.PhiTol == 0 {
		cfg.PhiTol = cfg.EpsDAC
	}
	if cfg.NbCLarge == 0 {
		cfg.NbCLarge = 3
	}
	if cfg.NOxThreshold == 0 {
		cfg.NOxThreshold = 1800
	}
	n := kin.NumSpecies()

	r := &Reducer{
		cfg: cfg,
		kin: kin,
		sC:  make([]float64, n), sH: make([]float64, n),
		sO: make([]float64, n), sN: make([]float64, n),
		co2ID: -1, coID: -1, ho2ID: -1, h2oID: -1, noID: -1, o2ID: -1,
		everActive: make([]bool, n),
		pa:         make([]float64, n),
		ca:         make([]float64, n),
		rvalue:     make([]float64, n),
		active:     make([]bool, n),
		nbInit:     make([]int, n),
		rabNum:     make([][]float64, n),
		rabOther:   make([][]int, n),
		rabPos:     make([]int, n*n),
		deltaB:     make([]bool, n),
	}
	for i := range r.rabPos {
		r.rabPos[i] = -1
	}

	for i := 0; i < n; i++ {
		for elem, count := range kin.SpecieComp(i) {
			switch elem {
			case "C":
				r.sC[i] = count
			case "H":
				r.sH[i] = count
			case "O":
				r.sO[i] = count
			case "N":
				r.sN[i] = count
			}
		}
		switch kin.SpecieName(i) {
		case "CO2":
			r.co2ID = i
		case "CO":
			r.coID = i
		case "HO2":
			r.ho2ID = i
		case "H2O":
			r.h2oID = i
		case "NO":
			r.noID = i
		case "O2":
			r.o2ID = i
		}
	}

	r.progC = make([]float64, n)
	r.progH = make([]float64, n)
	r.progO = make([]float64, n)
	r.largeC = make([]float64, n)
	r.largeH = make([]float64, n)
	r.largeO = make([]float64, n)
	for i := 0; i < n; i++ {
		if i == r.co2ID || i == r.h2oID {
			continue
		}
		r.progC[i] = r.sC[i]
		r.progH[i] = r.sH[i]
		r.progO[i] = r.sO[i]
		if r.sC[i] > float64(cfg.NbCLarge) || i == r.o2ID {
			r.largeC[i] = r.sC[i]
			r.largeH[i] = r.sH[i]
			r.largeO[i] = r.sO[i]
		}
	}

	if cfg.AutomaticSIS {
		if r.co2ID < 0 || r.coID < 0 || r.ho2ID < 0 || r.h2oID < 0 {
			return nil, &errs.ConfigError{Msg: "dac: automaticSIS requires CO, CO2, HO2 and H2O in the mechanism"}
		}
		if len(cfg.FuelSpecies) == 0 {
			return nil, &errs.ConfigError{Msg: "dac: automaticSIS requires a non-empty fuelSpecies table"}
		}
	}

	// Resolve the fuel composition and its O/C atom ratio z'. The mass
	// fractions are converted to mole fractions through the molar masses.
	if len(cfg.FuelSpecies) > 0 {
		var mmTot float64
		for name, prop := range cfg.FuelSpecies {
			id := findSpecies(kin, name)
			if id < 0 {
				return nil, &errs.ConfigError{Msg: "dac: fuel species " + name + " not found in mechanism"}
			}
			r.fuelIDs = append(r.fuelIDs, id)
			r.fuelProps = append(r.fuelProps, prop)
			mmTot += prop / kin.SpecieThermo(id).W()
		}
		mmTot = 1 / mmTot
		var nbC, nbO float64
		for i, id := range r.fuelIDs {
			w := kin.SpecieThermo(id).W()
			nbC += r.fuelProps[i] * mmTot / w * r.sC[id]
			nbO += r.fuelProps[i] * mmTot / w * r.sO[id]
		}
		if nbC == 0 {
			return nil, &errs.ConfigError{Msg: "dac: fuel species carry no carbon, cannot form an O/C ratio"}
		}
		r.zprime = nbO / nbC
	}

	for _, name := range cfg.SearchInitSet {
		id := findSpecies(kin, name)
		if id < 0 {
			return nil, &errs.ConfigError{Msg: "dac: searchInitSet species " + name + " not found in mechanism"}
		}
		r.manualSIS = append(r.manualSIS, id)
	}
	if !cfg.AutomaticSIS && len(r.manualSIS) == 0 {
		return nil, &errs.ConfigError{Msg: "dac: searchInitSet must be non-empty when automaticSIS is off"}
	}

	return r, nil
}

func findSpecies(kin kinetics.Kinetics, name string) int {
	for i := 0; i < kin.NumSpecies(); i++ {
		if kin.SpecieName(i) == name {
			return i
		}
	}
	return -1
}

// resetScratch clears only the entries the previous call touched, keeping
// Reduce allocation-free after the first call.
func (r *Reducer) resetScratch() {
	n := r.kin.NumSpecies()
	for a := 0; a < n; a++ {
		for k := 0; k < r.nbInit[a]; k++ {
			r.rabPos[a*n+r.rabOther[a][k]] = -1
		}
		r.nbInit[a] = 0
		r.rabNum[a] = r.rabNum[a][:0]
		r.rabOther[a] = r.rabOther[a][:0]
		r.pa[a] = 0
		r.ca[a] = 0
		r.rvalue[a] = 0
		r.active[a] = false
	}
	r.queue = r.queue[:0]
}

// accumulate adds species ss's net stoichiometric contribution sl*omega to
// the rAB numerators of every other species in the reaction, and to ss's
// per-reaction net rate in wA/wAID. The deltaB bitmap makes sure a species
// appearing on both sides of the reaction (A+B=2C written as A+B=C+C) is
// counted once.
func (r *Reducer) accumulate(ss int, sl, omega float64, rxn *kinetics.Reaction) {
	n := r.kin.NumSpecies()

	r.usedIdx = r.usedIdx[:0]
	for _, part := range rxn.LHS {
		r.usedIdx = append(r.usedIdx, part.Species)
		r.deltaB[part.Species] = true
	}
	for _, part := range rxn.RHS {
		r.usedIdx = append(r.usedIdx, part.Species)
		r.deltaB[part.Species] = true
	}
	r.deltaB[ss] = false // rAA = 0 by definition

	for _, cur := range r.usedIdx {
		if !r.deltaB[cur] {
			continue
		}
		r.deltaB[cur] = false
		if pos := r.rabPos[ss*n+cur]; pos >= 0 {
			r.rabNum[ss][pos] += sl * omega
		} else {
			r.rabPos[ss*n+cur] = r.nbInit[ss]
			r.nbInit[ss]++
			r.rabNum[ss] = append(r.rabNum[ss], sl*omega)
			r.rabOther[ss] = append(r.rabOther[ss], cur)
		}
	}

	for id, w := range r.wAID {
		if w == ss {
			r.wA[id] += sl * omega
			return
		}
	}
	r.wA = append(r.wA, sl*omega)
	r.wAID = append(r.wAID, ss)
}

// equivalenceRatios computes the progress equivalence ratio and the
// large-hydrocarbon decomposition equivalence ratio driving automatic SIS
// selection, as dot products of the composition against the masked
// atom-count vectors built at construction: fully-oxidized products (CO2,
// H2O) are excluded, and the "large" pool is restricted to species with
// more than NbCLarge carbons plus O2.
func (r *Reducer) equivalenceRatios(c []float64) (phiProgress, phiLarge float64) {
	naC := floats.Dot(r.progC, c)
	naH := floats.Dot(r.progH, c)
	naO := floats.Dot(r.progO, c)
	nalC := floats.Dot(r.largeC, c)
	nalH := floats.Dot(r.largeH, c)
	nalO := floats.Dot(r.largeO, c)
	phiProgress = (2*naC + naH/2 - r.zprime*naC) / (naO - r.zprime*naC)
	phiLarge = (2*nalC + nalH/2) / nalO
	return phiProgress, phiLarge
}

// seed marks s active with retained importance 1 and queues it for the
// relaxation.
func (r *Reducer) seed(s int) {
	r.active[s] = true
	r.rvalue[s] = 1
	r.queue = append(r.queue, s)
}

// Reduce computes the active species set and disabled-reaction flags for
// one cell's state.
func (r *Reducer) Reduce(phi state.Phi) (Reduction, error) {
	n := r.kin.NumSpecies()
	if len(phi.C) != n {
		return Reduction{}, &errs.ConfigError{Msg: "dac: state vector length does not match mechanism species count"}
	}
	if math.IsNaN(phi.T) || math.IsInf(phi.T, 0) || phi.T <= 0 {
		return Reduction{}, &errs.KineticsError{Msg: fmt.Sprintf("dac: non-physical temperature %v", phi.T)}
	}

	r.resetScratch()
	reactions := r.kin.Reactions()

	for ri := range reactions {
		rxn := &reactions[ri]
		omega, _, _, _, _, _, _ := r.kin.Omega(*rxn, phi.C, phi.T, phi.P)
		if math.IsNaN(omega) || math.IsInf(omega, 0) {
			return Reduction{}, &errs.KineticsError{Msg: fmt.Sprintf("dac: non-finite net rate in reaction %d", ri)}
		}

		r.wA = r.wA[:0]
		r.wAID = r.wAID[:0]
		for _, part := range rxn.LHS {
			r.accumulate(part.Species, -part.StoichCoeff, omega, rxn)
		}
		for _, part := range rxn.RHS {
			r.accumulate(part.Species, part.StoichCoeff, omega, rxn)
		}

		// Production and consumption are tallied only after every species
		// of the reaction has been visited, so a species on both sides
		// contributes its net rate, not both halves.
		for id, s := range r.wAID {
			if r.wA[id] > 0 {
				r.pa[s] += r.wA[id]
			} else {
				r.ca[s] -= r.wA[id]
			}
		}
	}

	var phiProgress, phiLarge float64
	if r.cfg.AutomaticSIS {
		phiProgress, phiLarge = r.equivalenceRatios(phi.C)
		if phiLarge >= r.cfg.PhiTol && phiProgress >= r.cfg.PhiTol {
			r.seed(r.coID)
			r.seed(r.ho2ID)
			for _, id := range r.fuelIDs {
				r.seed(id)
			}
		} else if phiLarge < r.cfg.PhiTol && phiProgress >= r.cfg.PhiTol {
			r.seed(r.coID)
			r.seed(r.ho2ID)
		} else {
			r.seed(r.co2ID)
			r.seed(r.h2oID)
		}
		if phi.T > r.cfg.NOxThreshold && r.noID >= 0 {
			r.seed(r.noID)
		}
	} else {
		for _, s := range r.manualSIS {
			r.seed(s)
		}
	}

	// Breadth-first relaxation of retained importance: a species joins the
	// active set when the product of interaction coefficients along some
	// path from the SIS stays at or above epsDAC.
	for len(r.queue) > 0 {
		u := r.queue[0]
		r.queue = r.queue[1:]

		den := math.Max(r.pa[u], r.ca[u])
		if den == 0 {
			continue
		}
		for v := 0; v < r.nbInit[u]; v++ {
			other := r.rabOther[u][v]
			rab := math.Abs(r.rabNum[u][v]) / den
			if rab > 1 {
				r.warn(fmt.Sprintf("dac: badly conditioned rAB %g between species %d and %d, clamping to 1", rab, u, other))
				rab = 1
			}
			if rab < r.cfg.EpsDAC {
				continue
			}
			rtemp := r.rvalue[u] * rab
			if r.rvalue[other] < rtemp && rtemp >= r.cfg.EpsDAC {
				r.queue = append(r.queue, other)
				r.rvalue[other] = rtemp
				r.active[other] = true
			}
		}
	}

	disabled := make([]bool, len(reactions))
	for ri := range reactions {
		rxn := &reactions[ri]
		for _, part := range rxn.LHS {
			if !r.active[part.Species] {
				disabled[ri] = true
				break
			}
		}
		if !disabled[ri] {
			for _, part := range rxn.RHS {
				if !r.active[part.Species] {
					disabled[ri] = true
					break
				}
			}
		}
	}

	c2s := make([]int, n)
	var s2c []int
	var simplifiedC []float64
	for i := 0; i < n; i++ {
		if r.active[i] {
			c2s[i] = len(s2c)
			s2c = append(s2c, i)
			simplifiedC = append(simplifiedC, phi.C[i])
			r.everActive[i] = true
		} else {
			c2s[i] = -1
		}
	}
	simplifiedC = append(simplifiedC, phi.T, phi.P)

	return Reduction{
		Active:      append([]bool(nil), r.active...),
		EverActive:  append([]bool(nil), r.everActive...),
		S2C:         s2c,
		C2S:         c2s,
		SimplifiedC: simplifiedC,
		NsSimp:      len(s2c),
		DisabledRxn: disabled,
		PhiProgress: phiProgress,
		PhiLarge:    phiLarge,
	}, nil
}

func (r *Reducer) warn(msg string) {
	if r.Warn != nil {
		r.Warn(msg)
	}
}
