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

package tdac

import (
	"context"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/tdac/dac"
	"github.com/spatialmodel/tdac/errs"
	"github.com/spatialmodel/tdac/isat"
	"github.com/spatialmodel/tdac/kinetics"
	"github.com/spatialmodel/tdac/linalg"
)

// Integrator is the abstract ODE integration step the Facade calls out to
// on a cache miss. The reduction produced by DAC for the same state is
// passed alongside: implementations must leave species red.Active marks
// inactive untouched and may skip every reaction red.DisabledRxn flags. A
// zero-value Reduction (nil masks) means the full mechanism. Beyond that
// the core treats the integrator as a black box: it never inspects how the
// state is advanced, only that Integrate returns the state at t0+dt or an
// error. tdac/integrator.StiffIntegrator is a reference implementation;
// production use is expected to supply one backed by a validated stiff ODE
// solver.
type Integrator interface {
	Integrate(ctx context.Context, phi Phi, red dac.Reduction, t0, dt float64) (Phi, error)
}

// Statistics summarizes a Solver's activity since construction or the last
// Reset. NEvict and the depth figures reflect the cache's state at the
// moment Statistics is called.
type Statistics struct {
	NRetrieve      int
	NHit           int
	NSecondaryHits int
	NReductions    int
	NGrown         int
	NAdd           int
	NEvict         int
	AvgDepth       float64
	MaxDepth       int
}

// Config bundles the tunables a Solver is built from. It intentionally
// mirrors tdac/config.Config's field names but stays decoupled from it so
// that a Solver can be constructed directly in tests without going through
// a file-backed config.
type Config struct {
	// Mechanism reduction.
	EpsDAC        float64
	AutomaticSIS  bool
	SearchInitSet []string
	FuelSpecies   map[string]float64
	NbCLarge      int
	PhiTol        float64
	NOxThreshold  float64

	// Tabulation.
	Tolerance        float64
	MaxElements      int
	MaxBalanceTests  int
	BalanceThreshold float64
	Max2ndSearch     int

	// ScaleFactor holds per-dimension characteristic magnitudes for the
	// EOA metric, length NumSpecies+2 (temperature and pressure last).
	// Nil means every dimension has characteristic magnitude 1.
	ScaleFactor []float64
}

// Solver is the chemistry Facade: retrieve from the ISAT cache, and on a
// miss, reduce with DAC before calling out to the Integrator and caching
// the result. A Solver is not safe for concurrent use; callers that want
// concurrency should construct one Solver per worker over a shared,
// read-only Kinetics.
type Solver struct {
	kin        kinetics.Kinetics
	integrator Integrator
	observer   Observer

	cfg     Config
	reducer *dac.Reducer
	cache   *isat.Cache

	stats Statistics
}

// New constructs a Solver. obs may be nil, in which case diagnostics are
// discarded.
func New(cfg Config, kin kinetics.Kinetics, integ Integrator, obs Observer) (*Solver, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	n := kin.NumSpecies()
	if len(cfg.ScaleFactor) > 0 && len(cfg.ScaleFactor) != n+2 {
		return nil, &errs.ConfigError{Msg: fmt.Sprintf(
			"tdac: scaleFactor has length %d, want %d (species + temperature + pressure)",
			len(cfg.ScaleFactor), n+2)}
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}

	s := &Solver{kin: kin, integrator: integ, observer: obs, cfg: cfg}
	if err := s.build(); err != nil {
		return nil, err
	}
	return s, nil
}

// build wires a fresh reducer/cache pair from s.cfg. It is shared by New
// and Reset.
func (s *Solver) build() error {
	reducer, err := dac.NewReducer(dac.Config{
		EpsDAC:        s.cfg.EpsDAC,
		AutomaticSIS:  s.cfg.AutomaticSIS,
		SearchInitSet: s.cfg.SearchInitSet,
		FuelSpecies:   s.cfg.FuelSpecies,
		NbCLarge:      s.cfg.NbCLarge,
		PhiTol:        s.cfg.PhiTol,
		NOxThreshold:  s.cfg.NOxThreshold,
	}, s.kin)
	if err != nil {
		return err
	}
	reducer.Warn = s.observer.OnWarning

	cache := isat.New(isat.Config{
		MaxElements:      s.cfg.MaxElements,
		EpsTol:           s.cfg.Tolerance,
		Scale:            s.cfg.ScaleFactor,
		Max2ndSearch:     s.cfg.Max2ndSearch,
		MaxBalanceTests:  s.cfg.MaxBalanceTests,
		BalanceThreshold: s.cfg.BalanceThreshold,
	})
	cache.Warn = s.observer.OnWarning
	cache.OnEvict = s.observer.OnEvict

	s.reducer = reducer
	s.cache = cache
	return nil
}

// Solve computes the state at t0+dt for phi and the chemical time scale at
// the tabulation point. It first tries the ISAT cache (primary, then
// secondary search); on a miss, it reduces the mechanism with DAC, hands
// the reduced system to the Integrator, and either grows the candidate
// leaf the failed retrieve left behind or tabulates a new one.
func (s *Solver) Solve(ctx context.Context, phi Phi, t0, dt float64) (Phi, float64, error) {
	if len(phi.C) != s.kin.NumSpecies() {
		return Phi{}, 0, &errs.ConfigError{Msg: "tdac: composition length does not match mechanism species count"}
	}
	if math.IsNaN(phi.T) || math.IsInf(phi.T, 0) || phi.T <= 0 {
		return Phi{}, 0, &errs.KineticsError{Msg: fmt.Sprintf("tdac: non-physical temperature %v", phi.T)}
	}

	phiVec := assemble(phi)

	s.stats.NRetrieve++
	if rec, _, ok := s.cache.Retrieve(phiVec); ok {
		s.stats.NHit++
		s.observer.OnCacheHit(rec.ID)
		return s.linearPredict(phi, phiVec, rec), rec.Tau, nil
	}

	// A failed primary search still identifies a candidate leaf: the one
	// the cutting planes route phi to. It anchors both the secondary
	// search and, after integration, the growth attempt.
	candidate, hasCandidate := s.cache.Nearest(phiVec)
	if hasCandidate {
		if rec, _, ok := s.cache.SecondarySearch(candidate, phiVec); ok {
			s.stats.NHit++
			s.stats.NSecondaryHits++
			s.observer.OnCacheHit(rec.ID)
			return s.linearPredict(phi, phiVec, rec), rec.Tau, nil
		}
	}

	s.observer.OnCacheMiss()

	red, err := s.reducer.Reduce(phi)
	if err != nil {
		return Phi{}, 0, err
	}
	s.stats.NReductions++
	s.observer.OnReduction(red.NsSimp, s.kin.NumSpecies(), red.PhiProgress, red.PhiLarge)

	out, err := s.integrator.Integrate(ctx, phi, red, t0, dt)
	if err != nil {
		return Phi{}, 0, &errs.IntegrationFailure{Err: err}
	}
	tau := s.chemicalTimescale(phi, dt)
	rVec := assemble(out)

	if hasCandidate {
		ok := s.cache.Grow(candidate, phiVec, rVec)
		if rec, alive := s.cache.At(candidate); alive {
			s.observer.OnGrow(rec.ID, ok)
		}
		if ok {
			s.stats.NGrown++
			return out, tau, nil
		}
	}

	jacobian := s.approximateJacobian(phi, out, red, t0, dt)
	id, err := s.cache.Add(phiVec, rVec, tau, jacobian, s.initialEOA(len(phiVec)))
	if err != nil {
		return Phi{}, 0, err
	}
	s.stats.NAdd++
	s.observer.OnAdd(id)

	return out, tau, nil
}

// assemble packs a Phi into the flat tabulation vector with temperature and
// pressure in the last two slots.
func assemble(phi Phi) []float64 {
	v := make([]float64, len(phi.C)+2)
	copy(v, phi.C)
	v[len(phi.C)] = phi.T
	v[len(phi.C)+1] = phi.P
	return v
}

// linearPredict evaluates the cached linearization at phi and unpacks the
// species part of the result: c' = R(phi0) + A*(phi - phi0), concentrations
// clipped at zero.
func (s *Solver) linearPredict(phi Phi, phiVec []float64, rec *isat.Record) Phi {
	dphi := make([]float64, len(phiVec))
	for i := range dphi {
		dphi[i] = phiVec[i] - rec.Phi[i]
	}
	delta := linalg.Apply(rec.A, dphi)
	out := make([]float64, len(phi.C))
	for i := range out {
		out[i] = rec.R[i] + delta[i]
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return Phi{C: out, T: phi.T, P: phi.P}
}

// chemicalTimescale estimates the local chemical time scale as the shortest
// concentration-to-net-rate ratio over all species, capped at dt (and equal
// to dt when every net rate vanishes).
func (s *Solver) chemicalTimescale(phi Phi, dt float64) float64 {
	n := s.kin.NumSpecies()
	wdot := make([]float64, n)
	for _, rxn := range s.kin.Reactions() {
		omega, _, _, _, _, _, _ := s.kin.Omega(rxn, phi.C, phi.T, phi.P)
		for _, part := range rxn.LHS {
			wdot[part.Species] -= part.StoichCoeff * omega
		}
		for _, part := range rxn.RHS {
			wdot[part.Species] += part.StoichCoeff * omega
		}
	}
	tau := dt
	for i := 0; i < n; i++ {
		if wdot[i] == 0 || phi.C[i] <= 0 {
			continue
		}
		if t := phi.C[i] / math.Abs(wdot[i]); t < tau {
			tau = t
		}
	}
	return tau
}

// approximateJacobian builds a first-order finite-difference Jacobian of
// the map phi -> Integrate(phi, red) over the full tabulation vector.
// Active-species columns are measured by re-integrating a perturbed state
// under the same reduction; inactive species are frozen by the integrator
// and only appear in disabled reactions, so their columns are identity
// without re-integrating. The temperature and pressure rows are identity
// too, since the integrator holds both fixed over the step. This only runs
// on a cache miss, so its cost is amortized against one full integration
// already having happened.
func (s *Solver) approximateJacobian(phi, out Phi, red dac.Reduction, t0, dt float64) *mat.Dense {
	n := len(phi.C)
	m := n + 2
	a := mat.NewDense(m, m, nil)
	const relStep = 1e-6
	for j := 0; j < n; j++ {
		if red.Active != nil && !red.Active[j] {
			a.Set(j, j, 1)
			continue
		}
		step := phi.C[j]*relStep + 1e-12
		perturbed := append([]float64(nil), phi.C...)
		perturbed[j] += step
		perturbedOut, err := s.integrator.Integrate(context.Background(), Phi{C: perturbed, T: phi.T, P: phi.P}, red, t0, dt)
		if err != nil {
			continue
		}
		for i := 0; i < n; i++ {
			a.Set(i, j, (perturbedOut.C[i]-out.C[i])/step)
		}
	}
	a.Set(n, n, 1)
	a.Set(n+1, n+1, 1)
	return a
}

// initialEOA builds the starting ellipsoid factor for a fresh leaf: a
// sphere of radius Tolerance in the scaled metric.
func (s *Solver) initialEOA(m int) *mat.Dense {
	l := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		l.Set(i, i, 1/s.cfg.Tolerance)
	}
	return l
}

// Reset clears the ISAT cache and rebuilds the DAC reducer from scratch,
// discarding its persistent active-species set. Statistics are zeroed.
func (s *Solver) Reset() {
	// build cannot fail here: the config was already validated once.
	if err := s.build(); err == nil {
		s.stats = Statistics{}
	}
}

// Statistics returns a snapshot of the Solver's activity counters, with the
// cache's eviction count and tree depth folded in.
func (s *Solver) Statistics() Statistics {
	st := s.stats
	cs := s.cache.Statistics()
	st.NEvict = cs.NEvict
	st.AvgDepth = cs.AvgDepth
	st.MaxDepth = cs.MaxDepth
	return st
}

// CacheLen reports the number of live leaves in the ISAT cache.
func (s *Solver) CacheLen() int { return s.cache.Len() }

// Report writes a short human-readable summary of the Solver's activity,
// suitable for a log line or command-line output.
func (s *Solver) Report(w io.Writer) error {
	st := s.Statistics()
	hitRate := 0.0
	if st.NRetrieve > 0 {
		hitRate = float64(st.NHit) / float64(st.NRetrieve)
	}
	_, err := fmt.Fprintf(w,
		"retrieves=%d hits=%d (secondary=%d) hit-rate=%.3f reductions=%d grown=%d adds=%d evicted=%d cache-size=%d avg-depth=%.2f\n",
		st.NRetrieve, st.NHit, st.NSecondaryHits, hitRate,
		st.NReductions, st.NGrown, st.NAdd, st.NEvict, s.cache.Len(), st.AvgDepth,
	)
	return err
}
