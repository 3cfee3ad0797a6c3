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
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/spatialmodel/tdac/dac"
	"github.com/spatialmodel/tdac/integrator"
	"github.com/spatialmodel/tdac/kinetics/simplemech"
)

// countingObserver tallies events for assertions.
type countingObserver struct {
	hits, misses, adds, reductions, warnings int
}

func (o *countingObserver) OnCacheHit(uuid.UUID)                  { o.hits++ }
func (o *countingObserver) OnCacheMiss()                          { o.misses++ }
func (o *countingObserver) OnReduction(int, int, float64, float64) { o.reductions++ }
func (o *countingObserver) OnGrow(uuid.UUID, bool)                {}
func (o *countingObserver) OnAdd(uuid.UUID)                       { o.adds++ }
func (o *countingObserver) OnEvict(uuid.UUID)                     {}
func (o *countingObserver) OnWarning(string)                      { o.warnings++ }

func testConfig() Config {
	return Config{
		EpsDAC:        1e-6,
		SearchInitSet: []string{"CH4"},
		MaxElements:   1000,
	}
}

func newTestSolver(t *testing.T, obs Observer) *Solver {
	t.Helper()
	kin := simplemech.New()
	integ := integrator.New(kin)
	s, err := New(testConfig(), kin, integ, obs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func testPhi(kin *simplemech.Mechanism) Phi {
	c := make([]float64, kin.NumSpecies())
	c[0] = 0.1  // CH4
	c[1] = 0.2  // O2
	c[5] = 1e-7 // OH seed
	c[13] = 0.7 // N2
	return Phi{C: c, T: 1400, P: 101325}
}

func TestSolveFirstCallMissesAndTabulates(t *testing.T) {
	obs := &countingObserver{}
	s := newTestSolver(t, obs)
	phi := testPhi(simplemech.New())

	out, tau, err := s.Solve(context.Background(), phi, 0, 1e-4)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(out.C) != len(phi.C) {
		t.Fatalf("output composition length = %d, want %d", len(out.C), len(phi.C))
	}
	if tau <= 0 || tau > 1e-4 {
		t.Fatalf("chemical time scale = %g, want in (0, dt]", tau)
	}

	st := s.Statistics()
	if st.NRetrieve != 1 || st.NHit != 0 {
		t.Fatalf("expected one retrieve and no hits, got %+v", st)
	}
	if st.NAdd != 1 || st.NReductions != 1 {
		t.Fatalf("expected one tabulation and one reduction, got %+v", st)
	}
	if obs.misses != 1 || obs.adds != 1 || obs.reductions != 1 {
		t.Fatalf("observer saw misses=%d adds=%d reductions=%d, want 1 each", obs.misses, obs.adds, obs.reductions)
	}
}

func TestSolveRepeatQueryHitsCache(t *testing.T) {
	obs := &countingObserver{}
	s := newTestSolver(t, obs)
	phi := testPhi(simplemech.New())

	first, tau1, err := s.Solve(context.Background(), phi, 0, 1e-4)
	if err != nil {
		t.Fatalf("Solve (first): %v", err)
	}
	second, tau2, err := s.Solve(context.Background(), phi, 0, 1e-4)
	if err != nil {
		t.Fatalf("Solve (second): %v", err)
	}

	st := s.Statistics()
	if st.NHit != 1 {
		t.Fatalf("NHit = %d, want 1", st.NHit)
	}
	if obs.hits != 1 {
		t.Fatalf("observer saw %d hits, want 1", obs.hits)
	}
	// Re-querying the tabulation point evaluates the linearization at zero
	// offset, reproducing the stored result and its time scale.
	for i := range first.C {
		if first.C[i] != second.C[i] {
			t.Fatalf("species %d: cached answer %g differs from integrated answer %g", i, second.C[i], first.C[i])
		}
	}
	if tau1 != tau2 {
		t.Fatalf("cached time scale %g differs from stored %g", tau2, tau1)
	}
}

func TestSolveNearbyQueryHitsCache(t *testing.T) {
	s := newTestSolver(t, nil)
	kin := simplemech.New()
	phi := testPhi(kin)

	if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err != nil {
		t.Fatalf("Solve (first): %v", err)
	}

	nearby := phi
	nearby.C = append([]float64(nil), phi.C...)
	nearby.C[0] *= 1.00001

	if _, _, err := s.Solve(context.Background(), nearby, 0, 1e-4); err != nil {
		t.Fatalf("Solve (nearby): %v", err)
	}

	st := s.Statistics()
	if st.NHit+st.NGrown != 1 {
		t.Fatalf("expected the nearby query to be answered from the cache or grown onto it, got stats %+v", st)
	}
}

// recordingIntegrator captures the reduction each Integrate call receives
// before delegating to the real reference integrator.
type recordingIntegrator struct {
	inner      *integrator.StiffIntegrator
	reductions []dac.Reduction
}

func (ri *recordingIntegrator) Integrate(ctx context.Context, phi Phi, red dac.Reduction, t0, dt float64) (Phi, error) {
	ri.reductions = append(ri.reductions, red)
	return ri.inner.Integrate(ctx, phi, red, t0, dt)
}

func TestSolveIntegratesTheReducedSystem(t *testing.T) {
	kin := simplemech.New()
	rec := &recordingIntegrator{inner: integrator.New(kin)}
	s, err := New(testConfig(), kin, rec, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, err := s.Solve(context.Background(), testPhi(kin), 0, 1e-4); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(rec.reductions) == 0 {
		t.Fatalf("the miss never reached the integrator")
	}
	for i, red := range rec.reductions {
		if len(red.Active) != kin.NumSpecies() {
			t.Fatalf("call %d: integrator received an Active mask of length %d, want %d", i, len(red.Active), kin.NumSpecies())
		}
		if len(red.DisabledRxn) != len(kin.Reactions()) {
			t.Fatalf("call %d: integrator received a DisabledRxn mask of length %d, want %d", i, len(red.DisabledRxn), len(kin.Reactions()))
		}
	}
}

func TestSolveBoundedCacheStaysWithinCapacity(t *testing.T) {
	kin := simplemech.New()
	integ := integrator.New(kin)
	cfg := testConfig()
	cfg.MaxElements = 3
	s, err := New(cfg, kin, integ, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 10; i++ {
		phi := testPhi(kin)
		phi.C = append([]float64(nil), phi.C...)
		phi.C[0] = 0.1 + float64(i) // far apart, so each state needs its own leaf
		if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err != nil {
			t.Fatalf("Solve(%d): %v", i, err)
		}
		if s.CacheLen() > 3 {
			t.Fatalf("cache exceeded its capacity: %d leaves after solve %d", s.CacheLen(), i)
		}
	}
	if st := s.Statistics(); st.NRetrieve != 10 {
		t.Fatalf("NRetrieve = %d, want 10", st.NRetrieve)
	}
}

func TestSolveRejectsBadInput(t *testing.T) {
	s := newTestSolver(t, nil)
	kin := simplemech.New()

	if _, _, err := s.Solve(context.Background(), Phi{C: []float64{1}, T: 1400, P: 101325}, 0, 1e-4); err == nil {
		t.Fatalf("expected an error for a mismatched composition length")
	}
	phi := testPhi(kin)
	phi.T = -5
	if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err == nil {
		t.Fatalf("expected an error for a non-physical temperature")
	}
}

func TestNewRejectsBadScaleFactor(t *testing.T) {
	kin := simplemech.New()
	cfg := testConfig()
	cfg.ScaleFactor = []float64{1, 2, 3} // wrong length
	if _, err := New(cfg, kin, integrator.New(kin), nil); err == nil {
		t.Fatalf("expected an error for a scale factor not matching species+2")
	}
}

func TestResetClearsCacheAndStatistics(t *testing.T) {
	s := newTestSolver(t, nil)
	phi := testPhi(simplemech.New())

	if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	s.Reset()

	st := s.Statistics()
	if st.NRetrieve != 0 || st.NAdd != 0 {
		t.Fatalf("Reset did not clear statistics: %+v", st)
	}
	if s.CacheLen() != 0 {
		t.Fatalf("Reset did not clear the cache: %d leaves", s.CacheLen())
	}
	if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err != nil {
		t.Fatalf("Solve after Reset: %v", err)
	}
	if s.Statistics().NHit != 0 {
		t.Fatalf("expected a cold miss again after Reset")
	}
}

func TestReportWritesSummary(t *testing.T) {
	s := newTestSolver(t, nil)
	phi := testPhi(simplemech.New())
	if _, _, err := s.Solve(context.Background(), phi, 0, 1e-4); err != nil {
		t.Fatalf("Solve: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Report(&buf); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a non-empty report")
	}
}
