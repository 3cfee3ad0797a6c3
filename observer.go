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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Observer receives diagnostics a Solver produces as a byproduct of
// solving: cache hits and misses, growth and eviction events, reduction
// sizes, and the occasional non-fatal numerical warning. The core performs
// no file or network I/O itself; diagnostic side-files such as
// equivalence-ratio traces are the caller's responsibility, wired up
// through an Observer implementation.
type Observer interface {
	// OnCacheHit fires when Solve is satisfied from the ISAT cache,
	// either by a primary or secondary search.
	OnCacheHit(id uuid.UUID)

	// OnCacheMiss fires when Solve has to fall back to full integration.
	OnCacheMiss()

	// OnReduction fires after each DAC reduction, reporting how many of
	// the mechanism's species are active and the equivalence ratios that
	// drove automatic SIS selection (zero when automatic SIS is off).
	OnReduction(active, total int, phiProgress, phiLarge float64)

	// OnGrow fires after each growth attempt on an existing leaf.
	OnGrow(id uuid.UUID, ok bool)

	// OnAdd fires when a new leaf has been tabulated.
	OnAdd(id uuid.UUID)

	// OnEvict fires when a leaf has been evicted to make room.
	OnEvict(id uuid.UUID)

	// OnWarning fires for non-fatal conditions: a rejected ellipsoid
	// growth, a clamped interaction coefficient, and similar.
	OnWarning(msg string)
}

// NopObserver discards every event. It is the default when a Solver is
// constructed without an explicit Observer.
type NopObserver struct{}

func (NopObserver) OnCacheHit(uuid.UUID)                  {}
func (NopObserver) OnCacheMiss()                          {}
func (NopObserver) OnReduction(int, int, float64, float64) {}
func (NopObserver) OnGrow(uuid.UUID, bool)                {}
func (NopObserver) OnAdd(uuid.UUID)                       {}
func (NopObserver) OnEvict(uuid.UUID)                     {}
func (NopObserver) OnWarning(string)                      {}

// LogObserver reports every event through a logrus.Logger at a level
// appropriate to its severity: warnings at Warn, everything else at Debug
// with structured fields.
type LogObserver struct {
	Log *logrus.Logger
}

// NewLogObserver wraps log, or a new default logrus.Logger if log is nil.
func NewLogObserver(log *logrus.Logger) LogObserver {
	if log == nil {
		log = logrus.New()
	}
	return LogObserver{Log: log}
}

func (o LogObserver) OnCacheHit(id uuid.UUID) {
	o.Log.WithField("leaf", id).Debug("tdac: cache hit")
}

func (o LogObserver) OnCacheMiss() {
	o.Log.Debug("tdac: cache miss")
}

func (o LogObserver) OnReduction(active, total int, phiProgress, phiLarge float64) {
	o.Log.WithFields(logrus.Fields{
		"active": active, "total": total,
		"phiProgress": phiProgress, "phiLarge": phiLarge,
	}).Debug("tdac: reduction")
}

func (o LogObserver) OnGrow(id uuid.UUID, ok bool) {
	o.Log.WithFields(logrus.Fields{"leaf": id, "ok": ok}).Debug("tdac: growth attempt")
}

func (o LogObserver) OnAdd(id uuid.UUID) {
	o.Log.WithField("leaf", id).Debug("tdac: tabulated")
}

func (o LogObserver) OnEvict(id uuid.UUID) {
	o.Log.WithField("leaf", id).Debug("tdac: evicted")
}

func (o LogObserver) OnWarning(msg string) {
	o.Log.Warn(msg)
}
