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

// Package errs holds the error taxonomy shared by the tdac, dac, isat, and
// kinetics packages. It has no dependencies of its own so that every other
// package can construct and recognize these types without import cycles.
package errs

import "fmt"

// ConfigError reports a problem with the static configuration supplied at
// construction time: a missing fuel species, a species required by
// automatic SIS selection that isn't present in the mechanism, or an
// inconsistent scale-factor length. It is fatal at construction. Solve,
// dac's Reduce and isat's Add also return it at call time when a state
// vector's length does not match the mechanism or the scale factor.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "tdac: config error: " + e.Msg
}

// KineticsError reports a non-finite reaction rate or temperature returned
// by the kinetics adapter. The Facade aborts the current cell when it sees
// one; the caller decides whether to retry with a smaller time step.
type KineticsError struct {
	Msg string
}

func (e *KineticsError) Error() string {
	return "tdac: kinetics error: " + e.Msg
}

// IntegrationFailure wraps an error reported by the external ODE integrator.
// The Facade propagates it unchanged.
type IntegrationFailure struct {
	Err error
}

func (e *IntegrationFailure) Error() string {
	return fmt.Sprintf("tdac: integration failed: %v", e.Err)
}

func (e *IntegrationFailure) Unwrap() error {
	return e.Err
}
