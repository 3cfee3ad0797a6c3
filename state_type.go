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

import "github.com/spatialmodel/tdac/state"

// Phi is a cell's thermochemical state: species concentrations plus
// temperature and pressure. It is an alias for state.Phi so that dac and
// isat, which cannot import this package without creating a cycle, still
// operate on exactly the type callers pass to Solver.Solve.
type Phi = state.Phi
