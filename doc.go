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

// Package tdac implements a tabulated dynamic adaptive chemistry
// acceleration core: a Facade that, for each cell's thermochemical state,
// first checks an in-situ adaptive tabulation cache for a usable
// linearization and, on a miss, reduces the active mechanism with dynamic
// adaptive chemistry before calling out to an external integrator. The
// cached answer carries the chemical time scale measured at tabulation, so
// an outer reactive-flow solver can use it for operator splitting.
package tdac
