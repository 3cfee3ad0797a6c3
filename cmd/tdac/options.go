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

package main

import "github.com/spf13/pflag"

// option describes one command-line flag and every flag set it should
// appear on: a flag that needs to show up on more than one command is
// declared once and registered everywhere the table lists it.
type option struct {
	name, usage, shorthand string
	defaultVal              interface{}
	flagsets                []*pflag.FlagSet
}

// registerOptions adds every option in opts to its listed flag sets,
// creating the underlying pflag.Value on the first flag set and sharing it
// with the rest via AddFlag, so that two subcommands can bind the same
// flag without each keeping an independent value.
func registerOptions(opts []option) {
	for _, o := range opts {
		for i, set := range o.flagsets {
			if i != 0 {
				set.AddFlag(o.flagsets[0].Lookup(o.name))
				continue
			}
			switch v := o.defaultVal.(type) {
			case string:
				if o.shorthand == "" {
					set.String(o.name, v, o.usage)
				} else {
					set.StringP(o.name, o.shorthand, v, o.usage)
				}
			case int:
				if o.shorthand == "" {
					set.Int(o.name, v, o.usage)
				} else {
					set.IntP(o.name, o.shorthand, v, o.usage)
				}
			case float64:
				if o.shorthand == "" {
					set.Float64(o.name, v, o.usage)
				} else {
					set.Float64P(o.name, o.shorthand, v, o.usage)
				}
			case bool:
				if o.shorthand == "" {
					set.Bool(o.name, v, o.usage)
				} else {
					set.BoolP(o.name, o.shorthand, v, o.usage)
				}
			}
		}
	}
}
