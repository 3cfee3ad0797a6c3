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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validDefault is Default() made complete: automatic SIS needs a fuel
// composition, which has no sensible default.
func validDefault() Config {
	cfg := Default()
	cfg.FuelSpecies = map[string]float64{"CH4": 1}
	return cfg
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tdac.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	return path
}

func TestDefaultValidatesWithFuel(t *testing.T) {
	if err := Validate(validDefault()); err != nil {
		t.Fatalf("defaults plus a fuel table failed validation: %v", err)
	}
}

func TestValidateRequiresFuelWithAutomaticSIS(t *testing.T) {
	if err := Validate(Default()); err == nil {
		t.Fatalf("expected an error for automatic_sis without a fuel_species table")
	}
}

func TestValidateRequiresSeedsWithManualSIS(t *testing.T) {
	cfg := validDefault()
	cfg.AutomaticSIS = false
	cfg.SearchInitSet = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for manual SIS with an empty search_init_set")
	}
}

func TestValidateRejectsNonPositiveEpsDAC(t *testing.T) {
	cfg := validDefault()
	cfg.EpsDAC = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for eps_dac=0")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validDefault()
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for an unrecognized log level")
	}
}

func TestValidateRejectsNegativeISATLimits(t *testing.T) {
	cfg := validDefault()
	cfg.ISAT.MaxElements = -1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a negative isat.max_elements")
	}

	cfg = validDefault()
	cfg.ISAT.Tolerance = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a non-positive isat.tolerance")
	}
}

func TestValidateRejectsNonPositiveScaleFactor(t *testing.T) {
	cfg := validDefault()
	cfg.ScaleFactor = []float64{1, 0, 1}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a zero scale_factor entry")
	}
}

func TestValidateRejectsNonPositiveFuelFraction(t *testing.T) {
	cfg := validDefault()
	cfg.FuelSpecies = map[string]float64{"CH4": -0.5}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a negative fuel mass fraction")
	}
}

func TestLoadParsesTOMLOverDefaults(t *testing.T) {
	path := writeConfig(t, `
eps_dac = 0.005
automatic_sis = false
search_init_set = ["CH4", "CO"]
nox_threshold = 1900.0

[isat]
tolerance = 1e-3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EpsDAC != 0.005 {
		t.Fatalf("EpsDAC = %v, want 0.005", cfg.EpsDAC)
	}
	if cfg.AutomaticSIS {
		t.Fatalf("AutomaticSIS = true, want false")
	}
	if len(cfg.SearchInitSet) != 2 || cfg.SearchInitSet[0] != "CH4" {
		t.Fatalf("SearchInitSet = %v, want [CH4 CO]", cfg.SearchInitSet)
	}
	if cfg.NOxThreshold != 1900 {
		t.Fatalf("NOxThreshold = %v, want 1900", cfg.NOxThreshold)
	}
	if cfg.ISAT.Tolerance != 1e-3 {
		t.Fatalf("ISAT.Tolerance = %v, want 1e-3", cfg.ISAT.Tolerance)
	}
	// Settings the file omits keep their defaults rather than zeroing out.
	if cfg.ISAT.MaxElements != Default().ISAT.MaxElements {
		t.Fatalf("ISAT.MaxElements = %d, want the default %d", cfg.ISAT.MaxElements, Default().ISAT.MaxElements)
	}
	if cfg.LogLevel != Default().LogLevel {
		t.Fatalf("LogLevel = %q, want the default %q", cfg.LogLevel, Default().LogLevel)
	}
}

func TestLoadParsesFuelSpeciesTable(t *testing.T) {
	path := writeConfig(t, `
[fuel_species]
CH4 = 0.8
H2 = 0.2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FuelSpecies["CH4"] != 0.8 || cfg.FuelSpecies["H2"] != 0.2 {
		t.Fatalf("FuelSpecies = %v, want CH4=0.8 H2=0.2", cfg.FuelSpecies)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TDAC_EPS_DAC", "0.01")
	t.Setenv("TDAC_ISAT_MAX_ELEMENTS", "42")
	path := writeConfig(t, `
eps_dac = 0.005

[fuel_species]
CH4 = 1.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EpsDAC != 0.01 {
		t.Fatalf("EpsDAC = %v, want the environment override 0.01", cfg.EpsDAC)
	}
	if cfg.ISAT.MaxElements != 42 {
		t.Fatalf("ISAT.MaxElements = %d, want the environment override 42", cfg.ISAT.MaxElements)
	}
}

func TestLoadExpandsLogLevelEnvReference(t *testing.T) {
	t.Setenv("TDAC_TEST_LEVEL", "debug")
	path := writeConfig(t, `
log_level = "$TDAC_TEST_LEVEL"

[fuel_species]
CH4 = 1.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want the expanded value \"debug\"", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/tdac.toml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, "eps_dac = [not valid")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed TOML")
	}
}
