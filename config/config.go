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

// Package config loads and validates the static settings a tdac.Solver is
// built from. A file is read whole and handed to github.com/BurntSushi/toml,
// then environment variables referenced by string-valued fields are
// expanded. TDAC_-prefixed environment-variable overrides on top of the
// file go through viper/cast, so the environment takes precedence over the
// file. Validation is a chain of small,
// independently testable check* functions returning plain errors.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/spatialmodel/tdac/errs"
)

// ISAT groups the tabulation-cache settings under their own TOML table.
type ISAT struct {
	// Tolerance is the ellipsoid-of-accuracy test tolerance.
	Tolerance float64 `toml:"tolerance"`

	// MaxElements bounds the cache's leaf count; zero means unbounded.
	MaxElements int `toml:"max_elements"`

	// MaxNbBalanceTest is the number of additions between rebalance
	// checks; zero disables checking.
	MaxNbBalanceTest int `toml:"max_nb_balance_test"`

	// BalanceThreshold triggers a rebalance when the tree depth exceeds
	// BalanceThreshold*log2(size).
	BalanceThreshold float64 `toml:"balance_threshold"`

	// Max2ndSearch bounds the secondary search after a primary miss; zero
	// disables it.
	Max2ndSearch int `toml:"max_2nd_search"`
}

// Config is the full set of static settings for a tdac.Solver. It is built
// once via Load or Default and never mutated afterward.
type Config struct {
	// EpsDAC is the DAC direct-interaction-coefficient threshold.
	EpsDAC float64 `toml:"eps_dac"`

	// AutomaticSIS selects the search-initiating set from the progress and
	// large-hydrocarbon equivalence ratios instead of SearchInitSet.
	AutomaticSIS bool `toml:"automatic_sis"`

	// SearchInitSet names the seed species used when AutomaticSIS is off.
	SearchInitSet []string `toml:"search_init_set"`

	// FuelSpecies maps fuel species names to mass fractions. Required when
	// AutomaticSIS is on.
	FuelSpecies map[string]float64 `toml:"fuel_species"`

	// NbCLarge is the carbon count above which a species counts as a large
	// hydrocarbon; zero means 3.
	NbCLarge int `toml:"nb_c_large"`

	// PhiTol is the equivalence-ratio tolerance for SIS switching; zero
	// means "use EpsDAC".
	PhiTol float64 `toml:"phi_tol"`

	// NOxThreshold is the Kelvin threshold above which NO joins the
	// search-initiating set; zero means 1800.
	NOxThreshold float64 `toml:"nox_threshold"`

	// ScaleFactor holds per-dimension characteristic magnitudes for the
	// EOA metric, length NumSpecies+2. Empty means unscaled.
	ScaleFactor []float64 `toml:"scale_factor"`

	// ISAT holds the tabulation-cache settings.
	ISAT ISAT `toml:"isat"`

	// LogLevel is a logrus level name (e.g. "info", "debug"). It may
	// reference an environment variable (e.g. "$TDAC_LOG_LEVEL"), expanded
	// at load time.
	LogLevel string `toml:"log_level"`
}

// Default returns a Config with the documented defaults. Automatic SIS has
// no sensible default fuel composition, so FuelSpecies is left empty and
// must come from the file.
func Default() Config {
	return Config{
		EpsDAC:       1e-3,
		AutomaticSIS: true,
		NbCLarge:     3,
		NOxThreshold: 1800,
		ISAT: ISAT{
			Tolerance:        1e-4,
			MaxElements:      100000,
			MaxNbBalanceTest: 500,
			BalanceThreshold: 2,
			Max2ndSearch:     0,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a TOML configuration file at path, starting from
// Default so that any field the file omits keeps its default value, then
// applies TDAC_-prefixed environment variable overrides and validates the
// result.
func Load(path string) (Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &errs.ConfigError{Msg: "config: cannot read " + path + ": " + err.Error()}
	}

	cfg := Default()
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, &errs.ConfigError{Msg: "config: cannot parse " + path + ": " + err.Error()}
	}
	cfg.LogLevel = os.ExpandEnv(cfg.LogLevel)

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets TDAC_-prefixed environment variables override the
// scalar settings Load already parsed from the file. List
// and table settings (search_init_set, fuel_species, scale_factor) come
// from the file only.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("tdac")
	for _, key := range []string{
		"eps_dac", "automatic_sis", "nb_c_large", "phi_tol", "nox_threshold",
		"isat_tolerance", "isat_max_elements", "isat_max_2nd_search", "log_level",
	} {
		v.BindEnv(key)
	}

	if v.IsSet("eps_dac") {
		cfg.EpsDAC = cast.ToFloat64(v.Get("eps_dac"))
	}
	if v.IsSet("automatic_sis") {
		cfg.AutomaticSIS = cast.ToBool(v.Get("automatic_sis"))
	}
	if v.IsSet("nb_c_large") {
		cfg.NbCLarge = cast.ToInt(v.Get("nb_c_large"))
	}
	if v.IsSet("phi_tol") {
		cfg.PhiTol = cast.ToFloat64(v.Get("phi_tol"))
	}
	if v.IsSet("nox_threshold") {
		cfg.NOxThreshold = cast.ToFloat64(v.Get("nox_threshold"))
	}
	if v.IsSet("isat_tolerance") {
		cfg.ISAT.Tolerance = cast.ToFloat64(v.Get("isat_tolerance"))
	}
	if v.IsSet("isat_max_elements") {
		cfg.ISAT.MaxElements = cast.ToInt(v.Get("isat_max_elements"))
	}
	if v.IsSet("isat_max_2nd_search") {
		cfg.ISAT.Max2ndSearch = cast.ToInt(v.Get("isat_max_2nd_search"))
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = cast.ToString(v.Get("log_level"))
	}
}

// Validate checks cfg for internal consistency, one small function per
// rule.
func Validate(cfg Config) error {
	for _, check := range []func(Config) error{
		checkEpsDAC,
		checkSIS,
		checkNOxThreshold,
		checkISAT,
		checkScaleFactor,
		checkLogLevel,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func checkEpsDAC(cfg Config) error {
	if cfg.EpsDAC <= 0 {
		return &errs.ConfigError{Msg: "config: eps_dac must be positive"}
	}
	if cfg.PhiTol < 0 {
		return &errs.ConfigError{Msg: "config: phi_tol cannot be negative"}
	}
	return nil
}

func checkSIS(cfg Config) error {
	if cfg.AutomaticSIS {
		if len(cfg.FuelSpecies) == 0 {
			return &errs.ConfigError{Msg: "config: automatic_sis requires a non-empty fuel_species table"}
		}
		for name, frac := range cfg.FuelSpecies {
			if frac <= 0 {
				return &errs.ConfigError{Msg: "config: fuel_species mass fraction for " + name + " must be positive"}
			}
		}
		return nil
	}
	if len(cfg.SearchInitSet) == 0 {
		return &errs.ConfigError{Msg: "config: search_init_set must be non-empty when automatic_sis is off"}
	}
	return nil
}

func checkNOxThreshold(cfg Config) error {
	if cfg.NOxThreshold < 0 {
		return &errs.ConfigError{Msg: "config: nox_threshold cannot be negative"}
	}
	return nil
}

func checkISAT(cfg Config) error {
	if cfg.ISAT.Tolerance <= 0 {
		return &errs.ConfigError{Msg: "config: isat.tolerance must be positive"}
	}
	if cfg.ISAT.MaxElements < 0 {
		return &errs.ConfigError{Msg: "config: isat.max_elements cannot be negative"}
	}
	if cfg.ISAT.Max2ndSearch < 0 {
		return &errs.ConfigError{Msg: "config: isat.max_2nd_search cannot be negative"}
	}
	if cfg.ISAT.MaxNbBalanceTest < 0 {
		return &errs.ConfigError{Msg: "config: isat.max_nb_balance_test cannot be negative"}
	}
	return nil
}

func checkScaleFactor(cfg Config) error {
	for _, s := range cfg.ScaleFactor {
		if s <= 0 {
			return &errs.ConfigError{Msg: "config: scale_factor entries must be positive"}
		}
	}
	return nil
}

var validLogLevels = map[string]bool{
	"panic": true, "fatal": true, "error": true, "warn": true,
	"info": true, "debug": true, "trace": true,
}

func checkLogLevel(cfg Config) error {
	level := strings.ToLower(cast.ToString(cfg.LogLevel))
	if level == "" {
		return nil
	}
	if !validLogLevels[level] {
		return &errs.ConfigError{Msg: "config: unrecognized log_level " + cfg.LogLevel}
	}
	return nil
}
