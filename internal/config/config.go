package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"topcontributors/internal/components/telemetry"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

//go:embed default.json5
var defaultConfig []byte

// DefaultFile is the name looked up in the working directory when no
// explicit config path is given.
const DefaultFile = "topcontributors.json5"

type Source struct {
	URL string `json:"url"`
	// Date is YYYY-MM-DD, when empty it is read off the archive URL.
	Date string `json:"date"`
}

type Record struct {
	Donee         string `json:"donee"`
	DatePrecision string `json:"date_precision"`
	DateBasis     string `json:"date_basis"`
	CauseArea     string `json:"cause_area"`
	// Schema is "full" or "compact".
	Schema string `json:"schema"`
}

type Ledger struct {
	// Driver is one of "mysql", "sqlite" or "libsql".
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type Cache struct {
	File string `json:"file"`
}

type Config struct {
	LiveURL             string               `json:"live_url"`
	OriginDate          string               `json:"origin_date"`
	Sources             []Source             `json:"sources"`
	IgnoredDonors       []string             `json:"ignored_donors"`
	Normalize           map[string]string    `json:"normalize"`
	CurrencyMarkers     []string             `json:"currency_markers"`
	UserAgent           string               `json:"user_agent"`
	Record              Record               `json:"record"`
	Ledger              Ledger               `json:"ledger"`
	Cache               Cache                `json:"cache"`
	SimilarityThreshold float64              `json:"similarity_threshold"`
	Otlp                telemetry.OtlpConfig `json:"otlp"`
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadConfig reads a configuration file, `name` should come with a file extension,
// it will automatically be lopped off to produce the other extensions.
// this function will merge the following files, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// os.ErrNotExist is returned if neither exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	dirname := filepath.Dir(name)
	basename := filepath.Base(name)
	prefixname, ext := splitExt(basename)

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := filepath.Join(
		dirname,
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		err = json5.Unmarshal(localFile, &override)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", localFilepath, err)
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}

	return out, nil
}

// Defaults returns the embedded configuration.
func Defaults() (Config, error) {
	var out Config
	err := json5.Unmarshal(defaultConfig, &out)
	if err != nil {
		return Config{}, fmt.Errorf("parse embedded defaults: %w", err)
	}
	return out, nil
}

// Load merges the embedded defaults with the file at path (and its .local
// sibling). Missing files leave the defaults untouched.
func Load(path string) (Config, error) {
	out, err := Defaults()
	if err != nil {
		return Config{}, err
	}

	override, err := ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file found, using defaults", "path", path)
		return out, out.Validate()
	}
	if err != nil {
		return Config{}, err
	}

	err = mergo.Merge(&out, override, mergo.WithOverride)
	if err != nil {
		return Config{}, err
	}
	return out, out.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.LiveURL == "" {
		errs = append(errs, fmt.Errorf("live_url is required"))
	}
	if len(c.CurrencyMarkers) == 0 {
		errs = append(errs, fmt.Errorf("currency_markers must not be empty"))
	}
	if c.Record.Donee == "" {
		errs = append(errs, fmt.Errorf("record.donee is required"))
	}
	switch c.Record.Schema {
	case "", "full", "compact":
	default:
		errs = append(errs, fmt.Errorf("record.schema must be full or compact, got %q", c.Record.Schema))
	}
	switch c.Ledger.Driver {
	case "mysql", "sqlite", "libsql":
	default:
		errs = append(errs, fmt.Errorf("ledger.driver must be mysql, sqlite or libsql, got %q", c.Ledger.Driver))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold must be within [0, 1]"))
	}
	for i, s := range c.Sources {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d].url is required", i))
		}
	}
	return errors.Join(errs...)
}
