// Package config loads the time budgets used by the settle CLI: an optional
// YAML file of named profiles, overridden by SETTLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvTimeout  = "SETTLE_TIMEOUT"
	EnvInterval = "SETTLE_INTERVAL"
	EnvFallback = "SETTLE_FALLBACK"

	DefaultProfile = "default"

	defaultTimeout  = 10 * time.Second
	defaultInterval = 100 * time.Millisecond
	defaultFallback = 10 * time.Second
	minInterval     = 10 * time.Millisecond
)

// Profile is one named time budget.
type Profile struct {
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	Fallback    time.Duration `yaml:"fallback"`
}

// File is the on-disk configuration.
//
//	default: device
//	profiles:
//	  device:
//	    timeout: 30s
//	    interval: 250ms
//	    max_interval: 2s
//	  fast:
//	    timeout: 2s
type File struct {
	Default  string             `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// Default returns the built-in profile.
func Default() Profile {
	return Profile{
		Timeout:  defaultTimeout,
		Interval: defaultInterval,
		Fallback: defaultFallback,
	}
}

// Load reads path. A missing file yields an empty File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for name, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
	}
	if f.Default != "" && f.Default != DefaultProfile {
		if _, ok := f.Profiles[f.Default]; !ok {
			return nil, fmt.Errorf("default profile %q is not defined", f.Default)
		}
	}
	return &f, nil
}

// Profile resolves name ("" selects the file's default) over the built-in
// defaults. Unset fields keep their defaults.
func (f *File) Profile(name string) (Profile, error) {
	if name == "" {
		name = f.Default
	}
	p := Default()
	if name == "" || name == DefaultProfile {
		if named, ok := f.Profiles[DefaultProfile]; ok {
			p = p.merge(named)
		}
		return p, nil
	}
	named, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have: %s)", name, strings.Join(f.Names(), ", "))
	}
	return p.merge(named), nil
}

// Names returns the defined profile names, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (p Profile) merge(o Profile) Profile {
	if o.Timeout != 0 {
		p.Timeout = o.Timeout
	}
	if o.Interval != 0 {
		p.Interval = o.Interval
	}
	if o.MaxInterval != 0 {
		p.MaxInterval = o.MaxInterval
	}
	if o.Fallback != 0 {
		p.Fallback = o.Fallback
	}
	return p
}

// ApplyEnv overrides fields from SETTLE_TIMEOUT, SETTLE_INTERVAL and
// SETTLE_FALLBACK, looked up with getenv.
func (p Profile) ApplyEnv(getenv func(string) string) (Profile, error) {
	for _, v := range []struct {
		key string
		dst *time.Duration
	}{
		{EnvTimeout, &p.Timeout},
		{EnvInterval, &p.Interval},
		{EnvFallback, &p.Fallback},
	} {
		raw := getenv(v.key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = d
	}
	return p, p.Validate()
}

// Validate rejects budgets the poller cannot run with.
func (p Profile) Validate() error {
	if p.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if p.Interval < 0 {
		return errors.New("interval must be >= 0")
	}
	if p.Interval > 0 && p.Interval < minInterval {
		return fmt.Errorf("interval must be >= %v", minInterval)
	}
	if p.MaxInterval < 0 {
		return errors.New("max interval must be >= 0")
	}
	if p.MaxInterval > 0 && p.MaxInterval < p.Interval {
		return errors.New("max interval must be >= interval")
	}
	if p.Fallback < 0 {
		return errors.New("fallback must be >= 0")
	}
	return nil
}
