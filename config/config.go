// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2022 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package config loads the user's flametrace configuration: an
// ini-style file with tool defaults and an optional YAML file with
// extra trace profiles.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/mvo5/goconfigparser"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Config are the tool defaults read from the configuration directory.
type Config struct {
	// Strace overrides the tracer binary looked up on PATH
	Strace string
	// Flamegraph overrides the flamegraph.pl looked up on PATH
	Flamegraph string
	// Width of the rendered chart in pixels
	Width int
	// Colors is the flamegraph palette name
	Colors string

	// Profiles maps trace mode names to strace -e expressions; the
	// built-in modes are always present
	Profiles map[string]string
}

// The built-in trace modes. "io" is slower but records what every
// process read, wrote and talked to.
var builtinProfiles = map[string]string{
	"process": "trace=%process",
	"io":      "trace=%process,%network,%file,read,write",
}

const configSection = "flametrace"

// Dir returns the configuration directory.
func Dir() string {
	if d := os.Getenv("FLAMETRACE_CONFIG_DIR"); d != "" {
		return d
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "flametrace")
}

// Load reads flametrace.conf and profiles.yaml from dir. Missing
// files are fine and yield the defaults; malformed files are an error.
func Load(dir string) (*Config, error) {
	cfg := &Config{
		Profiles: make(map[string]string, len(builtinProfiles)+2),
	}
	for name, expr := range builtinProfiles {
		cfg.Profiles[name] = expr
	}
	if dir == "" {
		return cfg, nil
	}

	if err := cfg.readConf(filepath.Join(dir, "flametrace.conf")); err != nil {
		return nil, err
	}
	if err := cfg.readProfiles(filepath.Join(dir, "profiles.yaml")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) readConf(path string) error {
	parser := goconfigparser.New()
	if err := parser.ReadFile(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("cannot read %s: %w", path, err)
	}
	// all options are optional
	if v, err := parser.Get(configSection, "strace"); err == nil {
		cfg.Strace = v
	}
	if v, err := parser.Get(configSection, "flamegraph"); err == nil {
		cfg.Flamegraph = v
	}
	if v, err := parser.Getint(configSection, "width"); err == nil {
		cfg.Width = v
	}
	if v, err := parser.Get(configSection, "colors"); err == nil {
		cfg.Colors = v
	}
	return nil
}

func (cfg *Config) readProfiles(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var profiles map[string]string
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return xerrors.Errorf("cannot parse %s: %w", path, err)
	}
	// user profiles may shadow the built-in ones
	for name, expr := range profiles {
		cfg.Profiles[name] = expr
	}
	return nil
}
