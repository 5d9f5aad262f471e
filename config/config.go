// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads the .heapsnap.toml file that configures the
// heapsnap tool.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/dolthub/heapsnap/snapshot"
)

const FileName = ".heapsnap.toml"

var ErrNoConfig = errors.New("no " + FileName + " found")

type Config struct {
	// File is the path the config was read from, empty for defaults.
	File       string           `toml:"-"`
	Features   FeaturesConfig   `toml:"features"`
	Serializer SerializerConfig `toml:"serializer"`
	Output     FileConfig       `toml:"file"`
}

type FeaturesConfig struct {
	Debug              bool   `toml:"debug"`
	Product            bool   `toml:"product"`
	Asserts            bool   `toml:"asserts"`
	Arch               string `toml:"arch"`
	CompressedPointers bool   `toml:"compressed_pointers"`
	NullSafety         bool   `toml:"null_safety"`
}

type SerializerConfig struct {
	Backtrace bool `toml:"backtrace"`
	// Profile is the path the snapshot profile JSON is written to.
	Profile string `toml:"profile"`
}

type FileConfig struct {
	Compress bool `toml:"compress"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	f := snapshot.DefaultFeatures()
	return &Config{
		Features: FeaturesConfig{
			Debug:              f.Debug,
			Product:            f.Product,
			Asserts:            f.Asserts,
			Arch:               f.Arch,
			CompressedPointers: f.CompressedPointers,
			NullSafety:         f.NullSafety,
		},
		Output: FileConfig{Compress: true},
	}
}

// Find looks for FileName in |dir| and each of its parents and loads the
// first one found. It returns ErrNoConfig if there is none.
func Find(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "checking %s", path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoConfig
		}
		dir = parent
	}
}

// FindOrDefault is Find, falling back to Default when there is no file.
func FindOrDefault(dir string) (*Config, error) {
	c, err := Find(dir)
	if err == ErrNoConfig {
		return Default(), nil
	}
	return c, err
}

// Load reads the config file at |path| on top of the defaults. Unknown keys
// are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	c.File = path
	return c, nil
}

// Apply sets the keys of |overrides| on |c|.
func (c *Config) Apply(overrides *MapConfig) error {
	var err error
	overrides.Iter(func(k, v string) bool {
		err = c.set(k, v)
		return err != nil
	})
	return err
}

func (c *Config) set(key, value string) error {
	boolVal := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "config key %s", key)
		}
		*dst = b
		return nil
	}

	switch key {
	case "features.debug":
		return boolVal(&c.Features.Debug)
	case "features.product":
		return boolVal(&c.Features.Product)
	case "features.asserts":
		return boolVal(&c.Features.Asserts)
	case "features.arch":
		c.Features.Arch = value
	case "features.compressed_pointers":
		return boolVal(&c.Features.CompressedPointers)
	case "features.null_safety":
		return boolVal(&c.Features.NullSafety)
	case "serializer.backtrace":
		return boolVal(&c.Serializer.Backtrace)
	case "serializer.profile":
		c.Serializer.Profile = value
	case "file.compress":
		return boolVal(&c.Output.Compress)
	default:
		return errors.Errorf("unknown config key %s", key)
	}
	return nil
}

// SnapshotFeatures returns the features a stream built with |c| carries.
func (c *Config) SnapshotFeatures() snapshot.Features {
	return snapshot.Features{
		Debug:              c.Features.Debug,
		Product:            c.Features.Product,
		Asserts:            c.Features.Asserts,
		Arch:               c.Features.Arch,
		CompressedPointers: c.Features.CompressedPointers,
		NullSafety:         c.Features.NullSafety,
	}
}

// Options returns snapshot options for |c|.
func (c *Config) Options() snapshot.Options {
	opts := snapshot.DefaultOptions()
	opts.Features = c.SnapshotFeatures()
	opts.Backtrace = c.Serializer.Backtrace
	opts.Profile = c.Serializer.Profile != ""
	return opts
}

// String renders |c| as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err.Error()
	}
	return buf.String()
}
