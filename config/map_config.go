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

package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var ErrConfigParamNotFound = errors.New("param not found")

// MapConfig is an in-memory set of key=value overrides. Keys use the
// section.name spelling of the TOML file.
type MapConfig struct {
	properties map[string]string
}

// NewMapConfig creates a config from a map.
func NewMapConfig(properties map[string]string) *MapConfig {
	if properties == nil {
		properties = map[string]string{}
	}
	return &MapConfig{properties}
}

// ParseOverrides builds a MapConfig from key=value arguments.
func ParseOverrides(args []string) (*MapConfig, error) {
	mc := NewMapConfig(nil)
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("override %q is not key=value", arg)
		}
		mc.properties[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return mc, nil
}

// GetString retrieves a value for a given key.
func (mc *MapConfig) GetString(k string) (string, error) {
	if val, ok := mc.properties[k]; ok {
		return val, nil
	}
	return "", ErrConfigParamNotFound
}

// SetStrings sets the values for a map of updates.
func (mc *MapConfig) SetStrings(updates map[string]string) error {
	for k, v := range updates {
		mc.properties[k] = v
	}
	return nil
}

// Iter calls |cb| for each key in sorted order until it returns true.
func (mc *MapConfig) Iter(cb func(string, string) (stop bool)) {
	keys := make([]string, 0, len(mc.properties))
	for k := range mc.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if cb(k, mc.properties[k]) {
			break
		}
	}
}

// Unset removes configuration parameters.
func (mc *MapConfig) Unset(params []string) error {
	for _, param := range params {
		delete(mc.properties, param)
	}
	return nil
}

// Size returns the number of properties contained within the config
func (mc *MapConfig) Size() int {
	return len(mc.properties)
}
