// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML overlays on top of a base configuration. Only the
// keys present in an overlay replace base values; zero values are ignored.
type Builder struct {
	overlays []string
	Config   *Config
}

// Use sets the base configuration
func (b *Builder) Use(c *Config) *Builder {
	b.Config = c
	return b
}

// Merge queues YAML overlays; they are applied in order by Build
func (b *Builder) Merge(overlays ...string) *Builder {
	b.overlays = append(b.overlays, overlays...)
	return b
}

// Build applies every overlay to the base configuration, which defaults
// to DefaultConfig. All overlay errors are reported together.
func (b *Builder) Build() (*Config, error) {
	if b.Config == nil {
		b.Config = DefaultConfig()
	}

	var errs error
	for i, y := range b.overlays {
		overlay := &Config{}
		if err := yaml.Unmarshal([]byte(y), overlay); err != nil {
			errs = errors.Join(errs, fmt.Errorf("overlay %d: failed to parse YAML: %w", i, err))
			continue
		}

		if err := mergo.Merge(b.Config, overlay,
			mergo.WithOverride, mergo.WithTransformers(boolPtrTransformer{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("overlay %d: failed to merge: %w", i, err))
		}
	}

	if errs != nil {
		return nil, errs
	}
	return b.Config, nil
}

// boolPtrTransformer lets an overlay set a *bool to false
type boolPtrTransformer struct{}

func (boolPtrTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
