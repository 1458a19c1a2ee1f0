// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is anything managed by Init, Run and Shutdown. Behaviour is opted
// into by also implementing Initializer, Runner or Shutdowner.
type Service interface {
	Name() string
}

// Initializer prepares a service before any Runner starts, e.g. opening a
// device backend or enumerating devices
type Initializer interface {
	Service
	Init() error
}

// Runner blocks until ctx is done or the service fails
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner releases what Init acquired
type Shutdowner interface {
	Service
	Shutdown() error
}

// Names returns the names of services in order
func Names(services []Service) []string {
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name())
	}
	return names
}
