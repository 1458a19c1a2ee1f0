// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package smi

import (
	"fmt"
	"log/slog"
	"sync"
)

// Service owns the device registry of a single Driver. It enumerates every
// processor of every socket once and hands out the resulting Processors.
type Service struct {
	logger   *slog.Logger
	driver   Driver
	observer Observer

	mu         sync.RWMutex
	version    Version
	processors []*Processor
	enumerated bool
}

// Opts configures a Service
type Opts struct {
	logger   *slog.Logger
	observer Observer
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		observer: NopObserver{},
	}
}

// OptionFn is a function that sets one or more options in Opts
type OptionFn func(*Opts)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithObserver sets the sink for non-fatal events
func WithObserver(observer Observer) OptionFn {
	return func(o *Opts) {
		o.observer = observer
	}
}

// NewService creates a registry over driver
func NewService(driver Driver, applyOpts ...OptionFn) *Service {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Service{
		logger:   opts.logger.With("service", "smi"),
		driver:   driver,
		observer: opts.observer,
	}
}

func (s *Service) Name() string {
	return "smi"
}

// Init queries the driver version and enumerates every processor
func (s *Service) Init() error {
	v, st := s.driver.Version()
	if st.OK() {
		s.mu.Lock()
		s.version = v
		s.mu.Unlock()
		s.logger.Info("Driver version",
			"driver", s.driver.Name(),
			"major", v.Major, "minor", v.Minor, "release", v.Release, "build", v.Build)
	} else {
		s.logger.Warn("Failed to read driver version",
			"driver", s.driver.Name(), "error", newStatusError(s.driver, "get version", st))
	}

	procs, err := s.Enumerate()
	if err != nil {
		return err
	}

	s.logger.Info("Devices enumerated", "driver", s.driver.Name(), "count", len(procs))
	return nil
}

// Version returns the driver version read by Init
func (s *Service) Version() Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Enumerate lists every processor of every socket using the two-phase
// count-then-fill convention of the driver. Any failure aborts the whole
// enumeration and no processors are returned. Once an enumeration has
// succeeded later calls return the same processors, so their cached
// capability masks survive.
func (s *Service) Enumerate() ([]*Processor, error) {
	s.mu.RLock()
	if s.enumerated {
		procs := s.processors
		s.mu.RUnlock()
		return procs, nil
	}
	s.mu.RUnlock()

	sockets, err := enumerate(s.driver, "socket", s.driver.SocketHandles)
	if err != nil {
		return nil, err
	}

	var procs []*Processor
	for si, socket := range sockets {
		handles, err := enumerate(s.driver, fmt.Sprintf("processors of socket %d", si),
			func(h []ProcessorHandle) (uint32, Status) {
				return s.driver.ProcessorHandles(socket, h)
			})
		if err != nil {
			return nil, err
		}

		for _, h := range handles {
			kind, st := s.driver.ProcessorType(h)
			if !st.OK() {
				return nil, fmt.Errorf("%w: %w", ErrEnumeration,
					newStatusError(s.driver, fmt.Sprintf("get type of processor %d", len(procs)), st))
			}
			procs = append(procs, newProcessor(s.driver, s.observer, h, kind, len(procs), si))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enumerated {
		// a concurrent call won
		return s.processors, nil
	}
	s.processors = procs
	s.enumerated = true
	return procs, nil
}

// Processors returns the processors of the last successful enumeration
func (s *Service) Processors() ([]*Processor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enumerated {
		return nil, ErrNotEnumerated
	}
	return s.processors, nil
}

// enumerate runs the two-phase listing. A zero count skips the second call.
func enumerate[H any](d Driver, what string, list func([]H) (uint32, Status)) ([]H, error) {
	count, st := list(nil)
	if !st.OK() {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, newStatusError(d, "count "+what, st))
	}
	if count == 0 {
		return nil, nil
	}

	handles := make([]H, count)
	n, st := list(handles)
	if !st.OK() {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, newStatusError(d, "list "+what, st))
	}
	return handles[:min(n, count)], nil
}
