// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/oklog/run"
)

// Run runs every Runner in an oklog run group. The first Runner to return
// cancels the others; each Runner is shut down as it exits. Services that
// do not run but can shut down are shut down in reverse order after the
// group returns.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	logger.Info("Running all services")
	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	passive := make([]Service, 0, len(services))
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			logger.Debug("not a runner", "service", s.Name())
			passive = append(passive, s)
			continue
		}

		g.Add(
			func() error {
				logger.Info("Running service", "service", s.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", s.Name(), "reason", err)
				}

				shutdowner, ok := s.(Shutdowner)
				if !ok {
					logger.Debug("skipping service shutting down", "service", s.Name(),
						"reason", "service does not implement Shutdowner interface")
					return
				}

				logger.Info("shutting down", "service", s.Name())
				if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
					logger.Warn("service shutdown failed with error", "service", s.Name(), "error", shutdownErr)
				}
			},
		)
	}

	runErr := g.Run()
	if err := Shutdown(logger, passive); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
