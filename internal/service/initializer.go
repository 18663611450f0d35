// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes every service that implements Initializer, in order. If
// any Init call fails, services already initialized are shut down in
// reverse and the first error is returned.
func Init(ctx context.Context, logger *slog.Logger, services []Service) error {
	initialized := make([]Service, 0, len(services))

	for _, s := range services {
		init, ok := s.(Initializer)
		if !ok {
			continue
		}

		logger.Info("initializing service", "service", s.Name())
		if err := init.Init(ctx); err != nil {
			shutdownAll(logger, initialized)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}
		initialized = append(initialized, s)
	}

	return nil
}

func shutdownAll(logger *slog.Logger, services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		down, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		if err := down.Shutdown(); err != nil {
			logger.Error("failed to shut down service", "service", s.Name(), "error", err)
		}
	}
}
