// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run drives every service implementing Runner through an oklog/run.Group:
// if any one terminates (with or without error), the shared context is
// cancelled and every other service's Shutdown is invoked.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			continue
		}
		svc := s
		r := runner
		g.Add(
			func() error {
				logger.Info("running service", "service", svc.Name())
				return r.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", svc.Name(), "reason", err)
				}
				down, ok := svc.(Shutdowner)
				if !ok {
					return
				}
				if shutErr := down.Shutdown(); shutErr != nil {
					logger.Warn("service shutdown failed", "service", svc.Name(), "error", shutErr)
				}
			},
		)
	}

	return g.Run()
}
