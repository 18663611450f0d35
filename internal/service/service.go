// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the lifecycle contract shared by every worker in
// the pipeline (setup, retire, estimator, sampler, scanner, controller) so
// they can be driven uniformly by an oklog/run.Group.
package service

import "context"

// Service is the minimal interface every long-lived or one-shot worker
// implements.
type Service interface {
	Name() string
}

// Initializer services run Init before anything is started. Init is not
// required to be goroutine safe.
type Initializer interface {
	Service
	Init(ctx context.Context) error
}

// Runner services block in Run until ctx is cancelled. Any Run that returns
// ends the whole group (see Run), so a one-shot service such as the scanner
// waits on ctx after its work is done.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner services release resources acquired in Init/Run. Run calls
// Shutdown once per service from the group's interrupt step, which can come
// before that service's own Run has returned; Init calls it on the services
// already initialized when a later Init fails.
type Shutdowner interface {
	Service
	Shutdown() error
}
