// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package surface

import (
	"log/slog"

	gokitlog "github.com/go-kit/log"
)

// logAdapter satisfies go-kit's log.Logger, the interface
// exporter-toolkit/web requires, by forwarding alternating key/value pairs
// to the project's slog.Logger.
type logAdapter struct {
	logger *slog.Logger
}

func newLogAdapter(logger *slog.Logger) gokitlog.Logger {
	return &logAdapter{logger: logger}
}

func (a *logAdapter) Log(keyvals ...interface{}) error {
	a.logger.Info("exporter-toolkit", keyvals...)
	return nil
}
