// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package surface implements the per-task read-only HTTP surface (spec.md
// §4.H / §6): a single endpoint reporting one task's cumulative energy,
// the one file spec.md §9(c) commits to.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"

	"github.com/saturneric/pacct-energy/internal/registry"
)

const pathPrefix = "/pacct_energy/"
const pathSuffix = "/energy_uj"

// Handler serves GET /pacct_energy/{pid}/energy_uj as one line of decimal
// microjoules text.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, logger: logger.With("component", "surface")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, pathPrefix)
	if !strings.HasSuffix(rest, pathSuffix) || rest == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	pidStr := strings.TrimSuffix(rest, pathSuffix)

	pid, err := strconv.ParseInt(pidStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid pid", http.StatusBadRequest)
		return
	}

	t, err := h.registry.Lookup(int32(pid))
	if err != nil {
		http.Error(w, "unknown pid", http.StatusNotFound)
		return
	}
	defer h.registry.Put(t)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d\n", t.Energy.Load())
}

// Service wraps Handler in an internal/service.Runner, with optional TLS via
// prometheus/exporter-toolkit/web, grounded on the teacher's
// cmd/exporter/exporter.go http wiring.
type Service struct {
	logger        *slog.Logger
	addr          string
	tlsConfigFile string
	srv           *http.Server
}

func NewService(addr, tlsConfigFile string, handler http.Handler, registerer prometheus.Gatherer, logger *slog.Logger) *Service {
	mux := http.NewServeMux()
	mux.Handle(pathPrefix, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	return &Service{
		logger:        logger.With("service", "http-surface"),
		addr:          addr,
		tlsConfigFile: tlsConfigFile,
		srv:           &http.Server{Addr: addr, Handler: mux},
	}
}

func (s *Service) Name() string { return "http-surface" }

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("http surface listening", "address", s.addr)

	var serveErr error
	if s.tlsConfigFile != "" {
		cfg := s.tlsConfigFile
		flags := &web.FlagConfig{
			WebListenAddresses: &[]string{s.addr},
			WebConfigFile:      &cfg,
		}
		serveErr = web.ListenAndServe(s.srv, flags, newLogAdapter(s.logger))
	} else {
		s.srv.Addr = s.addr
		serveErr = s.srv.ListenAndServe()
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
