/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the agent relay: an HTTP bridge between autonomous dev
// agents and the issue tracker, with Postgres-backed idempotent event
// ingestion and a GCS-backed evidence store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/agentrelay/evidence"
	"chainguard.dev/agentrelay/forge"
	"chainguard.dev/agentrelay/labelmanager"
	"chainguard.dev/agentrelay/server"
	"chainguard.dev/agentrelay/store"
)

type config struct {
	Port        int    `env:"PORT,default=8080"`
	MetricsPort int    `env:"METRICS_PORT,default=2112"`
	BaseURL     string `env:"RELAY_BASE_URL,default=http://localhost:8080"`

	RelayKey    string `env:"RELAY_KEY,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// GitHub App identity the relay acts as on the v2 surface.
	AppID          int64  `env:"GITHUB_APP_ID,required"`
	InstallationID int64  `env:"GITHUB_INSTALLATION_ID,required"`
	PrivateKey     string `env:"GITHUB_PRIVATE_KEY,required"`
	GitHubAPIURL   string `env:"GITHUB_API_URL"`

	EvidenceBucket string `env:"EVIDENCE_BUCKET,required"`

	// LabelRules is the JSON transition table; empty disables transitions.
	LabelRules string `env:"LABEL_RULES"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		clog.FatalContextf(ctx, "opening database: %v", err)
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		clog.FatalContextf(ctx, "initializing schema: %v", err)
	}

	var forgeOpts []forge.Option
	if cfg.GitHubAPIURL != "" {
		forgeOpts = append(forgeOpts, forge.WithBaseURL(cfg.GitHubAPIURL))
	}
	fc, err := forge.New(cfg.AppID, cfg.InstallationID, []byte(cfg.PrivateKey), forgeOpts...)
	if err != nil {
		clog.FatalContextf(ctx, "building forge client: %v", err)
	}

	blobs, err := evidence.NewGCSBlobStore(ctx, cfg.EvidenceBucket)
	if err != nil {
		clog.FatalContextf(ctx, "opening evidence bucket: %v", err)
	}

	srv := server.New(server.Config{
		RelayKey:     cfg.RelayKey,
		BaseURL:      cfg.BaseURL,
		Store:        db,
		Forge:        fc,
		Rules:        labelmanager.ParseRules(ctx, cfg.LabelRules),
		Evidence:     evidence.New(blobs, db),
		ForgeBaseURL: cfg.GitHubAPIURL,
	})

	metrics := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			clog.ErrorContextf(ctx, "metrics server failed: %v", err)
		}
	}()

	api := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "shutting down: %v", err)
		}
		_ = metrics.Shutdown(shutdownCtx)
	}()

	clog.InfoContextf(ctx, "Starting agent relay on port %d (metrics on %d)", cfg.Port, cfg.MetricsPort)
	if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}
