/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// discoveryd is the network discovery daemon: it scans configured ranges,
// maintains the device registry and topology, evaluates alerts, and serves
// the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vlanvision/vlanvision/pkg/alerting"
	"github.com/vlanvision/vlanvision/pkg/api"
	"github.com/vlanvision/vlanvision/pkg/backup"
	"github.com/vlanvision/vlanvision/pkg/config"
	"github.com/vlanvision/vlanvision/pkg/db"
	"github.com/vlanvision/vlanvision/pkg/discovery"
	"github.com/vlanvision/vlanvision/pkg/events"
	"github.com/vlanvision/vlanvision/pkg/logger"
	"github.com/vlanvision/vlanvision/pkg/models"
	"github.com/vlanvision/vlanvision/pkg/probe"
	"github.com/vlanvision/vlanvision/pkg/registry"
	"github.com/vlanvision/vlanvision/pkg/telemetry"
	"github.com/vlanvision/vlanvision/pkg/topology"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/vlanvision/discoveryd.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrapLogger, err := logger.New(logger.DefaultConfig())
	if err != nil {
		return err
	}

	var cfg models.CoreConfig
	if err := config.NewConfig(bootstrapLogger).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	mainLogger, err := logger.New(logConfig)
	if err != nil {
		return err
	}

	tracing, err := telemetry.Init(ctx, cfg.Telemetry, mainLogger)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := tracing.Shutdown(shutdownCtx); err != nil {
			mainLogger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	return runEngine(ctx, &cfg, mainLogger)
}

func runEngine(ctx context.Context, cfg *models.CoreConfig, mainLogger logger.Logger) error {
	reg := registry.NewRegistry(cfg.Discovery.MissThreshold, mainLogger)

	rules := alerting.DefaultRules(cfg.Alerting.WindowSize)

	customRules, err := alerting.LoadRulesFile(cfg.Alerting.RulesFile)
	if err != nil {
		return err
	}

	rules = append(rules, customRules...)
	evaluator := alerting.NewEvaluator(rules, cfg.Alerting.CloseThreshold, mainLogger)

	probers, err := probe.NewProbers(cfg.Discovery.Techniques, cfg.SNMP, cfg.Discovery.ProbeTimeout.Std(), mainLogger)
	if err != nil {
		return err
	}

	pool := probe.NewPool(probers, cfg.Discovery.MaxConcurrent, mainLogger)

	hub := events.NewHub(mainLogger)
	defer func() { _ = hub.Close() }()

	publishers := []events.Publisher{hub}

	if cfg.Events.Enabled {
		natsPublisher, err := events.NewNATSPublisher(ctx, cfg.Events, mainLogger)
		if err != nil {
			return err
		}

		defer func() { _ = natsPublisher.Close() }()

		publishers = append(publishers, natsPublisher)
	}

	store, err := db.NewStore(ctx, cfg.Database, mainLogger)
	if err != nil {
		return err
	}

	asyncStore := db.NewAsyncStore(store, mainLogger)
	if asyncStore != nil {
		defer func() { _ = asyncStore.Close() }()
	}

	deps := discovery.Deps{
		Pool:      pool,
		Registry:  reg,
		Topology:  topology.NewBuilder(mainLogger),
		Evaluator: evaluator,
		Publisher: events.NewFanout(publishers...),
		Logger:    mainLogger,
	}

	// Leave Store nil when persistence is disabled; a typed nil would defeat
	// the engine's nil checks.
	if asyncStore != nil {
		deps.Store = asyncStore
	}

	engine := discovery.NewEngine(cfg.Discovery, deps)

	if err := engine.WarmStart(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("Warm start failed, continuing with empty registry")
	}

	engine.Start(ctx)

	serverOptions := []func(*api.APIServer){
		api.WithEngine(engine),
		api.WithRegistry(reg),
		api.WithEvaluator(evaluator),
		api.WithEventHub(hub),
		api.WithLogger(mainLogger),
		api.WithAPIKey(cfg.APIKey),
	}

	if cfg.Backup.Enabled {
		serverOptions = append(serverOptions, api.WithBackupService(backup.NewService(cfg.Backup, mainLogger)))
	}

	server := api.NewAPIServer(serverOptions...)

	errCh := make(chan error, 1)

	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		mainLogger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		mainLogger.Warn().Err(err).Msg("API server shutdown failed")
	}

	engine.Stop(shutdownCtx)

	return nil
}
