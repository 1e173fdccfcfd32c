// Copyright 2013 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"golang.org/x/sync/errgroup"

	"github.com/uber/statsrelay/internal/admin"
	"github.com/uber/statsrelay/pkg/backends"
	"github.com/uber/statsrelay/pkg/config"
	"github.com/uber/statsrelay/pkg/discovery"
	"github.com/uber/statsrelay/pkg/reload"
	"github.com/uber/statsrelay/pkg/server"
)

func main() {
	var (
		configFile      = kingpin.Flag("config", "Path to the statsrelay configuration file.").Short('c').Default("/etc/statsrelay.json").String()
		listenAddress   = kingpin.Flag("web.listen-address", "The address on which to expose the web interface and generated Prometheus metrics.").Default(":9102").String()
		metricsEndpoint = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
	)
	// --threaded is accepted for compatibility with the original CLI surface
	// but has no effect: this implementation is always one process with a
	// goroutine per connection (spec.md §9 Non-goals).
	kingpin.Flag("threaded", "Accepted for compatibility; this build is always multi-goroutine.").Short('t').Bool()

	promslogConfig := &promslog.Config{}
	flag.AddFlags(kingpin.CommandLine, promslogConfig)
	kingpin.Version(version.Print("statsrelay"))
	kingpin.CommandLine.UsageWriter(os.Stdout)
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := promslog.New(promslogConfig)
	prometheus.MustRegister(versioncollector.NewCollector("statsrelay"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := backends.New(logger)
	cache := discovery.NewCache()

	var discoverySources map[string]config.DiscoverySource
	if cfg.Discovery != nil {
		discoverySources = cfg.Discovery.Sources
	}
	discoveryEvents := discovery.Run(ctx, discoverySources, cache, logger)

	loop := reload.New(*configFile, registry, cache, logger)
	hup := make(chan struct{}, 1)

	srv := server.New(cfg.Statsd.Bind, registry, logger)

	mux, err := admin.NewMux(*metricsEndpoint)
	if err != nil {
		logger.Error("failed to build admin mux", "error", err)
		os.Exit(1)
	}
	// config.json's admin.port (spec.md §6) wins over the CLI default so a
	// deployed config is authoritative; the flag remains the fallback for
	// configs that omit the admin section entirely.
	adminAddr := *listenAddress
	if cfg.Admin != nil && cfg.Admin.Port != 0 {
		adminAddr = fmt.Sprintf(":%d", cfg.Admin.Port)
	}
	adminServer := &http.Server{Addr: adminAddr, Handler: mux}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				select {
				case hup <- struct{}{}:
				default:
				}
			default:
				logger.Info("received shutdown signal", "signal", sig.String())
				cancel()
				adminServer.Close()
				return
			}
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx)
	})
	group.Go(func() error {
		return loop.Run(groupCtx, hup, discoveryEvents)
	})
	group.Go(func() error {
		logger.Info("admin http server running", "address", adminAddr)
		err := adminServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error("statsrelay exited with error", "error", err)
		os.Exit(1)
	}
}
