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

// Package admin builds the HTTP mux exposed alongside the relay: a landing
// page, a health check, and Prometheus metrics (spec.md §6 admin surface,
// treated as an external collaborator of the relay itself).
package admin

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"
)

// NewMux builds the admin HTTP handler: "/" serves a landing page linking to
// metrics, "/healthcheck" reports liveness, and metricsPath serves the
// Prometheus registry.
func NewMux(metricsPath string) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	landingConfig := web.LandingConfig{
		Name:        "statsrelay",
		Description: "StatsD relay: fan out StatsD lines across sharded backends",
		Version:     version.Info(),
		Links: []web.LandingLinks{
			{Address: metricsPath, Text: "Metrics"},
			{Address: "/healthcheck", Text: "Health check"},
		},
	}
	landingPage, err := web.NewLandingPage(landingConfig)
	if err != nil {
		return nil, err
	}
	mux.Handle("/", landingPage)

	return mux, nil
}
