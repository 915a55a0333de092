/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter periodically scrapes a JSONReporter's own
// /counters endpoint and republishes each counter as a gauge,
// grounded on ptp/sptp/stats.PrometheusExporter - march has no
// separate process boundary to scrape across, but keeping the scrape
// indirection means the exporter and the dispatch loop never share
// the counters map directly.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	listenAddr string
	sourceURL  string
	interval   time.Duration
}

// NewPrometheusExporter creates an exporter serving on listenAddr,
// scraping sourceURL's /counters endpoint every interval.
func NewPrometheusExporter(listenAddr, sourceURL string, interval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		listenAddr: listenAddr,
		sourceURL:  sourceURL,
		interval:   interval,
	}
}

// Start runs the scrape loop and the Prometheus HTTP handler. It
// blocks; callers run it in its own goroutine.
func (e *PrometheusExporter) Start() error {
	go func() {
		for range time.Tick(e.interval) {
			e.scrape()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Infof("starting prometheus exporter on %s", e.listenAddr)
	return http.ListenAndServe(e.listenAddr, mux)
}

func (e *PrometheusExporter) scrape() {
	counters, err := FetchCounters(e.sourceURL)
	if err != nil {
		log.Warnf("failed to scrape march counters: %v", err)
		return
	}
	for name, val := range counters {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: flattenName(name), Help: name})
		if err := e.registry.Register(gauge); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.Errorf("failed to register metric %s: %v", name, err)
				continue
			}
		}
		gauge.Set(float64(val))
	}
}

func flattenName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
