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

package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab/fake"
	"github.com/timeservice/march/driver"
	"github.com/timeservice/march/service"
	"github.com/timeservice/march/stats"
)

const (
	endpointSlot     = cap.Slot(1)
	capSpaceCapacity = 256
)

var (
	logLevel           string
	jsonAddr           string
	promAddr           string
	demoFreqHz         uint64
	promScrapeInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "marchd",
	Short: "high-precision time service core",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warning, error")
	rootCmd.Flags().StringVar(&jsonAddr, "statsaddr", ":8080", "address for the JSON stats server")
	rootCmd.Flags().StringVar(&promAddr, "prometheusaddr", ":8081", "address for the Prometheus exporter")
	rootCmd.Flags().DurationVar(&promScrapeInterval, "scrapeinterval", 10*time.Second, "how often the Prometheus exporter scrapes the JSON stats server")
	rootCmd.Flags().Uint64Var(&demoFreqHz, "demofreq", 10_000_000, "simulated reference tick frequency (no real microkernel tick source exists outside one)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(_ *cobra.Command, _ []string) error {
	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("unrecognized log level: %v", logLevel)
	}

	m, err := buildMarch()
	if err != nil {
		return err
	}
	if err := m.Init(); err != nil {
		return err
	}

	jsonReporter := stats.NewJSONReporter(m.Stats())
	promExporter := stats.NewPrometheusExporter(promAddr, "http://localhost"+jsonAddr, promScrapeInterval)

	eg := new(errgroup.Group)
	eg.Go(func() error { return jsonReporter.Start(jsonAddr) })
	eg.Go(func() error { return promExporter.Start() })
	eg.Go(func() error { return m.Run() })

	return eg.Wait()
}

// buildMarch wires March's collaborators. There is no real microkernel
// binding layer for ResourceBroker/DeviceBroker/Kernel/ServiceBus to
// sit on, so those four are always collab/fake; driver.HostHandle -
// the one real collaborator available today, reading the host clock
// and stepping it through package driver's own CLOCK_ADJTIME call -
// seeds the demo timer source's initial reading
// so TIME_NOW still reflects actual host wall-clock time at startup.
func buildMarch() (*service.March, error) {
	host := driver.NewHostHandle()
	initialNS, err := host.GetTime()
	if err != nil {
		return nil, err
	}

	clock := fake.NewVirtualClock(0)
	devices := fake.NewDeviceBroker()
	devices.AddTimer("host", demoFreqHz, initialNS)
	kernel := fake.NewKernel(demoFreqHz)
	resource := fake.NewResourceBroker()
	bus := fake.NewServiceBus()
	ep := fake.NewEndpoint()

	return service.New(service.Collaborators{
		Resource: resource,
		Devices:  devices,
		Kernel:   kernel,
		Ticks:    clock,
		Bus:      bus,
		Endpoint: ep,
	}, capSpaceCapacity, endpointSlot), nil
}
