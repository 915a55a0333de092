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
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/timeservice/march/stats"
)

var okString = color.GreenString("[ OK ]")
var failString = color.RedString("[FAIL]")

var statsAddrFlag string

var rootCmd = &cobra.Command{
	Use:   "marchctl",
	Short: "inspect a running marchd's stats endpoint",
}

var countersCmd = &cobra.Command{
	Use:   "counters",
	Short: "print march's operational counters as a table",
	RunE:  runCounters,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&statsAddrFlag, "addr", "a", "http://localhost:8080", "marchd's JSON stats base URL")
	rootCmd.AddCommand(countersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func statusString(ok bool) string {
	if ok {
		return okString
	}
	return failString
}

func runCounters(_ *cobra.Command, _ []string) error {
	counters, err := stats.FetchCounters(statsAddrFlag)
	if err != nil {
		return fmt.Errorf("fetching counters from %s: %w", statsAddrFlag, err)
	}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(24)
	table.SetHeader([]string{"status", "counter", "value"})
	for _, name := range names {
		val := counters[name]
		isError := name == stats.CounterRecvErrors || name == stats.CounterInvalidMethod || name == stats.CounterResourceExhausted
		table.Append([]string{statusString(!isError || val == 0), name, fmt.Sprintf("%d", val)})
	}
	table.Render()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug("stdout is not a terminal, colors may not render")
	}
	return nil
}
