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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// JSONReporter serves Counters over HTTP at /counters, grounded on
// fbclock/daemon/json_stats.go's JSONStats.
type JSONReporter struct {
	counters *Counters
}

// NewJSONReporter wraps counters for serving.
func NewJSONReporter(counters *Counters) *JSONReporter {
	return &JSONReporter{counters: counters}
}

// Start runs the HTTP server on addr. It blocks; callers run it in its
// own goroutine.
func (r *JSONReporter) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/counters", r.handleCounters)
	log.Infof("starting stats json server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (r *JSONReporter) handleCounters(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(r.counters.Get())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("failed to reply with counters: %v", err)
	}
}

// FetchCounters fetches the counters JSON served at url/counters,
// grounded on ptp/sptp/stats.FetchCounters.
func FetchCounters(url string) (map[string]int64, error) {
	counters := make(map[string]int64)
	c := http.Client{Timeout: 2 * time.Second}

	resp, err := c.Get(fmt.Sprintf("%s/counters", url))
	if err != nil {
		return counters, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return counters, err
	}
	err = json.Unmarshal(b, &counters)
	return counters, err
}
