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

package fake

import "github.com/timeservice/march/collab"

// ServiceBus is an in-memory collab.ServiceBus recording every
// reported state transition.
type ServiceBus struct {
	States []collab.ServiceState
}

// NewServiceBus creates an empty bus.
func NewServiceBus() *ServiceBus {
	return &ServiceBus{}
}

// ReportService implements collab.ServiceBus.
func (b *ServiceBus) ReportService(state collab.ServiceState) error {
	b.States = append(b.States, state)
	return nil
}

// Last returns the most recently reported state, or false if none yet.
func (b *ServiceBus) Last() (collab.ServiceState, bool) {
	if len(b.States) == 0 {
		return 0, false
	}
	return b.States[len(b.States)-1], true
}
