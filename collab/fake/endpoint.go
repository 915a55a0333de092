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

import (
	"fmt"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/ipc"
)

// Endpoint is an in-memory ipc.Endpoint and cap.ReplyEndpoint: it
// stands in for the kernel IPC endpoint the dispatcher blocks on,
// queuing messages tests push and recording whatever the dispatcher
// replies with, keyed by the routing token the message arrived on.
//
// A real endpoint installs exactly one reply capability into the
// service's receive window per recv, good for a single Reply call; the
// routing token is how this fake lets a later, out-of-band InvokeReply
// (the deadline heap waking up a sleeper) still find the right caller
// once the original recv has long since returned.
type Endpoint struct {
	inbox     []queued
	nextToken cap.Slot
	current   cap.Slot
	replies   map[cap.Slot]cap.Payload
}

type queued struct {
	msg   ipc.Msg
	token cap.Slot
}

// NewEndpoint creates an empty endpoint.
func NewEndpoint() *Endpoint {
	return &Endpoint{
		nextToken: 1,
		replies:   make(map[cap.Slot]cap.Payload),
	}
}

// Push enqueues msg as if a caller had just sent it, and returns the
// routing token assigned to it - the same token ReplyFor will key its
// eventual reply under.
func (e *Endpoint) Push(msg ipc.Msg) cap.Slot {
	token := e.nextToken
	e.nextToken++
	e.inbox = append(e.inbox, queued{msg: msg, token: token})
	return token
}

// Recv implements ipc.Endpoint.
func (e *Endpoint) Recv() (ipc.Msg, error) {
	if len(e.inbox) == 0 {
		return ipc.Msg{}, fmt.Errorf("fake endpoint: inbox empty")
	}
	q := e.inbox[0]
	e.inbox = e.inbox[1:]
	e.current = q.token
	return q.msg, nil
}

// Reply implements ipc.Endpoint: it replies through whatever token the
// most recent Recv installed in the receive window.
func (e *Endpoint) Reply(p cap.Payload) error {
	return e.InvokeReply(e.current, p)
}

// InvokeReply implements cap.ReplyEndpoint: it replies through an
// explicit token, regardless of which recv is most recent - the path a
// deadline-heap entry's ReplyCap.Invoke takes when a sleeper's timeout
// expires long after the SLEEP call that created it returned.
func (e *Endpoint) InvokeReply(token cap.Slot, p cap.Payload) error {
	if token == 0 {
		return fmt.Errorf("fake endpoint: invoke reply on zero token")
	}
	e.replies[token] = p
	return nil
}

// CurrentReplyCap builds the ReplyCap for the message most recently
// returned by Recv, the same way a dispatcher reads a reply capability
// out of its receive window before running a handler.
func (e *Endpoint) CurrentReplyCap() cap.ReplyCap {
	return cap.NewReplyCap(e.current, e)
}

// ReplyFor returns the payload replied to token, if any - how tests
// observe both an immediate Reply and a later InvokeReply.
func (e *Endpoint) ReplyFor(token cap.Slot) (cap.Payload, bool) {
	p, ok := e.replies[token]
	return p, ok
}

// Pending reports how many messages remain unconsumed.
func (e *Endpoint) Pending() int {
	return len(e.inbox)
}
