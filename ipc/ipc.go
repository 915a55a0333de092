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

/*
Package ipc defines the wire-level shape of messages march's service
endpoint exchanges with its callers: protocol/method routing keys,
the badge bitmask the kernel attaches to notifications, and the two
reply shapes (OK / error) handlers produce.

Formatting of these onto an actual on-wire message buffer (the UTCB) is
left to the transport layer per spec.md §1; this package only fixes
their semantics, and package cap's Payload is as close to the wire as
this module gets.
*/
package ipc

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/timeservice/march/cap"
)

// Protocol identifies which service interface a message targets.
type Protocol uint16

// Protocols consumed by the dispatcher (spec.md §6).
const (
	TimeProto   Protocol = 1
	KernelProto Protocol = 2
)

func (p Protocol) String() string {
	switch p {
	case TimeProto:
		return "TIME"
	case KernelProto:
		return "KERNEL"
	default:
		return fmt.Sprintf("proto(%#x)", uint16(p))
	}
}

// Method identifies an operation within a Protocol.
type Method uint16

// Methods of TimeProto.
const (
	TimeNow Method = 1
	MonoNow Method = 2
	Sleep   Method = 3
	AdjTime Method = 4
)

// Methods of KernelProto.
const (
	Notify Method = 1
)

func (m Method) String(p Protocol) string {
	switch p {
	case TimeProto:
		switch m {
		case TimeNow:
			return "TIME_NOW"
		case MonoNow:
			return "MONO_NOW"
		case Sleep:
			return "SLEEP"
		case AdjTime:
			return "ADJ_TIME"
		}
	case KernelProto:
		if m == Notify {
			return "NOTIFY"
		}
	}
	return fmt.Sprintf("method(%#x)", uint16(m))
}

// ProtoMethod is the dispatch table key: one routing table entry per
// (protocol, method) pair, per spec.md §4.5.
type ProtoMethod struct {
	Proto  Protocol
	Method Method
}

// Badge is the per-sender bitmask the kernel attaches to a message.
// The only bits this service interprets arrive on KernelProto/Notify.
type Badge uint64

// NotifyHook is set on a KernelProto/Notify badge when device topology
// changed (spec.md §4.5, §6).
const NotifyHook Badge = 1 << 0

// ErrorCode is carried in MR0 of an error reply.
type ErrorCode uint32

// InvalidMethod is the only semantic error code this spec defines
// (spec.md §6); ResourceExhausted is used internally for the sleep
// allocation-failure path (spec.md §7, error kind 2).
const (
	InvalidMethod     ErrorCode = 1
	ResourceExhausted ErrorCode = 2
)

func (e ErrorCode) Error() string {
	switch e {
	case InvalidMethod:
		return "invalid method"
	case ResourceExhausted:
		return "capability space exhausted"
	default:
		return fmt.Sprintf("error(%d)", uint32(e))
	}
}

// Tag distinguishes an OK reply from an error reply.
type Tag uint32

const (
	TagOK  Tag = 0
	TagErr Tag = 1
)

// Msg is the decoded content of one request received on the service
// endpoint.
type Msg struct {
	Proto  Protocol
	Method Method
	Badge  Badge
	MR     [4]uint64
}

// ProtoMethod returns m's dispatch table key.
func (m Msg) ProtoMethod() ProtoMethod {
	return ProtoMethod{Proto: m.Proto, Method: m.Method}
}

// Dump renders m for Trace-level logging.
func Dump(m Msg) string {
	return spew.Sdump(m)
}

// OKEmpty builds the empty OK reply payload (SLEEP, ADJ_TIME).
func OKEmpty() cap.Payload {
	return cap.Payload{Tag: uint32(TagOK)}
}

// OKUint64 builds an OK reply payload carrying a single u64 (TIME_NOW,
// MONO_NOW).
func OKUint64(v uint64) cap.Payload {
	return cap.Payload{Tag: uint32(TagOK), MR: [4]uint64{v}}
}

// ErrReply builds an error reply payload carrying code in MR0.
func ErrReply(code ErrorCode) cap.Payload {
	return cap.Payload{Tag: uint32(TagErr), MR: [4]uint64{uint64(code)}}
}

// Endpoint is the kernel IPC endpoint the dispatcher blocks on. Reply
// sends through whatever reply capability is currently installed in
// the service's receive window (spec.md §4.5's "reply_window").
type Endpoint interface {
	// Recv blocks until a message arrives.
	Recv() (Msg, error)
	// Reply sends p through the currently-installed reply capability.
	Reply(p cap.Payload) error
	// CurrentReplyCap takes ownership of the reply capability installed
	// by the most recent Recv, for a handler that must hold onto it
	// past the call that received the message (spec.md §4.4's SLEEP).
	CurrentReplyCap() cap.ReplyCap
}
