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
Package cap models the capability-space primitives a capability-based
microkernel service is built on: slots, a per-service allocator, and a
move-only handle over a reply capability.

None of this has a real kernel underneath it - the microkernel, and the
resource broker that actually backs a Slot with a kernel object, are
external collaborators (see package collab). What lives here is just
enough bookkeeping for the rest of this module to reason about capability
lifetime the way the service itself has to: every Alloc paired with a
Free, and a reply capability that can be held by exactly one owner at a
time.
*/
package cap

import "errors"

// Slot identifies a capability-space slot. The zero value is never a
// valid allocated slot.
type Slot uint64

// ErrExhausted is returned by Space.Alloc when no free slot remains.
var ErrExhausted = errors.New("capability space exhausted")

// ErrNotLive is returned when Invoke is called on a ReplyCap that has
// already been consumed, released or moved out by Take.
var ErrNotLive = errors.New("reply capability is not live")

// Payload is the low-level content of a reply: a message tag and up to
// four message registers. It deliberately knows nothing about
// protocols or methods - that layering lives in package ipc.
type Payload struct {
	Tag uint32
	MR  [4]uint64
}

// Space is the per-service capability-space manager. It hands out
// slots from a bounded range and tracks which are in use; callers
// allocate with Alloc and must Free every slot they allocate, directly
// or via a ReplyCap's Invoke/Release.
type Space struct {
	capacity  int
	nextFresh Slot
	freed     []Slot
	inUse     map[Slot]bool
}

// NewSpace creates a capability space bounded to capacity live slots.
// capacity models the number of capability-space slots the resource
// broker is willing to back for this service; a real microkernel
// bounds this too, so Alloc can and does fail.
func NewSpace(capacity int) *Space {
	return &Space{
		capacity:  capacity,
		nextFresh: 1, // reserve 0 as "no slot"
		inUse:     make(map[Slot]bool, capacity),
	}
}

// Alloc reserves a fresh slot, or returns ErrExhausted if capacity is
// already in use.
func (s *Space) Alloc() (Slot, error) {
	if len(s.inUse) >= s.capacity {
		return 0, ErrExhausted
	}
	var slot Slot
	if n := len(s.freed); n > 0 {
		slot = s.freed[n-1]
		s.freed = s.freed[:n-1]
	} else {
		slot = s.nextFresh
		s.nextFresh++
	}
	s.inUse[slot] = true
	return slot, nil
}

// Free releases slot back to the pool. Freeing a slot not currently
// allocated is a no-op - mirrors a capability-space manager treating a
// double-free as harmless bookkeeping rather than a fatal error, since
// the dispatcher never crashes on its own state (spec.md's error model
// extends to this too).
func (s *Space) Free(slot Slot) {
	if !s.inUse[slot] {
		return
	}
	delete(s.inUse, slot)
	s.freed = append(s.freed, slot)
}

// InUse reports how many slots are currently allocated.
func (s *Space) InUse() int {
	return len(s.inUse)
}

// ReplyEndpoint is the narrow capability needed to invoke a held reply:
// send its payload back to the original caller.
type ReplyEndpoint interface {
	InvokeReply(slot Slot, p Payload) error
}

// ReplyCap is a move-only handle over a single-use reply capability.
// While live, it is the exclusive owner of its routing token: nobody
// else may invoke or free it. Do not copy a live ReplyCap and keep
// using both copies - use Take to transfer ownership, exactly once.
//
// A ReplyCap carries two distinct slot-shaped things, because a real
// capability-based kernel does too: the routing token identifies which
// waiting caller Invoke wakes, fixed for the life of the capability;
// the bound space slot (if any) is bookkeeping in march's own
// capability-space manager, acquired only when the reply is moved out
// of the shared reply window into long-term storage (spec.md §4.5's
// SLEEP handler).
type ReplyCap struct {
	token     Slot
	ep        ReplyEndpoint
	bookSpace *Space
	bookSlot  Slot
	bound     bool
	live      bool
}

// NewReplyCap wraps token as a live reply capability backed by ep. It
// is not yet bound to any capability-space slot - that happens via
// BindSpace when (and if) it is moved into long-term storage.
func NewReplyCap(token Slot, ep ReplyEndpoint) ReplyCap {
	return ReplyCap{token: token, ep: ep, live: true}
}

// IsLive reports whether r still owns an unconsumed reply.
func (r *ReplyCap) IsLive() bool {
	return r.live
}

// Token returns the routing identity Invoke will send to.
func (r *ReplyCap) Token() Slot {
	return r.token
}

// BindSpace attaches capacity-space bookkeeping to r: slot, already
// allocated from space by the caller, is freed automatically when r is
// next Invoked or Released. Used by the SLEEP handler after it
// allocates a slot for a newly-enqueued deadline entry.
func (r *ReplyCap) BindSpace(space *Space, slot Slot) {
	r.bookSpace = space
	r.bookSlot = slot
	r.bound = true
}

// Take transfers ownership out of r into the returned value, leaving r
// empty. This is the only sanctioned way to move a ReplyCap - e.g. out
// of the service's shared reply slot and into a deadline-heap entry.
func (r *ReplyCap) Take() ReplyCap {
	moved := *r
	r.live = false
	r.ep = nil
	r.bookSpace = nil
	r.bound = false
	return moved
}

// Invoke sends p back to the original caller and releases any bound
// space slot. Consumes r; calling Invoke again returns ErrNotLive.
func (r *ReplyCap) Invoke(p Payload) error {
	if !r.live {
		return ErrNotLive
	}
	err := r.ep.InvokeReply(r.token, p)
	r.release()
	return err
}

// Release frees any bound space slot without replying - used when
// draining the deadline heap at shutdown.
func (r *ReplyCap) Release() {
	if !r.live {
		return
	}
	r.release()
}

func (r *ReplyCap) release() {
	if r.bound && r.bookSpace != nil {
		r.bookSpace.Free(r.bookSlot)
	}
	r.live = false
	r.ep = nil
	r.bookSpace = nil
	r.bound = false
}
