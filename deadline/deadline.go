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
Package deadline holds the min-heap of outstanding SLEEP calls, ordered
by the wall-clock nanosecond at which each should wake. It is the Go
idiom's equivalent of a reversed-Ord BinaryHeap: container/heap already
pops the smallest element by Less, so there is no need to invert an
Ord implementation the way the original's TimerHeap does (spec.md §4.4).
*/
package deadline

import (
	"container/heap"

	"github.com/timeservice/march/cap"
)

// Entry is one pending sleeper: the deadline it should wake at, and
// the reply capability to invoke when it does.
type Entry struct {
	DeadlineNS uint64
	Reply      cap.ReplyCap
}

// entryList is the heap.Interface backing store, ordered so the
// smallest DeadlineNS sorts first.
type entryList []Entry

func (q entryList) Len() int            { return len(q) }
func (q entryList) Less(i, j int) bool  { return q[i].DeadlineNS < q[j].DeadlineNS }
func (q entryList) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *entryList) Push(x interface{}) { *q = append(*q, x.(Entry)) }
func (q *entryList) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Heap is a min-heap of pending sleeper deadlines.
type Heap struct {
	q entryList
}

// New creates an empty deadline heap.
func New() *Heap {
	return &Heap{}
}

// Push enqueues a new pending sleeper.
func (h *Heap) Push(e Entry) {
	heap.Push(&h.q, e)
}

// PeekDeadline returns the smallest deadline currently queued, and
// whether the heap is non-empty - update_alarm's input (spec.md §4.4).
func (h *Heap) PeekDeadline() (uint64, bool) {
	if len(h.q) == 0 {
		return 0, false
	}
	return h.q[0].DeadlineNS, true
}

// PopExpired pops and returns every entry whose deadline is at or
// before nowNS, in deadline order.
func (h *Heap) PopExpired(nowNS uint64) []Entry {
	var expired []Entry
	for len(h.q) > 0 && h.q[0].DeadlineNS <= nowNS {
		expired = append(expired, heap.Pop(&h.q).(Entry))
	}
	return expired
}

// IsEmpty reports whether the heap holds no pending sleepers.
func (h *Heap) IsEmpty() bool {
	return len(h.q) == 0
}

// Len reports how many sleepers are currently pending.
func (h *Heap) Len() int {
	return len(h.q)
}
