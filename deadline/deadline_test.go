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

package deadline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeservice/march/cap"
	"github.com/timeservice/march/collab/fake"
	"github.com/timeservice/march/ipc"
)

func TestPeekDeadlineEmpty(t *testing.T) {
	h := New()
	_, ok := h.PeekDeadline()
	assert.False(t, ok)
	assert.True(t, h.IsEmpty())
}

func TestPeekDeadlineReturnsSmallest(t *testing.T) {
	h := New()
	ep := fake.NewEndpoint()
	h.Push(Entry{DeadlineNS: 300, Reply: cap.NewReplyCap(1, ep)})
	h.Push(Entry{DeadlineNS: 100, Reply: cap.NewReplyCap(2, ep)})
	h.Push(Entry{DeadlineNS: 200, Reply: cap.NewReplyCap(3, ep)})

	got, ok := h.PeekDeadline()
	require.True(t, ok)
	assert.Equal(t, uint64(100), got)
	assert.Equal(t, 3, h.Len())
}

func TestPopExpiredReturnsInDeadlineOrder(t *testing.T) {
	h := New()
	ep := fake.NewEndpoint()
	h.Push(Entry{DeadlineNS: 300, Reply: cap.NewReplyCap(1, ep)})
	h.Push(Entry{DeadlineNS: 100, Reply: cap.NewReplyCap(2, ep)})
	h.Push(Entry{DeadlineNS: 200, Reply: cap.NewReplyCap(3, ep)})

	expired := h.PopExpired(250)
	require.Len(t, expired, 2)
	assert.Equal(t, uint64(100), expired[0].DeadlineNS)
	assert.Equal(t, uint64(200), expired[1].DeadlineNS)

	got, ok := h.PeekDeadline()
	require.True(t, ok)
	assert.Equal(t, uint64(300), got)
}

func TestPopExpiredNothingReadyReturnsEmpty(t *testing.T) {
	h := New()
	ep := fake.NewEndpoint()
	h.Push(Entry{DeadlineNS: 500, Reply: cap.NewReplyCap(1, ep)})

	expired := h.PopExpired(100)
	assert.Empty(t, expired)
	assert.Equal(t, 1, h.Len())
}

func TestPopExpiredEntryReplyReachesCaller(t *testing.T) {
	h := New()
	ep := fake.NewEndpoint()
	token := ep.Push(ipc.Msg{Proto: ipc.TimeProto, Method: ipc.Sleep})
	h.Push(Entry{DeadlineNS: 100, Reply: cap.NewReplyCap(token, ep)})

	expired := h.PopExpired(100)
	require.Len(t, expired, 1)
	rc := expired[0].Reply
	require.NoError(t, rc.Invoke(cap.Payload{Tag: 0}))

	p, ok := ep.ReplyFor(token)
	require.True(t, ok)
	assert.Equal(t, uint32(0), p.Tag)
}
