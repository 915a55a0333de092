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

package cap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEndpoint struct {
	replies []Payload
	slots   []Slot
	err     error
}

func (r *recordingEndpoint) InvokeReply(slot Slot, p Payload) error {
	r.slots = append(r.slots, slot)
	r.replies = append(r.replies, p)
	return r.err
}

func TestSpaceAllocFree(t *testing.T) {
	s := NewSpace(2)

	a, err := s.Alloc()
	require.NoError(t, err)
	b, err := s.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.InUse())

	_, err = s.Alloc()
	assert.ErrorIs(t, err, ErrExhausted)

	s.Free(a)
	assert.Equal(t, 1, s.InUse())

	c, err := s.Alloc()
	require.NoError(t, err)
	assert.Equal(t, a, c, "freed slot should be reused")
}

func TestSpaceDoubleFreeIsNoop(t *testing.T) {
	s := NewSpace(1)
	slot, err := s.Alloc()
	require.NoError(t, err)
	s.Free(slot)
	s.Free(slot)
	assert.Equal(t, 0, s.InUse())
}

func TestReplyCapInvokeWithoutBindingDoesNotTouchSpace(t *testing.T) {
	ep := &recordingEndpoint{}
	rc := NewReplyCap(42, ep)

	require.True(t, rc.IsLive())
	err := rc.Invoke(Payload{Tag: 7})
	require.NoError(t, err)
	assert.False(t, rc.IsLive())
	assert.Equal(t, []Payload{{Tag: 7}}, ep.replies)
	assert.Equal(t, []Slot{42}, ep.slots)

	err = rc.Invoke(Payload{Tag: 7})
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestReplyCapBindSpaceFreesBoundSlotOnInvoke(t *testing.T) {
	space := NewSpace(1)
	bookSlot, err := space.Alloc()
	require.NoError(t, err)
	ep := &recordingEndpoint{}
	rc := NewReplyCap(42, ep)
	rc.BindSpace(space, bookSlot)

	require.NoError(t, rc.Invoke(Payload{Tag: 7}))
	assert.Equal(t, 0, space.InUse())
	assert.Equal(t, []Slot{42}, ep.slots, "Invoke must route to the token, not the bound slot")
}

func TestReplyCapTakeMovesOwnership(t *testing.T) {
	space := NewSpace(1)
	bookSlot, err := space.Alloc()
	require.NoError(t, err)
	ep := &recordingEndpoint{}
	rc := NewReplyCap(7, ep)
	rc.BindSpace(space, bookSlot)

	moved := rc.Take()
	assert.False(t, rc.IsLive(), "source must be emptied by Take")
	assert.True(t, moved.IsLive())

	require.NoError(t, moved.Invoke(Payload{}))
	assert.Equal(t, 0, space.InUse())
}

func TestReplyCapReleaseWithoutReply(t *testing.T) {
	space := NewSpace(1)
	bookSlot, err := space.Alloc()
	require.NoError(t, err)
	ep := &recordingEndpoint{}
	rc := NewReplyCap(7, ep)
	rc.BindSpace(space, bookSlot)

	rc.Release()
	assert.False(t, rc.IsLive())
	assert.Empty(t, ep.replies, "Release must not invoke the endpoint")
	assert.Equal(t, 0, space.InUse())
}
