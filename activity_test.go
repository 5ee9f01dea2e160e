// activity wait tests
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedKeys returns keys[i] on the i-th poll, if present and non-zero.
type scriptedKeys struct {
	keys     []rune
	polls    int
	acquired int
	released int
}

func (sk *scriptedKeys) Acquire() (func(), error) {
	sk.acquired++
	return func() { sk.released++ }, nil
}

func (sk *scriptedKeys) Poll() (rune, bool) {
	defer func() { sk.polls++ }()
	if sk.polls < len(sk.keys) && sk.keys[sk.polls] != 0 {
		return sk.keys[sk.polls], true
	}
	return 0, false
}

func newTestActivityWait(receiver *fakeReceiver, keys KeySource) (*ActivityWait, *[]time.Duration) {
	var sleeps []time.Duration
	aw := NewActivityWait(receiver, keys)
	aw.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return aw, &sleeps
}

func TestWait_EarlyResume(t *testing.T) {
	for _, key := range []rune{' ', '\n', '\r'} {
		receiver := newFakeReceiver(-30, func(int64) float64 { return -20 })
		receiver.tuned = 430_125_000
		keys := &scriptedKeys{keys: []rune{key}}
		aw, sleeps := newTestActivityWait(receiver, keys)

		early, next, err := aw.Wait(context.Background(), 2*time.Second)
		require.NoError(t, err)
		assert.True(t, early)
		assert.Equal(t, int64(430_140_000), next)
		assert.Empty(t, *sleeps)
		assert.Equal(t, 1, keys.released)
	}
}

func TestWait_HoldExpires(t *testing.T) {
	receiver := newFakeReceiver(-30, func(int64) float64 { return -80 })
	receiver.tuned = 430_125_000
	keys := &scriptedKeys{}
	aw, sleeps := newTestActivityWait(receiver, keys)

	early, next, err := aw.Wait(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, early)
	assert.Equal(t, int64(430_140_000), next)
	// 100, 200 and 300 ms of silence are not enough, 400 ms is
	assert.Equal(t, 4, keys.polls)
	assert.Len(t, *sleeps, 3)
	assert.Equal(t, 1, keys.released)
}

func TestWait_SilenceMustBeConsecutive(t *testing.T) {
	receiver := newFakeReceiver(-30, func(int64) float64 { return -80 })
	receiver.levels = []float64{-80, -80, -20}
	keys := &scriptedKeys{}
	aw, sleeps := newTestActivityWait(receiver, keys)

	early, _, err := aw.Wait(context.Background(), 300*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, early)
	assert.Equal(t, 7, keys.polls)
	assert.Len(t, *sleeps, 6)
}

func TestWait_Quit(t *testing.T) {
	for _, key := range []rune{'q', 'Q', keyCtrlC} {
		receiver := newFakeReceiver(-30, func(int64) float64 { return -20 })
		keys := &scriptedKeys{keys: []rune{0, 0, key}}
		aw, _ := newTestActivityWait(receiver, keys)

		_, _, err := aw.Wait(context.Background(), 2*time.Second)
		assert.ErrorIs(t, err, ErrUserCommandTerminate)
		assert.Equal(t, 1, keys.released)
	}
}

func TestWait_OtherKeysIgnored(t *testing.T) {
	receiver := newFakeReceiver(-30, func(int64) float64 { return -80 })
	keys := &scriptedKeys{keys: []rune{'x', 'r'}}
	aw, _ := newTestActivityWait(receiver, keys)

	early, _, err := aw.Wait(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, early)
}

func TestWait_ReleasesKeysOnError(t *testing.T) {
	receiver := newFakeReceiver(-30, func(int64) float64 { return -20 })
	receiver.failures["squelch"] = 1
	keys := &scriptedKeys{}
	aw, _ := newTestActivityWait(receiver, keys)

	_, _, err := aw.Wait(context.Background(), 2*time.Second)
	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, 1, keys.acquired)
	assert.Equal(t, 1, keys.released)
}

func TestWait_Cancelled(t *testing.T) {
	receiver := newFakeReceiver(-30, func(int64) float64 { return -20 })
	keys := &scriptedKeys{}
	aw, _ := newTestActivityWait(receiver, keys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := aw.Wait(ctx, 2*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, keys.released)
}

func TestResumeFrequency(t *testing.T) {
	assert.Equal(t, int64(145_920_000), resumeFrequency(145_902_125))
	assert.Equal(t, int64(430_140_000), resumeFrequency(430_130_000))
	assert.Equal(t, int64(430_140_000), resumeFrequency(430_125_000))
}
