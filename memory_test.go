// frequency memory tests
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestMemory() *FrequencyMemory {
	return NewFrequencyMemory(DefaultMemoryCapacity, MemoryTolerance, DefaultMaxMisses, OverflowReset)
}

func TestRecord_RunningMean(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Int64Range(100_000_000, 1_000_000_000).Draw(t, "base")
		offsets := rapid.SliceOfN(rapid.Int64Range(0, 4000), 1, 50).Draw(t, "offsets")

		m := newTestMemory()
		var sum float64
		for _, off := range offsets {
			m.Record(base + off)
			sum += float64(base + off)
		}

		require.Equal(t, 1, m.Len())
		rec := m.Records()[0]
		assert.Equal(t, len(offsets), rec.HitCount)
		assert.Equal(t, 0, rec.MissCount)
		assert.InDelta(t, sum/float64(len(offsets)), float64(rec.Frequency), 0.5)
	})
}

func TestRecord_SeparateRecords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f1 := rapid.Int64Range(100_000_000, 1_000_000_000).Draw(t, "f1")
		gap := rapid.Int64Range(MemoryTolerance+1, 10_000_000).Draw(t, "gap")
		f2 := f1 + gap
		if rapid.Bool().Draw(t, "below") {
			f2 = f1 - gap
		}

		m := newTestMemory()
		m.Record(f1)
		m.Record(f2)

		require.Equal(t, 2, m.Len())
		assert.Equal(t, f1, m.Records()[0].Frequency)
		assert.Equal(t, f2, m.Records()[1].Frequency)
		assert.Equal(t, 1, m.Records()[0].HitCount)
		assert.Equal(t, 1, m.Records()[1].HitCount)
	})
}

func TestRecord_NearestMatchWins(t *testing.T) {
	m := newTestMemory()
	m.Record(430_000_000)
	m.Record(430_008_000)
	require.Equal(t, 2, m.Len())

	// 430.004500 is inside both windows, closer to the second record
	m.Record(430_004_500)

	recs := m.Records()
	assert.Equal(t, 1, recs[0].HitCount)
	assert.Equal(t, 2, recs[1].HitCount)
	assert.Equal(t, int64(430_006_250), recs[1].Frequency)
}

func TestRecord_WindowIsHalfOpen(t *testing.T) {
	m := newTestMemory()
	m.Record(430_000_000)
	m.Record(430_000_000 - MemoryTolerance)
	assert.Equal(t, 1, m.Len())

	m = newTestMemory()
	m.Record(430_000_000)
	m.Record(430_000_000 + MemoryTolerance)
	assert.Equal(t, 2, m.Len())
}

func TestRecord_ResetsMissCount(t *testing.T) {
	m := newTestMemory()
	m.Record(145_500_000)
	m.Decay(0)
	m.Decay(0)
	require.Equal(t, 2, m.Records()[0].MissCount)

	m.Record(145_500_000)
	assert.Equal(t, 0, m.Records()[0].MissCount)
	assert.Equal(t, 2, m.Records()[0].HitCount)
}

func TestDecay_ThresholdPlusOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxMiss := rapid.IntRange(0, 20).Draw(t, "maxMiss")
		hits := rapid.IntRange(1, 10).Draw(t, "hits")

		m := NewFrequencyMemory(10, MemoryTolerance, maxMiss, OverflowReset)
		for range hits {
			m.Record(430_100_000)
		}
		for i := 0; i < maxMiss; i++ {
			m.Decay(0)
			assert.Equal(t, hits, m.Records()[0].HitCount)
		}
		m.Decay(0)

		rec := m.Records()[0]
		assert.Equal(t, hits-1, rec.HitCount)
		assert.Equal(t, 0, rec.MissCount)
	})
}

func TestDecay_ZeroHitRecordStays(t *testing.T) {
	m := NewFrequencyMemory(10, MemoryTolerance, 0, OverflowReset)
	m.Record(430_100_000)
	m.Decay(0)
	m.Decay(0)

	require.Equal(t, 1, m.Len())
	assert.Equal(t, 0, m.Records()[0].HitCount)

	var seen int
	for range m.Candidates(1) {
		seen++
	}
	assert.Zero(t, seen)
}

func TestDecay_IndexOutOfRange(t *testing.T) {
	m := newTestMemory()
	assert.NotPanics(t, func() {
		m.Decay(0)
		m.Decay(-1)
	})
}

func TestRecord_OverflowResets(t *testing.T) {
	m := NewFrequencyMemory(4, MemoryTolerance, DefaultMaxMisses, OverflowReset)
	for i := range int64(4) {
		m.Record(430_000_000 + i*100_000)
	}
	require.Equal(t, 4, m.Len())

	m.Record(431_000_000)

	require.Equal(t, 1, m.Len())
	assert.Equal(t, FrequencyRecord{Frequency: 431_000_000, HitCount: 1, mean: 431_000_000}, m.Records()[0])
}

func TestRecord_OverflowMatchDoesNotReset(t *testing.T) {
	m := NewFrequencyMemory(2, MemoryTolerance, DefaultMaxMisses, OverflowReset)
	m.Record(430_000_000)
	m.Record(430_500_000)
	m.Record(430_500_000)

	assert.Equal(t, 2, m.Len())
}

func TestRecord_OverflowEvictsWeakest(t *testing.T) {
	m := NewFrequencyMemory(3, MemoryTolerance, DefaultMaxMisses, OverflowEvict)
	m.Record(430_000_000)
	m.Record(430_000_000)
	m.Record(430_200_000)
	m.Record(430_400_000)
	m.Record(430_400_000)

	m.Record(431_000_000)

	recs := m.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, int64(430_000_000), recs[0].Frequency)
	assert.Equal(t, int64(431_000_000), recs[1].Frequency)
	assert.Equal(t, int64(430_400_000), recs[2].Frequency)
}

func TestCandidates(t *testing.T) {
	m := newTestMemory()
	m.Record(430_000_000)
	m.Record(430_000_000)
	m.Record(430_200_000)
	m.Record(430_400_000)
	m.Record(430_400_000)
	m.Record(430_400_000)

	var got []int
	for idx, rec := range m.Candidates(2) {
		got = append(got, idx)
		assert.GreaterOrEqual(t, rec.HitCount, 2)
	}
	assert.Equal(t, []int{0, 2}, got)

	// restartable
	got = got[:0]
	for idx := range m.Candidates(2) {
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 2}, got)
}

func TestIsKnownStrong(t *testing.T) {
	m := newTestMemory()
	for range 5 {
		m.Record(430_125_000)
	}
	m.Record(430_300_000)

	f, ok := m.IsKnownStrong(430_120_000, FineTuneMemoryTolerance, FineTuneStrongHits)
	assert.True(t, ok)
	assert.Equal(t, int64(430_125_000), f)

	_, ok = m.IsKnownStrong(430_300_000, FineTuneMemoryTolerance, FineTuneStrongHits)
	assert.False(t, ok, "one hit is not strong")

	_, ok = m.IsKnownStrong(430_133_000, FineTuneMemoryTolerance, FineTuneStrongHits)
	assert.False(t, ok, "outside the window")
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("evict")
	assert.NoError(t, err)
	assert.Equal(t, OverflowEvict, p)

	_, err = ParseOverflowPolicy("lru")
	assert.Error(t, err)
}
