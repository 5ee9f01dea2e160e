// frequency memory
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"iter"
	"math"
)

// OverflowPolicy selects what Record does when the table is full and an
// observation matches no existing record.
type OverflowPolicy int

const (
	// OverflowReset drops every record and keeps only the new observation.
	OverflowReset OverflowPolicy = iota
	// OverflowEvict replaces the record with the lowest hit count.
	OverflowEvict
)

func (op OverflowPolicy) String() string {
	switch op {
	case OverflowReset:
		return "reset"
	case OverflowEvict:
		return "evict"
	default:
		return fmt.Sprintf("invalid overflow policy: %d", op)
	}
}

func ParseOverflowPolicy(opstring string) (OverflowPolicy, error) {
	switch opstring {
	case "reset":
		return OverflowReset, nil
	case "evict":
		return OverflowEvict, nil
	default:
		return OverflowReset, fmt.Errorf("invalid overflow policy: %s", opstring)
	}
}

// FrequencyRecord is one remembered frequency.
type FrequencyRecord struct {
	Frequency int64
	HitCount  int
	MissCount int

	mean float64 // unrounded running mean behind Frequency
}

// FrequencyMemory remembers where signals were found during the sweep.
// It is owned by the scan loop and is not safe for concurrent use.
type FrequencyMemory struct {
	records   []FrequencyRecord
	capacity  int
	tolerance int64
	maxMiss   int
	policy    OverflowPolicy
}

func NewFrequencyMemory(capacity int, tolerance int64, maxMiss int, policy OverflowPolicy) *FrequencyMemory {
	if capacity < 1 {
		capacity = 1
	}
	return &FrequencyMemory{
		records:   make([]FrequencyRecord, 0, capacity),
		capacity:  capacity,
		tolerance: tolerance,
		maxMiss:   maxMiss,
		policy:    policy,
	}
}

// Record folds an observed frequency into the nearest record within the
// tolerance window, or stores it as a new record.
func (m *FrequencyMemory) Record(observed int64) {
	best := m.nearest(observed)
	if best >= 0 {
		rec := &m.records[best]
		hits := float64(rec.HitCount)
		rec.mean = (rec.mean*hits + float64(observed)) / (hits + 1)
		rec.Frequency = int64(math.Round(rec.mean))
		rec.HitCount++
		rec.MissCount = 0
		return
	}

	fresh := FrequencyRecord{
		Frequency: observed,
		HitCount:  1,
		mean:      float64(observed),
	}
	if len(m.records) < m.capacity {
		m.records = append(m.records, fresh)
		return
	}
	switch m.policy {
	case OverflowEvict:
		weakest := 0
		for i := range m.records {
			if m.records[i].HitCount < m.records[weakest].HitCount {
				weakest = i
			}
		}
		m.records[weakest] = fresh
	default:
		m.records = append(m.records[:0], fresh)
	}
}

// Decay counts a miss against the record at index. Every maxMiss+1
// consecutive misses cost one hit.
func (m *FrequencyMemory) Decay(index int) {
	if index < 0 || index >= len(m.records) {
		return
	}
	rec := &m.records[index]
	rec.MissCount++
	if rec.MissCount > m.maxMiss {
		if rec.HitCount > 0 {
			rec.HitCount--
		}
		rec.MissCount = 0
	}
}

// Candidates yields, in table order, the index and a copy of every record
// with at least minHits hits. The table is read live, so the sequence sees
// changes made between pulls.
func (m *FrequencyMemory) Candidates(minHits int) iter.Seq2[int, FrequencyRecord] {
	return func(yield func(int, FrequencyRecord) bool) {
		for i := 0; i < len(m.records); i++ {
			if m.records[i].HitCount < minHits {
				continue
			}
			if !yield(i, m.records[i]) {
				return
			}
		}
	}
}

// nearest returns the index of the record closest to freq within the
// tolerance window, or -1. Ties go to the earlier record.
func (m *FrequencyMemory) nearest(freq int64) int {
	best := -1
	var bestDelta int64
	for i := range m.records {
		if !inWindow(freq, m.records[i].Frequency, m.tolerance) {
			continue
		}
		delta := freq - m.records[i].Frequency
		if delta < 0 {
			delta = -delta
		}
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return best
}

// Find returns the record that an observation of freq would be folded into.
func (m *FrequencyMemory) Find(freq int64) (FrequencyRecord, bool) {
	if i := m.nearest(freq); i >= 0 {
		return m.records[i], true
	}
	return FrequencyRecord{}, false
}

// IsKnownStrong returns the first remembered frequency near freq with more
// than minHits hits.
func (m *FrequencyMemory) IsKnownStrong(freq int64, tolerance int64, minHits int) (int64, bool) {
	for _, rec := range m.records {
		if inWindow(freq, rec.Frequency, tolerance) && rec.HitCount > minHits {
			return rec.Frequency, true
		}
	}
	return 0, false
}

func (m *FrequencyMemory) Len() int {
	return len(m.records)
}

func (m *FrequencyMemory) Capacity() int {
	return m.capacity
}

// Records returns a copy of the table.
func (m *FrequencyMemory) Records() []FrequencyRecord {
	out := make([]FrequencyRecord, len(m.records))
	copy(out, m.records)
	return out
}

// inWindow reports whether freq lies in [center-tolerance, center+tolerance).
func inWindow(freq, center, tolerance int64) bool {
	return freq >= center-tolerance && freq < center+tolerance
}
