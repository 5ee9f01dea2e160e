// fine tuning around a detected signal
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"log"
	"time"
)

type levelSample struct {
	frequency int64
	level     float64
}

// FineTuner walks the receiver around a rough frequency to find the
// strongest nearby carrier.
type FineTuner struct {
	session Session
	memory  *FrequencyMemory
	settle  time.Duration
	sleep   func(time.Duration)
}

func NewFineTuner(session Session, memory *FrequencyMemory) *FineTuner {
	return &FineTuner{
		session: session,
		memory:  memory,
		settle:  waitFineTune,
		sleep:   time.Sleep,
	}
}

// measure tunes to freq, waits for the receiver to settle and reads an
// averaged level.
func (ft *FineTuner) measure(freq int64) (level float64, err error) {
	if err = ft.tune(freq); err != nil {
		return
	}
	level, err = ft.session.SignalLevel(LevelSamples)
	if debug && err == nil {
		log.Printf("fine tune: f=%s level=%.2fdB", formatHz(freq), level)
	}
	return
}

func (ft *FineTuner) tune(freq int64) error {
	if err := ft.session.SetFrequency(freq); err != nil {
		return err
	}
	ft.sleep(ft.settle)
	return nil
}

// Tune returns the frequency of the signal peak near freq. The coarse pass
// samples ±FineTuneCoarseSpan every coarseStep; unless the memory already
// holds a well confirmed frequency nearby, a second pass refines the
// result in FineTuneStep increments.
func (ft *FineTuner) Tune(freq int64, coarseStep int64) (int64, error) {
	if coarseStep <= 0 {
		coarseStep = FineTuneStep
	}

	var coarse []levelSample
	for f := freq - FineTuneCoarseSpan; f < freq+FineTuneCoarseSpan; f += coarseStep {
		level, err := ft.measure(f)
		if err != nil {
			return 0, err
		}
		coarse = append(coarse, levelSample{f, level})
	}
	peak := coarse[coarsePeak(coarse)].frequency
	if err := ft.tune(peak); err != nil {
		return 0, err
	}

	// a confirmed frequency only settles the receiver; the coarse estimate
	// is still what gets reported
	if known, ok := ft.memory.IsKnownStrong(peak, FineTuneMemoryTolerance, FineTuneStrongHits); ok {
		if err := ft.tune(known); err != nil {
			return 0, err
		}
		return peak, nil
	}

	return ft.finePass(peak)
}

// coarsePeak picks the latest maximum (>=). When the maximum is held by a
// run of adjacent samples the middle of that run is returned, the upper
// middle for an even run.
func coarsePeak(samples []levelSample) int {
	maxLevel := samples[0].level
	start, end := 0, 0
	for i, s := range samples {
		if s.level >= maxLevel {
			if i > 0 && i == end+1 && s.level == maxLevel {
				end = i
			} else {
				start, end = i, i
			}
			maxLevel = s.level
		}
	}
	return start + (end-start+1)/2
}

// finePass explores above then below the reference in 1 kHz steps. Each
// side stops at the first sample weaker than the reference.
func (ft *FineTuner) finePass(reference int64) (int64, error) {
	referenceLevel, err := ft.session.SignalLevel(LevelSamples)
	if err != nil {
		return 0, err
	}

	var samples []levelSample
	for f := reference + FineTuneStep; f < reference+FineTuneSpan; f += FineTuneStep {
		level, err := ft.measure(f)
		if err != nil {
			return 0, err
		}
		if level < referenceLevel {
			break
		}
		samples = append(samples, levelSample{f, level})
	}
	for f := reference - FineTuneStep; f >= reference-FineTuneSpan; f -= FineTuneStep {
		level, err := ft.measure(f)
		if err != nil {
			return 0, err
		}
		if level < referenceLevel {
			break
		}
		samples = append(samples, levelSample{f, level})
	}

	if len(samples) == 0 {
		// already on the peak
		if err := ft.tune(reference); err != nil {
			return 0, err
		}
		return reference, nil
	}

	best := samples[0]
	for _, s := range samples[1:] {
		if s.level > best.level {
			best = s
		}
	}
	if err := ft.tune(best.frequency); err != nil {
		return 0, err
	}
	return best.frequency, nil
}
