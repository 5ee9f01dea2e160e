// sweep scan state machine
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"
)

type ScanMode int

const (
	ModeSweeping ScanMode = iota
	ModeActive
	ModeRevisiting
)

func (sm ScanMode) String() string {
	switch sm {
	case ModeSweeping:
		return "SWEEPING"
	case ModeActive:
		return "ACTIVE"
	case ModeRevisiting:
		return "REVISITING"
	default:
		return fmt.Sprintf("invalid scan mode: %d", sm)
	}
}

// ScanEngine owns all scanning state for one run: the sweep cursor, the
// revisit cycle over remembered frequencies and the frequency memory.
type ScanEngine struct {
	config    Config
	session   Session
	memory    *FrequencyMemory
	tuner     *FineTuner
	waiter    *ActivityWait
	bookmarks []BookmarkEntry
	metrics   *ScanMetrics
	notifier  Notifier

	sleep func(time.Duration)
	now   func() time.Time

	mode        ScanMode
	current     int64 // next frequency to tune
	sweepCount  int
	revisiting  bool
	frozen      int64 // sweep cursor saved while revisiting
	frozenNext  bool  // frozen is already past the last active frequency
	candidate   int   // memory index of the candidate being revisited
	nextRevisit func() (int, FrequencyRecord, bool)
	stopRevisit func()
	afterActive bool // the last wait was ended by the operator
}

func NewScanEngine(config Config, session Session, keys KeySource, bookmarks []BookmarkEntry, metrics *ScanMetrics, notifier Notifier) *ScanEngine {
	memory := NewFrequencyMemory(config.MemoryCapacity, MemoryTolerance, config.MaxMisses, config.MemoryOverflow)
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ScanEngine{
		config:    config,
		session:   session,
		memory:    memory,
		tuner:     NewFineTuner(session, memory),
		waiter:    NewActivityWait(session, keys),
		bookmarks: bookmarks,
		metrics:   metrics,
		notifier:  notifier,
		sleep:     time.Sleep,
		now:       time.Now,
		mode:      ModeSweeping,
		current:   config.FreqMin,
	}
}

// setSleep replaces the delay function of the engine and its components.
func (e *ScanEngine) setSleep(sleep func(time.Duration)) {
	e.sleep = sleep
	e.tuner.sleep = sleep
	e.waiter.sleep = sleep
}

func (e *ScanEngine) Memory() *FrequencyMemory {
	return e.memory
}

func (e *ScanEngine) Mode() ScanMode {
	return e.mode
}

func (e *ScanEngine) Current() int64 {
	return e.current
}

// Run steps the state machine until ctx is cancelled or the operator
// quits. Transport errors are logged and the sweep carries on from where it
// was.
func (e *ScanEngine) Run(ctx context.Context) error {
	defer e.endRevisit()
	for {
		err := e.Step(ctx)
		if err == nil {
			continue
		}
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			e.metrics.transportErrors.WithLabelValues(transportErr.Op).Inc()
			log.Println("scan error:", err)
			continue
		}
		if errors.Is(err, ErrUserCommandTerminate) {
			return nil
		}
		return err
	}
}

// Step runs one outer iteration: tune, sample, handle activity, then move
// on. On error the cursor is left where it was.
func (e *ScanEngine) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	settle := waitSweep
	if e.revisiting {
		settle = waitRevisit
	}
	if e.afterActive {
		settle = waitAfterActive
	}
	if err := e.session.SetFrequency(e.current); err != nil {
		return err
	}
	e.sleep(settle)

	squelch, err := e.session.SquelchLevel()
	if err != nil {
		return err
	}
	level, err := e.session.SignalLevel(LevelSamples)
	if err != nil {
		return err
	}
	if debug {
		log.Printf("%s f=%s level=%.2fdB squelch=%.2fdB", e.mode, formatHz(e.current), level, squelch)
	}

	next := e.current
	active := level >= squelch
	if active {
		e.mode = ModeActive
		var early bool
		early, next, err = e.handleActivity(ctx, squelch)
		if err != nil {
			e.mode = e.restingMode()
			return err
		}
		e.afterActive = early
	} else {
		e.afterActive = false
		if e.revisiting {
			e.memory.Decay(e.candidate)
		}
	}

	if e.revisiting || e.sweepCount >= e.config.RevisitEvery {
		if !e.revisiting {
			e.beginRevisit(next, active)
		}
		if index, rec, ok := e.nextRevisit(); ok {
			e.candidate = index
			e.current = rec.Frequency
			e.mode = ModeRevisiting
			return nil
		}
		e.endRevisit()
		e.metrics.revisitCycles.Inc()
		e.sweepCount = 0
		next = e.frozen
		active = e.frozenNext
	}

	e.mode = ModeSweeping
	if !active {
		next += e.config.FreqStep
	}
	if next > e.config.FreqMax {
		next = e.config.FreqMin
	}
	e.current = next
	e.sweepCount++
	e.metrics.sweepSteps.Inc()
	return nil
}

func (e *ScanEngine) restingMode() ScanMode {
	if e.revisiting {
		return ModeRevisiting
	}
	return ModeSweeping
}

// handleActivity fine tunes and reports the signal, then waits for it to go
// away. The signal is remembered only once the wait completes.
func (e *ScanEngine) handleActivity(ctx context.Context, squelch float64) (early bool, next int64, err error) {
	peak, err := e.tuner.Tune(e.current, e.config.FreqStep/2)
	if err != nil {
		return
	}

	level, err := e.session.SignalLevel(LevelSamples)
	if err != nil {
		return
	}
	detection := Detection{
		Frequency: peak,
		Level:     level,
		Squelch:   squelch,
		Time:      e.now(),
		HitCount:  1,
	}
	if rec, ok := e.memory.Find(peak); ok {
		detection.HitCount = rec.HitCount + 1
	}
	if label, ok := bookmarkLabel(e.bookmarks, peak); ok {
		detection.Label = label
	}
	e.report(detection)

	if early, next, err = e.waiter.Wait(ctx, e.config.HoldTime); err != nil {
		return
	}
	e.memory.Record(peak)
	e.metrics.memoryRecords.Set(float64(e.memory.Len()))
	return
}

func (e *ScanEngine) report(d Detection) {
	fields := []string{"found", "f=" + formatHz(d.Frequency)}
	if d.Label != "" {
		fields = append(fields, "l="+d.Label)
	}
	fields = append(fields, fmt.Sprintf("level=%.1fdB", d.Level), fmt.Sprintf("squelch=%.1fdB", d.Squelch))
	if d.HitCount > 0 {
		fields = append(fields, fmt.Sprintf("hits=%d", d.HitCount))
	}
	log.Println(strings.Join(fields, " "))

	e.metrics.detection(d)
	e.notifier.SignalFound(d)
}

func (e *ScanEngine) beginRevisit(cursor int64, resumed bool) {
	e.frozen = cursor
	e.frozenNext = resumed
	e.revisiting = true
	e.nextRevisit, e.stopRevisit = iter.Pull2(e.memory.Candidates(e.config.MinHits))
}

func (e *ScanEngine) endRevisit() {
	if e.stopRevisit != nil {
		e.stopRevisit()
	}
	e.nextRevisit, e.stopRevisit = nil, nil
	e.revisiting = false
}
