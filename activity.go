// waiting on an active frequency
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"time"
)

// custom error to pass the quit user command
var ErrUserCommandTerminate = errors.New("user command terminate")

// KeySource gives non-blocking access to operator keypresses. Acquire
// puts the terminal in raw mode; the returned release restores it.
type KeySource interface {
	Acquire() (release func(), err error)
	Poll() (key rune, ok bool)
}

// noKeys is used when stdin is not a terminal.
type noKeys struct{}

func (noKeys) Acquire() (func(), error) { return func() {}, nil }
func (noKeys) Poll() (rune, bool)      { return 0, false }

// ActivityWait parks the scanner on an active frequency.
type ActivityWait struct {
	session Session
	keys    KeySource
	poll    time.Duration
	sleep   func(time.Duration)
}

func NewActivityWait(session Session, keys KeySource) *ActivityWait {
	if keys == nil {
		keys = noKeys{}
	}
	return &ActivityWait{
		session: session,
		keys:    keys,
		poll:    waitActivityPoll,
		sleep:   time.Sleep,
	}
}

// Wait returns when the operator presses space or enter (resumedEarly is
// true) or when the level has stayed under the squelch for longer than
// hold. next is where the sweep should continue: one resume step above the
// last reported frequency, rounded up to the resume granularity.
func (aw *ActivityWait) Wait(ctx context.Context, hold time.Duration) (resumedEarly bool, next int64, err error) {
	release, err := aw.keys.Acquire()
	if err != nil {
		return
	}
	defer release()

	var silence time.Duration
	var freq int64
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		if freq, err = aw.session.Frequency(); err != nil {
			return
		}
		var squelch, level float64
		if squelch, err = aw.session.SquelchLevel(); err != nil {
			return
		}
		if level, err = aw.session.SignalLevel(1); err != nil {
			return
		}

		if key, ok := aw.keys.Poll(); ok {
			switch key {
			case ' ', '\n', '\r':
				resumedEarly = true
			case 'q', 'Q', keyCtrlC:
				err = ErrUserCommandTerminate
				return
			}
		}
		if resumedEarly {
			break
		}

		if level < squelch {
			// only consecutive silence counts
			silence += aw.poll
			if silence > hold {
				break
			}
		} else {
			silence = 0
		}
		aw.sleep(aw.poll)
	}

	next = resumeFrequency(freq)
	return
}

func resumeFrequency(freq int64) int64 {
	freq += ResumeStep
	// ceiling to the granularity, 145902125 -> 145910000
	if rem := freq % ResumeGranularity; rem != 0 {
		freq += ResumeGranularity - rem
	}
	return freq
}
