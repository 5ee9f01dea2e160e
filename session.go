// receiver remote-control session
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Session is a request/response control channel to the receiver.
// Implementations allow at most one outstanding request.
type Session interface {
	SetFrequency(hz int64) error
	Frequency() (int64, error)
	// SignalLevel averages the given number of consecutive level reads.
	SignalLevel(samples int) (float64, error)
	SquelchLevel() (float64, error)
	Close() error
}

// TransportError reports a session call that failed after all retries.
type TransportError struct {
	Op        string
	Frequency int64
	Err       error
}

func (e *TransportError) Error() string {
	if e.Frequency != 0 {
		return fmt.Sprintf("%s at %s: %v", e.Op, formatHz(e.Frequency), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var ErrBadReply = errors.New("garbled reply")

// averageLevel reads one level at a time and returns the mean.
func averageLevel(samples int, read func() (float64, error)) (float64, error) {
	if samples < 1 {
		samples = 1
	}
	levels := make([]float64, 0, samples)
	for range samples {
		level, err := read()
		if err != nil {
			return 0, err
		}
		levels = append(levels, level)
	}
	return stat.Mean(levels, nil), nil
}

// retrySession retries every call a bounded number of times and turns the
// final failure into a *TransportError. The tuned frequency is tracked so
// errors carry it.
type retrySession struct {
	session  Session
	attempts int
	pause    time.Duration
	sleep    func(time.Duration)
	tuned    int64
}

func newRetrySession(session Session, attempts int, pause time.Duration) *retrySession {
	if attempts < 1 {
		attempts = 1
	}
	return &retrySession{
		session:  session,
		attempts: attempts,
		pause:    pause,
		sleep:    time.Sleep,
	}
}

func (r *retrySession) do(op string, freq int64, call func() error) (err error) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = call()
		if err == nil {
			return
		}
		if attempt < r.attempts {
			if debug {
				log.Printf("%s failed (attempt %d/%d): %v", op, attempt, r.attempts, err)
			}
			r.sleep(r.pause)
		}
	}
	err = &TransportError{Op: op, Frequency: freq, Err: err}
	return
}

func (r *retrySession) SetFrequency(hz int64) error {
	err := r.do("set frequency", hz, func() error {
		return r.session.SetFrequency(hz)
	})
	if err == nil {
		r.tuned = hz
	}
	return err
}

func (r *retrySession) Frequency() (hz int64, err error) {
	err = r.do("get frequency", r.tuned, func() (err error) {
		hz, err = r.session.Frequency()
		return
	})
	return
}

func (r *retrySession) SignalLevel(samples int) (level float64, err error) {
	err = r.do("get signal level", r.tuned, func() (err error) {
		level, err = r.session.SignalLevel(samples)
		return
	})
	return
}

func (r *retrySession) SquelchLevel() (level float64, err error) {
	err = r.do("get squelch level", r.tuned, func() (err error) {
		level, err = r.session.SquelchLevel()
		return
	})
	return
}

func (r *retrySession) Close() error {
	return r.session.Close()
}
