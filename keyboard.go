// operator keyboard
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"
)

const keyCtrlC rune = 3

// terminalKeys reads single keypresses from the controlling terminal.
// Raw mode is only held between Acquire and release, so the scan log
// prints normally while sweeping.
type terminalKeys struct {
	events <-chan keyboard.KeyEvent
}

// newKeySource returns a terminal key source, or one that never reports a
// key when stdin is not a terminal (e.g. running under a service manager).
func newKeySource() KeySource {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return noKeys{}
	}
	return &terminalKeys{}
}

func (tk *terminalKeys) Acquire() (release func(), err error) {
	events, err := keyboard.GetKeys(8)
	if err != nil {
		return
	}
	tk.events = events
	release = func() {
		tk.events = nil
		keyboard.Close()
	}
	return
}

func (tk *terminalKeys) Poll() (rune, bool) {
	select {
	case event, ok := <-tk.events:
		if !ok || event.Err != nil {
			return 0, false
		}
		switch event.Key {
		case keyboard.KeySpace:
			return ' ', true
		case keyboard.KeyEnter:
			return '\n', true
		case keyboard.KeyCtrlC:
			return keyCtrlC, true
		}
		return event.Rune, event.Rune != 0
	default:
		return 0, false
	}
}
