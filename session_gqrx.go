// gqrx remote control session
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ziutek/telnet"
)

var ErrRejected = errors.New("rejected with error code")

// gqrxSession speaks the gqrx remote control protocol, a line based
// subset of the hamlib rigctld commands. A late reply would be read as the
// answer to the next command, so after a failed or garbled exchange the
// connection is dropped and the next command redials.
type gqrxSession struct {
	mu      sync.Mutex
	addr    string
	conn    *telnet.Conn
	timeout time.Duration
}

func dialGqrx(host string, port int, timeout time.Duration) (*gqrxSession, error) {
	g := &gqrxSession{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
	}
	if err := g.connect(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *gqrxSession) connect() error {
	conn, err := telnet.DialTimeout("tcp", g.addr, g.timeout)
	if err != nil {
		return &TransportError{Op: "connect " + g.addr, Err: err}
	}
	g.conn = conn
	return nil
}

func (g *gqrxSession) drop() {
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
}

// command sends one line and hands the first reply line to parse.
func (g *gqrxSession) command(cmd string, parse func(reply string) error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		if err = g.connect(); err != nil {
			return
		}
		if debug {
			log.Printf("gqrx: reconnected to %s", g.addr)
		}
	}
	defer func() {
		// a rejected command leaves the session in step
		if err != nil && !errors.Is(err, ErrRejected) {
			g.drop()
		}
	}()

	if g.timeout > 0 {
		g.conn.SetDeadline(time.Now().Add(g.timeout))
		defer func() {
			if g.conn != nil {
				g.conn.SetDeadline(time.Time{})
			}
		}()
	}
	if _, err = g.conn.Write([]byte(cmd + "\n")); err != nil {
		err = fmt.Errorf("gqrx %q: %w", cmd, err)
		return
	}
	reply, err := g.conn.ReadString('\n')
	if err != nil {
		err = fmt.Errorf("gqrx %q: %w", cmd, err)
		return
	}
	reply = strings.TrimSpace(reply)
	if debug {
		log.Printf("gqrx: %s -> %s", cmd, reply)
	}
	return parse(reply)
}

// parseReport checks an "RPRT n" status line.
func parseReport(cmd, reply string) error {
	code, ok := strings.CutPrefix(reply, "RPRT ")
	if !ok {
		return fmt.Errorf("gqrx %q: %w: %q", cmd, ErrBadReply, reply)
	}
	if code != "0" {
		return fmt.Errorf("gqrx %q: %w %s", cmd, ErrRejected, code)
	}
	return nil
}

// parseNumber reads the reply to a value query. A status line is never a
// valid answer, not even "RPRT 0".
func parseNumber(cmd, reply string) (float64, error) {
	if strings.HasPrefix(reply, "RPRT ") {
		if err := parseReport(cmd, reply); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("gqrx %q: %w: %q", cmd, ErrBadReply, reply)
	}
	value, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("gqrx %q: %w: %q", cmd, ErrBadReply, reply)
	}
	return value, nil
}

func (g *gqrxSession) number(cmd string) (value float64, err error) {
	err = g.command(cmd, func(reply string) (err error) {
		value, err = parseNumber(cmd, reply)
		return
	})
	return
}

func (g *gqrxSession) SetFrequency(hz int64) error {
	cmd := "F " + strconv.FormatInt(hz, 10)
	return g.command(cmd, func(reply string) error {
		return parseReport(cmd, reply)
	})
}

func (g *gqrxSession) Frequency() (int64, error) {
	value, err := g.number("f")
	return int64(value), err
}

func (g *gqrxSession) SignalLevel(samples int) (float64, error) {
	return averageLevel(samples, func() (float64, error) {
		return g.number("l STRENGTH")
	})
}

func (g *gqrxSession) SquelchLevel() (float64, error) {
	return g.number("l SQL")
}

func (g *gqrxSession) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	// best effort, gqrx closes its side on "q"
	g.conn.Write([]byte("q\n"))
	err := g.conn.Close()
	g.conn = nil
	return err
}
