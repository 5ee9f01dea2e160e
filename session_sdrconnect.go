// SDRconnect websocket session
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
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

type Message struct {
	EventType string `json:"event_type"`
	Property  string `json:"property"`
	Value     string `json:"value"`
}

// sdrconnectSession drives SDRconnect through its websocket property API.
// Signal power is not polled: SDRconnect pushes it as property_changed
// events, and SignalLevel averages the next ones that arrive.
type sdrconnectSession struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	timeout time.Duration
	retuned bool // the next signal_power may still belong to the old frequency
}

func dialSdrconnect(host string, port int, timeout time.Duration) (*sdrconnectSession, error) {
	origin := fmt.Sprintf("http://%s/", host)
	url := fmt.Sprintf("ws://%s:%d/", host, port)
	config, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, &TransportError{Op: "connect " + url, Err: err}
	}
	config.Dialer = &net.Dialer{Timeout: timeout}
	ws, err := websocket.DialConfig(config)
	if err != nil {
		return nil, &TransportError{Op: "connect " + url, Err: err}
	}
	return &sdrconnectSession{ws: ws, timeout: timeout}, nil
}

func (s *sdrconnectSession) getProperty(property string) (value string, err error) {
	request := Message{
		EventType: "get_property",
		Property:  property,
	}
	err = websocket.JSON.Send(s.ws, request)
	if err != nil {
		return
	}
	var message Message
	s.ws.SetReadDeadline(time.Now().Add(s.timeout))
	defer s.ws.SetReadDeadline(time.Time{})
	for {
		err = websocket.JSON.Receive(s.ws, &message)
		if err != nil {
			err = fmt.Errorf("get_property(%s): %w", property, err)
			return
		}
		if message.EventType == "get_property_response" && message.Property == property {
			value = message.Value
			return
		}
	}
}

func (s *sdrconnectSession) setProperty(property string, value string) (actualValue string, err error) {
	request := Message{
		EventType: "set_property",
		Property:  property,
		Value:     value,
	}
	err = websocket.JSON.Send(s.ws, request)
	if err != nil {
		return
	}
	var message Message
	s.ws.SetReadDeadline(time.Now().Add(s.timeout))
	defer s.ws.SetReadDeadline(time.Time{})
	for {
		err = websocket.JSON.Receive(s.ws, &message)
		if err != nil {
			// no property_changed comes back when the property already
			// had the requested value
			if errors.Is(err, os.ErrDeadlineExceeded) {
				actualValue = value
				err = nil
			} else {
				err = fmt.Errorf("set_property(%s): %w", property, err)
			}
			return
		}
		if debug {
			log.Println("message:", message.EventType, message.Property, message.Value)
		}
		if message.EventType == "property_changed" && message.Property == property {
			actualValue = message.Value
			return
		}
	}
}

// nextSignalPower waits for the next pushed signal_power value.
func (s *sdrconnectSession) nextSignalPower() (power float64, err error) {
	var message Message
	s.ws.SetReadDeadline(time.Now().Add(s.timeout))
	defer s.ws.SetReadDeadline(time.Time{})
	for {
		err = websocket.JSON.Receive(s.ws, &message)
		if err != nil {
			err = fmt.Errorf("signal_power: %w", err)
			return
		}
		if message.EventType == "property_changed" && message.Property == "signal_power" {
			power, err = strconv.ParseFloat(message.Value, 64)
			if err != nil {
				err = fmt.Errorf("signal_power: %w: %q", ErrBadReply, message.Value)
			}
			return
		}
	}
}

func (s *sdrconnectSession) SetFrequency(hz int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actual, err := s.setProperty("device_vfo_frequency", strconv.FormatInt(hz, 10))
	if err != nil {
		return err
	}
	if actual != strconv.FormatInt(hz, 10) {
		return fmt.Errorf("error setting VFO frequency - requested: %d - actual: %s", hz, actual)
	}
	s.retuned = true
	return nil
}

func (s *sdrconnectSession) Frequency() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.getProperty("device_vfo_frequency")
	if err != nil {
		return 0, err
	}
	hz, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("device_vfo_frequency: %w: %q", ErrBadReply, result)
	}
	return hz, nil
}

func (s *sdrconnectSession) SignalLevel(samples int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retuned {
		// ignore the first value since it might be tainted
		// by the previous frequency
		if _, err := s.nextSignalPower(); err != nil {
			return 0, err
		}
		s.retuned = false
	}
	return averageLevel(samples, s.nextSignalPower)
}

func (s *sdrconnectSession) SquelchLevel() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.getProperty("squelch_threshold")
	if err != nil {
		return 0, err
	}
	level, err := strconv.ParseFloat(result, 64)
	if err != nil {
		return 0, fmt.Errorf("squelch_threshold: %w: %q", ErrBadReply, result)
	}
	return level, nil
}

func (s *sdrconnectSession) Close() error {
	return s.ws.Close()
}
