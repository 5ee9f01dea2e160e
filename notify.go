// detection notifications
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Detection describes a signal found by the scan loop.
type Detection struct {
	Frequency int64     `json:"frequency"`
	Level     float64   `json:"level"`
	Squelch   float64   `json:"squelch"`
	HitCount  int       `json:"hit_count"`
	Label     string    `json:"label,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier is told about every detection.
type Notifier interface {
	SignalFound(d Detection)
}

type nopNotifier struct{}

func (nopNotifier) SignalFound(Detection) {}

// mqttNotifier publishes detections as JSON to an MQTT topic.
type mqttNotifier struct {
	client mqtt.Client
	topic  string
}

func newMQTTNotifier(broker, topic string) (*mqttNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("gqrx-scanner_" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &mqttNotifier{client: client, topic: topic}, nil
}

func (n *mqttNotifier) SignalFound(d Detection) {
	if !n.client.IsConnected() {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("MQTT: failed to marshal detection: %v", err)
		return
	}
	// the scan loop must not block on the broker
	token := n.client.Publish(n.topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT: failed to publish to %s: %v", n.topic, token.Error())
		}
	}()
}

func (n *mqttNotifier) Close() {
	if n.client.IsConnected() {
		n.client.Disconnect(250)
	}
}
