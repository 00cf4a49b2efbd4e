// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package trace

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/db47h/devsim"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttCloseTimeout   = 5 * time.Second
	mqttQuiesce        = 250 // milliseconds
)

// A Publisher publishes MQTT messages. It is implemented by
// pahomqtt.Client.
//
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Message is the JSON payload published for a transition.
//
type Message struct {
	Run    string `json:"run"`
	Pass   uint64 `json:"pass"`
	Device string `json:"device"`
	Pin    string `json:"pin"`
	State  bool   `json:"state"`
}

// MQTT is a Recorder that publishes transitions to an MQTT broker. Each
// transition is published as a Message to the topic
// <prefix>/<device path>/<pin>, where dots in the device path are replaced by
// slashes.
//
// Publishing does not wait for acknowledgement. Failed deliveries are logged
// on a best effort basis.
//
type MQTT struct {
	p      Publisher
	prefix string
	qos    byte
	run    string
	log    *slog.Logger
	last   pahomqtt.Token
	client pahomqtt.Client // owned client
}

// NewMQTT returns a recorder that publishes with p.
//
func NewMQTT(p Publisher, prefix string, qos byte, l *slog.Logger) *MQTT {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MQTT{p: p, prefix: prefix, qos: qos, run: NewRunID(), log: l}
}

// DialMQTT connects to the broker configured in opts and returns a recorder
// that publishes with the new client. The client is disconnected by Close.
//
func DialMQTT(opts *pahomqtt.ClientOptions, prefix string, qos byte, l *slog.Logger) (*MQTT, error) {
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.Errorf("mqtt connect: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt connect")
	}
	m := NewMQTT(client, prefix, qos, l)
	m.client = client
	return m, nil
}

// Run returns the run identifier sent along with each message.
//
func (m *MQTT) Run() string { return m.run }

// Record implements devsim.Recorder.
//
func (m *MQTT) Record(t devsim.Transition) {
	payload, err := json.Marshal(Message{Run: m.run, Pass: t.Pass, Device: t.Device, Pin: t.Pin, State: t.State})
	if err != nil {
		m.log.Error("trace encode failed", "error", err)
		return
	}
	if m.last != nil {
		select {
		case <-m.last.Done():
			if err := m.last.Error(); err != nil {
				m.log.Warn("trace publish failed", "error", err)
			}
		default:
		}
	}
	m.last = m.p.Publish(topic(m.prefix, t.Device, t.Pin), m.qos, false, payload)
}

// Close waits for the last message to be delivered, then disconnects the
// client if it was created by DialMQTT.
//
func (m *MQTT) Close() error {
	var err error
	if m.last != nil {
		if !m.last.WaitTimeout(mqttCloseTimeout) {
			err = errors.Errorf("mqtt publish: timeout after %v", mqttCloseTimeout)
		} else {
			err = errors.Wrap(m.last.Error(), "mqtt publish")
		}
	}
	if m.client != nil {
		m.client.Disconnect(mqttQuiesce)
	}
	return err
}
