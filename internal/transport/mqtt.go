// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	applog "sigscope/internal/log"
)

// MQTTConfig configures an MQTTTransport.
type MQTTConfig struct {
	Broker   string // e.g. "tcp://127.0.0.1:1883"
	Topic    string // Base topic; the message type is appended.
	ClientID string
	QoS      byte
	Retain   bool
	Types    []string // Message types to publish; empty publishes everything.
}

// mqttClient is the part of mqtt.Client the transport uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTTransport publishes messages as JSON to {topic}/{type}. Publishing is
// asynchronous; delivery failures are logged.
type MQTTTransport struct {
	client mqttClient
	config MQTTConfig
	types  map[string]bool
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	log *zap.SugaredLogger
}

// NewMQTTTransport connects to the broker. A failed initial connection is not
// fatal: the client keeps retrying in the background and messages sent while
// disconnected are dropped.
func NewMQTTTransport(cfg MQTTConfig) (*MQTTTransport, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt broker and topic are required")
	}

	l := applog.Named("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		l.Infof("Connected to broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.Warnf("Connection lost: %v (will auto-reconnect)", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			l.Warnf("Initial connection to %s failed: %v (will retry in background)", cfg.Broker, err)
		}
	} else {
		l.Warnf("Connection to %s timed out (will retry in background)", cfg.Broker)
	}

	return newMQTTTransport(client, cfg, l), nil
}

func newMQTTTransport(client mqttClient, cfg MQTTConfig, l *zap.SugaredLogger) *MQTTTransport {
	mt := &MQTTTransport{
		client: client,
		config: cfg,
		log:    l,
	}
	if len(cfg.Types) > 0 {
		mt.types = make(map[string]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			mt.types[t] = true
		}
	}
	return mt
}

// TopicFor returns the topic a message of the given type is published to.
func (mt *MQTTTransport) TopicFor(msgType string) string {
	return strings.TrimSuffix(mt.config.Topic, "/") + "/" + msgType
}

// Send publishes data if its type is selected. Messages without a type are
// published under "message".
func (mt *MQTTTransport) Send(data any) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.closed {
		return ErrClosed
	}

	msgType := "message"
	if m, ok := data.(interface{ MessageType() string }); ok {
		msgType = m.MessageType()
	}
	if mt.types != nil && !mt.types[msgType] {
		return nil
	}
	if !mt.client.IsConnected() {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	topic := mt.TopicFor(msgType)
	token := mt.client.Publish(topic, mt.config.QoS, mt.config.Retain, payload)

	mt.wg.Add(1)
	go func() {
		defer mt.wg.Done()
		if token.Wait() && token.Error() != nil {
			mt.log.Errorf("Failed to publish to %s: %v", topic, token.Error())
		}
	}()
	return nil
}

// Close waits for pending publishes and disconnects.
func (mt *MQTTTransport) Close() error {
	mt.mu.Lock()
	if mt.closed {
		mt.mu.Unlock()
		return nil
	}
	mt.closed = true
	mt.mu.Unlock()

	mt.wg.Wait()
	if mt.client.IsConnected() {
		mt.client.Disconnect(250)
		mt.log.Info("Disconnected from broker")
	}
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
