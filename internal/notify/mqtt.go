package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gatewatch/internal/domain/gate"
)

const mqttTimeout = 5 * time.Second

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// MQTT publishes each event as JSON to a topic (QoS 1). The connection is
// established lazily and re-attempted on the next send after a failure.
type MQTT struct {
	topic  string
	client mqttClient

	mu sync.Mutex
}

func NewMQTT(cfg MQTTConfig) *MQTT {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)
	return newMQTTWithClient(cfg.Topic, mqtt.NewClient(opts))
}

func newMQTTWithClient(topic string, client mqttClient) *MQTT {
	return &MQTT{topic: topic, client: client}
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Send(_ context.Context, event gate.DetectionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}
	if err := m.ensureConnected(); err != nil {
		return err
	}

	start := time.Now()
	token := m.client.Publish(m.topic, 1, false, payload)
	ok := token.WaitTimeout(mqttTimeout)
	sendDuration.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
	if !ok {
		return fmt.Errorf("mqtt publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTT) ensureConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client.IsConnected() {
		return nil
	}
	token := m.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
