// Package notify delivers instructor notifications to the message subsystem
// over MQTT. One topic per recipient keeps subscriptions trivial for the
// downstream message service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
)

// Config holds the MQTT connection settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix is prepended to the recipient ID to form the topic.
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	// PublishTimeoutSeconds bounds each publish.
	PublishTimeoutSeconds int `json:"publish_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "instructor-dispatch"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "dispatch/messages"
	}
	if c.PublishTimeoutSeconds <= 0 {
		c.PublishTimeoutSeconds = 5
	}
}

// Validate checks mandatory fields when the sender is enabled.
func (c Config) Validate() error {
	if c.Enabled && c.Broker == "" {
		return fmt.Errorf("notify: broker is required")
	}
	return nil
}

// envelope is the wire format published per notification.
type envelope struct {
	RecipientID string               `json:"recipientId"`
	Type        model.Classification `json:"type"`
	Payload     json.RawMessage      `json:"payload"`
	SentAt      time.Time            `json:"sentAt"`
}

// MQTTSender implements outbox.MessageSender on a paho MQTT client.
type MQTTSender struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTTSender connects to the broker.
func NewMQTTSender(cfg Config) (*MQTTSender, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("notify: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: connect to %s: %w", cfg.Broker, err)
	}
	return &MQTTSender{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		timeout: time.Duration(cfg.PublishTimeoutSeconds) * time.Second,
	}, nil
}

var _ outbox.MessageSender = (*MQTTSender)(nil)

// Send publishes one notification to the recipient's topic.
func (s *MQTTSender) Send(ctx context.Context, recipientID string, msgType model.Classification, payload []byte) error {
	body, err := json.Marshal(envelope{
		RecipientID: recipientID,
		Type:        msgType,
		Payload:     payload,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", s.prefix, recipientID)
	token := s.client.Publish(topic, s.qos, false, body)

	done := make(chan bool, 1)
	go func() { done <- token.WaitTimeout(s.timeout) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case completed := <-done:
		if !completed {
			return fmt.Errorf("notify: publish to %s timed out", topic)
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSender) Close() {
	s.client.Disconnect(250)
}
