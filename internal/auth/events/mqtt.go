package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesceMS   = 250

	eventQoS = 1
)

var ErrConnectionFailed = errors.New("events: mqtt connection failed")

// MQTTConfig selects the broker. Broker is a full URL such as
// tcp://localhost:1883 or ssl://broker:8883.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// publishClient is the slice of pahomqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
}

// MQTTPublisher sends each event as JSON to <prefix>/events/<kind>.
type MQTTPublisher struct {
	client  publishClient
	prefix  string
	logger  *slog.Logger
	timeout time.Duration
	closeFn func()
}

// ConnectMQTT dials the broker and returns a publisher. Auto-reconnect is on,
// so a broker restart only drops events published while it is away.
func ConnectMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p := NewMQTTPublisher(client, cfg.TopicPrefix, logger)
	p.closeFn = func() { client.Disconnect(disconnectQuiesceMS) }
	return p, nil
}

// NewMQTTPublisher wraps an existing client.
func NewMQTTPublisher(client publishClient, prefix string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "gatekeeper"
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		timeout: defaultPublishTimeout,
	}
}

// Topic returns the topic an event kind is published to.
func (p *MQTTPublisher) Topic(kind Kind) string {
	return p.prefix + "/events/" + string(kind)
}

// Publish hands the event to paho and waits for the broker ack in the
// background.
func (p *MQTTPublisher) Publish(_ context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("mqtt event marshal failed", "kind", e.Kind, "error", err)
		return
	}

	topic := p.Topic(e.Kind)
	token := p.client.Publish(topic, eventQoS, false, payload)
	go func() {
		if !token.WaitTimeout(p.timeout) {
			p.logger.Warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

func (p *MQTTPublisher) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}
