package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig MQTT 连接配置
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// MQTTPublisher 发布到 MQTT broker，QoS 1，不保留
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTTPublisher 连接 broker
func NewMQTTPublisher(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is empty")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.BrokerURL))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect mqtt broker %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.BrokerURL, err)
	}

	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

// Name 通道名称
func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Topic 事件对应的主题，如 fleetcare/schedule/created
func Topic(prefix string, eventType EventType) string {
	t := strings.ReplaceAll(string(eventType), ".", "/")
	if prefix == "" {
		return t
	}
	return prefix + "/" + t
}

// Publish 发布事件
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := p.client.Publish(Topic(p.prefix, e.Type), 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout", e.Type)
	}
	return token.Error()
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
