package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions 配置 MQTT 推送。
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// Publisher is the subset of mqtt.Client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier 以 retained 消息发布提醒；每个 ID 占用一个 topic，新消息覆盖旧消息。
type MQTTNotifier struct {
	publisher Publisher
	prefix    string
	qos       byte
	timeout   time.Duration
	logger    zerolog.Logger
}

// DialMQTT 连接 broker 并构造告警器。
func DialMQTT(opts MQTTOptions, logger zerolog.Logger) (*MQTTNotifier, mqtt.Client, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "ramadan-companion"
	}

	log := logger.With().Str("component", "alert_mqtt").Logger()
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(clientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetConnectTimeout(timeout)
	co.SetAutoReconnect(true)
	co.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("MQTT 已连接")
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT 连接断开")
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, nil, fmt.Errorf("connect mqtt broker %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect mqtt broker %s: %w", opts.Broker, err)
	}
	return NewMQTTNotifier(client, opts.TopicPrefix, opts.QoS, timeout, logger), client, nil
}

// NewMQTTNotifier wraps an already connected publisher.
func NewMQTTNotifier(publisher Publisher, prefix string, qos byte, timeout time.Duration, logger zerolog.Logger) *MQTTNotifier {
	if prefix == "" {
		prefix = "ramadan/notifications"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTNotifier{
		publisher: publisher,
		prefix:    strings.TrimRight(prefix, "/"),
		qos:       qos,
		timeout:   timeout,
		logger:    logger.With().Str("component", "alert_mqtt").Logger(),
	}
}

// Topic returns the retained topic for a notification ID.
func (n *MQTTNotifier) Topic(id uint32) string {
	return fmt.Sprintf("%s/%d", n.prefix, id)
}

// Notify implements Notifier.
func (n *MQTTNotifier) Notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	topic := n.Topic(note.ID)
	token := n.publisher.Publish(topic, n.qos, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.timeout):
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	n.logger.Info().Str("topic", topic).Str("prayer", string(note.Prayer)).Msg("提醒已发布 (MQTT)")
	return nil
}

var _ Notifier = (*MQTTNotifier)(nil)
