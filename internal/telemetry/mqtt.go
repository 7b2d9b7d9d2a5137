package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/markusressel/depth2go/internal/configuration"
)

const (
	mqttPublishTimeout = 5 * time.Second
)

type mqttPublishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MqttPublisher publishes telemetry messages to <topic>/<run id>
type MqttPublisher struct {
	topic  string
	qos    byte
	client mqttPublishClient
}

func NewMqttPublisher(config configuration.MqttTelemetryConfig) (*MqttPublisher, error) {
	clientId := config.ClientId
	if len(clientId) <= 0 {
		clientId = "depth2go-telemetry"
	}
	options := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(clientId).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttPublishTimeout)

	client := mqtt.NewClient(options)
	token := client.Connect()
	if !token.WaitTimeout(mqttPublishTimeout) {
		return nil, fmt.Errorf("telemetry: timeout connecting to mqtt broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: unable to connect to mqtt broker %s: %w", config.Broker, err)
	}

	return &MqttPublisher{
		topic:  config.Topic,
		qos:    config.Qos,
		client: client,
	}, nil
}

func (p *MqttPublisher) Name() string {
	return "mqtt:" + p.topic
}

func (p *MqttPublisher) Publish(ctx context.Context, message Message) error {
	payload, err := message.Encode()
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic+"/"+message.RunId, p.qos, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(mqttPublishTimeout):
		return errors.New("timeout publishing mqtt message")
	}
	return token.Error()
}

func (p *MqttPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
