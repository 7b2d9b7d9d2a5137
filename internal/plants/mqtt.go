package plants

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/markusressel/depth2go/internal/util"
)

const (
	mqttTimeout = 5 * time.Second
	// time in milliseconds to wait for outstanding work on disconnect
	mqttQuiesce = 250
)

// MqttPlant receives depth readings on one topic and publishes
// thrust commands on another one.
type MqttPlant struct {
	Config configuration.PlantConfig `json:"config"`

	client mqtt.Client

	mu       sync.Mutex
	depth    float64
	received time.Time
	now      func() time.Time

	// closed once the first valid depth reading has arrived
	firstDepth     chan struct{}
	firstDepthOnce sync.Once
}

// depthMessage is the JSON form of a depth reading, a plain decimal number is accepted as well
type depthMessage struct {
	Depth *float64 `json:"depth"`
}

func newMqttPlant(config configuration.PlantConfig) *MqttPlant {
	return &MqttPlant{
		Config:     config,
		now:        time.Now,
		firstDepth: make(chan struct{}),
	}
}

// NewMqttPlant connects to the configured broker, subscribes to the depth topic
// and waits for the first depth reading. A plant without a reading is never returned.
func NewMqttPlant(config configuration.PlantConfig) (*MqttPlant, error) {
	conf := config.Mqtt
	p := newMqttPlant(config)

	clientId := conf.ClientId
	if len(clientId) <= 0 {
		clientId = "depth2go-" + config.ID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(clientId).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetOnConnectHandler(func(client mqtt.Client) {
			token := client.Subscribe(conf.DepthTopic, conf.Qos, p.onDepthMessage)
			if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
				ui.Error("Plant %s: unable to subscribe to %s: %v", config.ID, conf.DepthTopic, token.Error())
			}
		}).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			ui.Warning("Plant %s: lost connection to mqtt broker: %v", config.ID, err)
		})
	if len(conf.Username) > 0 {
		opts.SetUsername(conf.Username)
		opts.SetPassword(conf.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		client.Disconnect(mqttQuiesce)
		return nil, fmt.Errorf("plant %s: timeout connecting to mqtt broker %s", config.ID, conf.Broker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("plant %s: unable to connect to mqtt broker %s: %w", config.ID, conf.Broker, token.Error())
	}
	p.client = client

	if err := p.waitForFirstDepth(firstDepthTimeout(*conf)); err != nil {
		client.Disconnect(mqttQuiesce)
		return nil, err
	}

	return p, nil
}

// firstDepthTimeout is the time to wait for the first depth reading after connecting
func firstDepthTimeout(conf configuration.MqttPlantConfig) time.Duration {
	if conf.MaxAge > mqttTimeout {
		return conf.MaxAge
	}
	return mqttTimeout
}

func (p *MqttPlant) waitForFirstDepth(timeout time.Duration) error {
	select {
	case <-p.firstDepth:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("plant %s: %w, nothing received on %s within %s", p.GetId(), ErrNoMeasurement, p.Config.Mqtt.DepthTopic, timeout)
	}
}

func (p *MqttPlant) GetId() string {
	return p.Config.ID
}

func (p *MqttPlant) onDepthMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := p.updateDepth(msg.Payload()); err != nil {
		ui.Warning("Plant %s: ignoring depth message on %s: %v", p.GetId(), msg.Topic(), err)
	}
}

func (p *MqttPlant) updateDepth(payload []byte) error {
	depth, err := parseDepthPayload(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.depth = depth
	p.received = p.now()
	p.mu.Unlock()

	p.firstDepthOnce.Do(func() {
		close(p.firstDepth)
	})
	return nil
}

func parseDepthPayload(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))

	depth, err := strconv.ParseFloat(text, 64)
	if err != nil {
		var message depthMessage
		if jsonErr := json.Unmarshal([]byte(text), &message); jsonErr != nil || message.Depth == nil {
			return 0, fmt.Errorf("invalid depth payload: %s", text)
		}
		depth = *message.Depth
	}

	if !util.IsFinite(depth) {
		return 0, fmt.Errorf("depth is not a finite number: %s", text)
	}
	return depth, nil
}

func (p *MqttPlant) GetDepth() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.received.IsZero() {
		return 0, fmt.Errorf("plant %s: %w", p.GetId(), ErrNoMeasurement)
	}
	maxAge := p.Config.Mqtt.MaxAge
	if age := p.now().Sub(p.received); maxAge > 0 && age > maxAge {
		return 0, fmt.Errorf("plant %s: %w, last depth is %s old", p.GetId(), ErrNoMeasurement, age)
	}
	return p.depth, nil
}

func (p *MqttPlant) ApplyThrust(command float64) error {
	conf := p.Config.Mqtt
	payload := strconv.FormatFloat(actuatorCommand(p.Config, command), 'f', -1, 64)

	token := p.client.Publish(conf.ThrustTopic, conf.Qos, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("plant %s: timeout publishing thrust to %s", p.GetId(), conf.ThrustTopic)
	}
	if token.Error() != nil {
		return fmt.Errorf("plant %s: unable to publish thrust: %w", p.GetId(), token.Error())
	}
	return nil
}

// Close disconnects from the broker
func (p *MqttPlant) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(mqttQuiesce)
	}
	return nil
}
