package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	failOn   map[int]bool
	done     chan struct{}
	expected int
}

func (p *recordingPublisher) Name() string {
	return "recording"
}

func (p *recordingPublisher) Publish(ctx context.Context, message Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[message.TimeIndex] {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, message)
	if p.done != nil && len(p.messages) == p.expected {
		close(p.done)
	}
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func TestMessage_Encode(t *testing.T) {
	// GIVEN
	message := Message{
		RunId:   "run",
		PlantId: "rov",
		SentAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sample:  samples.Sample{TimeIndex: 3, Measurement: 1.5, Command: -2, Setpoint: 10},
	}

	// WHEN
	data, err := message.Encode()

	// THEN
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"runId": "run",
		"plantId": "rov",
		"sentAt": "2026-03-01T12:00:00Z",
		"timeIndex": 3,
		"measurement": 1.5,
		"command": -2,
		"setpoint": 10,
		"saturated": false
	}`, string(data))

	decoded, err := DecodeMessage(data)
	assert.NoError(t, err)
	assert.Equal(t, message, decoded)
}

func TestForward(t *testing.T) {
	// GIVEN
	history := samples.NewHistory()
	for i := 0; i < 5; i++ {
		require.NoError(t, history.Ingest(samples.Sample{TimeIndex: i, Measurement: float64(i)}))
	}
	history.Close()
	publisher := &recordingPublisher{failOn: map[int]bool{2: true}}

	// WHEN
	dropped, err := Forward(context.Background(), "run", "rov", history.Subscribe(), publisher)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, publisher.messages, 4)
	var indices []int
	for _, message := range publisher.messages {
		assert.Equal(t, "run", message.RunId)
		assert.Equal(t, "rov", message.PlantId)
		indices = append(indices, message.TimeIndex)
	}
	assert.Equal(t, []int{0, 1, 3, 4}, indices)
}

func TestForward_Cancelled(t *testing.T) {
	// GIVEN
	history := samples.NewHistory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN
	_, err := Forward(ctx, "run", "rov", history.Subscribe(), &recordingPublisher{})

	// THEN
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunListener(t *testing.T) {
	// GIVEN
	publisher := &recordingPublisher{done: make(chan struct{}), expected: 12}
	config := configuration.Configuration{
		Controller: configuration.ControllerConfig{
			P: 1.2, I: 0.1, D: 0.5,
			Setpoint:  10,
			TimeStep:  100 * time.Millisecond,
			MaxThrust: 10,
		},
		Plant: configuration.PlantConfig{
			ID:        "rov",
			Simulated: &configuration.SimulatedPlantConfig{},
		},
		Loop: configuration.LoopConfig{
			Mode:      configuration.LoopModeBatch,
			MaxCycles: 12,
		},
	}
	m := session.NewManager(context.Background(), config, session.WithRunListeners(RunListener(publisher)))

	// WHEN
	run, err := m.Start(nil)
	require.NoError(t, err)

	// THEN
	select {
	case <-publisher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("samples have not been forwarded")
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	for i, message := range publisher.messages {
		assert.Equal(t, run.Id(), message.RunId)
		assert.Equal(t, i, message.TimeIndex)
	}
}

func TestNewPublishers_None(t *testing.T) {
	// WHEN
	publishers, err := NewPublishers(configuration.TelemetryConfig{})

	// THEN
	assert.NoError(t, err)
	assert.Empty(t, publishers)
}

type fakeKafkaWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	// GIVEN
	writer := &fakeKafkaWriter{}
	publisher := newKafkaPublisherWithWriter("rov.depth", writer)
	message := Message{RunId: "run", PlantId: "rov", Sample: samples.Sample{TimeIndex: 1}}

	// WHEN
	err := publisher.Publish(context.Background(), message)

	// THEN
	assert.NoError(t, err)
	require.Len(t, writer.messages, 1)
	assert.Equal(t, []byte("run"), writer.messages[0].Key)
	decoded, err := DecodeMessage(writer.messages[0].Value)
	assert.NoError(t, err)
	assert.Equal(t, 1, decoded.TimeIndex)
	assert.Equal(t, "kafka:rov.depth", publisher.Name())

	// WHEN
	err = publisher.Close()

	// THEN
	assert.NoError(t, err)
	assert.True(t, writer.closed)
}

func TestNewKafkaPublisher(t *testing.T) {
	// WHEN
	publisher := NewKafkaPublisher(configuration.KafkaTelemetryConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "rov.depth",
	})

	// THEN
	writer, ok := publisher.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "rov.depth", writer.Topic)
	assert.NoError(t, publisher.Close())
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	done := make(chan struct{})
	close(done)
	return &doneToken{err: err, done: done}
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakeMqttClient struct {
	topics       []string
	payloads     [][]byte
	err          error
	disconnected bool
}

func (c *fakeMqttClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return newDoneToken(c.err)
}

func (c *fakeMqttClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestMqttPublisher_Publish(t *testing.T) {
	// GIVEN
	client := &fakeMqttClient{}
	publisher := &MqttPublisher{topic: "rov/telemetry", client: client}

	// WHEN
	err := publisher.Publish(context.Background(), Message{RunId: "run", Sample: samples.Sample{TimeIndex: 4}})

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, []string{"rov/telemetry/run"}, client.topics)
	decoded, err := DecodeMessage(client.payloads[0])
	assert.NoError(t, err)
	assert.Equal(t, 4, decoded.TimeIndex)

	// WHEN
	assert.NoError(t, publisher.Close())

	// THEN
	assert.True(t, client.disconnected)
}

func TestMqttPublisher_Publish_Error(t *testing.T) {
	// GIVEN
	brokerErr := errors.New("not connected")
	publisher := &MqttPublisher{topic: "rov/telemetry", client: &fakeMqttClient{err: brokerErr}}

	// WHEN
	err := publisher.Publish(context.Background(), Message{RunId: "run"})

	// THEN
	assert.ErrorIs(t, err, brokerErr)
}
