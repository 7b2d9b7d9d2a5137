package telemetry

import (
	"context"
	"time"

	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes telemetry messages to a Kafka topic, keyed by run id
// so all samples of a run end up in the same partition.
type KafkaPublisher struct {
	topic  string
	writer kafkaMessageWriter
}

func NewKafkaPublisher(config configuration.KafkaTelemetryConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisherWithWriter(config.Topic, writer)
}

func newKafkaPublisherWithWriter(topic string, writer kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		topic:  topic,
		writer: writer,
	}
}

func (p *KafkaPublisher) Name() string {
	return "kafka:" + p.topic
}

func (p *KafkaPublisher) Publish(ctx context.Context, message Message) error {
	value, err := message.Encode()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.RunId),
		Value: value,
		Time:  message.SentAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
