package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/markusressel/depth2go/internal/ui"
)

// Message is the wire format of a forwarded Sample
type Message struct {
	RunId   string    `json:"runId"`
	PlantId string    `json:"plantId"`
	SentAt  time.Time `json:"sentAt"`
	samples.Sample
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(data []byte) (Message, error) {
	var message Message
	err := json.Unmarshal(data, &message)
	return message, err
}

// Publisher delivers telemetry messages to an external system
type Publisher interface {
	Name() string
	Publish(ctx context.Context, message Message) error
	Close() error
}

// NewPublishers creates a Publisher for every configured telemetry target
func NewPublishers(config configuration.TelemetryConfig) ([]Publisher, error) {
	var publishers []Publisher
	if config.Kafka != nil {
		publishers = append(publishers, NewKafkaPublisher(*config.Kafka))
	}
	if config.Mqtt != nil {
		publisher, err := NewMqttPublisher(*config.Mqtt)
		if err != nil {
			closeAll(publishers)
			return nil, err
		}
		publishers = append(publishers, publisher)
	}
	return publishers, nil
}

func closeAll(publishers []Publisher) {
	for _, publisher := range publishers {
		if err := publisher.Close(); err != nil {
			ui.Warning("Unable to close telemetry publisher %s: %v", publisher.Name(), err)
		}
	}
}

// Forward publishes every Sample of the subscription, in order, until the run has ended
// or ctx is done. Failed deliveries are logged and skipped, they never affect the run.
// Returns the number of dropped messages.
func Forward(ctx context.Context, runId string, plantId string, subscription *samples.Subscription, publisher Publisher) (dropped int, err error) {
	for {
		sample, err := subscription.Next(ctx)
		if errors.Is(err, io.EOF) {
			return dropped, nil
		}
		if err != nil {
			return dropped, err
		}

		message := Message{
			RunId:   runId,
			PlantId: plantId,
			SentAt:  time.Now(),
			Sample:  sample,
		}
		if err := publisher.Publish(ctx, message); err != nil {
			dropped++
			ui.Warning("Telemetry %s: unable to publish sample #%d of run %s: %v", publisher.Name(), sample.TimeIndex, runId, err)
		}
	}
}

// RunListener forwards the samples of every started run to all given publishers
func RunListener(publishers ...Publisher) session.RunListener {
	return func(ctx context.Context, run *session.Run) {
		for _, publisher := range publishers {
			subscription := run.History().Subscribe()
			go func(publisher Publisher) {
				dropped, err := Forward(ctx, run.Id(), run.Settings().PlantId, subscription, publisher)
				if err != nil && !errors.Is(err, context.Canceled) {
					ui.Warning("Telemetry %s: forwarding of run %s stopped: %v", publisher.Name(), run.Id(), err)
				}
				if dropped > 0 {
					ui.Warning("Telemetry %s: %d samples of run %s could not be published", publisher.Name(), dropped, run.Id())
					ui.NotifyWarn("Telemetry Incomplete", fmt.Sprintf("%d samples of run %s were not delivered to %s", dropped, run.Id(), publisher.Name()))
				}
			}(publisher)
		}
	}
}

// Close closes all given publishers
func Close(publishers []Publisher) {
	closeAll(publishers)
}
