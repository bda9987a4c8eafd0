package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/autorules/pkg/channels/gochannel"
	"github.com/dukex/autorules/pkg/channels/kafka"
	"github.com/dukex/autorules/pkg/eventbus"
)

const serviceName = "autorules"

// Bus is the lifecycle event bus plus the raw publisher the outbox collaborators share.
type Bus struct {
	Events    eventbus.EventBus
	Publisher message.Publisher
}

func (b *Bus) Close() error {
	return b.Events.Close()
}

// NewEventBus creates the bus for provider "gochannel" or "kafka". brokers is the
// comma separated KAFKA_BROKERS value and is ignored by gochannel.
func NewEventBus(provider, brokers string, logger *slog.Logger) (*Bus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return &Bus{Events: eventbus.NewWatermillEventBus(pub, sub), Publisher: pub}, nil

	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return &Bus{Events: eventbus.NewWatermillEventBus(pub, sub), Publisher: pub}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
