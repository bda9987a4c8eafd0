package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autorules/pkg/cmd"
	"github.com/dukex/autorules/pkg/eventbus"
	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/log"
)

var lifecycleEvents = []events.EventType{
	events.ExecutionStartedEvent,
	events.ExecutionCompletedEvent,
	events.ExecutionFailedEvent,
	events.ScheduleFiredEvent,
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print execution lifecycle events as JSON lines until interrupted",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("events")

			if provider := command.String("event-bus"); provider == "" || provider == "gochannel" {
				logger.WarnContext(ctx, "The in-memory event bus only sees events published by this process")
			}

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := tailEvents(ctx, bus.Events, command.Root().Writer); err != nil {
				return err
			}

			<-ctx.Done()

			return nil
		},
	}
}

// tailEvents registers a printer for every lifecycle event type and starts consuming.
func tailEvents(ctx context.Context, bus eventbus.EventSubscriber, w io.Writer) error {
	var mu sync.Mutex

	encoder := json.NewEncoder(w)

	for _, eventType := range lifecycleEvents {
		err := bus.Handle(eventType, func(_ context.Context, event any) error {
			mu.Lock()
			defer mu.Unlock()

			return encoder.Encode(event)
		})
		if err != nil {
			return fmt.Errorf("failed to handle %s: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}
