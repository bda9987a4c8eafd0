package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.WithModule("autorules").Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "autorules",
		Usage:                 "Rule-based workflow automation for business entities",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file:///path or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "known-roles",
				Usage:   "Comma separated role names resolved to their members",
				Sources: cli.EnvVars("KNOWN_ROLES"),
			},
			&cli.StringFlag{
				Name:    "entity-types",
				Usage:   "Comma separated entity types that accept field updates",
				Value:   "quote,invoice,purchase_order",
				Sources: cli.EnvVars("ENTITY_TYPES"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			schedulerCommand(),
			triggerCommand(),
			validateCommand(),
			loadCommand(),
			eventsCommand(),
		},
	}
}

func schedulerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "scheduler-interval",
			Usage:   "How often due schedules are swept",
			Value:   scheduler.DefaultInterval,
			Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the sweep lock shared by scheduler instances",
			Sources: cli.EnvVars("REDIS_URL"),
		},
	}
}

const shutdownTimeout = 10 * time.Second
