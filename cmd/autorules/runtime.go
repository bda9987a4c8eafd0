package main

import (
	"context"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/autorules/pkg/actions"
	"github.com/dukex/autorules/pkg/cmd"
	"github.com/dukex/autorules/pkg/engine"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/notify"
	"github.com/dukex/autorules/pkg/otelhelper"
)

const serviceName = "autorules"

// runtime holds the collaborators shared by every command that runs workflows.
type runtime struct {
	logger  *slog.Logger
	storage *cmd.Storage
	bus     *cmd.Bus
	engine  *engine.Engine

	shutdownTracer otelhelper.ShutdownFunc
}

func newRuntime(ctx context.Context, command *cli.Command) (*runtime, error) {
	logger := log.WithModule("autorules")

	r := &runtime{logger: logger}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = t
		r.shutdownTracer = shutdown
	}

	storage, err := cmd.NewStorage(ctx, logger, command.String("database-url"), cmd.ParseList(command.String("entity-types")))
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	r.storage = storage

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	r.bus = bus

	executor := actions.NewExecutor(actions.Collaborators{
		Directory: storage.Store,
		Mailer:    notify.NewBusMailer(bus.Publisher, logger),
		Notifier:  notify.NewBusNotifier(bus.Publisher, logger),
		Updaters:  storage.Updaters,
		Roles:     cmd.ParseList(command.String("known-roles")),
	}, logger)

	eng, err := engine.New(engine.Dependencies{
		Repository: storage.Store,
		Executor:   executor,
		Publisher:  bus.Events,
		Tracer:     tracer,
		Logger:     logger,
	})
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	r.engine = eng

	return r, nil
}

// Close waits for background executions and releases everything newRuntime opened.
func (r *runtime) Close(ctx context.Context) {
	if r.engine != nil {
		r.engine.Wait()
	}

	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if r.storage != nil {
		if err := r.storage.Store.Close(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if r.shutdownTracer != nil {
		if err := r.shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			r.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
