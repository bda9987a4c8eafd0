package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autorules/pkg/cmd"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/scheduler"
	"github.com/dukex/autorules/pkg/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the event API and the schedule sweeper",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without sweeping schedules",
			},
		}, schedulerFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rt.logger.InfoContext(ctx, "Initializing autorules API")

			if !command.Bool("no-scheduler") {
				sched, closeLocker, err := newScheduler(ctx, command, rt)
				if err != nil {
					return err
				}
				defer closeLocker()

				if err := sched.Start(ctx); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				defer func() {
					if err := sched.Stop(ctx); err != nil {
						rt.logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
					}
				}()
			}

			handlers := web.NewAPIHandlers(rt.engine, rt.storage.Store, models.NewValidator(), rt.logger)
			app := web.NewApp(handlers)

			listenErr := make(chan error, 1)

			go func() {
				listenErr <- app.Listen(":"+strconv.Itoa(command.Int("port")), fiber.ListenConfig{
					DisableStartupMessage: true,
				})
			}()

			rt.logger.InfoContext(ctx, "API listening", "port", command.Int("port"))

			select {
			case err := <-listenErr:
				return fmt.Errorf("API server stopped: %w", err)
			case <-ctx.Done():
			}

			rt.logger.InfoContext(ctx, "Shutting down API")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("failed to shutdown API: %w", err)
			}

			return nil
		},
	}
}

func schedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Sweep due schedules without serving the API",
		Flags: schedulerFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			sched, closeLocker, err := newScheduler(ctx, command, rt)
			if err != nil {
				return err
			}
			defer closeLocker()

			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-ctx.Done()

			rt.logger.InfoContext(ctx, "Shutting down scheduler")

			return sched.Stop(context.WithoutCancel(ctx))
		},
	}
}

func newScheduler(ctx context.Context, command *cli.Command, rt *runtime) (*scheduler.Scheduler, func() error, error) {
	interval := command.Duration("scheduler-interval")

	locker, closeLocker, err := cmd.NewLocker(ctx, command.String("redis-url"), rt.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sweep lock: %w", err)
	}

	sched := scheduler.New(rt.storage.Store, rt.engine, rt.logger,
		scheduler.WithInterval(interval),
		scheduler.WithLocker(locker),
		scheduler.WithPublisher(rt.bus.Events),
	)

	return sched, closeLocker, nil
}
