package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autorules/pkg/cmd"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files, or every stored workflow when no file is given",
		ArgsUsage: "[definition.json ...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("validate")
			validate := models.NewValidator()
			out := command.Root().Writer

			if command.Args().Present() {
				var errs []error

				for _, path := range command.Args().Slice() {
					def, err := cmd.LoadDefinition(validate, path)
					if err != nil {
						errs = append(errs, err)

						continue
					}

					_, _ = fmt.Fprintf(out, "%s: workflow %s is valid\n", path, def.Workflow.ID)
				}

				return errors.Join(errs...)
			}

			entityTypes := cmd.ParseList(command.String("entity-types"))

			storage, err := cmd.NewStorage(ctx, logger, command.String("database-url"), entityTypes)
			if err != nil {
				return err
			}

			defer func() {
				if err := storage.Store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			checked, err := cmd.ValidateStored(ctx, validate, storage.Store, entityTypes)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(out, "%d active workflow(s) are valid\n", checked)

			return nil
		},
	}
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Validate workflow definition files and save them to the store",
		ArgsUsage: "definition.json [definition.json ...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			if !command.Args().Present() {
				return errors.New("at least one definition file is required")
			}

			logger := log.WithModule("load")
			validate := models.NewValidator()

			storage, err := cmd.NewStorage(ctx, logger, command.String("database-url"), cmd.ParseList(command.String("entity-types")))
			if err != nil {
				return err
			}

			defer func() {
				if err := storage.Store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			for _, path := range command.Args().Slice() {
				def, err := cmd.LoadDefinition(validate, path)
				if err != nil {
					return err
				}

				if err := storage.Store.SaveWorkflow(ctx, def); err != nil {
					return fmt.Errorf("failed to save %s: %w", path, err)
				}

				logger.InfoContext(ctx, "Workflow loaded", "workflow_id", def.Workflow.ID, "schedules", len(def.Schedules))
			}

			return nil
		},
	}
}
