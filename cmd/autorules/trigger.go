package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autorules/pkg/models"
)

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:    "trigger",
		Aliases: []string{"t"},
		Usage:   "Evaluate one entity event and wait for the resulting executions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entity-type", Usage: "Entity type of the event (ignored with --workflow)"},
			&cli.StringFlag{Name: "entity-id", Usage: "Entity id", Required: true},
			&cli.StringFlag{Name: "event-type", Usage: "status_change, field_change, created, manual or time_based", Value: string(models.EventTypeManual)},
			&cli.StringFlag{Name: "old-value", Usage: "Previous value as JSON"},
			&cli.StringFlag{Name: "new-value", Usage: "New value as JSON"},
			&cli.StringFlag{Name: "entity", Usage: "Entity snapshot as a JSON object", Value: "{}"},
			&cli.StringFlag{Name: "triggered-by", Usage: "User id that caused the event"},
			&cli.StringFlag{Name: "workflow", Usage: "Run only this workflow and print its execution"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			tctx, err := triggerContextFromFlags(command)
			if err != nil {
				return err
			}

			if err := models.NewValidator().Struct(tctx); err != nil {
				return fmt.Errorf("invalid event: %w", err)
			}

			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			entityID := command.String("entity-id")

			if workflowID := command.String("workflow"); workflowID != "" {
				execution, err := rt.engine.RunWorkflow(ctx, workflowID, entityID, tctx)
				if err != nil {
					return err
				}

				return printExecution(command.Root().Writer, execution)
			}

			entityType := command.String("entity-type")
			if entityType == "" {
				return fmt.Errorf("--entity-type is required without --workflow")
			}

			rt.engine.TriggerWorkflows(ctx, entityType, entityID, tctx)
			rt.logger.InfoContext(ctx, "Event processed", "entity_type", entityType, "entity_id", entityID, "event_type", tctx.EventType)

			return nil
		},
	}
}

func triggerContextFromFlags(command *cli.Command) (models.TriggerContext, error) {
	tctx := models.TriggerContext{
		EventType:   models.EventType(command.String("event-type")),
		TriggeredBy: command.String("triggered-by"),
	}

	if err := json.Unmarshal([]byte(command.String("entity")), &tctx.Entity); err != nil {
		return tctx, fmt.Errorf("failed to parse --entity: %w", err)
	}

	tctx.OldValue = parseJSONValue(command.String("old-value"))
	tctx.NewValue = parseJSONValue(command.String("new-value"))

	return tctx, nil
}

// parseJSONValue decodes raw as JSON, falling back to the plain string so that
// --new-value sent works as well as --new-value '"sent"'.
func parseJSONValue(raw string) any {
	if raw == "" {
		return nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}

	return value
}

func printExecution(w io.Writer, execution *models.Execution) error {
	if execution == nil {
		_, err := fmt.Fprintln(w, "Workflow triggers did not match")

		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(execution)
}
