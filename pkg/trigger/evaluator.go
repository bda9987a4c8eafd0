// Package trigger decides whether a workflow fires for an entity event.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukex/autorules/pkg/expression"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/template"
)

var (
	// ErrUnknownTrigger is returned for trigger types this evaluator does not handle.
	ErrUnknownTrigger = errors.New("unknown trigger type")
	// ErrFieldMissing is returned when the entity lacks the field a condition reads.
	ErrFieldMissing = errors.New("entity field missing")
	// ErrNotNumeric is returned when an amount field cannot be read as a number.
	ErrNotNumeric = errors.New("field is not numeric")
	// ErrNotDate is returned when a date field cannot be parsed.
	ErrNotDate = errors.New("field is not a date")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Evaluator evaluates trigger conditions. It never mutates its inputs.
type Evaluator struct {
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Evaluator)

// WithClock overrides the time source used by date_based triggers.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func NewEvaluator(logger *slog.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Evaluator{
		logger: logger.With("module", "trigger_evaluator"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// EvaluateWorkflow combines the active triggers by the workflow's trigger logic. A workflow
// without active triggers never fires. Any error or panic makes the workflow not fire.
func (e *Evaluator) EvaluateWorkflow(ctx context.Context, workflow *models.Workflow, triggers []*models.Trigger, tctx models.TriggerContext) (fired bool) {
	logger := log.FromContext(ctx, e.logger).With("workflow_id", workflow.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Trigger evaluation panicked", "panic", fmt.Sprint(r))

			fired = false
		}
	}()

	active := 0
	matched := 0

	for _, trigger := range triggers {
		if trigger == nil || !trigger.IsActive {
			continue
		}

		active++

		ok, err := e.EvaluateTrigger(trigger, tctx)
		if err != nil {
			logger.Warn("Trigger did not match", "trigger_id", trigger.ID, "trigger_type", trigger.TriggerType, "error", err)
		}

		if ok {
			matched++
		}
	}

	if active == 0 {
		logger.Debug("Workflow has no active triggers")

		return false
	}

	switch workflow.TriggerLogic {
	case models.TriggerLogicOr:
		return matched > 0
	case models.TriggerLogicAnd, "":
		return matched == active
	default:
		logger.Warn("Unknown trigger logic", "trigger_logic", workflow.TriggerLogic)

		return false
	}
}

// EvaluateTrigger evaluates one trigger. A non-nil error always comes with false.
func (e *Evaluator) EvaluateTrigger(trigger *models.Trigger, tctx models.TriggerContext) (bool, error) {
	switch c := trigger.Conditions.(type) {
	case models.StatusChangeConditions:
		return evaluateStatusChange(c, tctx), nil
	case models.AmountThresholdConditions:
		return evaluateAmountThreshold(c, tctx)
	case models.FieldChangeConditions:
		return evaluateFieldChange(c, tctx)
	case models.DateBasedConditions:
		return e.evaluateDateBased(c, tctx)
	case models.CreatedConditions:
		return tctx.EventType == models.EventTypeCreated, nil
	case models.ManualConditions:
		return tctx.EventType == models.EventTypeManual, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger.TriggerType)
	}
}

func evaluateStatusChange(c models.StatusChangeConditions, tctx models.TriggerContext) bool {
	if tctx.EventType != models.EventTypeStatusChange {
		return false
	}

	if c.From == nil && c.To == nil {
		return !expression.LooseEqual(tctx.OldValue, tctx.NewValue)
	}

	if c.From != nil && !expression.StrictEqual(tctx.OldValue, *c.From) {
		return false
	}

	if c.To != nil && !expression.StrictEqual(tctx.NewValue, *c.To) {
		return false
	}

	return true
}

func evaluateAmountThreshold(c models.AmountThresholdConditions, tctx models.TriggerContext) (bool, error) {
	raw, ok := tctx.Field(c.Field)
	if !ok || raw == nil {
		return false, fmt.Errorf("%w: %s", ErrFieldMissing, c.Field)
	}

	amount, err := toDecimal(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.Field, err)
	}

	threshold := decimal.NewFromFloat(c.Value)

	switch c.Operator {
	case models.AmountGreaterThan:
		return amount.GreaterThan(threshold), nil
	case models.AmountLessThan:
		return amount.LessThan(threshold), nil
	case models.AmountEquals:
		return amount.Equal(threshold), nil
	case models.AmountGreaterThanOrEqual:
		return amount.GreaterThanOrEqual(threshold), nil
	case models.AmountLessThanOrEqual:
		return amount.LessThanOrEqual(threshold), nil
	default:
		return false, fmt.Errorf("unknown amount operator %q", c.Operator)
	}
}

func evaluateFieldChange(c models.FieldChangeConditions, tctx models.TriggerContext) (bool, error) {
	if tctx.EventType != models.EventTypeFieldChange {
		return false, nil
	}

	current, _ := tctx.Field(c.Field)

	switch c.Operator {
	case models.FieldEquals:
		return expression.LooseEqual(current, c.Value), nil
	case models.FieldNotEquals:
		return !expression.LooseEqual(current, c.Value), nil
	case models.FieldGreaterThan, models.FieldLessThan:
		l, r := expression.ToNumber(current), expression.ToNumber(c.Value)
		if current == nil || math.IsNaN(l) || math.IsNaN(r) {
			return false, nil
		}

		if c.Operator == models.FieldGreaterThan {
			return l > r, nil
		}

		return l < r, nil
	case models.FieldContains:
		return contains(current, c.Value), nil
	default:
		return false, fmt.Errorf("unknown field operator %q", c.Operator)
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case []any:
		for _, item := range h {
			if expression.LooseEqual(item, needle) {
				return true
			}
		}

		return false
	default:
		return strings.Contains(template.Stringify(h), template.Stringify(needle))
	}
}

func (e *Evaluator) evaluateDateBased(c models.DateBasedConditions, tctx models.TriggerContext) (bool, error) {
	raw, ok := tctx.Field(c.Field)
	if !ok || raw == nil {
		return false, fmt.Errorf("%w: %s", ErrFieldMissing, c.Field)
	}

	now := e.now()

	target, err := toTime(raw, now.Location())
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.Field, err)
	}

	diff := DayDiff(target, now)

	switch c.Operator {
	case models.DateDaysBefore:
		return diff > 0 && diff == c.Value, nil
	case models.DateDaysAfter:
		return diff < 0 && diff == -c.Value, nil
	case models.DateIsOverdue:
		return diff < 0, nil
	case models.DateIsToday:
		return diff == 0, nil
	default:
		return false, fmt.Errorf("unknown date operator %q", c.Operator)
	}
}

// DayDiff returns the number of calendar days from now to target in now's location.
// Positive means target is in the future.
func DayDiff(target, now time.Time) int {
	loc := now.Location()
	t := target.In(loc)

	targetDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	return int(math.Floor(targetDay.Sub(today).Hours() / 24))
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}

		return d, nil
	default:
		if expression.IsNumeric(v) {
			return decimal.NewFromFloat(expression.ToNumber(v)), nil
		}

		return decimal.Zero, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

// toTime reads v as a point in time. Strings without a zone are read in loc.
func toTime(v any, loc *time.Location) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, ErrNotDate
		}

		return *t, nil
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.ParseInLocation(layout, t, loc); err == nil {
				return parsed, nil
			}
		}

		return time.Time{}, fmt.Errorf("%w: %q", ErrNotDate, t)
	default:
		if expression.IsNumeric(v) {
			return time.UnixMilli(int64(expression.ToNumber(v))), nil
		}

		return time.Time{}, fmt.Errorf("%w: %T", ErrNotDate, v)
	}
}
