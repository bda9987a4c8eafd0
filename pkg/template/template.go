// Package template renders {{path}} placeholders in action configuration against a trigger context.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autorules/pkg/expression"
	"github.com/dukex/autorules/pkg/models"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Interpolate replaces every {{path}} in tmpl. Unresolved placeholders render as "".
func Interpolate(tmpl string, tctx models.TriggerContext) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]

		v, ok := Resolve(path, tctx)
		if !ok {
			return ""
		}

		return Stringify(v)
	})
}

// InterpolateValue interpolates string values and returns other values unchanged. A string
// that is exactly one placeholder yields the resolved value with its original type.
func InterpolateValue(value any, tctx models.TriggerContext) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	if m := placeholder.FindStringSubmatch(s); m != nil && m[0] == strings.TrimSpace(s) {
		if v, found := Resolve(m[1], tctx); found {
			return v
		}

		return ""
	}

	return Interpolate(s, tctx)
}

// Resolve looks path up against the entity, then its camelCase form, then the merged
// context (trigger fields plus entity fields at the top level).
func Resolve(path string, tctx models.TriggerContext) (any, bool) {
	segments := strings.Split(path, ".")

	if v, ok := expression.Lookup(tctx.Entity, segments); ok {
		return v, true
	}

	camel := make([]string, len(segments))
	for i, segment := range segments {
		camel[i] = SnakeToCamel(segment)
	}

	if v, ok := expression.Lookup(tctx.Entity, camel); ok {
		return v, true
	}

	merged := Merged(tctx)

	if v, ok := expression.Lookup(merged, segments); ok {
		return v, true
	}

	return expression.Lookup(merged, camel)
}

// Merged flattens the trigger context into one map. Entity fields win over context fields.
func Merged(tctx models.TriggerContext) map[string]any {
	merged := map[string]any{
		"eventType":    string(tctx.EventType),
		"event_type":   string(tctx.EventType),
		"oldValue":     tctx.OldValue,
		"old_value":    tctx.OldValue,
		"newValue":     tctx.NewValue,
		"new_value":    tctx.NewValue,
		"triggeredBy":  tctx.TriggeredBy,
		"triggered_by": tctx.TriggeredBy,
		"entity":       tctx.Entity,
	}

	for k, v := range tctx.Entity {
		merged[k] = v
	}

	return merged
}

// SnakeToCamel converts customer_name to customerName.
func SnakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}

	parts := strings.Split(s, "_")

	var b strings.Builder

	b.WriteString(parts[0])

	for _, part := range parts[1:] {
		if part == "" {
			continue
		}

		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}

	return b.String()
}

// Stringify renders a resolved value for inclusion in text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}

		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
