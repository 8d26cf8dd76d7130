package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rulstack/rulstack/pkg/types"
)

// FieldPredictedRUL names the model output in rule conditions.
const FieldPredictedRUL = "predicted_rul"

// condition is a parsed "field op value" rule expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// parseCondition parses a rule condition.
//
// Supported expressions (field operator value):
//
//	predicted_rul < 100
//	predicted_rul <= 250
//	cycle_index > 1000
//	max_voltage_discharge < 3.9
//
// field is predicted_rul or any reading key; op is one of > >= < <= == !=.
func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	c := condition{field: parts[0], op: parts[1]}

	if c.field != FieldPredictedRUL {
		if _, ok := (types.Reading{}).Field(c.field); !ok {
			return condition{}, fmt.Errorf("condition %q: unknown field %q", expr, c.field)
		}
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold: %w", expr, err)
	}
	c.threshold = v
	return c, nil
}

// eval returns whether the condition holds and the value it tested.
func (c condition) eval(r types.Reading, rul float64) (bool, float64) {
	v := rul
	if c.field != FieldPredictedRUL {
		v, _ = r.Field(c.field)
	}
	return compareFloat(v, c.op, c.threshold), v
}

func (c condition) String() string {
	return fmt.Sprintf("%s %s %g", c.field, c.op, c.threshold)
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
