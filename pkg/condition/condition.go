// Package condition implements the connection-activation expression
// evaluator: a tiny comparison language over a single component
// property, used to gate topology.Connection fan-out.
package condition

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gardenfabric/core/pkg/valuetype"
)

// PropertyReader is the capability the evaluator needs from the
// persistence service: read a single property's current value.
type PropertyReader interface {
	GetProperty(deviceID uuid.UUID, propertyName string) (valuetype.Value, bool)
}

type operator string

const (
	opEq operator = "=="
	opNe operator = "!="
	opGe operator = ">="
	opLe operator = "<="
	opGt operator = ">"
	opLt operator = "<"
	opEqAlt operator = "="
)

// operators ordered longest-first so >= is matched before >, etc.
var operatorsByLength = []operator{opEq, opNe, opGe, opLe, opGt, opLt, opEqAlt}

// Evaluate parses and evaluates condition against the property named
// in its left-hand side, read from the device selected by
// "source"/"target"/an explicit id (defaulting to source). An empty
// condition is always true; a missing property or unsupported operator
// is always false.
func Evaluate(ctx context.Context, sourceID, targetID uuid.UUID, condition string, reader PropertyReader) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}

	left, op, right, ok := splitCondition(condition)
	if !ok {
		return false
	}

	deviceID, propertyName := resolveSelector(left, sourceID, targetID)
	value, found := reader.GetProperty(deviceID, propertyName)
	if !found {
		return false
	}

	return compare(value, op, right)
}

func splitCondition(condition string) (left string, op operator, right string, ok bool) {
	for _, candidate := range operatorsByLength {
		idx := strings.Index(condition, string(candidate))
		if idx < 0 {
			continue
		}
		left = strings.TrimSpace(condition[:idx])
		right = strings.TrimSpace(condition[idx+len(candidate):])
		right = stripQuotes(right)
		return left, candidate, right, true
	}
	return "", "", "", false
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func resolveSelector(left string, sourceID, targetID uuid.UUID) (uuid.UUID, string) {
	dot := strings.Index(left, ".")
	if dot < 0 {
		return sourceID, left
	}
	selector := left[:dot]
	propertyName := left[dot+1:]
	switch selector {
	case "source":
		return sourceID, propertyName
	case "target":
		return targetID, propertyName
	default:
		if id, err := uuid.Parse(selector); err == nil {
			return id, propertyName
		}
		return sourceID, propertyName
	}
}

func compare(value valuetype.Value, op operator, literal string) bool {
	switch value.Kind {
	case valuetype.KindInt:
		n, ok := value.Int()
		if !ok {
			return false
		}
		lit, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return false
		}
		return numericCompare(float64(n), op, float64(lit))
	case valuetype.KindFloat:
		f, ok := value.Float()
		if !ok {
			return false
		}
		lit, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return false
		}
		return numericCompare(f, op, lit)
	case valuetype.KindBool:
		b, ok := value.Bool()
		if !ok {
			return false
		}
		lit, err := strconv.ParseBool(literal)
		if err != nil {
			return false
		}
		return boolCompare(b, op, lit)
	case valuetype.KindString, valuetype.KindEnum:
		s, ok := value.String()
		if !ok {
			return false
		}
		return stringCompare(s, op, literal)
	default:
		return false
	}
}

func numericCompare(a float64, op operator, b float64) bool {
	switch op {
	case opEq, opEqAlt:
		return a == b
	case opNe:
		return a != b
	case opGe:
		return a >= b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opLt:
		return a < b
	default:
		return false
	}
}

func boolCompare(a bool, op operator, b bool) bool {
	switch op {
	case opEq, opEqAlt:
		return a == b
	case opNe:
		return a != b
	default:
		return false
	}
}

func stringCompare(a string, op operator, b string) bool {
	switch op {
	case opEq, opEqAlt:
		return a == b
	case opNe:
		return a != b
	default:
		return false
	}
}
