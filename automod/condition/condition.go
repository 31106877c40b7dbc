// Package condition implements the small comparison grammar used by both
// level-gated config overrides and counter trigger thresholds: an operator
// (>, >=, <, <=, =) followed by an integer, with optional whitespace.
//
// Evaluation never fails: a string that does not match the grammar simply
// does not match any value. This keeps a single malformed condition in guild
// settings from taking down the whole dispatch pipeline.
package condition

import (
	"regexp"
	"strconv"
)

var conditionRegexp = regexp.MustCompile(`^\s*(>=|<=|>|<|=)\s*(-?\d+)\s*$`)

// Parsed is a decoded condition, produced by Parse.
type Parsed struct {
	Op    string
	Value int64
}

// Parse decodes a condition string. The second return is false when the
// string does not match the grammar.
func Parse(cond string) (Parsed, bool) {
	m := conditionRegexp.FindStringSubmatch(cond)
	if m == nil {
		return Parsed{}, false
	}
	v, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{Op: m[1], Value: v}, true
}

// Matches evaluates the parsed condition against a value.
func (p Parsed) Matches(val int64) bool {
	switch p.Op {
	case ">":
		return val > p.Value
	case ">=":
		return val >= p.Value
	case "<":
		return val < p.Value
	case "<=":
		return val <= p.Value
	default:
		// "=" and anything the regexp would not have let through
		return val == p.Value
	}
}

// EvaluateLevel evaluates a level condition against a permission level.
// Negative thresholds parse but can never be written by level grammar
// consumers; they simply compare as-is.
func EvaluateLevel(cond string, level int) bool {
	p, ok := Parse(cond)
	if !ok {
		return false
	}
	return p.Matches(int64(level))
}

// EvaluateNumeric evaluates a numeric condition against a counter value.
func EvaluateNumeric(cond string, value int64) bool {
	p, ok := Parse(cond)
	if !ok {
		return false
	}
	return p.Matches(value)
}
