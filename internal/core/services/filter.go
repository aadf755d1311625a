package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// FilterEngine evaluates declarative per-item filter conditions.
// Evaluation never raises: a bad regex or a missing field resolves to
// "does not pass".
type FilterEngine struct{}

// NewFilterEngine creates a filter engine.
func NewFilterEngine() *FilterEngine {
	return &FilterEngine{}
}

// Apply reports whether an item passes all conditions. An empty
// condition list passes everything; a condition referencing a field the
// item does not carry fails closed.
func (e *FilterEngine) Apply(item *domain.IngestItem, conds []domain.FilterCondition) bool {
	for i := range conds {
		if !e.applyOne(item, &conds[i]) {
			return false
		}
	}
	return true
}

// Resolve picks the effective filter: the source's configured filter if
// non-empty, else the plugin's declared default, else no filtering.
func (e *FilterEngine) Resolve(sourceFilter, pluginDefault []domain.FilterCondition) []domain.FilterCondition {
	if len(sourceFilter) > 0 {
		return sourceFilter
	}
	return pluginDefault
}

func (e *FilterEngine) applyOne(item *domain.IngestItem, c *domain.FilterCondition) bool {
	val, ok := item.Fields[c.Field]
	if !ok {
		return false
	}

	switch v := val.(type) {
	case string:
		return matchString(v, c)
	case bool:
		return matchBool(v, c)
	case int:
		return matchNumber(float64(v), c)
	case int64:
		return matchNumber(float64(v), c)
	case float64:
		return matchNumber(v, c)
	default:
		return false
	}
}

func matchString(v string, c *domain.FilterCondition) bool {
	switch c.Operator {
	case domain.OpIn:
		return valueInList(v, c.Value)
	case domain.OpNotIn:
		return !valueInList(v, c.Value)
	}

	want, ok := c.Value.(string)
	if !ok {
		return false
	}
	switch c.Operator {
	case domain.OpEquals:
		return v == want
	case domain.OpNotEquals:
		return v != want
	case domain.OpContains:
		return strings.Contains(v, want)
	case domain.OpStartsWith:
		return strings.HasPrefix(v, want)
	case domain.OpEndsWith:
		return strings.HasSuffix(v, want)
	case domain.OpRegex:
		re, err := regexp.Compile(want)
		if err != nil {
			return false
		}
		return re.MatchString(v)
	default:
		return false
	}
}

func matchNumber(v float64, c *domain.FilterCondition) bool {
	want, ok := toFloat(c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case domain.OpEquals:
		return v == want
	case domain.OpNotEquals:
		return v != want
	case domain.OpGT:
		return v > want
	case domain.OpGTE:
		return v >= want
	case domain.OpLT:
		return v < want
	case domain.OpLTE:
		return v <= want
	default:
		return false
	}
}

func matchBool(v bool, c *domain.FilterCondition) bool {
	want, ok := c.Value.(bool)
	if !ok {
		return false
	}
	switch c.Operator {
	case domain.OpEquals:
		return v == want
	case domain.OpNotEquals:
		return v != want
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func valueInList(v string, list any) bool {
	switch l := list.(type) {
	case []string:
		for _, s := range l {
			if s == v {
				return true
			}
		}
	case []any:
		for _, e := range l {
			if s, ok := e.(string); ok && s == v {
				return true
			}
		}
	}
	return false
}

// ValidateFilter checks conditions against a plugin's declared item
// fields: field references must exist, operators must suit the field
// type, and enum operands must be declared values. All problems are
// accumulated, not just the first.
func (e *FilterEngine) ValidateFilter(conds []domain.FilterCondition, fields []domain.ItemField) error {
	byKey := make(map[string]*domain.ItemField, len(fields))
	for i := range fields {
		byKey[fields[i].Key] = &fields[i]
	}

	var errs []error
	for i := range conds {
		c := &conds[i]
		field, ok := byKey[c.Field]
		if !ok {
			errs = append(errs, fmt.Errorf("condition %d: unknown field %q", i, c.Field))
			continue
		}
		if !operatorValid(field.Type, c.Operator) {
			errs = append(errs, fmt.Errorf("condition %d: operator %q not valid for %s field %q",
				i, c.Operator, field.Type, c.Field))
		}
		if field.Type == domain.FieldEnum {
			errs = append(errs, validateEnumOperand(i, c, field)...)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func operatorValid(t domain.FieldType, op domain.Operator) bool {
	for _, valid := range domain.OperatorsForFieldType(t) {
		if op == valid {
			return true
		}
	}
	return false
}

func validateEnumOperand(i int, c *domain.FilterCondition, field *domain.ItemField) []error {
	allowed := make(map[string]bool, len(field.Values))
	for _, v := range field.Values {
		allowed[v] = true
	}

	check := func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("condition %d: enum value must be a string", i)
		}
		if !allowed[s] {
			return fmt.Errorf("condition %d: %q is not a value of enum field %q", i, s, field.Key)
		}
		return nil
	}

	var errs []error
	switch c.Operator {
	case domain.OpIn, domain.OpNotIn:
		list, ok := c.Value.([]any)
		if !ok {
			if sl, isStrings := c.Value.([]string); isStrings {
				for _, s := range sl {
					if err := check(s); err != nil {
						errs = append(errs, err)
					}
				}
				return errs
			}
			return []error{fmt.Errorf("condition %d: %s requires a list value", i, c.Operator)}
		}
		for _, v := range list {
			if err := check(v); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		if err := check(c.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
