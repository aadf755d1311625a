package domain

// Operator is a filter comparison operator. The set of valid operators
// depends on the field type of the referenced item field.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpRegex      Operator = "regex"
	OpGT         Operator = "gt"
	OpGTE        Operator = "gte"
	OpLT         Operator = "lt"
	OpLTE        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
)

// FilterCondition is one declarative per-item condition. All conditions
// on a source must match for an item to pass.
type FilterCondition struct {
	// Field references a key in the item's fields map.
	Field string `json:"field"`

	// Operator compares the field value against Value.
	Operator Operator `json:"operator"`

	// Value is the comparison operand. For in/not_in it is a list.
	Value any `json:"value"`
}

// OperatorsForFieldType returns the operators valid for a field type.
func OperatorsForFieldType(t FieldType) []Operator {
	switch t {
	case FieldString:
		return []Operator{OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpRegex}
	case FieldNumber:
		return []Operator{OpEquals, OpNotEquals, OpGT, OpGTE, OpLT, OpLTE}
	case FieldEnum:
		return []Operator{OpEquals, OpNotEquals, OpIn, OpNotIn}
	case FieldBoolean:
		return []Operator{OpEquals, OpNotEquals}
	default:
		return nil
	}
}
