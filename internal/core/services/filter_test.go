package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

func filterItem(fields map[string]any) *domain.IngestItem {
	return &domain.IngestItem{ID: "item-1", Fields: fields}
}

func TestFilterApply(t *testing.T) {
	e := NewFilterEngine()

	tests := []struct {
		name   string
		fields map[string]any
		cond   domain.FilterCondition
		want   bool
	}{
		{"equals match", map[string]any{"state": "open"},
			domain.FilterCondition{Field: "state", Operator: domain.OpEquals, Value: "open"}, true},
		{"equals mismatch", map[string]any{"state": "closed"},
			domain.FilterCondition{Field: "state", Operator: domain.OpEquals, Value: "open"}, false},
		{"not equals", map[string]any{"state": "closed"},
			domain.FilterCondition{Field: "state", Operator: domain.OpNotEquals, Value: "open"}, true},
		{"contains", map[string]any{"title": "urgent: disk full"},
			domain.FilterCondition{Field: "title", Operator: domain.OpContains, Value: "urgent"}, true},
		{"starts with", map[string]any{"title": "urgent: disk full"},
			domain.FilterCondition{Field: "title", Operator: domain.OpStartsWith, Value: "urgent"}, true},
		{"ends with", map[string]any{"title": "disk full"},
			domain.FilterCondition{Field: "title", Operator: domain.OpEndsWith, Value: "full"}, true},
		{"regex match", map[string]any{"title": "build #42 failed"},
			domain.FilterCondition{Field: "title", Operator: domain.OpRegex, Value: `#\d+`}, true},
		{"invalid regex fails closed", map[string]any{"title": "anything"},
			domain.FilterCondition{Field: "title", Operator: domain.OpRegex, Value: `[unclosed`}, false},
		{"missing field fails closed", map[string]any{"title": "x"},
			domain.FilterCondition{Field: "absent", Operator: domain.OpEquals, Value: "x"}, false},
		{"number gt", map[string]any{"comments": float64(5)},
			domain.FilterCondition{Field: "comments", Operator: domain.OpGT, Value: 3}, true},
		{"number lte", map[string]any{"comments": float64(3)},
			domain.FilterCondition{Field: "comments", Operator: domain.OpLTE, Value: 3}, true},
		{"bool equals", map[string]any{"hasAttachment": true},
			domain.FilterCondition{Field: "hasAttachment", Operator: domain.OpEquals, Value: true}, true},
		{"in list", map[string]any{"state": "open"},
			domain.FilterCondition{Field: "state", Operator: domain.OpIn, Value: []any{"open", "reopened"}}, true},
		{"not in list", map[string]any{"state": "closed"},
			domain.FilterCondition{Field: "state", Operator: domain.OpNotIn, Value: []any{"open", "reopened"}}, true},
		{"type mismatch fails closed", map[string]any{"comments": float64(5)},
			domain.FilterCondition{Field: "comments", Operator: domain.OpGT, Value: "three"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Apply(filterItem(tt.fields), []domain.FilterCondition{tt.cond})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterApplyIsConjunction(t *testing.T) {
	e := NewFilterEngine()
	item := filterItem(map[string]any{"state": "open", "comments": float64(5)})

	conds := []domain.FilterCondition{
		{Field: "state", Operator: domain.OpEquals, Value: "open"},
		{Field: "comments", Operator: domain.OpGT, Value: 10},
	}
	assert.False(t, e.Apply(item, conds), "one failing condition rejects the item")

	conds[1].Value = 3
	assert.True(t, e.Apply(item, conds))
}

func TestFilterApplyEmptyPassesEverything(t *testing.T) {
	e := NewFilterEngine()
	assert.True(t, e.Apply(filterItem(nil), nil))
}

func TestFilterResolve(t *testing.T) {
	e := NewFilterEngine()
	source := []domain.FilterCondition{{Field: "a", Operator: domain.OpEquals, Value: "1"}}
	def := []domain.FilterCondition{{Field: "b", Operator: domain.OpEquals, Value: "2"}}

	assert.Equal(t, source, e.Resolve(source, def), "source filter wins")
	assert.Equal(t, def, e.Resolve(nil, def), "plugin default applies when source has none")
	assert.Nil(t, e.Resolve(nil, nil))
}

func TestValidateFilter(t *testing.T) {
	e := NewFilterEngine()
	fields := []domain.ItemField{
		{Key: "title", Label: "Title", Type: domain.FieldString},
		{Key: "state", Label: "State", Type: domain.FieldEnum, Values: []string{"open", "closed"}},
		{Key: "comments", Label: "Comments", Type: domain.FieldNumber},
	}

	ok := []domain.FilterCondition{
		{Field: "title", Operator: domain.OpContains, Value: "x"},
		{Field: "state", Operator: domain.OpIn, Value: []any{"open"}},
		{Field: "comments", Operator: domain.OpGTE, Value: 1},
	}
	require.NoError(t, e.ValidateFilter(ok, fields))

	bad := []domain.FilterCondition{
		{Field: "nope", Operator: domain.OpEquals, Value: "x"},
		{Field: "comments", Operator: domain.OpContains, Value: "x"},
		{Field: "state", Operator: domain.OpEquals, Value: "pending"},
	}
	err := e.ValidateFilter(bad, fields)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown field "nope"`)
	assert.Contains(t, msg, "not valid for number field")
	assert.Contains(t, msg, `"pending" is not a value of enum field "state"`)
}
