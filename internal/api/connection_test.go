package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopicFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"empty filter matches all", "", "a/b/c", true},
		{"hash matches all", "#", "a/b/c", true},
		{"exact", "plant/line/temp", "plant/line/temp", true},
		{"exact mismatch", "plant/line/temp", "plant/line/press", false},
		{"plus single level", "plant/+/temp", "plant/line1/temp", true},
		{"plus does not span", "plant/+/temp", "plant/a/b/temp", false},
		{"trailing hash", "plant/#", "plant/line1/cell2/temp", true},
		{"trailing hash matches parent level", "plant/#", "plant", true},
		{"star glob segment", "plant/line*/temp", "plant/line7/temp", true},
		{"length mismatch", "plant/line", "plant/line/temp", false},
		{"topic shorter than filter", "plant/line/temp", "plant/line", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopicFilter(tt.filter, tt.topic))
		})
	}
}

func TestOutputMatchesTopic(t *testing.T) {
	out := OutputConfiguration{TopicFilters: []string{"plant/+/temp", "energy/#"}}
	assert.True(t, out.MatchesTopic("plant/line1/temp"))
	assert.True(t, out.MatchesTopic("energy/meter/7"))
	assert.False(t, out.MatchesTopic("plant/line1/pressure"))

	// No filters means match everything.
	assert.True(t, OutputConfiguration{}.MatchesTopic("anything/at/all"))
}

func TestValidationResult(t *testing.T) {
	v := OKValidation()
	assert.True(t, v.Valid)

	v.AddWarning("deprecated option")
	assert.True(t, v.Valid)
	assert.Len(t, v.Warnings, 1)

	v.AddError("broken")
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 1)
}

func TestValueEquals(t *testing.T) {
	assert.True(t, ValueEquals(nil, nil))
	assert.False(t, ValueEquals(nil, "x"))
	assert.True(t, ValueEquals("a", "a"))
	assert.True(t, ValueEquals(int64(5), int64(5)))
	assert.True(t, ValueEquals(int64(5), float64(5)))
	assert.True(t, ValueEquals(23.5, 23.5))
	assert.False(t, ValueEquals(23.5, 24.0))
	assert.True(t, ValueEquals(true, true))
	assert.False(t, ValueEquals(true, false))
	assert.True(t, ValueEquals(map[string]interface{}{"a": 1.0}, map[string]interface{}{"a": 1.0}))
	assert.False(t, ValueEquals(map[string]interface{}{"a": 1.0}, map[string]interface{}{"a": 2.0}))
}

func TestCoerceLeafValue(t *testing.T) {
	assert.Equal(t, int64(42), CoerceLeafValue(float64(42)))
	assert.Equal(t, 42.5, CoerceLeafValue(42.5))
	assert.Equal(t, "text", CoerceLeafValue("text"))
	assert.Equal(t, true, CoerceLeafValue(true))
	assert.Nil(t, CoerceLeafValue(nil))
}
