package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantUnusable   bool
		wantVisibility float64
		wantConditions string
	}{
		{
			name:           "numeric value",
			raw:            `{"visibility_ft": 17.5, "conditions": "good clarity"}`,
			wantVisibility: 17.5,
			wantConditions: "good clarity",
		},
		{
			name:           "fenced response",
			raw:            "```json\n{\"visibility_ft\": 10, \"conditions\": \"green tint\"}\n```",
			wantVisibility: 10,
			wantConditions: "green tint",
		},
		{
			name:           "nan string",
			raw:            `{"visibility_ft": "nan", "conditions": "error page"}`,
			wantUnusable:   true,
			wantConditions: "error page",
		},
		{
			name:           "nan case insensitive",
			raw:            `{"visibility_ft": "NaN", "conditions": "black frame"}`,
			wantUnusable:   true,
			wantConditions: "black frame",
		},
		{
			name:           "missing visibility field",
			raw:            `{"conditions": "no reading"}`,
			wantUnusable:   true,
			wantConditions: "no reading",
		},
		{
			name:           "numeric string",
			raw:            `{"visibility_ft": "12.5", "conditions": "moderate"}`,
			wantVisibility: 12.5,
			wantConditions: "moderate",
		},
		{
			name:           "analysis field fallback",
			raw:            `{"visibility_ft": 20, "analysis": "sharp 14ft piling"}`,
			wantVisibility: 20,
			wantConditions: "sharp 14ft piling",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := parseEstimate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnusable, est.Unusable())
			if !tt.wantUnusable {
				assert.Equal(t, tt.wantVisibility, est.VisibilityFt)
			}
			assert.Equal(t, tt.wantConditions, est.Conditions)
		})
	}
}

func TestParseEstimateErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "the visibility looks like about 15 feet"},
		{"non-numeric string", `{"visibility_ft": "murky", "conditions": "?"}`},
		{"wrong type", `{"visibility_ft": [1,2], "conditions": "?"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseEstimate(tt.raw)
			assert.Error(t, err)
		})
	}
}
