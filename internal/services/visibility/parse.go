package visibility

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidewatch/pierviz/internal/interfaces"
)

// stripCodeFence removes optional markdown code-fence wrapping from a model
// response before JSON decoding.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.LastIndex(raw, "```"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

// parseEstimate decodes the model's JSON response into an estimate. An absent
// visibility field or the literal string "nan" (case-insensitive) yields the
// unusable sentinel paired with whatever description was returned.
func parseEstimate(raw string) (interfaces.Estimate, error) {
	var payload struct {
		VisibilityFt any    `json:"visibility_ft"`
		Conditions   string `json:"conditions"`
		Analysis     string `json:"analysis"`
	}

	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return interfaces.Estimate{}, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	conditions := payload.Conditions
	if conditions == "" {
		conditions = payload.Analysis
	}

	switch v := payload.VisibilityFt.(type) {
	case nil:
		return interfaces.Unusable(conditions), nil
	case float64:
		return interfaces.Estimate{VisibilityFt: v, Conditions: conditions}, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "nan") {
			return interfaces.Unusable(conditions), nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return interfaces.Estimate{}, fmt.Errorf("oracle returned non-numeric visibility %q", v)
		}
		return interfaces.Estimate{VisibilityFt: parsed, Conditions: conditions}, nil
	default:
		return interfaces.Estimate{}, fmt.Errorf("oracle returned unexpected visibility type %T", payload.VisibilityFt)
	}
}
