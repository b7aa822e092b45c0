package types

import "time"

// TemplateVariable declares a substitutable "${name}" placeholder used in a
// template graph's node configuration.
type TemplateVariable struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// TemplateStats accumulates outcome history for a template. Updated
// append-only by RecordOutcome; never consulted by the execution core.
type TemplateStats struct {
	UsageCount  int           `json:"usage_count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration_ms"`
}

// Template is a saved, parameterized graph definition reusable across tasks.
// TriggerPatterns are matched as substrings of the incoming task; When is an
// optional expression over {"task": ...} evaluated as a trigger refinement.
type Template struct {
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	TriggerPatterns []string           `json:"trigger_patterns,omitempty"`
	When            string             `json:"when,omitempty"`
	Variables       []TemplateVariable `json:"variables,omitempty"`
	Graph           *Graph             `json:"graph"`
	Stats           TemplateStats      `json:"stats"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
