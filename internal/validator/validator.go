// Package validator provides JSON schema validation for graph documents and
// skill definitions submitted over the API.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates graph documents and skill definitions.
type Validator struct {
	graphSchema *jsonschema.Schema
	skillSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("graph.json", strings.NewReader(graphSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add graph schema: %w", err)
	}
	if err := compiler.AddResource("skill.json", strings.NewReader(skillSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add skill schema: %w", err)
	}

	graphSchema, err := compiler.Compile("graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	skillSchema, err := compiler.Compile("skill.json")
	if err != nil {
		return nil, fmt.Errorf("compile skill schema: %w", err)
	}

	return &Validator{
		graphSchema: graphSchema,
		skillSchema: skillSchema,
	}, nil
}

// ValidateGraph validates a decoded graph document.
func (v *Validator) ValidateGraph(graph map[string]interface{}) *ValidationResult {
	return v.validate(v.graphSchema, graph)
}

// ValidateSkill validates a decoded skill definition.
func (v *Validator) ValidateSkill(skill map[string]interface{}) *ValidationResult {
	return v.validate(v.skillSchema, skill)
}

// ValidateGraphJSON validates a JSON-encoded graph document.
func (v *Validator) ValidateGraphJSON(data []byte) *ValidationResult {
	var graph map[string]interface{}
	if err := json.Unmarshal(data, &graph); err != nil {
		return invalidJSON(err)
	}
	return v.ValidateGraph(graph)
}

// ValidateSkillJSON validates a JSON-encoded skill definition.
func (v *Validator) ValidateSkillJSON(data []byte) *ValidationResult {
	var skill map[string]interface{}
	if err := json.Unmarshal(data, &skill); err != nil {
		return invalidJSON(err)
	}
	return v.ValidateSkill(skill)
}

func invalidJSON(err error) *ValidationResult {
	return &ValidationResult{
		Valid: false,
		Errors: []ValidationError{
			{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
		},
	}
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}

	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}

	return errors
}

// Embedded JSON schemas

const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "graph.json",
  "title": "Workflow Graph",
  "description": "Schema for workflow graph documents",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-zA-Z][a-zA-Z0-9._-]*$",
      "description": "Graph identifier"
    },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "skill"],
        "properties": {
          "id": {
            "type": "string",
            "pattern": "^[a-zA-Z][a-zA-Z0-9_-]*$",
            "description": "Node identifier, unique within the graph"
          },
          "skill": {
            "type": "string",
            "minLength": 1,
            "description": "Name of the skill this node invokes"
          },
          "inputs": {
            "type": "array",
            "items": {"type": "string"},
            "description": "Literal inputs or <node-id>.output references"
          },
          "config": {
            "type": "object",
            "description": "Skill-specific configuration"
          }
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string"},
          "to": {"type": "string"}
        }
      },
      "description": "Directed dependency edges"
    }
  }
}`

const skillSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "skill.json",
  "title": "Skill Definition",
  "description": "Schema for registered skills",
  "type": "object",
  "required": ["name", "description"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z][a-z0-9._-]*$",
      "description": "Unique skill name"
    },
    "description": {
      "type": "string",
      "minLength": 1,
      "description": "What the skill does, used for matching"
    },
    "version": {
      "type": "string",
      "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+",
      "description": "Semantic version"
    },
    "keywords": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Matching keywords"
    },
    "scripts": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Executable scripts shipped with the skill"
    },
    "references": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Reference documents shipped with the skill"
    },
    "path": {
      "type": "string",
      "description": "Directory the skill was scanned from"
    },
    "command": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Explicit command overriding script discovery"
    },
    "metadata": {
      "type": "object",
      "description": "Additional metadata"
    }
  }
}`
