package template

import (
	"fmt"
	"regexp"

	"github.com/skillflow/orchestrator/pkg/types"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MissingVariableError is returned when a required variable has neither a
// supplied value nor a default.
type MissingVariableError struct {
	Template string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: required variable %q not supplied", e.Template, e.Variable)
}

// UnknownVariableError is returned when the template graph references a
// placeholder that is not declared in the template's variables.
type UnknownVariableError struct {
	Template string
	Variable string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("template %q: placeholder %q is not a declared variable", e.Template, e.Variable)
}

// Instantiate materializes a template into a runnable graph by substituting
// every "${name}" placeholder in node inputs and config values. The stored
// template is never mutated. Supplied values win over declared defaults;
// a required variable with neither is an error, as is a placeholder with no
// matching declaration.
func Instantiate(tpl *types.Template, vars map[string]string) (*types.Graph, error) {
	values := make(map[string]string, len(tpl.Variables))
	for _, v := range tpl.Variables {
		if supplied, ok := vars[v.Name]; ok {
			values[v.Name] = supplied
			continue
		}
		if v.Default != "" || !v.Required {
			values[v.Name] = v.Default
			continue
		}
		return nil, &MissingVariableError{Template: tpl.Name, Variable: v.Name}
	}

	var substErr error
	subst := func(s string) string {
		return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
			name := placeholderRe.FindStringSubmatch(match)[1]
			val, ok := values[name]
			if !ok {
				if substErr == nil {
					substErr = &UnknownVariableError{Template: tpl.Name, Variable: name}
				}
				return match
			}
			return val
		})
	}

	g := tpl.Graph.Clone()
	if g.ID == "" {
		g.ID = tpl.Name
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for j, input := range n.Inputs {
			// Output references stay untouched; placeholders live in literals.
			if _, isRef := types.RefNodeID(input); isRef {
				continue
			}
			n.Inputs[j] = subst(input)
		}
		for k, v := range n.Config {
			n.Config[k] = subst(v)
		}
	}
	if substErr != nil {
		return nil, substErr
	}
	return g, nil
}
