package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/plugmock/internal/domain/definition"
	"github.com/sophialabs/plugmock/internal/domain/endpoint"
)

// DefaultEngine is used for transform templates that do not name one.
const DefaultEngine = "jinja2"

var errNotContainer = errors.New("path does not address a map or list")

type compiledRule struct {
	when     *vm.Program
	paths    []string
	values   []*vm.Program
	template Renderer
}

// CompileTransform compiles declarative rules into an endpoint transform.
//
// Rules run in order against the payload. A rule whose condition is false is
// skipped; a rule that fails to evaluate leaves the payload as it was before
// that rule.
func (r *Registry) CompileTransform(name string, rules []definition.TransformRule) (endpoint.Transform, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		cr, err := r.compileRule(fmt.Sprintf("%s#%d", name, i), rule)
		if err != nil {
			return nil, fmt.Errorf("transform rule %d: %w", i, err)
		}
		compiled = append(compiled, cr)
	}

	return func(payload any, flags endpoint.FlagState) any {
		for _, rule := range compiled {
			payload = r.applyRule(rule, payload, flags)
		}
		return payload
	}, nil
}

func (r *Registry) compileRule(name string, rule definition.TransformRule) (compiledRule, error) {
	var cr compiledRule

	hasSet, hasTemplate := len(rule.Set) > 0, rule.Template != ""
	switch {
	case hasSet && hasTemplate:
		return cr, fmt.Errorf("set and template are mutually exclusive")
	case !hasSet && !hasTemplate:
		return cr, fmt.Errorf("either set or template is required")
	}

	if strings.TrimSpace(rule.When) != "" {
		program, err := compileExpression(rule.When)
		if err != nil {
			return cr, fmt.Errorf("failed to compile condition %q: %w", rule.When, err)
		}
		cr.when = program
	}

	if hasTemplate {
		engine := rule.Engine
		if engine == "" {
			engine = r.defaultEngine
		}
		renderer, err := r.Compile(engine, name, rule.Template)
		if err != nil {
			return cr, err
		}
		cr.template = renderer
		return cr, nil
	}

	cr.paths = make([]string, 0, len(rule.Set))
	for path := range rule.Set {
		cr.paths = append(cr.paths, path)
	}
	sort.Strings(cr.paths)
	for _, path := range cr.paths {
		program, err := compileExpression(rule.Set[path])
		if err != nil {
			return cr, fmt.Errorf("failed to compile value for %q: %w", path, err)
		}
		cr.values = append(cr.values, program)
	}
	return cr, nil
}

func (r *Registry) applyRule(rule compiledRule, payload any, flags endpoint.FlagState) any {
	env := newEnv(payload, flags, r.now())

	if rule.when != nil {
		ok, err := expr.Run(rule.when, map[string]any(env))
		if err != nil {
			return payload
		}
		if b, _ := ok.(bool); !b {
			return payload
		}
	}

	if rule.template != nil {
		out, err := rule.template.Render(env)
		if err != nil {
			return payload
		}
		return decodeOutput(out)
	}

	// Evaluate every value before assigning so a failure changes nothing.
	values := make([]any, len(rule.values))
	for i, program := range rule.values {
		v, err := expr.Run(program, map[string]any(env))
		if err != nil {
			return payload
		}
		values[i] = v
	}

	next := endpoint.Clone(payload)
	for i, path := range rule.paths {
		var err error
		next, err = setPath(next, path, values[i])
		if err != nil {
			return payload
		}
	}
	return next
}

func (r *Registry) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock.Now()
}

// decodeOutput parses rendered output as JSON, falling back to the raw string.
func decodeOutput(out []byte) any {
	var v any
	if err := json.Unmarshal(out, &v); err == nil {
		return v
	}
	return string(out)
}

// setPath assigns value at a dotted path. "$" or "" replaces the root.
// Numeric segments index into lists.
func setPath(root any, path string, value any) (any, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return value, nil
	}
	segments := strings.Split(path, ".")
	if err := assign(root, segments, value); err != nil {
		return root, fmt.Errorf("set %q: %w", path, err)
	}
	return root, nil
}

func assign(node any, segments []string, value any) error {
	seg, last := segments[0], len(segments) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			n[seg] = value
			return nil
		}
		child, ok := n[seg]
		if !ok || child == nil {
			child = map[string]any{}
			n[seg] = child
		}
		return assign(child, segments[1:], value)
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return fmt.Errorf("index %q out of range", seg)
		}
		if last {
			n[idx] = value
			return nil
		}
		return assign(n[idx], segments[1:], value)
	default:
		return errNotContainer
	}
}
