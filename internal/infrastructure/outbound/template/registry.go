package template

import (
	"fmt"

	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
)

// Renderer produces output from an evaluation environment.
type Renderer interface {
	Render(env Env) ([]byte, error)
}

// EngineCompiler compiles a template source string into a Renderer.
type EngineCompiler interface {
	Compile(name, source string) (Renderer, error)
}

// Registry maps engine names to their compilers and compiles transforms.
type Registry struct {
	engines       map[string]EngineCompiler
	clock         ports.Clock
	defaultEngine string
}

// NewRegistry creates a registry with the built-in engines (expr, jinja2).
// The clock backs the now() helpers.
func NewRegistry(clock ports.Clock) *Registry {
	return &Registry{
		engines: map[string]EngineCompiler{
			"expr":   &ExprCompiler{},
			"jinja2": &Jinja2Compiler{},
		},
		clock:         clock,
		defaultEngine: DefaultEngine,
	}
}

// SetDefaultEngine sets the engine used by templates that do not name one.
func (r *Registry) SetDefaultEngine(engine string) error {
	if _, ok := r.engines[engine]; !ok {
		return fmt.Errorf("unknown template engine: %q (supported: expr, jinja2)", engine)
	}
	r.defaultEngine = engine
	return nil
}

// Compile resolves the engine by name and compiles the source.
func (r *Registry) Compile(engine, name, source string) (Renderer, error) {
	ec, ok := r.engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown template engine: %q (supported: expr, jinja2)", engine)
	}
	return ec.Compile(name, source)
}
