package template

import (
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
)

var registerFilters sync.Once

// Jinja2Compiler compiles transform templates with pongo2.
//
// Templates usually emit JSON, so the "tojson" filter is registered on first
// use: {{ payload|tojson }} writes the payload unescaped.
type Jinja2Compiler struct{}

// Compile parses source. TrimBlocks and LStripBlocks are enabled so control
// tags do not leave blank lines in rendered payloads. HTML autoescaping is
// turned off: output is a payload, and escaping would corrupt quotes and
// ampersands in interpolated strings.
func (c *Jinja2Compiler) Compile(name, source string) (Renderer, error) {
	registerFilters.Do(func() {
		if !pongo2.FilterExists("tojson") {
			_ = pongo2.RegisterFilter("tojson", filterToJSON)
		}
	})

	set := pongo2.NewSet(name, pongo2.DefaultLoader)
	set.Options.TrimBlocks = true
	set.Options.LStripBlocks = true

	tpl, err := set.FromString("{% autoescape off %}" + source + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{name: name, tpl: tpl}, nil
}

func filterToJSON(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsSafeValue(toJSONString(in.Interface())), nil
}

type jinja2Renderer struct {
	name string
	tpl  *pongo2.Template
}

func (r *jinja2Renderer) Render(env Env) ([]byte, error) {
	out, err := r.tpl.ExecuteBytes(pongo2.Context(env))
	if err != nil {
		return nil, fmt.Errorf("jinja2 template %q failed: %w", r.name, err)
	}
	return out, nil
}
