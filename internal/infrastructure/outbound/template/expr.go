package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprCompiler compiles templates in which ${ } holds an expr expression.
// Structured results are written as JSON so a template can assemble a payload.
// An expression placed inside a double-quoted string of the template is
// escaped as JSON string content, so "${payload.name}" stays a valid string
// whatever the name contains. Elsewhere strings are written verbatim; use
// toJSON to emit a quoted string there.
type ExprCompiler struct{}

// Compile splits source into literal text and compiled expressions. A source
// without expressions renders as itself.
func (c *ExprCompiler) Compile(name, source string) (Renderer, error) {
	parts, err := splitInterpolations(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template %q: %w", name, err)
	}
	if len(parts) == 1 && parts[0].program == nil {
		return staticRenderer(source), nil
	}
	if len(parts) == 0 {
		return staticRenderer(""), nil
	}
	return exprRenderer(parts), nil
}

// compileExpression compiles a standalone expression. Flags are dynamic, so
// unknown identifiers evaluate to nil instead of failing compilation. The
// builtin now() is replaced by the clock-backed helper.
func compileExpression(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.AllowUndefinedVariables(), expr.DisableBuiltin("now"))
}

// interpolation is either literal text or a compiled expression. quoted marks
// an expression that sits inside a double-quoted string of the literal text.
type interpolation struct {
	text    string
	program *vm.Program
	quoted  bool
}

func splitInterpolations(source string) ([]interpolation, error) {
	var parts []interpolation
	inString := false
	for pos := 0; pos < len(source); {
		open := strings.Index(source[pos:], "${")
		if open < 0 {
			parts = append(parts, interpolation{text: source[pos:]})
			break
		}
		if open > 0 {
			text := source[pos : pos+open]
			parts = append(parts, interpolation{text: text})
			inString = scanQuotes(text, inString)
		}

		start := pos + open + 2
		end := exprEnd(source[start:])
		if end < 0 {
			return nil, fmt.Errorf("unclosed ${ at offset %d", pos+open)
		}

		code := source[start : start+end]
		program, err := compileExpression(code)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", code, err)
		}
		parts = append(parts, interpolation{program: program, quoted: inString})
		pos = start + end + 1
	}
	return parts, nil
}

// scanQuotes reports whether text, entered with the given state, leaves a
// double-quoted string open. Backslash-escaped quotes do not count.
func scanQuotes(text string, inString bool) bool {
	for i := 0; i < len(text); i++ {
		switch {
		case inString && text[i] == '\\':
			i++
		case text[i] == '"':
			inString = !inString
		}
	}
	return inString
}

// exprEnd returns the index of the brace closing an expression, skipping
// braces nested in map literals and quoted strings. It returns -1 when the
// expression is not closed.
func exprEnd(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0 && ch == '\\':
			i++
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '{':
			depth++
		case ch == '}' && depth == 0:
			return i
		case ch == '}':
			depth--
		}
	}
	return -1
}

type exprRenderer []interpolation

func (r exprRenderer) Render(env Env) ([]byte, error) {
	var buf strings.Builder
	for _, part := range r {
		if part.program == nil {
			buf.WriteString(part.text)
			continue
		}
		v, err := expr.Run(part.program, map[string]any(env))
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed: %w", err)
		}
		writeValue(&buf, v, part.quoted)
	}
	return []byte(buf.String()), nil
}

// writeValue writes strings verbatim and everything else as JSON, so numbers,
// booleans and nulls stay valid inside a JSON document. Inside a quoted string
// the text is escaped instead.
func writeValue(buf *strings.Builder, v any, quoted bool) {
	s, ok := v.(string)
	if !ok {
		s = toJSONString(v)
	}
	if quoted {
		s = escapeJSONString(s)
	}
	buf.WriteString(s)
}

// escapeJSONString returns s encoded as the body of a JSON string literal.
func escapeJSONString(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return s
	}
	out := bytes.TrimSuffix(b.Bytes(), []byte("\n"))
	return string(out[1 : len(out)-1])
}

// staticRenderer returns a fixed output.
type staticRenderer string

func (r staticRenderer) Render(Env) ([]byte, error) {
	return []byte(r), nil
}
