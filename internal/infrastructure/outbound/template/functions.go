package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
)

// Env is the variable set visible to expressions and templates.
//
// Every flag is exposed as a top-level boolean and under flags. The payload
// being transformed is exposed as payload. Helpers shadow flags of the same name.
type Env map[string]any

func newEnv(payload any, flags endpoint.FlagState, now time.Time) Env {
	flagMap := make(map[string]any, len(flags))
	env := make(Env, len(flags)+12)
	for name, v := range flags {
		env[name] = v
		flagMap[name] = v
	}

	env["payload"] = payload
	env["flags"] = flagMap
	env["flag"] = func(name string) bool { return flags[name] }
	env["now"] = func() string { return now.UTC().Format(time.RFC3339) }
	env["nowFormat"] = func(layout string) string { return now.UTC().Format(layout) }
	env["uuid"] = uuid.NewString
	env["randomInt"] = func(min, max int) int {
		if min >= max {
			return min
		}
		return min + rand.IntN(max-min+1)
	}
	env["seq"] = seqInts
	env["toJSON"] = toJSONString
	env["jsonPath"] = func(expression string) any { return extractJSONPath(payload, expression) }
	return env
}

func seqInts(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func toJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// extractJSONPath evaluates a JSONPath expression against a decoded payload.
// Failures yield nil.
func extractJSONPath(payload any, expression string) any {
	result, err := jsonpath.Get(expression, payload)
	if err != nil {
		return nil
	}
	return result
}
