package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/user/crmassist/internal/llmtypes"
)

// Args are the bound arguments of one call
type Args map[string]any

// String returns a string argument or ""
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer argument or 0
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// Float returns a number argument or 0
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Bool returns a boolean argument or false
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Strings returns an array argument as strings
func (a Args) Strings(name string) []string {
	list, _ := a[name].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// Has reports whether the argument was supplied or defaulted
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// bindArgs keeps only the declared parameters, applies defaults and checks
// presence, type and enum membership. Undeclared keys are returned for logging.
func bindArgs(tool Tool, raw map[string]any) (Args, []string, error) {
	args := make(Args, len(tool.Parameters))

	for _, p := range tool.Parameters {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Default != nil {
				args[p.Name] = p.Default
				continue
			}
			if p.Required {
				return nil, nil, argError(tool.Name, p.Name, "required argument is missing")
			}
			continue
		}

		coerced, err := coerce(p, v)
		if err != nil {
			return nil, nil, argError(tool.Name, p.Name, err.Error())
		}
		if len(p.Enum) > 0 {
			s, _ := coerced.(string)
			if !slices.Contains(p.Enum, s) {
				return nil, nil, argError(tool.Name, p.Name, fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")))
			}
		}
		args[p.Name] = coerced
	}

	var dropped []string
	for k := range raw {
		if !declared(tool, k) {
			dropped = append(dropped, k)
		}
	}
	slices.Sort(dropped)
	return args, dropped, nil
}

func declared(tool Tool, name string) bool {
	for _, p := range tool.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// coerce converts a JSON-decoded value to the declared type. Models often
// send numbers as strings and ids as numbers, so those are accepted.
func coerce(p llmtypes.Parameter, v any) (any, error) {
	switch p.Type {
	case llmtypes.TypeString, "":
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case json.Number:
			return x.String(), nil
		}
	case llmtypes.TypeInteger:
		switch x := v.(type) {
		case int:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int(x), nil
			}
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return int(n), nil
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				return n, nil
			}
		}
	case llmtypes.TypeNumber:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f, nil
			}
		}
	case llmtypes.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b, nil
			}
		}
	case llmtypes.TypeArray:
		switch x := v.(type) {
		case []any:
			return x, nil
		case []string:
			out := make([]any, len(x))
			for i, s := range x {
				out[i] = s
			}
			return out, nil
		}
	case llmtypes.TypeObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", p.Type, v)
}
