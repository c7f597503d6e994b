// Package domain compiles search domains written in the shorthand text
// syntax ("name like Morice") into the structured form understood by the
// server.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Logical prefix operators.
const (
	Not = "!"
	Or  = "|"
	And = "&"
)

// Term is a structured (field, operator, value) condition.
type Term struct {
	Field    string
	Operator string
	Value    any
}

// T is shorthand for building a Term.
func T(field, operator string, value any) Term {
	return Term{Field: field, Operator: operator, Value: value}
}

// Elements returns the term as a 3-element sequence.
func (t Term) Elements() []any {
	return []any{t.Field, t.Operator, t.Value}
}

// MarshalJSON encodes the term as a 3-element array.
func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Elements())
}

func (t Term) String() string {
	return fmt.Sprintf("(%q, %q, %#v)", t.Field, t.Operator, t.Value)
}

// IsOperator reports whether s is one of the logical prefix operators.
func IsOperator(s string) bool {
	return s == Not || s == Or || s == And
}

// IsSearchDomain reports whether v looks like a search domain rather than
// a list of ids: it is a list whose first element is neither an integer
// nor a string of digits. The empty list is a domain.
func IsSearchDomain(v any) bool {
	var first any
	switch d := v.(type) {
	case []any:
		if len(d) == 0 {
			return true
		}
		first = d[0]
	case []string:
		if len(d) == 0 {
			return true
		}
		first = d[0]
	case []Term:
		return true
	default:
		return false
	}

	switch f := first.(type) {
	case int, int32, int64:
		return false
	case string:
		return !isDigits(f)
	}
	return true
}

// Compile parses every free-text term of d and returns a new domain. Tuples,
// Terms and logical operators are kept as they are.
func Compile(d []any) ([]any, error) {
	out := make([]any, len(d))
	for i, item := range d {
		s, ok := item.(string)
		if !ok || IsOperator(s) {
			out[i] = item
			continue
		}
		term, err := ParseTerm(s)
		if err != nil {
			return nil, err
		}
		out[i] = term
	}
	return out, nil
}

// Strings converts a list of text terms to a domain.
func Strings(terms ...string) []any {
	d := make([]any, len(terms))
	for i, t := range terms {
		d[i] = t
	}
	return d
}

// SearchArgs normalizes the positional parameters of a search call. When
// the first parameter is a domain its text terms are compiled. When kw
// holds offset, limit or order and only the domain was given positionally,
// they are moved from kw to the positional parameters (in that order) if
// any of them is set.
func SearchArgs(params []any, kw map[string]any) ([]any, error) {
	if len(params) == 0 {
		return []any{[]any{}}, nil
	}

	var d []any
	switch v := params[0].(type) {
	case []any:
		d = v
	case []string:
		d = Strings(v...)
	case []Term:
		d = make([]any, len(v))
		for i, t := range v {
			d[i] = t
		}
	default:
		return params, nil
	}

	compiled, err := Compile(d)
	if err != nil {
		return nil, err
	}
	out := append([]any{compiled}, params[1:]...)

	if len(kw) > 0 && len(out) == 1 {
		offset, limit, order := kw["offset"], kw["limit"], kw["order"]
		delete(kw, "offset")
		delete(kw, "limit")
		delete(kw, "order")
		if offset == nil {
			offset = 0
		}
		if truthy(offset) || truthy(limit) || truthy(order) {
			out = append(out, offset, limit, order)
		}
	}
	return out, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	return strings.Trim(s, "0123456789") == ""
}
