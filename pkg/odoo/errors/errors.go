// Package errors provides structured error types for the odoorpc client.
//
// Local usage errors are raised before any network round trip and carry a
// catalog code so callers can match them with errors.Is. Faults reported by
// the server are represented by RemoteError.
package errors

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and display.
type ErrorClass string

const (
	ClassUsage       ErrorClass = "usage"       // Wrong argument shape or arity
	ClassParse       ErrorClass = "parse"       // Search terms and literals
	ClassType        ErrorClass = "type"        // Operands from different models
	ClassValue       ErrorClass = "value"       // Unsatisfying but successful responses
	ClassLookup      ErrorClass = "lookup"      // Models and external ids
	ClassAuth        ErrorClass = "auth"        // Login and credentials
	ClassUnsupported ErrorClass = "unsupported" // Server generation too old
	ClassRemote      ErrorClass = "remote"      // Server faults
)

// Error represents a client-side error raised by odoorpc.
type Error struct {
	Class   ErrorClass     `json:"class"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hints   []string       `json:"hints,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.String()
}

// String returns the message followed by one indented line per hint.
func (e *Error) String() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}
	return sb.String()
}

// PrettyString returns a multi-line representation for the shell.
func (e *Error) PrettyString() string {
	var sb strings.Builder
	switch e.Class {
	case ClassParse:
		sb.WriteString("Parse error: ")
	case ClassUsage, ClassType:
		sb.WriteString("Usage error: ")
	default:
		sb.WriteString("Error: ")
	}
	sb.WriteString(e.Message)
	for _, hint := range e.Hints {
		sb.WriteString("\n * ")
		sb.WriteString(hint)
	}
	return sb.String()
}

// Is reports whether target is an *Error with the same code.
// This lets callers write errors.Is(err, errors.ErrTooManyMatches).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithHints returns a copy of the error with extra hints appended.
func (e *Error) WithHints(hints ...string) *Error {
	cp := *e
	cp.Hints = append(append([]string(nil), e.Hints...), hints...)
	return &cp
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass
	Template string
	Hints    []string
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// Search terms and literals
	"DOMAIN-0001": {Class: ClassParse, Template: "cannot parse term {{printf \"%q\" .Term}}"},
	"DOMAIN-0002": {
		Class:    ClassParse,
		Template: "invalid operator {{printf \"%q\" .Operator}} in term {{printf \"%q\" .Term}}",
		Hints:    []string{"use = for equality and != for inequality"},
	},
	"LIT-0001": {Class: ClassParse, Template: "malformed or disallowed expression: {{.Literal}}"},
	"LIT-0002": {Class: ClassParse, Template: "unsupported octal notation: {{.Literal}}", Hints: []string{"write 0o{{.Digits}} for an octal integer"}},
	"LIT-0003": {Class: ClassParse, Template: "overflow, {{.Literal}} exceeds the 32-bit RPC integer range"},
	"LIT-0004": {Class: ClassParse, Template: "unterminated string: {{.Literal}}"},
	"LIT-0005": {Class: ClassParse, Template: "unexpected {{printf \"%q\" .Token}} in {{.Literal}}"},

	// Argument shape
	"USAGE-0001": {Class: ClassUsage, Template: "missing parameter for {{.Method}}"},
	"USAGE-0002": {Class: ClassUsage, Template: "{{.Method}} got an unexpected keyword argument {{printf \"%q\" .Key}}"},
	"USAGE-0003": {Class: ClassUsage, Template: "not connected"},
	"USAGE-0004": {Class: ClassUsage, Template: "invalid ids for {{.Method}}: {{.Value}}"},
	"USAGE-0005": {Class: ClassUsage, Template: "method {{.Method}} cannot be called remotely"},
	"USAGE-0006": {Class: ClassUsage, Template: "invalid fields specification: {{.Value}}"},

	// Fields and attributes
	"FIELD-0001": {Class: ClassUsage, Template: "{{.Model}} has no field {{printf \"%q\" .Field}}"},
	"FIELD-0002": {
		Class:    ClassUsage,
		Template: "field {{printf \"%q\" .Field}} is read-only on a record list",
		Hints:    []string{"use Write to assign a value to every record"},
	},
	"FIELD-0003": {Class: ClassUsage, Template: "field \"id\" is read-only"},

	// Operands
	"TYPE-0001": {Class: ClassType, Template: "mixing apples and oranges: {{.Left}} {{.Op}} {{.Right}}"},

	// Results
	"VALUE-0001": {Class: ClassValue, Template: "domain matches too many records ({{.Count}})"},
	"VALUE-0002": {Class: ClassValue, Template: "expected singleton: {{.Records}}"},
	"VALUE-0003": {Class: ClassValue, Template: "external id {{printf \"%q\" .XMLID}} collides with another entry"},

	// Models and external ids
	"LOOKUP-0001": {Class: ClassLookup, Template: "model not found: {{.Name}}"},
	"LOOKUP-0002": {Class: ClassLookup, Template: "model mismatch: {{.Got}} is not {{.Want}}"},
	"LOOKUP-0003": {Class: ClassLookup, Template: "invalid external id {{printf \"%q\" .XMLID}}", Hints: []string{"an external id is written module.name"}},
	"LOOKUP-0004": {Class: ClassLookup, Template: "unknown environment {{printf \"%q\" .Name}}"},

	// Authentication
	"AUTH-0001": {Class: ClassAuth, Template: "invalid username or password"},
	"AUTH-0002": {Class: ClassAuth, Template: "database {{printf \"%q\" .Database}} does not exist"},
	"AUTH-0003": {Class: ClassAuth, Template: "no password available for {{.User}}"},

	// Server generations
	"UNSUP-0001": {Class: ClassUnsupported, Template: "{{.Feature}} requires server version {{.Min}} or later (connected to {{.Version}})"},
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrBadTerm            = &Error{Code: "DOMAIN-0001"}
	ErrBadOperator        = &Error{Code: "DOMAIN-0002"}
	ErrMalformedLiteral   = &Error{Code: "LIT-0001"}
	ErrOctalLiteral       = &Error{Code: "LIT-0002"}
	ErrIntOverflow        = &Error{Code: "LIT-0003"}
	ErrMissingParameter   = &Error{Code: "USAGE-0001"}
	ErrUnexpectedKeyword  = &Error{Code: "USAGE-0002"}
	ErrNotConnected       = &Error{Code: "USAGE-0003"}
	ErrInvalidIDs         = &Error{Code: "USAGE-0004"}
	ErrReservedMethod     = &Error{Code: "USAGE-0005"}
	ErrInvalidFields      = &Error{Code: "USAGE-0006"}
	ErrUnknownField       = &Error{Code: "FIELD-0001"}
	ErrReadOnly           = &Error{Code: "FIELD-0002"}
	ErrReadOnlyID         = &Error{Code: "FIELD-0003"}
	ErrMixedModels        = &Error{Code: "TYPE-0001"}
	ErrTooManyMatches     = &Error{Code: "VALUE-0001"}
	ErrNotSingleton       = &Error{Code: "VALUE-0002"}
	ErrExternalIDConflict = &Error{Code: "VALUE-0003"}
	ErrModelNotFound      = &Error{Code: "LOOKUP-0001"}
	ErrModelMismatch      = &Error{Code: "LOOKUP-0002"}
	ErrInvalidExternalID  = &Error{Code: "LOOKUP-0003"}
	ErrUnknownEnvironment = &Error{Code: "LOOKUP-0004"}
	ErrInvalidCredentials = &Error{Code: "AUTH-0001"}
	ErrDatabaseNotFound   = &Error{Code: "AUTH-0002"}
	ErrNoPassword         = &Error{Code: "AUTH-0003"}
	ErrUnsupported        = &Error{Code: "UNSUP-0001"}
)

// New creates an error from the catalog, rendering its templates with data.
func New(code string, data map[string]any) *Error {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &Error{Class: ClassUsage, Code: code, Message: msg, Data: data}
	}

	var hints []string
	for _, hintTmpl := range def.Hints {
		if rendered := renderTemplate(hintTmpl, data); rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &Error{
		Class:   def.Class,
		Code:    code,
		Message: renderTemplate(def.Template, data),
		Hints:   hints,
		Data:    data,
	}
}

// Newf creates a catalog error from alternating key/value pairs.
func Newf(code string, kv ...any) *Error {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		data[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return New(code, data)
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// threshold is the largest edit distance worth suggesting for input.
func threshold(input string) int {
	switch {
	case len(input) >= 7:
		return 3
	case len(input) >= 4:
		return 2
	}
	return 1
}

// FindClosestMatch returns the candidate closest to input, or "" when none
// is within a length-dependent edit distance.
func FindClosestMatch(input string, candidates []string) string {
	if matches := FindTopMatches(input, candidates, 1); len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// FindTopMatches returns up to n candidates ordered by edit distance.
// Exact matches are excluded.
func FindTopMatches(input string, candidates []string, n int) []string {
	if len(input) == 0 || len(candidates) == 0 || n <= 0 {
		return nil
	}

	type fuzzyMatch struct {
		value    string
		distance int
	}

	inputLower := strings.ToLower(input)
	var matches []fuzzyMatch
	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if dist > 0 {
			matches = append(matches, fuzzyMatch{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	limit := threshold(input)
	var result []string
	for i := 0; i < len(matches) && len(result) < n; i++ {
		if matches[i].distance <= limit {
			result = append(result, matches[i].value)
		}
	}
	return result
}

// NewUnknownField creates an unknown field error with a "did you mean" hint.
func NewUnknownField(model, field string, known []string) *Error {
	err := Newf("FIELD-0001", "Model", model, "Field", field)
	if suggestion := FindClosestMatch(field, known); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `"+suggestion+"`?")
	}
	return err
}

// NewModelNotFound creates a model lookup error listing the models that
// matched the pattern on the server.
func NewModelNotFound(name string, candidates []string) *Error {
	err := Newf("LOOKUP-0001", "Name", name)
	if len(candidates) == 0 {
		return err
	}
	err.Message = "model not found: " + name + ", these models exist:"
	err.Hints = append(err.Hints, candidates...)
	return err
}
