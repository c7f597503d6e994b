package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
	"github.com/sambeau/odoorpc/pkg/odoo/literal"
)

// Word operators, longest first so that "not like" wins over "not".
var wordOperators = []string{
	"not =ilike", "not =like", "not ilike", "not like", "not any", "not in",
	"child_of", "parent_of", "ilike", "like", "any", "in",
}

// Symbol operators, longest first.
var symbolOperators = []string{
	"=ilike", "=like", "=?", "!=", "<=", ">=", "=", "<", ">",
}

// ParseTerm parses one free-text term of the form <field> <operator> <value>.
//
// The field is made of word characters, dots and underscores. Word
// operators must stand alone; symbol operators may touch the field and the
// value. The value is evaluated as a literal when possible and kept as text
// otherwise.
func ParseTerm(s string) (Term, error) {
	text := strings.TrimSpace(s)
	bad := func() (Term, error) {
		return Term{}, perrors.Newf("DOMAIN-0001", "Term", s)
	}

	i := 0
	for i < len(text) && isFieldChar(text[i:]) {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if i == 0 {
		return bad()
	}
	field := text[:i]
	rest := strings.TrimLeft(text[i:], " \t")
	spaced := len(rest) < len(text[i:])

	operator := ""
	for _, op := range symbolOperators {
		if strings.HasPrefix(rest, op) {
			operator = op
			break
		}
	}
	if operator != "" {
		next := rest[len(operator):]
		if next != "" && strings.ContainsRune("=<>!?", rune(next[0])) {
			return Term{}, perrors.Newf("DOMAIN-0002", "Operator", operator+next[:1], "Term", s)
		}
	} else if spaced {
		for _, op := range wordOperators {
			if strings.HasPrefix(rest, op) && (len(rest) == len(op) || !isFieldChar(rest[len(op):])) {
				operator = op
				break
			}
		}
	}
	if operator == "" {
		if strings.HasPrefix(rest, "?=") {
			return Term{}, perrors.Newf("DOMAIN-0002", "Operator", "?=", "Term", s)
		}
		return bad()
	}

	raw := strings.TrimSpace(rest[len(operator):])
	var value any = raw
	if v, err := literal.Eval(raw); raw != "" && err == nil {
		value = v
	}
	return Term{Field: field, Operator: operator, Value: value}, nil
}

// MustParseTerm is like ParseTerm but panics on error.
func MustParseTerm(s string) Term {
	t, err := ParseTerm(s)
	if err != nil {
		panic(err)
	}
	return t
}

func isFieldChar(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
