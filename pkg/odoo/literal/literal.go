// Package literal evaluates the small expression language used for values
// in free-text search terms: numbers, quoted strings, booleans, None,
// tuples, lists and dicts.
//
// Anything else is rejected, so callers can fall back to treating the raw
// text as a string.
package literal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	perrors "github.com/sambeau/odoorpc/pkg/odoo/errors"
)

// Tuple is a parenthesized sequence. It is sent over the wire as an array.
type Tuple []any

// Elements returns the tuple items.
func (t Tuple) Elements() []any { return []any(t) }

// MinInt and MaxInt bound the integers accepted at the top level of an
// expression. They match the 32-bit limits of XML-RPC.
const (
	MinInt = math.MinInt32
	MaxInt = math.MaxInt32
)

// Eval parses expr and returns its value. The result is one of nil, bool,
// int, float64, string, Tuple, []any or map[string]any.
//
// A decimal integer written with a leading zero is rejected so that codes
// like 042 are never silently converted. A top-level integer outside the
// 32-bit range is rejected too.
func Eval(expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if len(expr) > 1 && expr[0] == '0' && expr[1] >= '0' && expr[1] <= '7' {
		return nil, perrors.Newf("LIT-0002", "Literal", expr, "Digits", strings.TrimLeft(expr, "0"))
	}

	p := newParser(expr)
	value, err := p.parseTopLevel()
	if err != nil {
		return nil, err
	}

	if n, ok := value.(int); ok && (n < MinInt || n > MaxInt) {
		return nil, perrors.Newf("LIT-0003", "Literal", expr)
	}
	return value, nil
}

// MustEval is like Eval but panics on error. It simplifies tests and
// static tables.
func MustEval(expr string) any {
	v, err := Eval(expr)
	if err != nil {
		panic(err)
	}
	return v
}

type parser struct {
	l     *Lexer
	input string

	curToken  Token
	peekToken Token
}

func newParser(input string) *parser {
	p := &parser{l: NewLexer(input), input: input}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *parser) errorf(tok Token) error {
	switch {
	case tok.Type == ILLEGAL && tok.Literal != "" && (tok.Literal[0] == '"' || tok.Literal[0] == '\''):
		return perrors.Newf("LIT-0004", "Literal", p.input)
	case tok.Type == EOF:
		return perrors.Newf("LIT-0001", "Literal", p.input)
	}
	return perrors.Newf("LIT-0005", "Token", tok.Literal, "Literal", p.input)
}

// parseTopLevel accepts a bare comma-separated sequence as a tuple.
func (p *parser) parseTopLevel() (any, error) {
	if p.curToken.Type == EOF {
		return nil, p.errorf(p.curToken)
	}
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.nextToken()
	if p.curToken.Type == EOF {
		return first, nil
	}
	if p.curToken.Type != COMMA {
		return nil, p.errorf(p.curToken)
	}

	items := Tuple{first}
	for p.curToken.Type == COMMA {
		p.nextToken()
		if p.curToken.Type == EOF {
			break
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.nextToken()
	}
	if p.curToken.Type != EOF {
		return nil, p.errorf(p.curToken)
	}
	return items, nil
}

// parseValue parses the value starting at curToken. On return curToken is
// the last token of the value.
func (p *parser) parseValue() (any, error) {
	switch p.curToken.Type {
	case INT, FLOAT:
		return p.parseNumber(p.curToken.Literal, false)
	case PLUS, MINUS:
		negative := p.curToken.Type == MINUS
		p.nextToken()
		if p.curToken.Type != INT && p.curToken.Type != FLOAT {
			return nil, p.errorf(p.curToken)
		}
		return p.parseNumber(p.curToken.Literal, negative)
	case STRING:
		s := p.curToken.Literal
		// Adjacent strings are concatenated.
		for p.peekToken.Type == STRING {
			p.nextToken()
			s += p.curToken.Literal
		}
		return s, nil
	case IDENT:
		switch p.curToken.Literal {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
	case LPAREN:
		return p.parseTuple()
	case LBRACKET:
		items, err := p.parseSequence(RBRACKET)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []any{}
		}
		return items, nil
	case LBRACE:
		return p.parseDict()
	}
	return nil, p.errorf(p.curToken)
}

func (p *parser) parseNumber(lit string, negative bool) (any, error) {
	if p.curToken.Type == FLOAT {
		f, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64)
		if err != nil {
			return nil, perrors.Newf("LIT-0001", "Literal", p.input)
		}
		if negative {
			f = -f
		}
		return f, nil
	}

	if negative {
		lit = "-" + lit
	}
	n, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return nil, perrors.Newf("LIT-0003", "Literal", p.input)
		}
		return nil, perrors.Newf("LIT-0001", "Literal", p.input)
	}
	if n < math.MinInt || n > math.MaxInt {
		return nil, perrors.Newf("LIT-0003", "Literal", p.input)
	}
	return int(n), nil
}

// parseTuple handles (), (x) and (x, ...). A parenthesized single value
// without a trailing comma is the value itself.
func (p *parser) parseTuple() (any, error) {
	if p.peekToken.Type == RPAREN {
		p.nextToken()
		return Tuple{}, nil
	}
	p.nextToken()
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.nextToken()
	if p.curToken.Type == RPAREN {
		return first, nil
	}
	if p.curToken.Type != COMMA {
		return nil, p.errorf(p.curToken)
	}
	rest, err := p.parseSequence(RPAREN)
	if err != nil {
		return nil, err
	}
	return append(Tuple{first}, rest...), nil
}

// parseSequence parses comma-separated values until end. curToken is the
// opening delimiter (or a comma) on entry and end on return.
func (p *parser) parseSequence(end TokenType) ([]any, error) {
	var items []any
	for {
		p.nextToken()
		if p.curToken.Type == end {
			return items, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.nextToken()
		switch p.curToken.Type {
		case end:
			return items, nil
		case COMMA:
		default:
			return nil, p.errorf(p.curToken)
		}
	}
}

func (p *parser) parseDict() (map[string]any, error) {
	dict := map[string]any{}
	for {
		p.nextToken()
		if p.curToken.Type == RBRACE {
			return dict, nil
		}
		key, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case []any, map[string]any, Tuple:
			// unhashable
			return nil, p.errorf(p.curToken)
		}
		p.nextToken()
		if p.curToken.Type != COLON {
			return nil, p.errorf(p.curToken)
		}
		p.nextToken()
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		dict[fmt.Sprint(key)] = value

		p.nextToken()
		switch p.curToken.Type {
		case RBRACE:
			return dict, nil
		case COMMA:
		default:
			return nil, p.errorf(p.curToken)
		}
	}
}
