package literal

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents different types of tokens
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT  // True, False, None
	INT    // 42, 0o42, 0x2a, 1_000
	FLOAT  // 4.2, .5, 1e6
	STRING // "spam", 'ham'

	PLUS     // +
	MINUS    // -
	COMMA    // ,
	COLON    // :
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }
)

var tokenNames = map[TokenType]string{
	ILLEGAL: "ILLEGAL", EOF: "EOF", IDENT: "IDENT", INT: "INT", FLOAT: "FLOAT",
	STRING: "STRING", PLUS: "+", MINUS: "-", COMMA: ",", COLON: ":",
	LPAREN: "(", RPAREN: ")", LBRACKET: "[", RBRACKET: "]", LBRACE: "{", RBRACE: "}",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "TokenType(" + strconv.Itoa(int(t)) + ")"
}

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// Lexer scans a single literal expression.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
}

// NewLexer creates a new lexer for input
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		return
	}
	l.ch = l.input[l.readPosition]
	l.position = l.readPosition
	l.readPosition++
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken scans the input and returns the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	pos := l.position

	single := map[byte]TokenType{
		'+': PLUS, '-': MINUS, ',': COMMA, ':': COLON,
		'(': LPAREN, ')': RPAREN, '[': LBRACKET, ']': RBRACKET, '{': LBRACE, '}': RBRACE,
	}
	if typ, ok := single[l.ch]; ok {
		tok := Token{Type: typ, Literal: string(l.ch), Pos: pos}
		l.readChar()
		return tok
	}

	switch {
	case l.ch == 0:
		return Token{Type: EOF, Pos: pos}
	case l.ch == '"' || l.ch == '\'':
		s, ok := l.readString(l.ch)
		if !ok {
			return Token{Type: ILLEGAL, Literal: l.input[pos:l.position], Pos: pos}
		}
		return Token{Type: STRING, Literal: s, Pos: pos}
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber()
	case isLetter(l.ch):
		start := l.position
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: IDENT, Literal: l.input[start:l.position], Pos: pos}
	}

	tok := Token{Type: ILLEGAL, Literal: string(l.ch), Pos: pos}
	l.readChar()
	return tok
}

// readNumber reads an integer or float literal. Prefixed integers (0x, 0o,
// 0b) and digit separators are accepted; a decimal integer with a leading
// zero is not.
func (l *Lexer) readNumber() Token {
	start := l.position

	if l.ch == '0' && strings.ContainsRune("xXoObB", rune(l.peekChar())) {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		return Token{Type: INT, Literal: l.input[start:l.position], Pos: start}
	}

	typ := INT
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' {
		typ = FLOAT
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		typ = FLOAT
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	lit := l.input[start:l.position]
	if isLetter(l.ch) {
		// 12abc, 1j
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: ILLEGAL, Literal: l.input[start:l.position], Pos: start}
	}
	if typ == INT && len(lit) > 1 && lit[0] == '0' && strings.Trim(lit, "0_") != "" {
		return Token{Type: ILLEGAL, Literal: lit, Pos: start}
	}
	return Token{Type: typ, Literal: lit, Pos: start}
}

// readString reads a quoted string, processing backslash escapes.
// Returns false when the closing quote is missing.
func (l *Lexer) readString(quote byte) (string, bool) {
	var result []byte
	l.readChar() // skip opening quote

	for l.ch != quote && l.ch != 0 && l.ch != '\n' {
		if l.ch != '\\' {
			result = append(result, l.ch)
			l.readChar()
			continue
		}
		l.readChar() // consume backslash
		switch l.ch {
		case 'n':
			result = append(result, '\n')
		case 't':
			result = append(result, '\t')
		case 'r':
			result = append(result, '\r')
		case '0':
			result = append(result, 0)
		case '\\', '\'', '"':
			result = append(result, l.ch)
		case 'x', 'u', 'U':
			size := map[byte]int{'x': 2, 'u': 4, 'U': 8}[l.ch]
			end := l.readPosition + size
			if end > len(l.input) {
				return "", false
			}
			code, err := strconv.ParseUint(l.input[l.readPosition:end], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return "", false
			}
			result = utf8.AppendRune(result, rune(code))
			for i := 0; i < size; i++ {
				l.readChar()
			}
		case 0:
			return "", false
		default:
			// Unknown escape, keep as-is
			result = append(result, '\\', l.ch)
		}
		l.readChar()
	}

	if l.ch != quote {
		return "", false
	}
	l.readChar() // skip closing quote
	return string(result), true
}

func isLetter(ch byte) bool {
	return ch == '_' || ch >= utf8.RuneSelf || unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
