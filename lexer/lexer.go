package lexer

import (
	"fmt"
	"strings"
)

// Lexer scans one expression substring into tokens.
type Lexer struct {
	src  string
	pos  int
	line int
	// last emitted non-whitespace kind, used to decide whether a minus
	// sign starts a number literal or is a binary operator
	prev    Kind
	hasPrev bool
}

// New creates a Lexer for an expression that starts on the given
// source line.
func New(src string, line int) *Lexer {
	if line <= 0 {
		line = 1
	}
	return &Lexer{src: src, line: line}
}

// Tokenize scans the whole expression and returns its tokens.
func Tokenize(src string, line int) ([]Token, error) {
	l := New(src, line)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return tokens, nil
		}
		tokens = append(tokens, *tok)
	}
}

// Next returns the next token, or nil at end of input.
func (l *Lexer) Next() (*Token, error) {
	if l.pos >= len(l.src) {
		return nil, nil
	}

	c := l.src[l.pos]
	switch {
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		return l.scanWhitespace(), nil
	case c == '\'' || c == '"':
		return l.emitOrErr(l.scanString(c))
	case isIdentStart(c):
		return l.emit(l.scanWord()), nil
	case c >= '0' && c <= '9':
		return l.emit(l.scanNumber()), nil
	case c == '-':
		if l.operandPosition() && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			return l.emit(l.scanNumber()), nil
		}
		l.pos++
		return l.emit(Token{Kind: TokenOperator, Value: "-", Line: l.line}), nil
	case c == '|':
		return l.emitOrErr(l.scanFilter())
	case c == '.':
		return l.emitOrErr(l.scanDotKey())
	default:
		return l.emitOrErr(l.scanPunct())
	}
}

func (l *Lexer) emit(tok Token) *Token {
	l.prev = tok.Kind
	l.hasPrev = true
	return &tok
}

func (l *Lexer) emitOrErr(tok Token, err error) (*Token, error) {
	if err != nil {
		return nil, err
	}
	return l.emit(tok), nil
}

func (l *Lexer) errorf(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...), Line: l.line}
}

// operandPosition reports whether the next token would sit where an
// operand is expected, which is where a minus sign belongs to a number.
func (l *Lexer) operandPosition() bool {
	if !l.hasPrev {
		return true
	}
	switch l.prev {
	case TokenOperator, TokenLogic, TokenNot, TokenComma, TokenColon,
		TokenParenOpen, TokenBracketOpen, TokenBraceOpen,
		TokenFilter, TokenFunction:
		return true
	}
	return false
}

func (l *Lexer) scanWhitespace() *Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\n':
			l.line++
		case ' ', '\t', '\r':
		default:
			return &Token{Kind: TokenWhitespace, Value: l.src[start:l.pos], Line: line}
		}
		l.pos++
	}
	return &Token{Kind: TokenWhitespace, Value: l.src[start:], Line: line}
}

func (l *Lexer) scanString(quote byte) (Token, error) {
	line := l.line
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '\\':
			if l.pos+1 >= len(l.src) {
				return Token{}, l.errorf("unterminated string literal")
			}
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
		case quote:
			l.pos++
			return Token{Kind: TokenString, Value: b.String(), Line: line}, nil
		case '\n':
			l.line++
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
		l.pos++
	}
	return Token{}, l.errorf("unterminated string literal")
}

func (l *Lexer) scanNumber() Token {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	return Token{Kind: TokenNumber, Value: l.src[start:l.pos], Line: l.line}
}

// scanWord scans an identifier, a dotted path, a keyword operator, or
// the head of a function call.
func (l *Lexer) scanWord() Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	// Absorb dotted continuations so a.b.c lexes as one path.
	for l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isIdentStart(l.src[l.pos+1]) {
		l.pos += 2
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
	}
	word := l.src[start:l.pos]

	// A directly attached open paren makes this a call head.
	if l.pos < len(l.src) && l.src[l.pos] == '(' {
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == ')' {
			l.pos++
			return Token{Kind: TokenFunctionEmpty, Value: word, Line: l.line}
		}
		return Token{Kind: TokenFunction, Value: word, Line: l.line}
	}

	if !strings.Contains(word, ".") {
		switch word {
		case "true", "false":
			return Token{Kind: TokenBool, Value: word, Line: l.line}
		case "and":
			return Token{Kind: TokenLogic, Value: "&&", Line: l.line}
		case "or":
			return Token{Kind: TokenLogic, Value: "||", Line: l.line}
		case "in":
			return Token{Kind: TokenLogic, Value: "in", Line: l.line}
		case "not":
			return Token{Kind: TokenNot, Value: "!", Line: l.line}
		}
	}
	return Token{Kind: TokenVar, Value: word, Line: l.line}
}

func (l *Lexer) scanFilter() (Token, error) {
	l.pos++ // consume |
	if l.pos < len(l.src) && l.src[l.pos] == '|' {
		l.pos++
		return Token{Kind: TokenLogic, Value: "||", Line: l.line}, nil
	}
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.src) || !isIdentStart(l.src[l.pos]) {
		return Token{}, l.errorf("expected filter name after `|`")
	}
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	name := l.src[start:l.pos]
	if l.pos < len(l.src) && l.src[l.pos] == '(' {
		l.pos++
		return Token{Kind: TokenFilter, Value: name, Line: l.line}, nil
	}
	return Token{Kind: TokenFilterEmpty, Value: name, Line: l.line}, nil
}

func (l *Lexer) scanDotKey() (Token, error) {
	if l.pos+1 >= len(l.src) || !isIdentStart(l.src[l.pos+1]) {
		return Token{}, l.errorf("unexpected `.`")
	}
	l.pos++
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return Token{Kind: TokenDotKey, Value: l.src[start:l.pos], Line: l.line}, nil
}

func (l *Lexer) scanPunct() (Token, error) {
	c := l.src[l.pos]
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "&&", "==", "!=", "<=", ">=":
		l.pos += 2
		return Token{Kind: TokenLogic, Value: two, Line: l.line}, nil
	}
	l.pos++
	switch c {
	case '(':
		return Token{Kind: TokenParenOpen, Value: "(", Line: l.line}, nil
	case ')':
		return Token{Kind: TokenParenClose, Value: ")", Line: l.line}, nil
	case '[':
		return Token{Kind: TokenBracketOpen, Value: "[", Line: l.line}, nil
	case ']':
		return Token{Kind: TokenBracketClose, Value: "]", Line: l.line}, nil
	case '{':
		return Token{Kind: TokenBraceOpen, Value: "{", Line: l.line}, nil
	case '}':
		return Token{Kind: TokenBraceClose, Value: "}", Line: l.line}, nil
	case ':':
		return Token{Kind: TokenColon, Value: ":", Line: l.line}, nil
	case ',':
		return Token{Kind: TokenComma, Value: ",", Line: l.line}, nil
	case '<', '>':
		return Token{Kind: TokenLogic, Value: string(c), Line: l.line}, nil
	case '!':
		return Token{Kind: TokenNot, Value: "!", Line: l.line}, nil
	case '+', '*', '/', '%':
		return Token{Kind: TokenOperator, Value: string(c), Line: l.line}, nil
	}
	return Token{}, l.errorf("unexpected character %q", string(c))
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
