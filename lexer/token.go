// Package lexer tokenizes vellum template expressions.
//
// The lexer only sees the inside of an output ({{ ... }}) or tag
// ({% ... %}) delimiter pair; splitting raw template source into those
// segments is the parser's job.
package lexer

import "fmt"

// Kind classifies a token.
type Kind int

const (
	// Literals
	TokenString Kind = iota // 'single' or "double" quoted
	TokenNumber             // 123, 1.5, -2 in operand position
	TokenBool               // true, false

	// Identifiers
	TokenVar    // name or dotted path a.b.c
	TokenDotKey // .name continuation after ] or )

	// Filters and calls
	TokenFilter        // |name( with an argument list
	TokenFilterEmpty   // |name with no argument list
	TokenFunction      // name( opening a call
	TokenFunctionEmpty // name() with no arguments

	// Grouping
	TokenParenOpen    // (
	TokenParenClose   // )
	TokenBracketOpen  // [
	TokenBracketClose // ]
	TokenBraceOpen    // {
	TokenBraceClose   // }

	// Punctuation
	TokenColon // :
	TokenComma // ,

	// Operators
	TokenOperator // + - * / %
	TokenLogic    // && || == != <= >= < > and or in
	TokenNot      // ! or not

	TokenWhitespace
)

var kindNames = map[Kind]string{
	TokenString:        "String",
	TokenNumber:        "Number",
	TokenBool:          "Bool",
	TokenVar:           "Var",
	TokenDotKey:        "DotKey",
	TokenFilter:        "Filter",
	TokenFilterEmpty:   "FilterEmpty",
	TokenFunction:      "Function",
	TokenFunctionEmpty: "FunctionEmpty",
	TokenParenOpen:     "ParenOpen",
	TokenParenClose:    "ParenClose",
	TokenBracketOpen:   "BracketOpen",
	TokenBracketClose:  "BracketClose",
	TokenBraceOpen:     "BraceOpen",
	TokenBraceClose:    "BraceClose",
	TokenColon:         "Colon",
	TokenComma:         "Comma",
	TokenOperator:      "Operator",
	TokenLogic:         "Logic",
	TokenNot:           "Not",
	TokenWhitespace:    "Whitespace",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a single classified token. Tokens are produced once by the
// lexer and never mutated afterwards.
type Token struct {
	Kind  Kind
	Value string // matched text with quotes/pipes/parens stripped
	Line  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
}

// Error is a line-attributed tokenization error.
type Error struct {
	Message string
	Line    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
}
