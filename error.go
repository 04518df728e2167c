package vellum

import (
	"fmt"

	"github.com/vellumtpl/vellum/compiler"
)

// ErrorKind describes the type of error.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrTemplateNotFound
	ErrCircularExtends
	ErrUnknownFilter
	ErrBadInclude
	ErrOutOfFuel
	ErrRender
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrCircularExtends:
		return "circular extends"
	case ErrUnknownFilter:
		return "unknown filter"
	case ErrBadInclude:
		return "bad include"
	case ErrOutOfFuel:
		return "out of fuel"
	case ErrRender:
		return "render error"
	default:
		return "error"
	}
}

// Error represents an error that occurred during template processing.
type Error struct {
	Kind    ErrorKind
	Message string
	Line    int
	Name    string // template name
}

func (e *Error) Error() string {
	if e.Name != "" && e.Line > 0 {
		return fmt.Sprintf("%s: %s (at %s line %d)", e.Kind, e.Message, e.Name, e.Line)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (at line %d)", e.Kind, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a new error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WithLine adds line information to an error.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// WithName adds template name to an error.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// wrapErr lifts compiler and parser errors into the package error
// type, preserving line and template attribution. Errors already of
// the package type pass through untouched.
func wrapErr(err error, kind ErrorKind, name string) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *Error:
		return e
	case *compiler.Error:
		out := NewError(kind, e.Message).WithLine(e.Line)
		if e.Name != "" {
			return out.WithName(e.Name)
		}
		return out.WithName(name)
	}
	return NewError(kind, err.Error()).WithName(name)
}
