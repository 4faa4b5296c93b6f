package expr

import (
	"errors"
	"fmt"
)

// ErrUnsupported is wrapped by every GrammarError.
var ErrUnsupported = errors.New("unsupported construct")

// SyntaxError reports malformed expression text.
type SyntaxError struct {
	Pos int // byte offset into the source
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

// GrammarError reports a construct outside the operator whitelist.
// Construct describes what was rejected and Node names the node kind.
type GrammarError struct {
	Construct string
	Node      string
	Detail    string
	Pos       int
}

func (e *GrammarError) Error() string {
	return fmt.Sprintf("%s: %s (node %s at offset %d)", e.Construct, e.Detail, e.Node, e.Pos)
}

func (e *GrammarError) Unwrap() error {
	return ErrUnsupported
}
