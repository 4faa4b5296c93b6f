package expr

import "fmt"

// TimeVar is the only identifier a formula may reference.
const TimeVar = "t"

var allowedBinary = map[BinaryOp]bool{
	Add: true, Sub: true, Mult: true, Div: true, FloorDiv: true, Mod: true,
	LShift: true, RShift: true, BitOr: true, BitAnd: true, BitXor: true, Pow: true,
}

var allowedUnary = map[UnaryOp]bool{
	UAdd: true, USub: true, Invert: true, Not: true,
}

// Validate walks the whole tree and returns a *GrammarError for the first
// node outside the whitelist. It only inspects shape, never evaluates.
func Validate(n Node) error {
	switch n := n.(type) {
	case *Expression:
		return Validate(n.Body)
	case *BinOp:
		if !allowedBinary[n.Op] {
			return &GrammarError{Construct: "unsupported binary operator", Node: n.Kind(), Detail: n.Op.String(), Pos: n.Pos()}
		}
		if err := Validate(n.Left); err != nil {
			return err
		}
		return Validate(n.Right)
	case *UnaryOperation:
		if !allowedUnary[n.Op] {
			return &GrammarError{Construct: "unsupported unary operator", Node: n.Kind(), Detail: n.Op.String(), Pos: n.Pos()}
		}
		return Validate(n.Operand)
	case *Constant:
		switch n.Type {
		case ConstInt, ConstFloat, ConstBool:
			return nil
		}
		return &GrammarError{Construct: "unsupported constant type", Node: n.Kind(), Detail: n.Type.String(), Pos: n.Pos()}
	case *Name:
		if n.ID != TimeVar {
			return &GrammarError{
				Construct: fmt.Sprintf("only variable %q is allowed", TimeVar),
				Node:      n.Kind(),
				Detail:    "found " + n.ID,
				Pos:       n.Pos(),
			}
		}
		return nil
	case *Call, *Attribute, *Compare, *BoolOp, *IfExp:
		return &GrammarError{Construct: "unsupported operation", Node: n.Kind(), Detail: n.Kind(), Pos: n.Pos()}
	case nil:
		return &GrammarError{Construct: "unsupported node type", Node: "nil", Detail: "nil"}
	default:
		return &GrammarError{Construct: "unsupported node type", Node: n.Kind(), Detail: n.Kind(), Pos: n.Pos()}
	}
}
