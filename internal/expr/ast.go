package expr

import "fmt"

// Node is implemented by every syntax tree node. Kind names the node type
// and is what grammar errors report.
type Node interface {
	Pos() int
	Kind() string
}

// BinaryOp identifies a binary operator.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mult
	MatMult
	Div
	FloorDiv
	Mod
	Pow
	LShift
	RShift
	BitOr
	BitXor
	BitAnd
)

var binaryOpNames = [...]string{
	Add:      "Add",
	Sub:      "Sub",
	Mult:     "Mult",
	MatMult:  "MatMult",
	Div:      "Div",
	FloorDiv: "FloorDiv",
	Mod:      "Mod",
	Pow:      "Pow",
	LShift:   "LShift",
	RShift:   "RShift",
	BitOr:    "BitOr",
	BitXor:   "BitXor",
	BitAnd:   "BitAnd",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// UnaryOp identifies a unary operator.
type UnaryOp int

const (
	UAdd UnaryOp = iota
	USub
	Invert
	Not
)

var unaryOpNames = [...]string{
	UAdd:   "UAdd",
	USub:   "USub",
	Invert: "Invert",
	Not:    "Not",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// ConstKind is the type of a literal.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstComplex
	ConstString
	ConstNone
)

var constKindNames = [...]string{
	ConstInt:     "int",
	ConstFloat:   "float",
	ConstBool:    "bool",
	ConstComplex: "complex",
	ConstString:  "str",
	ConstNone:    "NoneType",
}

func (k ConstKind) String() string {
	if int(k) < len(constKindNames) {
		return constKindNames[k]
	}
	return fmt.Sprintf("ConstKind(%d)", int(k))
}

// Expression is the top-level wrapper around a parsed formula.
type Expression struct {
	Body Node
}

// Constant is a literal. Int holds int and bool values, Float holds float
// and the imaginary part of complex values, Str holds string values.
type Constant struct {
	Type  ConstKind
	Int   int64
	Float float64
	Str   string
	pos   int
}

// Name is an identifier reference.
type Name struct {
	ID  string
	pos int
}

// BinOp is a binary arithmetic or bitwise operation.
type BinOp struct {
	Op    BinaryOp
	Left  Node
	Right Node
	pos   int
}

// UnaryOperation is a prefix operation.
type UnaryOperation struct {
	Op      UnaryOp
	Operand Node
	pos     int
}

// Call is a function call.
type Call struct {
	Func Node
	Args []Node
	pos  int
}

// Attribute is a member access such as math.pi.
type Attribute struct {
	Value Node
	Attr  string
	pos   int
}

// Subscript is an index expression such as a[0].
type Subscript struct {
	Value Node
	Index Node
	pos   int
}

// Compare is a (possibly chained) comparison.
type Compare struct {
	Left        Node
	Ops         []string
	Comparators []Node
	pos         int
}

// BoolOp is a short-circuit "and" / "or" chain.
type BoolOp struct {
	Op     string
	Values []Node
	pos    int
}

// IfExp is a conditional expression: Body if Test else OrElse.
type IfExp struct {
	Test   Node
	Body   Node
	OrElse Node
	pos    int
}

func (n *Expression) Pos() int     { return 0 }
func (n *Constant) Pos() int       { return n.pos }
func (n *Name) Pos() int           { return n.pos }
func (n *BinOp) Pos() int          { return n.pos }
func (n *UnaryOperation) Pos() int { return n.pos }
func (n *Call) Pos() int           { return n.pos }
func (n *Attribute) Pos() int      { return n.pos }
func (n *Subscript) Pos() int      { return n.pos }
func (n *Compare) Pos() int        { return n.pos }
func (n *BoolOp) Pos() int         { return n.pos }
func (n *IfExp) Pos() int          { return n.pos }

func (*Expression) Kind() string     { return "Expression" }
func (*Constant) Kind() string       { return "Constant" }
func (*Name) Kind() string           { return "Name" }
func (*BinOp) Kind() string          { return "BinOp" }
func (*UnaryOperation) Kind() string { return "UnaryOp" }
func (*Call) Kind() string           { return "Call" }
func (*Attribute) Kind() string      { return "Attribute" }
func (*Subscript) Kind() string      { return "Subscript" }
func (*Compare) Kind() string        { return "Compare" }
func (*BoolOp) Kind() string         { return "BoolOp" }
func (*IfExp) Kind() string          { return "IfExp" }
