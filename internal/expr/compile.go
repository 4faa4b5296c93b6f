package expr

// evalFunc computes a node for one time index. ok is false when the
// evaluation faulted (division by zero, negative shift, domain error).
type evalFunc func(t int64) (v Value, ok bool)

// Program is a compiled formula. It holds no mutable state and is safe for
// concurrent use.
type Program struct {
	src  string
	tree *Expression
	eval evalFunc
}

// Compile parses and validates src and compiles it into a Program.
// Single-slash division is treated as floor division so every result stays
// integral.
func Compile(src string) (*Program, error) {
	tree, err := Parse(src)
	if err != nil {
		return nil, err
	}
	rewriteDivision(tree)
	if err := Validate(tree); err != nil {
		return nil, err
	}
	return &Program{src: src, tree: tree, eval: compileNode(tree.Body)}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) String() string { return p.src }

// Tree returns the validated syntax tree.
func (p *Program) Tree() *Expression { return p.tree }

// Eval evaluates the formula at time index t. ok is false when the
// evaluation faulted, in which case v is 0.
func (p *Program) Eval(t int64) (v int64, ok bool) {
	r, ok := p.eval(t)
	if !ok {
		return 0, false
	}
	return r.Int()
}

// Sample evaluates the formula at t, returning 0 for faulted samples.
func (p *Program) Sample(t int64) int64 {
	v, _ := p.Eval(t)
	return v
}

func rewriteDivision(n Node) {
	switch n := n.(type) {
	case *Expression:
		rewriteDivision(n.Body)
	case *BinOp:
		if n.Op == Div {
			n.Op = FloorDiv
		}
		rewriteDivision(n.Left)
		rewriteDivision(n.Right)
	case *UnaryOperation:
		rewriteDivision(n.Operand)
	}
}

// compileNode builds a closure tree. Subtrees that do not reference t are
// evaluated once here.
func compileNode(n Node) evalFunc {
	fn := compileDynamic(n)
	if usesTime(n) {
		return fn
	}
	v, ok := fn(0)
	return func(int64) (Value, bool) { return v, ok }
}

func compileDynamic(n Node) evalFunc {
	switch n := n.(type) {
	case *Constant:
		var v Value
		if n.Type == ConstFloat {
			v = floatVal(n.Float)
		} else {
			v = intVal(n.Int)
		}
		return func(int64) (Value, bool) { return v, true }
	case *Name:
		return func(t int64) (Value, bool) { return intVal(t), true }
	case *UnaryOperation:
		op := n.Op
		operand := compileNode(n.Operand)
		return func(t int64) (Value, bool) {
			v, ok := operand(t)
			if !ok {
				return Value{}, false
			}
			return unary(op, v)
		}
	case *BinOp:
		op := n.Op
		left, right := compileNode(n.Left), compileNode(n.Right)
		return func(t int64) (Value, bool) {
			a, ok := left(t)
			if !ok {
				return Value{}, false
			}
			b, ok := right(t)
			if !ok {
				return Value{}, false
			}
			return binary(op, a, b)
		}
	}
	// unreachable for validated trees
	return func(int64) (Value, bool) { return Value{}, false }
}

func usesTime(n Node) bool {
	switch n := n.(type) {
	case *Name:
		return true
	case *UnaryOperation:
		return usesTime(n.Operand)
	case *BinOp:
		return usesTime(n.Left) || usesTime(n.Right)
	}
	return false
}
