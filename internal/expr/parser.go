package expr

import "fmt"

// Parse turns formula text into a syntax tree. Parse accepts a wider
// language than the evaluator supports (calls, comparisons, boolean
// operators, conditionals, attributes, strings) so that Validate can name
// the offending construct instead of failing with a generic syntax error.
func Parse(src string) (*Expression, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().typ == tokEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokEOF {
		return nil, p.unexpected(tok)
	}
	return &Expression{Body: body}, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.typ != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(text string) bool {
	tok := p.peek()
	return tok.typ == tokOp && tok.text == text
}

func (p *parser) isKeyword(text string) bool {
	tok := p.peek()
	return tok.typ == tokKeyword && tok.text == text
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return p.unexpected(p.peek())
	}
	p.advance()
	return nil
}

func (p *parser) unexpected(tok token) error {
	if tok.typ == tokEOF {
		return &SyntaxError{Pos: tok.pos, Msg: "unexpected end of expression"}
	}
	return &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

// expr := orTest ["if" orTest "else" expr]
func (p *parser) expr() (Node, error) {
	body, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("if") {
		return body, nil
	}
	p.advance()
	test, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("else") {
		return nil, p.unexpected(p.peek())
	}
	p.advance()
	orElse, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &IfExp{Test: test, Body: body, OrElse: orElse, pos: body.Pos()}, nil
}

func (p *parser) orTest() (Node, error)  { return p.boolChain("or", p.andTest) }
func (p *parser) andTest() (Node, error) { return p.boolChain("and", p.notTest) }

func (p *parser) boolChain(op string, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(op) {
		return first, nil
	}
	values := []Node{first}
	for p.isKeyword(op) {
		p.advance()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	return &BoolOp{Op: op, Values: values, pos: first.Pos()}, nil
}

// notTest := "not" notTest | comparison
func (p *parser) notTest() (Node, error) {
	if p.isKeyword("not") {
		tok := p.advance()
		operand, err := p.notTest()
		if err != nil {
			return nil, err
		}
		return &UnaryOperation{Op: Not, Operand: operand, pos: tok.pos}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Node, error) {
	left, err := p.bitOr()
	if err != nil {
		return nil, err
	}
	var (
		ops   []string
		comps []Node
	)
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.bitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comps = append(comps, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &Compare{Left: left, Ops: ops, Comparators: comps, pos: left.Pos()}, nil
}

func (p *parser) compareOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.typ == tokOp:
		switch tok.text {
		case "<", ">", "==", "!=", "<=", ">=":
			p.advance()
			return tok.text, true
		}
	case tok.typ == tokKeyword && tok.text == "in":
		p.advance()
		return "in", true
	case tok.typ == tokKeyword && tok.text == "is":
		p.advance()
		if p.isKeyword("not") {
			p.advance()
			return "is not", true
		}
		return "is", true
	case tok.typ == tokKeyword && tok.text == "not":
		if next := p.toks[p.pos+1]; next.typ == tokKeyword && next.text == "in" {
			p.advance()
			p.advance()
			return "not in", true
		}
	}
	return "", false
}

type binaryLevel map[string]BinaryOp

var (
	levelBitOr  = binaryLevel{"|": BitOr}
	levelBitXor = binaryLevel{"^": BitXor}
	levelBitAnd = binaryLevel{"&": BitAnd}
	levelShift  = binaryLevel{"<<": LShift, ">>": RShift}
	levelArith  = binaryLevel{"+": Add, "-": Sub}
	levelTerm   = binaryLevel{"*": Mult, "@": MatMult, "/": Div, "//": FloorDiv, "%": Mod}
)

func (p *parser) bitOr() (Node, error)  { return p.leftAssoc(levelBitOr, p.bitXor) }
func (p *parser) bitXor() (Node, error) { return p.leftAssoc(levelBitXor, p.bitAnd) }
func (p *parser) bitAnd() (Node, error) { return p.leftAssoc(levelBitAnd, p.shift) }
func (p *parser) shift() (Node, error)  { return p.leftAssoc(levelShift, p.arith) }
func (p *parser) arith() (Node, error)  { return p.leftAssoc(levelArith, p.term) }
func (p *parser) term() (Node, error)   { return p.leftAssoc(levelTerm, p.factor) }

func (p *parser) leftAssoc(level binaryLevel, operand func() (Node, error)) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokOp {
			return left, nil
		}
		op, ok := level[tok.text]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right, pos: tok.pos}
	}
}

// factor := ("+" | "-" | "~") factor | power
func (p *parser) factor() (Node, error) {
	tok := p.peek()
	if tok.typ == tokOp {
		var op UnaryOp
		switch tok.text {
		case "+":
			op = UAdd
		case "-":
			op = USub
		case "~":
			op = Invert
		default:
			return p.power()
		}
		p.advance()
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &UnaryOperation{Op: op, Operand: operand, pos: tok.pos}, nil
	}
	return p.power()
}

// power := primary ["**" factor]; right associative and binds tighter
// than a unary operator on its left, so -2**2 is -(2**2).
func (p *parser) power() (Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	tok := p.advance()
	exp, err := p.factor()
	if err != nil {
		return nil, err
	}
	return &BinOp{Op: Pow, Left: base, Right: exp, pos: tok.pos}, nil
}

// primary := atom { "(" args ")" | "." NAME | "[" expr "]" }
func (p *parser) primary() (Node, error) {
	node, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("("):
			tok := p.advance()
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			node = &Call{Func: node, Args: args, pos: tok.pos}
		case p.isOp("."):
			p.advance()
			attr := p.peek()
			if attr.typ != tokName {
				return nil, p.unexpected(attr)
			}
			p.advance()
			node = &Attribute{Value: node, Attr: attr.text, pos: attr.pos}
		case p.isOp("["):
			tok := p.advance()
			index, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			node = &Subscript{Value: node, Index: index, pos: tok.pos}
		default:
			return node, nil
		}
	}
}

func (p *parser) callArgs() ([]Node, error) {
	var args []Node
	for !p.isOp(")") {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) atom() (Node, error) {
	tok := p.peek()
	switch tok.typ {
	case tokInt:
		p.advance()
		return &Constant{Type: ConstInt, Int: tok.i, pos: tok.pos}, nil
	case tokFloat:
		p.advance()
		return &Constant{Type: ConstFloat, Float: tok.f, pos: tok.pos}, nil
	case tokImag:
		p.advance()
		return &Constant{Type: ConstComplex, Float: tok.f, pos: tok.pos}, nil
	case tokString:
		p.advance()
		s := tok.text
		// adjacent string literals concatenate
		for p.peek().typ == tokString {
			s += p.advance().text
		}
		return &Constant{Type: ConstString, Str: s, pos: tok.pos}, nil
	case tokName:
		p.advance()
		return &Name{ID: tok.text, pos: tok.pos}, nil
	case tokKeyword:
		switch tok.text {
		case "True":
			p.advance()
			return &Constant{Type: ConstBool, Int: 1, pos: tok.pos}, nil
		case "False":
			p.advance()
			return &Constant{Type: ConstBool, Int: 0, pos: tok.pos}, nil
		case "None":
			p.advance()
			return &Constant{Type: ConstNone, pos: tok.pos}, nil
		}
	case tokOp:
		if tok.text == "(" {
			p.advance()
			inner, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, p.unexpected(tok)
}
