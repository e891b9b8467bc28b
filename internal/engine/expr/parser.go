package expr

import "fmt"

// AST node variants. The grammar is expression-only: there are no statements,
// assignments, or property writes, so evaluation cannot mutate the environment.
type node interface{}

type litNode struct{ val any }

type identNode struct{ name string }

type memberNode struct {
	obj  node
	name string
}

type callNode struct {
	callee node
	args   []node
}

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

type ternaryNode struct {
	cond, then, els node
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) expectOp(op string) error {
	t := p.peek()
	if t.kind != tokOp || t.text != op {
		return fmt.Errorf("expected %q at position %d", op, t.pos)
	}
	p.next()
	return nil
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
	}
	return n, nil
}

// parseTernary: cond ? then : else (right-associative)
func (p *parser) parseTernary() (node, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("?"); !ok {
		return cond, nil
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, els: els}, nil
}

func (p *parser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return l, nil
		}
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: "||", l: l, r: r}
	}
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return l, nil
		}
		r, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: "&&", l: l, r: r}
	}
}

func (p *parser) parseEquality() (node, error) {
	l, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("===", "!==", "==", "!=")
		if !ok {
			return l, nil
		}
		r, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		// strict JS variants are aliases here: the value model has no type
		// coercion surprises to guard against
		switch op {
		case "===":
			op = "=="
		case "!==":
			op = "!="
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) parseComparison() (node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("<=", ">=", "<", ">")
		if !ok {
			return l, nil
		}
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) parseAdditive() (node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return l, nil
		}
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return l, nil
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("-", "!", "+"); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return x, nil
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles call arguments and member access after a primary.
func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("("); ok {
			var args []node
			if _, ok := p.acceptOp(")"); !ok {
				for {
					arg, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if _, ok := p.acceptOp(","); ok {
						continue
					}
					if err := p.expectOp(")"); err != nil {
						return nil, err
					}
					break
				}
			}
			n = &callNode{callee: n, args: args}
			continue
		}
		if _, ok := p.acceptOp("."); ok {
			t := p.next()
			if t.kind != tokIdent {
				return nil, fmt.Errorf("expected property name at position %d", t.pos)
			}
			n = &memberNode{obj: n, name: t.text}
			continue
		}
		return n, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &litNode{val: t.num}, nil
	case tokString:
		p.next()
		return &litNode{val: t.text}, nil
	case tokIdent:
		p.next()
		switch t.text {
		case "true":
			return &litNode{val: true}, nil
		case "false":
			return &litNode{val: false}, nil
		case "null", "undefined":
			return &litNode{val: nil}, nil
		}
		return &identNode{name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.next()
			n, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
}
