// Package expr evaluates the restricted arithmetic used by pricing rules:
// decimal literals, {item} references, + - * /, parentheses and unary minus.
// Nothing else is accepted.
package expr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Grammar:
//
//	expr   := term (("+"|"-") term)*
//	term   := factor (("*"|"/") factor)*
//	factor := ["-"] (number | itemRef | "(" expr ")")
type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse turns src into an evaluable tree.
func Parse(src string) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, malformed(src, 0, "empty expression")
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, malformed(src, t.pos, "unmatched ')'")
		}
		return nil, malformed(src, t.pos, "unexpected "+t.String())
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: t.text[0], Left: left, Right: right}
	}
}

func (p *parser) term() (Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: t.text[0], Left: left, Right: right}
	}
}

func (p *parser) factor() (Node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		x, err := p.primary()
		if err != nil {
			return nil, err
		}
		return Neg{X: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, malformed(p.src, t.pos, fmt.Sprintf("invalid number %q", t.text))
		}
		return Num{Value: d}, nil
	case tokRef:
		return Ref{ID: t.text}, nil
	case tokLParen:
		if p.peek().kind == tokRParen {
			return nil, malformed(p.src, t.pos, "empty parentheses")
		}
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, malformed(p.src, t.pos, "unmatched '('")
		}
		return inner, nil
	case tokEOF:
		return nil, malformed(p.src, t.pos, "unexpected end of expression")
	default:
		return nil, malformed(p.src, t.pos, "unexpected "+t.String())
	}
}
