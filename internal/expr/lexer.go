package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokRef
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return "number " + t.text
	case tokRef:
		return "item reference {" + t.text + "}"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

var punct = map[byte]tokenKind{
	'+': tokPlus,
	'-': tokMinus,
	'*': tokStar,
	'/': tokSlash,
	'(': tokLParen,
	')': tokRParen,
}

func tokenize(src string) ([]token, error) {
	toks := make([]token, 0, len(src)/2+1)
	for i := 0; i < len(src); {
		c := src[i]
		if kind, ok := punct[c]; ok {
			toks = append(toks, token{kind: kind, text: string(c), pos: i})
			i++
			continue
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, malformed(src, i, "unterminated item reference")
			}
			id := strings.TrimSpace(src[i+1 : i+1+end])
			if id == "" {
				return nil, malformed(src, i, "empty item reference")
			}
			if strings.ContainsRune(id, '{') {
				return nil, malformed(src, i, "nested item reference")
			}
			toks = append(toks, token{kind: tokRef, text: id, pos: i})
			i += end + 2
		case isDigit(c) || c == '.':
			start := i
			dot := false
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				if src[i] == '.' {
					if dot {
						return nil, malformed(src, i, "unexpected '.' in number")
					}
					dot = true
				}
				i++
			}
			lit := src[start:i]
			if lit == "." {
				return nil, malformed(src, start, "number has no digits")
			}
			toks = append(toks, token{kind: tokNumber, text: lit, pos: start})
		default:
			return nil, malformed(src, i, fmt.Sprintf("unexpected character %q", c))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func malformed(src string, pos int, reason string) error {
	return &MalformedExpressionError{Expr: src, Pos: pos, Reason: reason}
}
