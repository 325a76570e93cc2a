package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Step programs are lists of statements of the form
//
//	target = expr
//	expr   = number | ref | kernel(expr, ...)
//	ref    = name | name[tap]
//
// Blank statements and statements starting with '#' are ignored.

type nodeKind uint8

const (
	nodeNumber nodeKind = iota
	nodeRef
	nodeCall
)

// node is a parsed expression.
type node struct {
	kind   nodeKind
	col    int
	name   string
	tap    int
	hasTap bool
	value  float64
	args   []*node
}

func (n *node) String() string {
	switch n.kind {
	case nodeNumber:
		return strconv.FormatFloat(n.value, 'g', -1, 64)
	case nodeRef:
		if n.hasTap {
			return fmt.Sprintf("%s[%d]", n.name, n.tap)
		}
		return n.name
	}
	args := make([]string, len(n.args))
	for i, a := range n.args {
		args[i] = a.String()
	}
	return n.name + "(" + strings.Join(args, ", ") + ")"
}

// statement is one parsed assignment.
type statement struct {
	target *node
	expr   *node
	text   string
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	col  int
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// lex splits a statement into tokens. Columns are 1-based.
func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isIdentStart(r):
			j := i + 1
			for j < len(rs) && isIdentPart(rs[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, string(rs[i:j]), i + 1})
			i = j
		case unicode.IsDigit(r) || r == '.':
			j := i + 1
			for j < len(rs) {
				c := rs[j]
				if unicode.IsDigit(c) || c == '.' || c == 'e' || c == 'E' {
					j++
					continue
				}
				if (c == '+' || c == '-') && (rs[j-1] == 'e' || rs[j-1] == 'E') {
					j++
					continue
				}
				break
			}
			toks = append(toks, token{tokNumber, string(rs[i:j]), i + 1})
			i = j
		case strings.ContainsRune("()[],=-", r):
			toks = append(toks, token{tokPunct, string(r), i + 1})
			i++
		default:
			return nil, fmt.Errorf("col %d: unexpected character %q", i+1, r)
		}
	}
	return append(toks, token{kind: tokEOF, col: len(rs) + 1}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(punct string) bool {
	if t := p.peek(); t.kind == tokPunct && t.text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(punct string) error {
	if p.accept(punct) {
		return nil
	}
	t := p.peek()
	return fmt.Errorf("col %d: expected %q, got %s", t.col, punct, describe(t))
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of statement"
	}
	return strconv.Quote(t.text)
}

// parseStatement parses "target = expr".
func parseStatement(src string) (*statement, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	t := p.next()
	if t.kind != tokIdent {
		return nil, fmt.Errorf("col %d: expected assignment target, got %s", t.col, describe(t))
	}
	target, err := p.parseRef(t)
	if err != nil {
		return nil, err
	}
	if err := p.expect("="); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("col %d: unexpected %s after expression", t.col, describe(t))
	}
	return &statement{target: target, expr: expr, text: strings.TrimSpace(src)}, nil
}

func (p *parser) parseExpr() (*node, error) {
	t := p.next()
	switch {
	case t.kind == tokPunct && t.text == "-":
		n := p.next()
		if n.kind != tokNumber {
			return nil, fmt.Errorf("col %d: expected number after '-', got %s", n.col, describe(n))
		}
		v, err := parseNumber(n)
		return &node{kind: nodeNumber, col: t.col, value: -v}, err
	case t.kind == tokNumber:
		v, err := parseNumber(t)
		return &node{kind: nodeNumber, col: t.col, value: v}, err
	case t.kind == tokIdent:
		if p.accept("(") {
			return p.parseCall(t)
		}
		return p.parseRef(t)
	}
	return nil, fmt.Errorf("col %d: expected expression, got %s", t.col, describe(t))
}

func (p *parser) parseCall(name token) (*node, error) {
	call := &node{kind: nodeCall, col: name.col, name: name.text}
	if p.accept(")") {
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		if p.accept(")") {
			return call, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseRef(name token) (*node, error) {
	ref := &node{kind: nodeRef, col: name.col, name: name.text}
	if !p.accept("[") {
		return ref, nil
	}
	neg := p.accept("-")
	t := p.next()
	if t.kind != tokNumber {
		return nil, fmt.Errorf("col %d: expected integer tap, got %s", t.col, describe(t))
	}
	tap, err := strconv.Atoi(t.text)
	if err != nil {
		return nil, fmt.Errorf("col %d: invalid tap %q", t.col, t.text)
	}
	if neg {
		tap = -tap
	}
	ref.tap, ref.hasTap = tap, true
	return ref, p.expect("]")
}

func parseNumber(t token) (float64, error) {
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, fmt.Errorf("col %d: invalid number %q", t.col, t.text)
	}
	return v, nil
}
