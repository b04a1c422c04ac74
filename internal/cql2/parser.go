// Package cql2 translates CQL2 text filter expressions into CQL2 JSON.
package cql2

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts a CQL2 text expression into its CQL2 JSON tree.
func Parse(text string) (map[string]any, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, fmt.Errorf("cql2-text: %w", err)
	}
	p := &parser{toks: toks}
	expr, err := p.orExpr()
	if err != nil {
		return nil, fmt.Errorf("cql2-text: %w", err)
	}
	if p.peek().kind != tEOF {
		return nil, fmt.Errorf("cql2-text: unexpected %s", p.peek())
	}
	m, ok := expr.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cql2-text: expression is not a predicate")
	}
	return m, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) accept(kw string) bool {
	if p.keyword(kw) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("expected %s, got %s", what, t)
	}
	return t, nil
}

func op(name string, args ...any) map[string]any {
	return map[string]any{"op": name, "args": args}
}

// joins operands of the same logical op into one n-ary node
func flatten(name string, left, right any) map[string]any {
	if m, ok := left.(map[string]any); ok && m["op"] == name {
		m["args"] = append(m["args"].([]any), right)
		return m
	}
	return op(name, left, right)
}

func (p *parser) orExpr() (any, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.accept("OR") {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = flatten("or", left, right)
	}
	return left, nil
}

func (p *parser) andExpr() (any, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.accept("AND") {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = flatten("and", left, right)
	}
	return left, nil
}

func (p *parser) notExpr() (any, error) {
	if p.accept("NOT") {
		e, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return op("not", e), nil
	}
	return p.predicate()
}

var comparisons = map[string]string{
	"=": "=", "<>": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func (p *parser) predicate() (any, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind == tOp {
		if name, ok := comparisons[t.text]; ok {
			p.next()
			right, err := p.additive()
			if err != nil {
				return nil, err
			}
			return op(name, left, right), nil
		}
	}

	if p.accept("IS") {
		negate := p.accept("NOT")
		if !p.accept("NULL") {
			return nil, fmt.Errorf("expected NULL, got %s", p.peek())
		}
		e := op("isNull", left)
		if negate {
			return op("not", e), nil
		}
		return e, nil
	}

	negate := false
	if p.keyword("NOT") {
		if n := p.peekAt(1); n.kind == tIdent {
			switch strings.ToUpper(n.text) {
			case "LIKE", "BETWEEN", "IN":
				p.next()
				negate = true
			}
		}
	}

	var e map[string]any
	switch {
	case p.accept("LIKE"):
		pat, err := p.additive()
		if err != nil {
			return nil, err
		}
		e = op("like", left, pat)
	case p.accept("BETWEEN"):
		lo, err := p.additive()
		if err != nil {
			return nil, err
		}
		if !p.accept("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN, got %s", p.peek())
		}
		hi, err := p.additive()
		if err != nil {
			return nil, err
		}
		e = op("between", left, lo, hi)
	case p.accept("IN"):
		if _, err := p.expect(tLParen, "("); err != nil {
			return nil, err
		}
		list, err := p.list(tRParen)
		if err != nil {
			return nil, err
		}
		e = op("in", left, list)
	default:
		if negate {
			return nil, fmt.Errorf("expected LIKE, BETWEEN or IN after NOT, got %s", p.peek())
		}
		return left, nil
	}
	if negate {
		return op("not", e), nil
	}
	return e, nil
}

func (p *parser) additive() (any, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = op(t.text, left, right)
	}
}

func (p *parser) multiplicative() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var name string
		switch {
		case t.kind == tOp && (t.text == "*" || t.text == "/" || t.text == "%" || t.text == "^"):
			name = t.text
		case t.kind == tIdent && strings.EqualFold(t.text, "DIV"):
			name = "div"
		default:
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = op(name, left, right)
	}
}

func (p *parser) unary() (any, error) {
	if t := p.peek(); t.kind == tOp && (t.text == "-" || t.text == "+") {
		p.next()
		if n := p.peek(); n.kind == tNumber {
			p.next()
			v, err := number(n)
			if err != nil {
				return nil, err
			}
			if t.text == "-" {
				v = -v
			}
			return v, nil
		}
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return op("*", -1.0, e), nil
		}
		return e, nil
	}
	return p.primary()
}

func number(t token) (float64, error) {
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %s", t)
	}
	return v, nil
}

func (p *parser) primary() (any, error) {
	t := p.peek()
	switch t.kind {
	case tNumber:
		p.next()
		return number(t)
	case tString:
		p.next()
		return t.text, nil
	case tQuotedIdent:
		p.next()
		return map[string]any{"property": t.text}, nil
	case tLParen:
		p.next()
		first, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tComma {
			p.next()
			rest, err := p.list(tRParen)
			if err != nil {
				return nil, err
			}
			return append([]any{first}, rest...), nil
		}
		if _, err := p.expect(tRParen, ")"); err != nil {
			return nil, err
		}
		return first, nil
	case tIdent:
		return p.identifier()
	}
	return nil, fmt.Errorf("unexpected %s", t)
}

// list parses comma separated expressions up to and including the closing token.
func (p *parser) list(closing tokenKind) ([]any, error) {
	out := []any{}
	if p.peek().kind == closing {
		p.next()
		return out, nil
	}
	for {
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		t := p.next()
		switch t.kind {
		case tComma:
			continue
		case closing:
			return out, nil
		default:
			return nil, fmt.Errorf("expected , or ), got %s", t)
		}
	}
}

func (p *parser) identifier() (any, error) {
	t := p.next()
	upper := strings.ToUpper(t.text)

	switch upper {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	case "NULL":
		return nil, nil
	}

	if p.peek().kind != tLParen {
		return map[string]any{"property": t.text}, nil
	}

	if _, ok := geometryTypes[upper]; ok {
		return p.geometry(upper)
	}

	switch upper {
	case "TIMESTAMP", "DATE":
		p.next()
		s, err := p.expect(tString, "quoted instant")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tRParen, ")"); err != nil {
			return nil, err
		}
		return map[string]any{strings.ToLower(upper): s.text}, nil
	case "INTERVAL":
		p.next()
		args, err := p.list(tRParen)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("INTERVAL takes 2 arguments, got %d", len(args))
		}
		return map[string]any{"interval": intervalBounds(args)}, nil
	case "BBOX", "ENVELOPE":
		p.next()
		args, err := p.list(tRParen)
		if err != nil {
			return nil, err
		}
		if len(args) != 4 && len(args) != 6 {
			return nil, fmt.Errorf("BBOX takes 4 or 6 numbers, got %d", len(args))
		}
		return map[string]any{"bbox": args}, nil
	}

	p.next()
	args, err := p.list(tRParen)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(t.text)
	switch {
	case strings.HasPrefix(name, "s_"), strings.HasPrefix(name, "t_"), strings.HasPrefix(name, "a_"),
		name == "casei", name == "accenti":
		return op(name, args...), nil
	}
	return op(t.text, args...), nil
}

// bounds are instants; the open bound stays ".."
func intervalBounds(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if m, ok := a.(map[string]any); ok {
			for _, k := range []string{"timestamp", "date"} {
				if v, ok := m[k]; ok {
					a = v
				}
			}
		}
		out[i] = a
	}
	return out
}
