package cql2

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tQuotedIdent
	tString
	tNumber
	tLParen
	tRParen
	tComma
	tOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

func lex(src string) ([]token, error) {
	var out []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			out = append(out, token{tLParen, "(", i})
			i++
		case r == ')':
			out = append(out, token{tRParen, ")", i})
			i++
		case r == ',':
			out = append(out, token{tComma, ",", i})
			i++
		case r == '\'':
			s, n, err := lexQuoted(rs, i, '\'')
			if err != nil {
				return nil, err
			}
			out = append(out, token{tString, s, i})
			i = n
		case r == '"':
			s, n, err := lexQuoted(rs, i, '"')
			if err != nil {
				return nil, err
			}
			out = append(out, token{tQuotedIdent, s, i})
			i = n
		case r == '<':
			switch {
			case i+1 < len(rs) && rs[i+1] == '=':
				out = append(out, token{tOp, "<=", i})
				i += 2
			case i+1 < len(rs) && rs[i+1] == '>':
				out = append(out, token{tOp, "<>", i})
				i += 2
			default:
				out = append(out, token{tOp, "<", i})
				i++
			}
		case r == '>':
			if i+1 < len(rs) && rs[i+1] == '=' {
				out = append(out, token{tOp, ">=", i})
				i += 2
			} else {
				out = append(out, token{tOp, ">", i})
				i++
			}
		case r == '!' && i+1 < len(rs) && rs[i+1] == '=':
			out = append(out, token{tOp, "<>", i})
			i += 2
		case strings.ContainsRune("=+-*/%^", r):
			out = append(out, token{tOp, string(r), i})
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			if j < len(rs) && (rs[j] == 'e' || rs[j] == 'E') {
				k := j + 1
				if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
					k++
				}
				if k < len(rs) && unicode.IsDigit(rs[k]) {
					j = k
					for j < len(rs) && unicode.IsDigit(rs[j]) {
						j++
					}
				}
			}
			out = append(out, token{tNumber, string(rs[i:j]), i})
			i = j
		case isIdentStart(r):
			j := i
			for j < len(rs) && isIdentPart(rs[j]) {
				j++
			}
			out = append(out, token{tIdent, string(rs[i:j]), i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", r, i)
		}
	}
	out = append(out, token{kind: tEOF, pos: len(rs)})
	return out, nil
}

// quote doubling escapes the quote character
func lexQuoted(rs []rune, start int, q rune) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		if rs[i] == q {
			if i+1 < len(rs) && rs[i+1] == q {
				b.WriteRune(q)
				i++
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteRune(rs[i])
	}
	return "", 0, fmt.Errorf("unterminated quoted text starting at %d", start)
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' || r == '.'
}
