package symbolic

import (
	"strconv"
	"strings"
	"unicode"
)

// Parse parses a Python-style arithmetic/boolean expression. The grammar
// covers what appears in IR properties: names, dotted members, subscripts
// (with slices), calls, the arithmetic operators (+ - * / // % **),
// comparisons, and "and"/"or"/"not".
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	p.next()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, errorf("unexpected %q at offset %d in %q", p.tok.text, p.tok.pos, src)
	}
	return e, nil
}

// MustParse is Parse for known-good literals; it panics on error.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// ParseOrOpaque parses src, falling back to an Opaque wrapper when the text
// is not expression-like. Rewrites leave Opaque values untouched.
func ParseOrOpaque(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		return &Opaque{Text: src}
	}
	return e
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokDot
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src string
	off int
	tok token
}

func (p *parser) next() {
	for p.off < len(p.src) && (p.src[p.off] == ' ' || p.src[p.off] == '\t') {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.off]
	switch {
	case isIdentStart(rune(c)):
		for p.off < len(p.src) && isIdentPart(rune(p.src[p.off])) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	case c >= '0' && c <= '9':
		for p.off < len(p.src) && (isIdentPart(rune(p.src[p.off])) || p.src[p.off] == '.') {
			// Stop a trailing dot that starts a member access (e.g. "1.x" is invalid anyway).
			if p.src[p.off] == '.' && p.off+1 < len(p.src) && !(p.src[p.off+1] >= '0' && p.src[p.off+1] <= '9') {
				break
			}
			p.off++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.off], pos: start}
	default:
		two := ""
		if p.off+1 < len(p.src) {
			two = p.src[p.off : p.off+2]
		}
		switch two {
		case "**", "//", "<=", ">=", "==", "!=":
			p.off += 2
			p.tok = token{kind: tokOp, text: two, pos: start}
			return
		}
		p.off++
		switch c {
		case '(':
			p.tok = token{kind: tokLParen, text: "(", pos: start}
		case ')':
			p.tok = token{kind: tokRParen, text: ")", pos: start}
		case '[':
			p.tok = token{kind: tokLBracket, text: "[", pos: start}
		case ']':
			p.tok = token{kind: tokRBracket, text: "]", pos: start}
		case ',':
			p.tok = token{kind: tokComma, text: ",", pos: start}
		case ':':
			p.tok = token{kind: tokColon, text: ":", pos: start}
		case '.':
			p.tok = token{kind: tokDot, text: ".", pos: start}
		case '+', '-', '*', '/', '%', '<', '>':
			p.tok = token{kind: tokOp, text: string(c), pos: start}
		default:
			p.tok = token{kind: tokOp, text: string(c), pos: start}
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "or" {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "or", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "and" {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "and", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.tok.kind == tokIdent && p.tok.text == "not" {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Expr, error) {
	l, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		switch p.tok.text {
		case "<", "<=", ">", ">=", "==", "!=":
			op := p.tok.text
			p.next()
			r, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			l = &Binary{Op: op, L: l, R: r}
			continue
		}
		break
	}
	return l, nil
}

func (p *parser) parseAdd() (Expr, error) {
	l, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseMul() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		switch p.tok.text {
		case "*", "/", "//", "%":
			op := p.tok.text
			p.next()
			r, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			l = &Binary{Op: op, L: l, R: r}
			continue
		}
		break
	}
	return l, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		op := p.tok.text
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return x, nil
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	l, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokOp && p.tok.text == "**" {
		p.next()
		// Right-associative.
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "**", L: l, R: r}, nil
	}
	return l, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.kind {
		case tokDot:
			p.next()
			if p.tok.kind != tokIdent {
				return nil, errorf("expected member name after '.' in %q", p.src)
			}
			e = &Attr{Base: e, Name: p.tok.text}
			p.next()
		case tokLBracket:
			p.next()
			args, err := p.parseSubscriptArgs()
			if err != nil {
				return nil, err
			}
			e = &Index{Base: e, Args: args}
		case tokLParen:
			name, ok := DottedName(e)
			if !ok {
				return nil, errorf("cannot call non-name expression in %q", p.src)
			}
			p.next()
			var args []Expr
			if p.tok.kind != tokRParen {
				for {
					a, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.tok.kind != tokComma {
						break
					}
					p.next()
				}
			}
			if p.tok.kind != tokRParen {
				return nil, errorf("expected ')' in %q", p.src)
			}
			p.next()
			e = &Call{Fn: name, Args: args}
		default:
			return e, nil
		}
	}
}

func (p *parser) parseSubscriptArgs() ([]Expr, error) {
	var args []Expr
	for {
		lo, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind == tokColon {
			p.next()
			hi, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, &Slice{Lo: lo, Hi: hi})
		} else {
			args = append(args, lo)
		}
		if p.tok.kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if p.tok.kind != tokRBracket {
		return nil, errorf("expected ']' in %q", p.src)
	}
	p.next()
	return args, nil
}

func (p *parser) parseAtom() (Expr, error) {
	switch p.tok.kind {
	case tokIdent:
		name := p.tok.text
		if name == "and" || name == "or" || name == "not" {
			return nil, errorf("unexpected keyword %q in %q", name, p.src)
		}
		p.next()
		return &Sym{Name: name}, nil
	case tokNumber:
		text := p.tok.text
		p.next()
		if strings.ContainsAny(text, ".eE") && !strings.HasPrefix(text, "0x") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, errorf("bad number %q", text)
			}
			return NewFloat(f), nil
		}
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, errorf("bad number %q", text)
		}
		return NewInt(v), nil
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errorf("expected ')' in %q", p.src)
		}
		p.next()
		return e, nil
	}
	return nil, errorf("unexpected %q at offset %d in %q", p.tok.text, p.tok.pos, p.src)
}
