package expand

import (
	"strconv"
	"strings"
)

// Arithm evaluates an integer expression with C precedence. Names are looked
// up in env; unset or empty variables count as zero.
func Arithm(expr string, env Environ) (int64, error) {
	lookup := func(name string) (string, bool) {
		if env == nil {
			return "", false
		}
		return env.LookupEnv(name)
	}
	return evalArithm(expr, lookup, false, 0)
}

func (e *expander) arithm(src string) (string, error) {
	inner := src[3 : len(src)-2]
	frags, err := e.text(inner, true)
	if err != nil {
		return "", err
	}
	n, err := evalArithm(joinFragments(frags), e.value, e.cfg.NoUnset, 0)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// Variables holding expressions are evaluated recursively up to this depth.
const maxArithmDepth = 16

func evalArithm(expr string, lookup func(string) (string, bool), noUnset bool, depth int) (int64, error) {
	toks, err := arithTokens(expr)
	if err != nil {
		return 0, err
	}
	p := &arithParser{expr: expr, toks: toks, lookup: lookup, noUnset: noUnset, depth: depth}
	if len(toks) == 0 {
		return 0, nil
	}
	v, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if p.i < len(p.toks) {
		return 0, p.syntax("unexpected " + p.toks[p.i].text)
	}
	return v, nil
}

type arithKind int

const (
	arithNum arithKind = iota
	arithName
	arithOp
)

type arithToken struct {
	kind arithKind
	text string
	num  int64
}

var arithOps2 = []string{"<<", ">>", "<=", ">=", "==", "!=", "&&", "||"}

func arithTokens(expr string) ([]arithToken, error) {
	var toks []arithToken
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++

		case '0' <= c && c <= '9':
			j := i
			for j < len(expr) && isNameByte(expr[j]) {
				j++
			}
			n, err := strconv.ParseInt(expr[i:j], 0, 64)
			if err != nil {
				return nil, &Error{Kind: ArithmSyntax, Name: expr, Msg: "invalid number " + expr[i:j]}
			}
			toks = append(toks, arithToken{kind: arithNum, text: expr[i:j], num: n})
			i = j

		case isNameByte(c):
			j := i
			for j < len(expr) && isNameByte(expr[j]) {
				j++
			}
			toks = append(toks, arithToken{kind: arithName, text: expr[i:j]})
			i = j

		default:
			matched := false
			for _, op := range arithOps2 {
				if strings.HasPrefix(expr[i:], op) {
					toks = append(toks, arithToken{kind: arithOp, text: op})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.IndexByte("+-*/%()<>&^|!~?:", c) < 0 {
				return nil, &Error{Kind: ArithmSyntax, Name: expr, Msg: "invalid character " + string(c)}
			}
			toks = append(toks, arithToken{kind: arithOp, text: string(c)})
			i++
		}
	}
	return toks, nil
}

type arithParser struct {
	expr    string
	toks    []arithToken
	i       int
	lookup  func(string) (string, bool)
	noUnset bool
	depth   int

	// skip is non-zero inside the unevaluated side of && || and ?:
	skip int
}

func (p *arithParser) syntax(msg string) error {
	return &Error{Kind: ArithmSyntax, Name: p.expr, Msg: msg}
}

func (p *arithParser) peekOp(ops ...string) (string, bool) {
	if p.i >= len(p.toks) || p.toks[p.i].kind != arithOp {
		return "", false
	}
	for _, op := range ops {
		if p.toks[p.i].text == op {
			return op, true
		}
	}
	return "", false
}

func (p *arithParser) expect(op string) error {
	if _, ok := p.peekOp(op); !ok {
		return p.syntax("expected " + op)
	}
	p.i++
	return nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *arithParser) ternary() (int64, error) {
	cond, err := p.logOr()
	if err != nil {
		return 0, err
	}
	if _, ok := p.peekOp("?"); !ok {
		return cond, nil
	}
	p.i++

	if cond == 0 {
		p.skip++
	}
	a, err := p.ternary()
	if cond == 0 {
		p.skip--
	}
	if err != nil {
		return 0, err
	}
	if err := p.expect(":"); err != nil {
		return 0, err
	}
	if cond != 0 {
		p.skip++
	}
	b, err := p.ternary()
	if cond != 0 {
		p.skip--
	}
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return a, nil
	}
	return b, nil
}

func (p *arithParser) logOr() (int64, error) {
	l, err := p.logAnd()
	if err != nil {
		return 0, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return l, nil
		}
		p.i++
		if l != 0 {
			p.skip++
		}
		r, err := p.logAnd()
		if l != 0 {
			p.skip--
		}
		if err != nil {
			return 0, err
		}
		l = b2i(l != 0 || r != 0)
	}
}

func (p *arithParser) logAnd() (int64, error) {
	l, err := p.binary(0)
	if err != nil {
		return 0, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return l, nil
		}
		p.i++
		if l == 0 {
			p.skip++
		}
		r, err := p.binary(0)
		if l == 0 {
			p.skip--
		}
		if err != nil {
			return 0, err
		}
		l = b2i(l != 0 && r != 0)
	}
}

// Binary operator levels from loosest to tightest.
var arithLevels = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *arithParser) binary(level int) (int64, error) {
	if level == len(arithLevels) {
		return p.unary()
	}
	l, err := p.binary(level + 1)
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp(arithLevels[level]...)
		if !ok {
			return l, nil
		}
		p.i++
		r, err := p.binary(level + 1)
		if err != nil {
			return 0, err
		}
		if l, err = p.apply(op, l, r); err != nil {
			return 0, err
		}
	}
}

func (p *arithParser) apply(op string, l, r int64) (int64, error) {
	switch op {
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	case "&":
		return l & r, nil
	case "==":
		return b2i(l == r), nil
	case "!=":
		return b2i(l != r), nil
	case "<":
		return b2i(l < r), nil
	case "<=":
		return b2i(l <= r), nil
	case ">":
		return b2i(l > r), nil
	case ">=":
		return b2i(l >= r), nil
	case "<<":
		return l << (uint64(r) & 63), nil
	case ">>":
		return l >> (uint64(r) & 63), nil
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/", "%":
		if r == 0 {
			if p.skip > 0 {
				return 0, nil
			}
			return 0, &Error{Kind: DivideByZero, Name: p.expr}
		}
		if op == "/" {
			return l / r, nil
		}
		return l % r, nil
	}
	return 0, p.syntax("unknown operator " + op)
}

func (p *arithParser) unary() (int64, error) {
	if op, ok := p.peekOp("+", "-", "!", "~"); ok {
		p.i++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "-":
			return -v, nil
		case "!":
			return b2i(v == 0), nil
		case "~":
			return ^v, nil
		}
		return v, nil
	}
	return p.primary()
}

func (p *arithParser) primary() (int64, error) {
	if p.i >= len(p.toks) {
		return 0, p.syntax("operand expected")
	}
	t := p.toks[p.i]
	p.i++

	switch t.kind {
	case arithNum:
		return t.num, nil

	case arithName:
		if p.skip > 0 {
			return 0, nil
		}
		v, set := p.lookup(t.text)
		if !set && p.noUnset {
			return 0, &Error{Kind: Unbound, Name: t.text}
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if n, err := strconv.ParseInt(v, 0, 64); err == nil {
			return n, nil
		}
		if p.depth >= maxArithmDepth {
			return 0, p.syntax("expression recursion level exceeded")
		}
		return evalArithm(v, p.lookup, p.noUnset, p.depth+1)

	default:
		if t.text == "(" {
			v, err := p.ternary()
			if err != nil {
				return 0, err
			}
			if err := p.expect(")"); err != nil {
				return 0, err
			}
			return v, nil
		}
		return 0, p.syntax("unexpected " + t.text)
	}
}
