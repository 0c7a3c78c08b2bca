package expand

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jswans33/james-shell-sub001/core/shell"
)

// paramExpr is the parsed inside of ${...}.
type paramExpr struct {
	name   string
	length bool

	// op is one of - := + ? with an optional leading colon, or # ## % %%.
	op   string
	word string
}

var paramOps = []string{":-", ":=", ":+", ":?", "-", "=", "+", "?", "##", "#", "%%", "%"}

func parseParamExpr(s string) (paramExpr, error) {
	bad := &Error{Kind: BadSubstitution, Name: "${" + s + "}"}
	if s == "" {
		return paramExpr{}, bad
	}

	if s[0] == '#' && len(s) > 1 {
		name, size := paramName(s[1:])
		if size == 0 || size != len(s)-1 {
			return paramExpr{}, bad
		}
		return paramExpr{name: name, length: true}, nil
	}

	name, size := paramName(s)
	if size == 0 {
		return paramExpr{}, bad
	}
	p := paramExpr{name: name}
	rest := s[size:]
	if rest == "" {
		return p, nil
	}
	for _, op := range paramOps {
		if strings.HasPrefix(rest, op) {
			p.op = op
			p.word = rest[len(op):]
			return p, nil
		}
	}
	return paramExpr{}, bad
}

// paramName is like specialOrName but allows multi-digit positionals.
func paramName(s string) (string, int) {
	if s != "" && '0' <= s[0] && s[0] <= '9' {
		n := 1
		for n < len(s) && '0' <= s[n] && s[n] <= '9' {
			n++
		}
		return s[:n], n
	}
	return specialOrName(s)
}

// value looks up a parameter, reporting whether it is set.
func (e *expander) value(name string) (string, bool) {
	switch name {
	case "#":
		return strconv.Itoa(len(e.cfg.Args)), true
	case "@", "*":
		return strings.Join(e.cfg.Args, " "), len(e.cfg.Args) > 0
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		if n <= len(e.cfg.Args) {
			return e.cfg.Args[n-1], true
		}
		return "", false
	}
	return e.lookup(name)
}

func result(v string, quoted bool) []fragment {
	return []fragment{{text: v, quoted: quoted, split: !quoted}}
}

func (e *expander) param(p paramExpr, quoted bool) ([]fragment, error) {
	if p.length {
		if p.name == "@" || p.name == "*" {
			return result(strconv.Itoa(len(e.cfg.Args)), quoted), nil
		}
		v, set := e.value(p.name)
		if !set && e.cfg.NoUnset {
			return nil, &Error{Kind: Unbound, Name: p.name}
		}
		return result(strconv.Itoa(utf8.RuneCountInString(v)), quoted), nil
	}

	if p.op == "" && (p.name == "@" || p.name == "*") {
		return e.positional(p.name, quoted), nil
	}

	v, set := e.value(p.name)
	colon := strings.HasPrefix(p.op, ":")
	missing := !set || (colon && v == "")

	switch strings.TrimPrefix(p.op, ":") {
	case "":
		if !set && e.cfg.NoUnset {
			return nil, &Error{Kind: Unbound, Name: p.name}
		}
		return result(v, quoted), nil

	case "-":
		if missing {
			return e.operand(p.word, quoted)
		}
		return result(v, quoted), nil

	case "=":
		if !missing {
			return result(v, quoted), nil
		}
		if !shell.IsName(p.name) {
			return nil, &Error{Kind: BadSubstitution, Name: "$" + p.name}
		}
		frags, err := e.operand(p.word, true)
		if err != nil {
			return nil, err
		}
		nv := joinFragments(frags)
		if e.cfg.Env != nil {
			if err := e.cfg.Env.Setenv(p.name, nv); err != nil {
				return nil, err
			}
		}
		return result(nv, quoted), nil

	case "+":
		if missing {
			return result("", quoted), nil
		}
		return e.operand(p.word, quoted)

	case "?":
		if !missing {
			return result(v, quoted), nil
		}
		frags, err := e.operand(p.word, true)
		if err != nil {
			return nil, err
		}
		msg := joinFragments(frags)
		if msg == "" {
			msg = "parameter null or not set"
		}
		return nil, &Error{Kind: Unbound, Name: p.name, Msg: msg}

	default:
		if !set && e.cfg.NoUnset {
			return nil, &Error{Kind: Unbound, Name: p.name}
		}
		frags, err := e.operand(p.word, false)
		if err != nil {
			return nil, err
		}
		pat, _ := patternOf(frags)
		return result(trimPattern(v, pat, p.op), quoted), nil
	}
}

// positional expands $@ and $*.
func (e *expander) positional(name string, quoted bool) []fragment {
	args := e.cfg.Args
	if quoted && name == "*" {
		sep := ""
		if ifs := e.ifs(); ifs != "" {
			r, _ := utf8.DecodeRuneInString(ifs)
			sep = string(r)
		}
		return []fragment{{text: strings.Join(args, sep), quoted: true}}
	}

	var out []fragment
	for i, a := range args {
		if i > 0 {
			out = append(out, fragment{brk: true})
		}
		out = append(out, fragment{text: a, quoted: quoted, split: !quoted})
	}
	return out
}

// operand expands the word of a ${name<op>word} form. Quotes inside the word
// are honored; inside an outer double quote every result is quoted.
func (e *expander) operand(s string, quoted bool) ([]fragment, error) {
	frags, err := e.word(operandWord(s))
	if err != nil {
		return nil, err
	}
	if quoted {
		for i := range frags {
			frags[i].quoted = true
			frags[i].split = false
		}
	}
	return frags, nil
}

// operandWord splits raw operand text into quoting parts the way the lexer
// would inside a single word.
func operandWord(s string) *shell.Word {
	w := &shell.Word{}
	var sb strings.Builder
	q := shell.None
	flush := func() {
		if sb.Len() > 0 {
			w.Parts = append(w.Parts, shell.Part{Quote: q, Value: sb.String()})
			sb.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case (c == '$' || c == '`') && q != shell.Single:
			end, ok := shell.SubstitutionEnd(s, i)
			if !ok {
				end = len(s)
			}
			sb.WriteString(s[i:end])
			i = end - 1

		case c == '\'' && q == shell.None:
			flush()
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				end = len(s) - i - 1
			}
			w.Parts = append(w.Parts, shell.Part{Quote: shell.Single, Value: s[i+1 : i+1+end]})
			w.Quoted = true
			i += end + 1

		case c == '"':
			flush()
			if q == shell.Double {
				q = shell.None
			} else {
				q = shell.Double
				w.Quoted = true
				w.Parts = append(w.Parts, shell.Part{Quote: shell.Double})
			}

		case c == '\\' && i+1 < len(s) && (q == shell.None || strings.IndexByte("\"\\$`", s[i+1]) >= 0):
			flush()
			w.Parts = append(w.Parts, shell.Part{Quote: shell.Escaped, Value: s[i+1 : i+2]})
			i++

		default:
			sb.WriteByte(c)
		}
	}
	flush()
	return w
}

// trimPattern removes a matching prefix (# shortest, ## longest) or suffix
// (% shortest, %% longest) from v.
func trimPattern(v, pat, op string) string {
	switch op {
	case "#":
		for i := 0; i <= len(v); i++ {
			if match(pat, v[:i]) {
				return v[i:]
			}
		}
	case "##":
		for i := len(v); i >= 0; i-- {
			if match(pat, v[:i]) {
				return v[i:]
			}
		}
	case "%":
		for i := len(v); i >= 0; i-- {
			if match(pat, v[i:]) {
				return v[:i]
			}
		}
	case "%%":
		for i := 0; i <= len(v); i++ {
			if match(pat, v[i:]) {
				return v[:i]
			}
		}
	}
	return v
}
