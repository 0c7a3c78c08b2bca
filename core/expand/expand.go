// Package expand implements word expansion: tilde, parameters, command
// substitution, arithmetic, field splitting, globbing and quote removal, in
// that order.
package expand

import (
	"context"
	"fmt"
	"os/user"
	"strings"
	"unicode/utf8"

	"github.com/jswans33/james-shell-sub001/core/shell"
	"github.com/spf13/afero"
)

// Environ is the variable table expansions read and assign through.
// *vos.MapEnv satisfies it; the shell layers its special parameters on top.
type Environ interface {
	LookupEnv(name string) (string, bool)
	Setenv(name, value string) error
}

// GlobPolicy decides what an unmatched pattern expands to.
type GlobPolicy int

const (
	// GlobLiteral keeps the pattern text as the field.
	GlobLiteral GlobPolicy = iota
	// GlobEmpty removes the field.
	GlobEmpty
	// GlobError fails the expansion with a NoMatch error.
	GlobError
)

// ParseGlobPolicy maps a configuration value to a policy.
func ParseGlobPolicy(s string) (GlobPolicy, error) {
	switch s {
	case "", "literal":
		return GlobLiteral, nil
	case "empty":
		return GlobEmpty, nil
	case "error":
		return GlobError, nil
	}
	return GlobLiteral, fmt.Errorf("unknown glob policy %q", s)
}

// DefaultIFS is used when IFS is unset.
const DefaultIFS = " \t\n"

// Config carries everything an expansion may consult.
type Config struct {
	Env Environ

	// Args are the positional parameters $1 and up.
	Args []string

	// NoUnset makes a reference to an unset variable an error.
	NoUnset bool
	// NoGlob disables pathname expansion.
	NoGlob bool
	Glob   GlobPolicy

	// Fs and Dir are used for globbing; relative patterns are resolved
	// against Dir.
	Fs  afero.Fs
	Dir string

	// Subst runs the source of a command substitution and returns its
	// output. Trailing newlines are removed by the caller.
	Subst func(ctx context.Context, src string) (string, error)

	// HomeDir resolves ~user. If nil the system user database is used.
	HomeDir func(name string) (string, bool)
}

// ErrorKind classifies expansion failures.
type ErrorKind int

const (
	Unbound ErrorKind = iota + 1
	DivideByZero
	Unterminated
	BadSubstitution
	NoMatch
	ArithmSyntax
	Substitution
)

// Error is returned for a failed expansion.
type Error struct {
	Kind ErrorKind

	// Name is the variable, substitution or pattern involved.
	Name string
	// Msg overrides the default message, as ${name:?msg} does.
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case Unbound:
		if e.Msg != "" {
			return e.Name + ": " + e.Msg
		}
		return e.Name + ": unbound variable"
	case DivideByZero:
		return "division by zero"
	case Unterminated:
		return "unterminated substitution: " + e.Name
	case BadSubstitution:
		return e.Name + ": bad substitution"
	case NoMatch:
		return "no match: " + e.Name
	case ArithmSyntax:
		return fmt.Sprintf("%s: syntax error in expression (%s)", e.Name, e.Msg)
	case Substitution:
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return "expansion error"
}

func (e *Error) Unwrap() error { return e.Err }

// fragment is a run of text in a field.
type fragment struct {
	text string

	// quoted text is protected from splitting and globbing
	quoted bool
	// split text came from an unquoted expansion and is subject to field
	// splitting
	split bool
	// brk forces a field boundary, as between the arguments of $@
	brk bool
}

type expander struct {
	ctx context.Context
	cfg *Config
}

func newExpander(ctx context.Context, cfg *Config) *expander {
	if cfg == nil {
		cfg = &Config{}
	}
	return &expander{ctx: ctx, cfg: cfg}
}

// Fields expands words into the final argument list.
func Fields(ctx context.Context, cfg *Config, words ...*shell.Word) ([]string, error) {
	e := newExpander(ctx, cfg)
	var out []string
	for _, w := range words {
		frags, err := e.word(w)
		if err != nil {
			return nil, err
		}
		for _, f := range e.split(frags) {
			matches, err := e.glob(f)
			if err != nil {
				return nil, err
			}
			out = append(out, matches...)
		}
	}
	return out, nil
}

// Literal expands a word to a single string without splitting or globbing,
// as for redirection targets and assignment values.
func Literal(ctx context.Context, cfg *Config, w *shell.Word) (string, error) {
	e := newExpander(ctx, cfg)
	frags, err := e.word(w)
	if err != nil {
		return "", err
	}
	return joinFragments(frags), nil
}

// Document expands a here-document body. Only $, backquote, backslash and
// newline may be escaped; quote characters are ordinary. A quoted body is
// returned unchanged.
func Document(ctx context.Context, cfg *Config, body string, quoted bool) (string, error) {
	if quoted {
		return body, nil
	}
	w := &shell.Word{Quoted: true}
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			w.Parts = append(w.Parts, shell.Part{Quote: shell.Double, Value: sb.String()})
			sb.Reset()
		}
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			switch next := body[i+1]; next {
			case '$', '`', '\\':
				flush()
				w.Parts = append(w.Parts, shell.Part{Quote: shell.Escaped, Value: string(next)})
				i++
				continue
			case '\n':
				i++
				continue
			}
		}
		sb.WriteByte(c)
	}
	flush()
	return Literal(ctx, cfg, w)
}

func joinFragments(frags []fragment) string {
	var sb strings.Builder
	for _, f := range frags {
		if f.brk {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteString(f.text)
	}
	return sb.String()
}

func (e *expander) word(w *shell.Word) ([]fragment, error) {
	if w == nil {
		return nil, nil
	}
	var out []fragment
	for i, p := range w.Parts {
		switch p.Quote {
		case shell.Single, shell.Escaped:
			out = append(out, fragment{text: p.Value, quoted: true})

		case shell.Double:
			if p.Value == "" {
				out = append(out, fragment{quoted: true})
				continue
			}
			frags, err := e.text(p.Value, true)
			if err != nil {
				return nil, err
			}
			out = append(out, frags...)

		case shell.None:
			text := p.Value
			if i == 0 && strings.HasPrefix(text, "~") {
				home, rest, ok := e.tilde(w, text)
				if ok {
					out = append(out, fragment{text: home, quoted: true})
					text = rest
				}
			}
			frags, err := e.text(text, false)
			if err != nil {
				return nil, err
			}
			out = append(out, frags...)
		}
	}
	return out, nil
}

// tilde resolves a leading ~ or ~user prefix. The prefix ends at the first
// slash; if it runs to the end of the part, the next part must not be quoted
// text continuing the login name.
func (e *expander) tilde(w *shell.Word, text string) (home, rest string, ok bool) {
	name := text[1:]
	if slash := strings.IndexByte(name, '/'); slash >= 0 {
		name, rest = name[:slash], name[slash:]
	} else if len(w.Parts) > 1 && !strings.HasPrefix(w.Parts[1].Value, "/") {
		return "", "", false
	}

	switch name {
	case "":
		home, ok = e.lookup("HOME")
	case "+":
		home, ok = e.lookup("PWD")
	case "-":
		home, ok = e.lookup("OLDPWD")
	default:
		if !shell.IsName(strings.ReplaceAll(strings.ReplaceAll(name, "-", "_"), ".", "_")) {
			return "", "", false
		}
		home, ok = e.userHome(name)
	}
	return home, rest, ok
}

func (e *expander) userHome(name string) (string, bool) {
	if e.cfg.HomeDir != nil {
		return e.cfg.HomeDir(name)
	}
	u, err := user.Lookup(name)
	if err != nil {
		return "", false
	}
	return u.HomeDir, true
}

func (e *expander) lookup(name string) (string, bool) {
	if e.cfg.Env == nil {
		return "", false
	}
	return e.cfg.Env.LookupEnv(name)
}

// text expands the raw text of an unquoted or double quoted part.
func (e *expander) text(s string, quoted bool) ([]fragment, error) {
	var out []fragment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, fragment{text: lit.String(), quoted: quoted})
			lit.Reset()
		}
	}
	result := func(v string) {
		out = append(out, fragment{text: v, quoted: quoted, split: !quoted})
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' && c != '`' {
			lit.WriteByte(c)
			i++
			continue
		}

		end, ok := shell.SubstitutionEnd(s, i)
		if !ok {
			return nil, &Error{Kind: Unterminated, Name: s[i:]}
		}
		src := s[i:end]

		switch {
		case src == "$":
			if name, size := specialOrName(s[i+1:]); size > 0 {
				flush()
				frags, err := e.param(paramExpr{name: name}, quoted)
				if err != nil {
					return nil, err
				}
				out = append(out, frags...)
				end = i + 1 + size
			} else {
				lit.WriteByte('$')
			}

		case strings.HasPrefix(src, "$(("):
			flush()
			v, err := e.arithm(src)
			if err != nil {
				return nil, err
			}
			result(v)

		case strings.HasPrefix(src, "$("):
			flush()
			v, err := e.subst(src[2:len(src)-1], src)
			if err != nil {
				return nil, err
			}
			result(v)

		case strings.HasPrefix(src, "${"):
			flush()
			expr, err := parseParamExpr(src[2 : len(src)-1])
			if err != nil {
				return nil, err
			}
			frags, err := e.param(expr, quoted)
			if err != nil {
				return nil, err
			}
			out = append(out, frags...)

		case src[0] == '`':
			flush()
			v, err := e.subst(unescapeBackquote(src[1:len(src)-1]), src)
			if err != nil {
				return nil, err
			}
			result(v)
		}
		i = end
	}
	flush()
	return out, nil
}

// specialOrName returns the parameter name at the start of s and its length.
func specialOrName(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	switch c := s[0]; {
	case strings.IndexByte("?$!#@*-0123456789", c) >= 0:
		return s[:1], 1
	case c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z'):
		n := 1
		for n < len(s) && isNameByte(s[n]) {
			n++
		}
		return s[:n], n
	}
	return "", 0
}

func isNameByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func unescapeBackquote(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte("$`\\", s[i+1]) >= 0 {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func (e *expander) subst(src, display string) (string, error) {
	if e.cfg.Subst == nil {
		return "", &Error{Kind: BadSubstitution, Name: display}
	}
	out, err := e.cfg.Subst(e.ctx, src)
	if err != nil {
		return "", &Error{Kind: Substitution, Name: display, Err: err}
	}
	return strings.TrimRight(out, "\n"), nil
}

func (e *expander) ifs() string {
	if v, ok := e.lookup("IFS"); ok {
		return v
	}
	return DefaultIFS
}

func isIFSSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

// split performs field splitting. Only fragments marked split are
// examined; IFS whitespace runs collapse, other IFS characters delimit
// exactly one field each.
func (e *expander) split(frags []fragment) [][]fragment {
	ifs := e.ifs()

	var fields [][]fragment
	var cur []fragment
	afterSpace := false
	emit := func() {
		if keepField(cur) {
			fields = append(fields, cur)
		}
		cur = nil
	}

	for _, f := range frags {
		if f.brk {
			emit()
			afterSpace = false
			continue
		}
		if !f.split || ifs == "" {
			cur = append(cur, f)
			if f.text != "" {
				afterSpace = false
			}
			continue
		}

		s := f.text
		start := 0
		for j := 0; j < len(s); {
			r, size := utf8.DecodeRuneInString(s[j:])
			if !strings.ContainsRune(ifs, r) {
				j += size
				continue
			}
			if j > start {
				cur = append(cur, fragment{text: s[start:j]})
				afterSpace = false
			}
			if isIFSSpace(r) {
				if len(cur) > 0 {
					emit()
					afterSpace = true
				}
			} else {
				if len(cur) > 0 || !afterSpace {
					fields = append(fields, cur)
					cur = nil
				}
				afterSpace = false
			}
			j += size
			start = j
		}
		if start < len(s) {
			cur = append(cur, fragment{text: s[start:]})
			afterSpace = false
		}
	}
	emit()
	return fields
}

// keepField reports whether a field survives empty-field removal: it must
// hold some text or some quoting.
func keepField(f []fragment) bool {
	for _, frag := range f {
		if frag.quoted || frag.text != "" {
			return true
		}
	}
	return false
}
