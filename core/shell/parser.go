package shell

import (
	"errors"
	"fmt"
	"strings"
)

// ParseReason says why parsing failed.
type ParseReason int

const (
	UnexpectedToken ParseReason = iota + 1
	MissingOperand
)

// ParseError is returned by Parse for malformed command structure.
type ParseError struct {
	Reason ParseReason

	// Token is the offending token for UnexpectedToken, or the operator that
	// lacks an operand for MissingOperand.
	Token  Token
	Offset int
}

func (e *ParseError) Error() string {
	switch {
	case e.Reason == MissingOperand:
		return fmt.Sprintf("syntax error: missing operand after `%s'", e.Token)
	case e.Token.Kind == EOF:
		return "syntax error: unexpected end of input"
	default:
		return fmt.Sprintf("syntax error near unexpected token `%s'", e.Token)
	}
}

// ParseString tokenizes and parses src. Each pipeline records the source
// text it came from.
func ParseString(src string) (*List, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := newParser(tokens, src)
	return p.parse()
}

// NeedsMore reports whether src stops in the middle of a command: inside a
// quote, substitution or here-document, after a binary operator, or inside
// an open subshell. Interactive and script readers use it to keep reading.
func NeedsMore(src string) bool {
	l := &lexer{src: src}
	if err := l.run(); err != nil {
		var lexErr *LexError
		return errors.As(err, &lexErr) && lexErr.Reason != DanglingEscape
	}
	if l.openDoc || l.openSubst {
		return true
	}
	p := newParser(l.tokens, src)
	_, err := p.parse()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return false
	}
	switch parseErr.Reason {
	case MissingOperand:
		switch parseErr.Token.Kind {
		case And, Or, Pipe:
			return parseErr.Offset == p.end
		}
		return false
	default:
		return parseErr.Token.Kind == EOF
	}
}

// Parse builds a command list from tokens. An empty token sequence yields an
// empty list.
func Parse(tokens []Token) (*List, error) {
	return newParser(tokens, "").parse()
}

type parser struct {
	tokens []Token
	i      int
	src    string

	// offset reported for the synthetic EOF token
	end int
}

func newParser(tokens []Token, src string) *parser {
	p := &parser{tokens: tokens, src: src}
	if n := len(tokens); n > 0 {
		p.end = tokens[n-1].Span.End
	}
	if len(src) > p.end {
		p.end = len(src)
	}
	return p
}

func (p *parser) peek() Token {
	if p.i >= len(p.tokens) {
		return Token{Kind: EOF, Span: Span{p.end, p.end}, Fd: -1}
	}
	return p.tokens[p.i]
}

func (p *parser) next() Token {
	t := p.peek()
	if p.i < len(p.tokens) {
		p.i++
	}
	return t
}

// lastEnd is the end offset of the most recently consumed token.
func (p *parser) lastEnd() int {
	if p.i == 0 {
		return 0
	}
	return p.tokens[p.i-1].Span.End
}

func (p *parser) skipNewlines() {
	for p.peek().Kind == Newline {
		p.next()
	}
}

func unexpected(t Token) error {
	return &ParseError{Reason: UnexpectedToken, Token: t, Offset: t.Span.Start}
}

// operand checks that the token after op can begin a command.
func (p *parser) operand(op Token) error {
	t := p.peek()
	switch {
	case startsCommand(t):
		return nil
	case t.Kind == EOF || t.Kind == Newline:
		return &ParseError{Reason: MissingOperand, Token: op, Offset: t.Span.Start}
	default:
		return unexpected(t)
	}
}

func startsCommand(t Token) bool {
	return t.Kind == WordToken || t.Kind == LeftParen || t.Kind.IsRedirect()
}

func (p *parser) parse() (*List, error) {
	l, err := p.list(false)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Kind != EOF {
		return nil, unexpected(t)
	}
	return l, nil
}

func (p *parser) list(nested bool) (*List, error) {
	l := &List{}
	op := Sequence
	p.skipNewlines()
	for {
		t := p.peek()
		if t.Kind == EOF || (nested && t.Kind == RightParen) {
			return l, nil
		}

		pl, err := p.pipeline()
		if err != nil {
			return nil, err
		}
		l.Entries = append(l.Entries, Entry{Op: op, Node: pl})
		op = Sequence

		t = p.peek()
		switch t.Kind {
		case EOF:
			return l, nil
		case Semicolon, Newline:
			p.next()
			p.skipNewlines()
		case And, Or:
			if pl.Background {
				return nil, unexpected(t)
			}
			p.next()
			p.skipNewlines()
			if err := p.operand(t); err != nil {
				return nil, err
			}
			op = AndThen
			if t.Kind == Or {
				op = OrElse
			}
		case RightParen:
			if nested {
				return l, nil
			}
			return nil, unexpected(t)
		default:
			// A token after & starts the next entry.
			if !pl.Background {
				return nil, unexpected(t)
			}
		}
	}
}

func (p *parser) pipeline() (*Pipeline, error) {
	start := p.peek().Span.Start
	pl := &Pipeline{}
	for {
		stage, err := p.stage()
		if err != nil {
			return nil, err
		}
		pl.Stages = append(pl.Stages, stage)

		if p.peek().Kind != Pipe {
			break
		}
		bar := p.next()
		p.skipNewlines()
		if err := p.operand(bar); err != nil {
			return nil, err
		}
	}

	end := p.lastEnd()
	if p.peek().Kind == Background {
		p.next()
		pl.Background = true
	}

	if p.src != "" && start <= end && end <= len(p.src) {
		pl.Text = strings.TrimSpace(p.src[start:end])
	} else {
		pl.Text = Print(&Pipeline{Stages: pl.Stages})
	}
	return pl, nil
}

func (p *parser) stage() (Node, error) {
	if p.peek().Kind != LeftParen {
		return p.simple()
	}

	p.next()
	body, err := p.list(true)
	if err != nil {
		return nil, err
	}
	if len(body.Entries) == 0 {
		return nil, unexpected(p.peek())
	}
	if t := p.next(); t.Kind != RightParen {
		return nil, unexpected(t)
	}

	sub := &Subshell{Body: body}
	for p.peek().Kind.IsRedirect() {
		r, err := p.redirect()
		if err != nil {
			return nil, err
		}
		sub.Redirects = append(sub.Redirects, r)
	}
	return sub, nil
}

func (p *parser) simple() (*Simple, error) {
	s := &Simple{}
	for {
		t := p.peek()
		switch {
		case t.Kind == WordToken:
			p.next()
			if len(s.Args) == 0 {
				if a, ok := assignment(t.Word); ok {
					s.Assigns = append(s.Assigns, a)
					continue
				}
			}
			s.Args = append(s.Args, t.Word)

		case t.Kind.IsRedirect():
			r, err := p.redirect()
			if err != nil {
				return nil, err
			}
			s.Redirects = append(s.Redirects, r)

		default:
			if len(s.Args) == 0 && len(s.Assigns) == 0 && len(s.Redirects) == 0 {
				return nil, unexpected(t)
			}
			return s, nil
		}
	}
}

var redirectKinds = map[TokenKind]RedirectKind{
	RedirectIn:     Input,
	RedirectOut:    Output,
	RedirectAppend: Append,
	DupOut:         DuplicateOutput,
	DupIn:          DuplicateInput,
	HereDoc:        HereDocument,
	HereString:     HereStringInput,
}

func (p *parser) redirect() (*Redirect, error) {
	op := p.next()
	kind := redirectKinds[op.Kind]

	target := p.peek()
	if target.Kind != WordToken {
		if target.Kind == EOF || target.Kind == Newline {
			return nil, &ParseError{Reason: MissingOperand, Token: op, Offset: target.Span.Start}
		}
		return nil, unexpected(target)
	}
	p.next()

	r := &Redirect{Fd: op.Fd, Kind: kind, Target: target.Word}
	if r.Fd < 0 {
		r.Fd = kind.DefaultFd()
	}
	if kind == HereDocument {
		r.Body = op.Body
		r.BodyQuoted = op.BodyQuoted
	}
	return r, nil
}

// IsName reports whether s is a valid variable name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// assignment splits a NAME=value word. The name must be unquoted.
func assignment(w *Word) (Assign, bool) {
	if len(w.Parts) == 0 || w.Parts[0].Quote != None {
		return Assign{}, false
	}
	first := w.Parts[0].Value
	eq := strings.IndexByte(first, '=')
	if eq <= 0 || !IsName(first[:eq]) {
		return Assign{}, false
	}

	value := &Word{Quoted: w.Quoted}
	if rest := first[eq+1:]; rest != "" {
		value.Parts = append(value.Parts, Part{Quote: None, Value: rest})
	}
	value.Parts = append(value.Parts, w.Parts[1:]...)
	return Assign{Name: first[:eq], Value: value}, true
}
