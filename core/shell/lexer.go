package shell

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LexReason says why tokenizing failed.
type LexReason int

const (
	UnterminatedQuote LexReason = iota + 1
	DanglingEscape
)

func (r LexReason) String() string {
	switch r {
	case UnterminatedQuote:
		return "unterminated quote"
	case DanglingEscape:
		return "dangling escape"
	}
	return "lex error"
}

// LexError is returned by Tokenize for malformed quoting or escaping. Offset
// is the byte offset of the construct that was left open.
type LexError struct {
	Reason LexReason
	Offset int
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Reason, e.Offset)
}

type lexState int

const (
	stateNormal lexState = iota
	stateInWord
)

type lexer struct {
	src    string
	pos    int
	state  lexState
	tokens []Token

	word      *Word
	wordStart int

	// indexes into tokens of << operators still waiting for their body
	pendingDocs []int
	// openDoc is set when input ended inside a here-document
	openDoc bool
	// openSubst is set when a substitution was never closed
	openSubst bool
}

// Tokenize breaks a line of input into words and operators.
func Tokenize(input string) ([]Token, error) {
	l := &lexer{src: input}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

func isOperatorChar(c byte) bool {
	switch c {
	case '|', '<', '>', '&', ';', '(', ')':
		return true
	}
	return false
}

var operators = []struct {
	text string
	kind TokenKind
}{
	// Longest first so matching is greedy.
	{"<<<", HereString},
	{"&&", And},
	{"||", Or},
	{">>", RedirectAppend},
	{">&", DupOut},
	{"<&", DupIn},
	{"<<", HereDoc},
	{"|", Pipe},
	{"&", Background},
	{";", Semicolon},
	{"<", RedirectIn},
	{">", RedirectOut},
	{"(", LeftParen},
	{")", RightParen},
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isBlank(c):
			l.endWord()
			l.pos++

		case c == '\n':
			l.endWord()
			l.emit(Token{Kind: Newline, Span: Span{l.pos, l.pos + 1}, Fd: -1})
			l.pos++
			l.readHereDocs()

		case c == '#' && l.state == stateNormal:
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}

		case isOperatorChar(c):
			l.operator()

		case c == '\'':
			if err := l.singleQuote(); err != nil {
				return err
			}

		case c == '"':
			if err := l.doubleQuote(); err != nil {
				return err
			}

		case c == '\\':
			if err := l.escape(); err != nil {
				return err
			}

		case c == '$' || c == '`':
			// An unclosed construct takes the rest of the input and is
			// reported when the word is expanded.
			end, ok := l.substitution(l.pos)
			if !ok {
				end = len(l.src)
			}
			l.startWord()
			l.word.add(None, l.src[l.pos:end])
			l.pos = end

		default:
			l.startWord()
			l.word.add(None, l.src[l.pos:l.pos+1])
			l.pos++
		}
	}

	l.endWord()
	// A here-document left open at end of input gets whatever was collected.
	if len(l.pendingDocs) > 0 {
		l.openDoc = true
	}
	l.pendingDocs = nil
	return nil
}

func (l *lexer) emit(t Token) {
	l.tokens = append(l.tokens, t)
}

func (l *lexer) startWord() {
	if l.word == nil {
		l.word = &Word{}
		l.wordStart = l.pos
		l.state = stateInWord
	}
}

func (l *lexer) endWord() {
	if l.word != nil {
		l.emit(Token{
			Kind: WordToken,
			Span: Span{l.wordStart, l.pos},
			Word: l.word,
			Fd:   -1,
		})
	}
	l.word = nil
	l.state = stateNormal
}

// ioNumber returns the descriptor of a word made only of digits that sits
// directly against a redirection operator.
func (l *lexer) ioNumber() (int, bool) {
	if l.word == nil || l.word.Quoted || len(l.word.Parts) != 1 || l.word.Parts[0].Quote != None {
		return 0, false
	}
	text := l.word.Parts[0].Value
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, false
		}
	}
	fd, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return fd, true
}

func (l *lexer) operator() {
	start := l.pos
	fd := -1
	c := l.src[l.pos]
	if c == '<' || c == '>' {
		if n, ok := l.ioNumber(); ok {
			fd = n
			start = l.wordStart
			l.word = nil
			l.state = stateNormal
		}
	}
	l.endWord()

	rest := l.src[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			l.pos += len(op.text)
			l.emit(Token{Kind: op.kind, Span: Span{start, l.pos}, Fd: fd})
			if op.kind == HereDoc {
				l.pendingDocs = append(l.pendingDocs, len(l.tokens)-1)
			}
			return
		}
	}
}

func (l *lexer) singleQuote() error {
	open := l.pos
	end := strings.IndexByte(l.src[open+1:], '\'')
	if end < 0 {
		return &LexError{Reason: UnterminatedQuote, Offset: open}
	}
	l.startWord()
	l.word.Quoted = true
	l.word.add(Single, l.src[open+1:open+1+end])
	l.pos = open + end + 2
	return nil
}

func (l *lexer) doubleQuote() error {
	open := l.pos
	l.startWord()
	l.word.Quoted = true

	var sb strings.Builder
	flushed := false
	flush := func(force bool) {
		if sb.Len() > 0 || (force && !flushed) {
			l.word.add(Double, sb.String())
			flushed = true
		}
		sb.Reset()
	}

	i := open + 1
	for i < len(l.src) {
		c := l.src[i]
		switch c {
		case '"':
			flush(true)
			l.pos = i + 1
			return nil

		case '\\':
			if i+1 >= len(l.src) {
				return &LexError{Reason: UnterminatedQuote, Offset: open}
			}
			switch next := l.src[i+1]; next {
			case '"', '\\', '$', '`':
				flush(false)
				flushed = true
				l.word.add(Escaped, string(next))
			default:
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			i += 2

		case '$', '`':
			end, ok := l.substitution(i)
			if !ok {
				end = i + 1
			}
			sb.WriteString(l.src[i:end])
			i = end

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return &LexError{Reason: UnterminatedQuote, Offset: open}
}

func (l *lexer) escape() error {
	if l.pos+1 >= len(l.src) {
		return &LexError{Reason: DanglingEscape, Offset: l.pos}
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos+1:])
	l.startWord()
	l.word.add(Escaped, string(r))
	l.pos += 1 + size
	return nil
}

// substitution scans a $(...), $((...)), ${...} or `...` construct starting
// at i and returns the offset just past it. A lone $ is returned as is.
func (l *lexer) substitution(i int) (int, bool) {
	end, ok := SubstitutionEnd(l.src, i)
	if !ok {
		l.openSubst = true
	}
	return end, ok
}

// SubstitutionEnd returns the offset just past the $(...), $((...)), ${...}
// or `...` construct that starts at src[i]. A $ that opens no construct
// spans one byte. It reports false if the construct is never closed.
func SubstitutionEnd(src string, i int) (int, bool) {
	if src[i] == '`' {
		for j := i + 1; j < len(src); j++ {
			switch src[j] {
			case '\\':
				j++
			case '`':
				return j + 1, true
			}
		}
		return 0, false
	}

	if i+1 >= len(src) {
		return i + 1, true
	}
	var lb, rb byte
	switch src[i+1] {
	case '(':
		lb, rb = '(', ')'
	case '{':
		lb, rb = '{', '}'
	default:
		return i + 1, true
	}

	depth := 0
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '\'':
			if lb == '{' {
				continue
			}
			end := strings.IndexByte(src[j+1:], '\'')
			if end < 0 {
				return 0, false
			}
			j += end + 1
		case '"':
			k := j + 1
			for ; k < len(src) && src[k] != '"'; k++ {
				if src[k] == '\\' {
					k++
				}
			}
			if k >= len(src) {
				return 0, false
			}
			j = k
		case lb:
			depth++
		case rb:
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return 0, false
}

// readHereDocs collects the bodies of pending here-documents from the lines
// that follow the newline just consumed.
func (l *lexer) readHereDocs() {
	pending := l.pendingDocs
	l.pendingDocs = nil
	for _, idx := range pending {
		if idx+1 >= len(l.tokens) || l.tokens[idx+1].Kind != WordToken {
			continue
		}
		delim := l.tokens[idx+1].Word
		tag := delim.Literal()

		var body strings.Builder
		closed := false
		for l.pos < len(l.src) {
			end := strings.IndexByte(l.src[l.pos:], '\n')
			var line string
			if end < 0 {
				line = l.src[l.pos:]
				l.pos = len(l.src)
			} else {
				line = l.src[l.pos : l.pos+end]
				l.pos += end + 1
			}
			if line == tag {
				closed = true
				break
			}
			body.WriteString(line)
			body.WriteByte('\n')
		}
		if !closed {
			l.openDoc = true
		}
		l.tokens[idx].Body = body.String()
		l.tokens[idx].BodyQuoted = delim.IsQuoted()
	}
}
