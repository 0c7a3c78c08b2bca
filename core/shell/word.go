package shell

import "strings"

// Quote records how a part of a word was quoted in the source.
type Quote int

const (
	None    Quote = iota // unquoted text, subject to every expansion
	Single               // '...' fully literal
	Double               // "..." expanded but not split or globbed
	Escaped              // characters preceded by a backslash
)

func (q Quote) String() string {
	switch q {
	case None:
		return "none"
	case Single:
		return "single"
	case Double:
		return "double"
	case Escaped:
		return "escaped"
	}
	return "unknown"
}

// Part is a run of a word sharing one quoting context. Value holds the text
// with quote characters removed; None and Double parts still contain
// unexpanded $ and backquote syntax.
type Part struct {
	Quote Quote
	Value string
}

// Word is a shell word as it appeared in the source.
type Word struct {
	Parts []Part

	// Quoted is set when any quote appeared in the word, so "" produces an
	// empty word instead of no word at all.
	Quoted bool
}

// Lit creates an unquoted word, useful for building trees by hand.
func Lit(s string) *Word {
	return &Word{Parts: []Part{{Quote: None, Value: s}}}
}

// Literal concatenates the part values, which is the word's text after quote
// removal but before any expansion.
func (w *Word) Literal() string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range w.Parts {
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// IsQuoted reports whether any part of the word is quoted or escaped.
func (w *Word) IsQuoted() bool {
	if w == nil {
		return false
	}
	if w.Quoted {
		return true
	}
	for _, p := range w.Parts {
		if p.Quote != None {
			return true
		}
	}
	return false
}

// String renders the word back into shell syntax that would lex to the same
// parts.
func (w *Word) String() string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range w.Parts {
		switch p.Quote {
		case None:
			sb.WriteString(p.Value)
		case Single:
			sb.WriteByte('\'')
			sb.WriteString(p.Value)
			sb.WriteByte('\'')
		case Double:
			sb.WriteByte('"')
			sb.WriteString(p.Value)
			sb.WriteByte('"')
		case Escaped:
			for _, r := range p.Value {
				sb.WriteByte('\\')
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}

func (w *Word) add(q Quote, s string) {
	if n := len(w.Parts); n > 0 && s != "" && (q == None || q == Escaped) && w.Parts[n-1].Quote == q {
		w.Parts[n-1].Value += s
		return
	}
	w.Parts = append(w.Parts, Part{Quote: q, Value: s})
}
