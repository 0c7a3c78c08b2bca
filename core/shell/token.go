package shell

import "fmt"

// TokenKind classifies a token.
type TokenKind int

const (
	// EOF is never produced by Tokenize, the parser's cursor returns it once
	// the input is exhausted.
	EOF TokenKind = iota
	WordToken
	Pipe           // |
	RedirectIn     // <
	RedirectOut    // >
	RedirectAppend // >>
	DupOut         // >&
	DupIn          // <&
	HereDoc        // <<
	HereString     // <<<
	Background     // &
	Semicolon      // ;
	And            // &&
	Or             // ||
	LeftParen      // (
	RightParen     // )
	Newline
)

var tokenNames = map[TokenKind]string{
	EOF:            "end of input",
	WordToken:      "word",
	Pipe:           "|",
	RedirectIn:     "<",
	RedirectOut:    ">",
	RedirectAppend: ">>",
	DupOut:         ">&",
	DupIn:          "<&",
	HereDoc:        "<<",
	HereString:     "<<<",
	Background:     "&",
	Semicolon:      ";",
	And:            "&&",
	Or:             "||",
	LeftParen:      "(",
	RightParen:     ")",
	Newline:        "newline",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsRedirect reports whether the kind is a redirection operator.
func (k TokenKind) IsRedirect() bool {
	switch k {
	case RedirectIn, RedirectOut, RedirectAppend, DupOut, DupIn, HereDoc, HereString:
		return true
	}
	return false
}

// Span is a half-open byte offset range into the source text.
type Span struct {
	Start int
	End   int
}

// Token is a classified unit of input.
type Token struct {
	Kind TokenKind
	Span Span

	// Word is set for WordToken tokens.
	Word *Word

	// Fd is the explicit descriptor prefix of a redirection operator such as
	// the 2 in 2>&1, or -1 when none was given.
	Fd int

	// Body holds the collected lines of a here-document; BodyQuoted is set
	// when the delimiter was quoted, which disables expansion of the body.
	Body       string
	BodyQuoted bool
}

func (t Token) String() string {
	if t.Kind == WordToken && t.Word != nil {
		return t.Word.String()
	}
	return t.Kind.String()
}
