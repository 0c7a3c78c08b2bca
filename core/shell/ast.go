package shell

// Node is a command tree node: *Simple, *Subshell, *Pipeline or *List.
type Node interface {
	node()
}

func (*Simple) node()   {}
func (*Subshell) node() {}
func (*Pipeline) node() {}
func (*List) node()     {}

// Assign is a NAME=value prefix of a simple command.
type Assign struct {
	Name  string
	Value *Word
}

// RedirectKind is the operation a redirection performs.
type RedirectKind int

const (
	Input           RedirectKind = iota // <
	Output                              // >
	Append                              // >>
	DuplicateOutput                     // >&
	DuplicateInput                      // <&
	HereDocument                        // <<
	HereStringInput                     // <<<
)

var redirectOps = map[RedirectKind]string{
	Input:           "<",
	Output:          ">",
	Append:          ">>",
	DuplicateOutput: ">&",
	DuplicateInput:  "<&",
	HereDocument:    "<<",
	HereStringInput: "<<<",
}

func (k RedirectKind) String() string { return redirectOps[k] }

// DefaultFd is the descriptor a redirection applies to when the source does
// not name one.
func (k RedirectKind) DefaultFd() int {
	switch k {
	case Output, Append, DuplicateOutput:
		return 1
	}
	return 0
}

// Redirect is a single redirection attached to a simple command.
type Redirect struct {
	Fd     int
	Kind   RedirectKind
	Target *Word

	// Body is the here-document text; Target holds its delimiter.
	Body       string
	BodyQuoted bool
}

// Simple is a command with its arguments. Args may be empty for an
// assignment-only or redirection-only command.
type Simple struct {
	Assigns   []Assign
	Args      []*Word
	Redirects []*Redirect
}

// Subshell is a ( list ) stage, run on a copy of the shell state.
type Subshell struct {
	Body      *List
	Redirects []*Redirect
}

// Pipeline is one or more stages joined by |. Each stage is a *Simple or a
// *Subshell.
type Pipeline struct {
	Stages     []Node
	Background bool

	// Text is the source of the pipeline when it was parsed from a string,
	// used for job listings.
	Text string
}

// JoinOp says how a list entry depends on the status of the entry before it.
type JoinOp int

const (
	Sequence JoinOp = iota // ; or newline, always runs
	AndThen                // && runs on success
	OrElse                 // || runs on failure
)

func (op JoinOp) String() string {
	switch op {
	case AndThen:
		return "&&"
	case OrElse:
		return "||"
	}
	return ";"
}

// Entry is a pipeline in a list.
type Entry struct {
	Op   JoinOp
	Node *Pipeline
}

// List is a sequence of pipelines. An empty list is a no-op.
type List struct {
	Entries []Entry
}
