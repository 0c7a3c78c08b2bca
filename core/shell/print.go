package shell

import (
	"strconv"
	"strings"
)

// Print renders a command tree in canonical single-line form. Here-document
// bodies are not included, only their delimiters.
func Print(n Node) string {
	var sb strings.Builder
	printNode(&sb, n)
	return sb.String()
}

func printNode(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case *List:
		for i, e := range n.Entries {
			if i > 0 {
				switch {
				case e.Op != Sequence:
					sb.WriteString(" " + e.Op.String() + " ")
				case n.Entries[i-1].Node.Background:
					sb.WriteByte(' ')
				default:
					sb.WriteString("; ")
				}
			}
			printNode(sb, e.Node)
		}

	case *Pipeline:
		for i, st := range n.Stages {
			if i > 0 {
				sb.WriteString(" | ")
			}
			printNode(sb, st)
		}
		if n.Background {
			sb.WriteString(" &")
		}

	case *Subshell:
		sb.WriteByte('(')
		printNode(sb, n.Body)
		sb.WriteByte(')')
		printRedirects(sb, n.Redirects)

	case *Simple:
		var fields []string
		for _, a := range n.Assigns {
			fields = append(fields, a.Name+"="+a.Value.String())
		}
		for _, w := range n.Args {
			fields = append(fields, w.String())
		}
		for _, r := range n.Redirects {
			fields = append(fields, redirectString(r))
		}
		sb.WriteString(strings.Join(fields, " "))
	}
}

func printRedirects(sb *strings.Builder, rs []*Redirect) {
	for _, r := range rs {
		sb.WriteByte(' ')
		sb.WriteString(redirectString(r))
	}
}

func redirectString(r *Redirect) string {
	var sb strings.Builder
	if r.Fd != r.Kind.DefaultFd() {
		sb.WriteString(strconv.Itoa(r.Fd))
	}
	sb.WriteString(r.Kind.String())
	sb.WriteString(r.Target.String())
	return sb.String()
}
