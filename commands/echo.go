package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-7][0-7]?[0-7]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\b`, "\b", // backspace
		`\a`, "\a", // alert
		`\f`, "\f", // form feed
		`\v`, "\v", // vertical tab
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 8, 16)
		if err != nil || out > 0xff {
			return arg
		}
		return string(rune(out))
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 16, 16)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	return s
}

// Echo writes its arguments separated by spaces.
func Echo(inv Invocation) int {
	cmd := &SimpleCommand{
		Use:   "echo [-neE] [ARG] ...",
		Short: "Display a line of text.",
	}

	opt := cmd.Flags()
	escaped := opt.Bool('e', "interpret backslash escapes")
	opt.Bool('E', "don't interpret backslash escapes")
	noNewline := opt.Bool('n', "don't output the trailing newline")

	return cmd.Run(inv, func() int {
		w := inv.Stdout()
		var sb strings.Builder
		for i, arg := range opt.Args() {
			if i > 0 {
				sb.WriteString(" ")
			}

			if *escaped {
				arg = unescape(arg)
			}

			sb.WriteString(arg)
		}

		if !*noNewline {
			sb.WriteString("\n")
		}

		if _, err := fmt.Fprint(w, sb.String()); err != nil {
			fmt.Fprintf(inv.Stderr(), "echo: write error: %v\n", err)
			return 1
		}
		return 0
	})
}

var _ CommandFunc = Echo

func init() {
	addCmd("echo", Echo)
}
