package shell

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/anmitsu/go-shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordLiterals(t *testing.T, tokens []Token) []string {
	t.Helper()
	var out []string
	for _, tok := range tokens {
		if tok.Kind == WordToken {
			out = append(out, tok.Word.Literal())
		}
	}
	return out
}

func kinds(tokens []Token) []TokenKind {
	var out []TokenKind
	for _, tok := range tokens {
		out = append(out, tok.Kind)
	}
	return out
}

func TestTokenize_words(t *testing.T) {
	cases := []struct {
		input    string
		expected []string
	}{
		{`echo "a  b" c\ d`, []string{"echo", "a  b", "c d"}},
		{`echo ''`, []string{"echo", ""}},
		{`echo ""`, []string{"echo", ""}},
		{`   `, nil},
		{`a'b'"c"d`, []string{"abcd"}},
		{`echo 'it''s'`, []string{"echo", "its"}},
		{`echo "say \"hi\""`, []string{"echo", `say "hi"`}},
		{`echo "back\\slash"`, []string{"echo", `back\slash`}},
		{`echo "\n stays"`, []string{"echo", `\n stays`}},
		{`echo 'no $expansion \here'`, []string{"echo", `no $expansion \here`}},
		{`echo $(echo a | tr a b)`, []string{"echo", "$(echo a | tr a b)"}},
		{`echo "$(echo "nested")"`, []string{"echo", `$(echo "nested")`}},
		{`echo $((1 + (2 * 3)))`, []string{"echo", "$((1 + (2 * 3)))"}},
		{"echo `date; pwd`", []string{"echo", "`date; pwd`"}},
		{`echo ${HOME}/x`, []string{"echo", "${HOME}/x"}},
		{`echo a#b # comment`, []string{"echo", "a#b"}},
		{`héllo wörld`, []string{"héllo", "wörld"}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			tokens, err := Tokenize(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, wordLiterals(t, tokens))
		})
	}
}

func TestTokenize_operators(t *testing.T) {
	cases := []struct {
		input    string
		expected []TokenKind
	}{
		{"a|b", []TokenKind{WordToken, Pipe, WordToken}},
		{"a||b&&c", []TokenKind{WordToken, Or, WordToken, And, WordToken}},
		{"a >> f", []TokenKind{WordToken, RedirectAppend, WordToken}},
		{"a 2>&1", []TokenKind{WordToken, DupOut, WordToken}},
		{"a <&3", []TokenKind{WordToken, DupIn, WordToken}},
		{"a <<<word", []TokenKind{WordToken, HereString, WordToken}},
		{"a &", []TokenKind{WordToken, Background}},
		{"(a;b)\n", []TokenKind{LeftParen, WordToken, Semicolon, WordToken, RightParen, Newline}},
		{`a ">" b`, []TokenKind{WordToken, WordToken, WordToken}},
		{`a \| b`, []TokenKind{WordToken, WordToken, WordToken}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			tokens, err := Tokenize(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, kinds(tokens))
		})
	}
}

func TestTokenize_ioNumber(t *testing.T) {
	tokens, err := Tokenize("cmd 2>err.txt 12 >out")
	require.NoError(t, err)
	require.Equal(t, []TokenKind{WordToken, RedirectOut, WordToken, WordToken, RedirectOut, WordToken}, kinds(tokens))

	assert.Equal(t, 2, tokens[1].Fd)
	assert.Equal(t, Span{4, 6}, tokens[1].Span)
	// Separated by a space, 12 is an argument.
	assert.Equal(t, "12", tokens[3].Word.Literal())
	assert.Equal(t, -1, tokens[4].Fd)
}

func TestTokenize_spans(t *testing.T) {
	tokens, err := Tokenize(`ls  -l | "wc" -l`)
	require.NoError(t, err)

	var spans []Span
	for _, tok := range tokens {
		spans = append(spans, tok.Span)
	}
	assert.Equal(t, []Span{{0, 2}, {4, 6}, {7, 8}, {9, 13}, {14, 16}}, spans)
}

func TestTokenize_quoteParts(t *testing.T) {
	tokens, err := Tokenize(`a'b'"c$x"\d`)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	assert.Equal(t, []Part{
		{Quote: None, Value: "a"},
		{Quote: Single, Value: "b"},
		{Quote: Double, Value: "c$x"},
		{Quote: Escaped, Value: "d"},
	}, tokens[0].Word.Parts)
	assert.Equal(t, `a'b'"c$x"\d`, tokens[0].Word.String())
}

func TestTokenize_hereDoc(t *testing.T) {
	tokens, err := Tokenize("cat <<EOF\nline one\n$HOME\nEOF\necho after")
	require.NoError(t, err)
	require.Equal(t, []TokenKind{WordToken, HereDoc, WordToken, Newline, WordToken, WordToken}, kinds(tokens))

	assert.Equal(t, "line one\n$HOME\n", tokens[1].Body)
	assert.False(t, tokens[1].BodyQuoted)
	assert.Equal(t, "after", tokens[5].Word.Literal())

	tokens, err = Tokenize("cat <<'EOF'\n$HOME\nEOF\n")
	require.NoError(t, err)
	assert.Equal(t, "$HOME\n", tokens[1].Body)
	assert.True(t, tokens[1].BodyQuoted)
}

func TestTokenize_errors(t *testing.T) {
	cases := []struct {
		input  string
		reason LexReason
		offset int
	}{
		{`echo "open`, UnterminatedQuote, 5},
		{`echo 'open`, UnterminatedQuote, 5},
		{`echo "ends in \`, UnterminatedQuote, 5},
		{`echo trailing\`, DanglingEscape, 13},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := Tokenize(tc.input)

			var lexErr *LexError
			require.True(t, errors.As(err, &lexErr), "expected LexError, got %v", err)
			assert.Equal(t, tc.reason, lexErr.Reason)
			assert.Equal(t, tc.offset, lexErr.Offset)
		})
	}
}

func TestTokenize_unclosedSubstitution(t *testing.T) {
	cases := map[string][]Part{
		`echo $(date`:     {{Quote: None, Value: "$(date"}},
		"echo `date":      {{Quote: None, Value: "`date"}},
		`echo ${HOME`:     {{Quote: None, Value: "${HOME"}},
		`echo $(a | b; c`: {{Quote: None, Value: "$(a | b; c"}},
		`echo "$(date" x`: {{Quote: Double, Value: "$(date"}},
	}

	for input, parts := range cases {
		t.Run(input, func(t *testing.T) {
			tokens, err := Tokenize(input)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(tokens), 2)
			assert.Equal(t, parts, tokens[1].Word.Parts)
		})
	}
}

// Input whose quotes are balanced and that doesn't end in a backslash always
// tokenizes, whatever its operators or substitutions look like.
func TestTokenize_balancedQuotesNeverFail(t *testing.T) {
	fragments := []string{
		"echo", "a", "'b c'", `"d $e"`, "$(", ")", "${", "}", "`", "$((", "|",
		"||", "&&", ";", "&", "<", ">", ">>", "2>&1", "<<<", "(", `\ `, "#c",
		"\n", "''", `""`, "$", "*",
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		var sb strings.Builder
		for n := rng.Intn(12); n >= 0; n-- {
			sb.WriteString(fragments[rng.Intn(len(fragments))])
			if rng.Intn(2) == 0 {
				sb.WriteByte(' ')
			}
		}
		input := sb.String()
		_, err := Tokenize(input)
		assert.NoError(t, err, "Tokenize(%q)", input)
	}
}

// Plain words and quotes should split the same way a POSIX shlex does.
func TestTokenize_matchesShlex(t *testing.T) {
	inputs := []string{
		`ls -la /tmp`,
		`echo "hello world"`,
		`echo 'single quoted' and "double quoted"`,
		`a\ b c`,
		`mixed"quo"ted'wo'rd`,
		`echo "escaped \"quote\" inside"`,
		`tabs	and   spaces`,
		`echo "back\\slash"`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			expected, err := shlex.Split(input, true)
			require.NoError(t, err)

			tokens, err := Tokenize(input)
			require.NoError(t, err)
			assert.Equal(t, expected, wordLiterals(t, tokens))
		})
	}
}
