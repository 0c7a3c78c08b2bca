package expand

import (
	"testing"

	"github.com/jswans33/james-shell-sub001/core/vos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithm(t *testing.T) {
	env := vos.NewMapEnvFromEnvList([]string{"N=7", "EXPR=N*2", "BLANK="})

	cases := []struct {
		expr     string
		expected int64
	}{
		{"", 0},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"2+3*4-6/2", 11},
		{"1 - 1 - 1", -1},
		{"2*3%4", 2},
		{"10/3", 3},
		{"-7/2", -3},
		{"10%3", 1},
		{"-5+2", -3},
		{"-(2+3)", -5},
		{"+4", 4},
		{"!0", 1},
		{"!5", 0},
		{"~0", -1},
		{"1<<4", 16},
		{"256>>2", 64},
		{"1+1<<2", 8},
		{"3>2", 1},
		{"2<=1", 0},
		{"1==1", 1},
		{"1!=1", 0},
		{"1<2==1", 1},
		{"6&3", 2},
		{"6^3", 5},
		{"6|3", 7},
		{"6|3&1", 7},
		{"1&&0", 0},
		{"0||2", 1},
		{"0 && 1/0", 0},
		{"1 || 1/0", 1},
		{"1?10:20", 10},
		{"0?10:20", 20},
		{"0 ? 1/0 : 3", 3},
		{"0x10", 16},
		{"010", 8},
		{"N*2", 14},
		{"EXPR+1", 15},
		{"UNSET+1", 1},
		{"BLANK*3", 0},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			actual, err := Arithm(tc.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestArithm_errors(t *testing.T) {
	env := vos.NewMapEnvFromEnvList([]string{"LOOP=LOOP+1"})

	cases := []struct {
		expr string
		kind ErrorKind
	}{
		{"1/0", DivideByZero},
		{"5%0", DivideByZero},
		{"1+", ArithmSyntax},
		{"(1", ArithmSyntax},
		{"1 @ 2", ArithmSyntax},
		{"1 2", ArithmSyntax},
		{"09", ArithmSyntax},
		{"LOOP", ArithmSyntax},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Arithm(tc.expr, env)
			assertKind(t, err, tc.kind)
		})
	}
}
