package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_reader_tokens(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want []token
	}{
		{"empty", "", []token{{tag: tokEOF, line: 1, col: 1}}},
		{"whitespace and comment", "  # hi\n  ( block ) 1",
			[]token{
				{tag: tokNumber, text: "1", num: 1, line: 2, col: 13},
				{tag: tokEOF, line: 2, col: 14},
			}},
		{"integer", "42", []token{
			{tag: tokNumber, text: "42", num: 42, line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 3},
		}},
		{"negative integer", "-7", []token{
			{tag: tokNumber, text: "-7", num: -7, line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 3},
		}},
		{"decimal", "3.1415", []token{
			{tag: tokNumber, text: "3.1415", num: 3.1415, line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 7},
		}},
		{"char literal", "'a'", []token{
			{tag: tokNumber, num: float64('a'), line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 4},
		}},
		{"string", `"foo bar"`, []token{
			{tag: tokString, text: "foo bar", line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 10},
		}},
		{"ref-name", "@counter", []token{
			{tag: tokRefName, text: "counter", line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 9},
		}},
		{"minus as name", "- 1 2", []token{
			{tag: tokName, text: "-", line: 1, col: 1},
			{tag: tokNumber, text: "1", num: 1, line: 1, col: 3},
			{tag: tokNumber, text: "2", num: 2, line: 1, col: 5},
			{tag: tokEOF, line: 1, col: 6},
		}},
		{"digit-led name", "2dup", []token{
			{tag: tokName, text: "2dup", line: 1, col: 1},
			{tag: tokEOF, line: 1, col: 5},
		}},
		{"punctuation", ": sq ; [ 1 , 2 ] { 1 , 2 }", []token{
			{tag: tokDefStart, line: 1, col: 1},
			{tag: tokName, text: "sq", line: 1, col: 3},
			{tag: tokDefEnd, line: 1, col: 6},
			{tag: tokArrStart, line: 1, col: 8},
			{tag: tokNumber, text: "1", num: 1, line: 1, col: 10},
			{tag: tokComma, line: 1, col: 12},
			{tag: tokNumber, text: "2", num: 2, line: 1, col: 14},
			{tag: tokArrEnd, line: 1, col: 16},
			{tag: tokHashStart, line: 1, col: 18},
			{tag: tokNumber, text: "1", num: 1, line: 1, col: 20},
			{tag: tokComma, line: 1, col: 22},
			{tag: tokNumber, text: "2", num: 2, line: 1, col: 24},
			{tag: tokHashEnd, line: 1, col: 26},
			{tag: tokEOF, line: 1, col: 27},
		}},
		{"true/false/nil are names", "true false nil", []token{
			{tag: tokName, text: "true", line: 1, col: 1},
			{tag: tokName, text: "false", line: 1, col: 6},
			{tag: tokName, text: "nil", line: 1, col: 12},
			{tag: tokEOF, line: 1, col: 15},
		}},
		{"unexpected character", "1 ~ 2", []token{
			{tag: tokNumber, text: "1", num: 1, line: 1, col: 1},
			{tag: tokError, text: `unexpected character '~'`, line: 1, col: 3},
			{tag: tokNumber, text: "2", num: 2, line: 1, col: 5},
			{tag: tokEOF, line: 1, col: 6},
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newReader([]byte(tc.src))
			for i, want := range tc.want {
				got := r.next()
				require.Equalf(t, want, got, "token %d", i)
			}
		})
	}
}
