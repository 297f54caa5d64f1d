package utils

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		invalid int
		err     error
	}{
		{input: "y\n", want: true},
		{input: "N\n", want: false},
		{input: "maybe\nyes\n y \n", want: true, invalid: 2},
		{input: "n", want: false},
		{input: "what\n", invalid: 1, err: io.EOF},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Do you want to export to CSV?")
		if err != tt.err {
			t.Fatalf("input %q: expected error %v, got %v", tt.input, tt.err, err)
		}
		if got != tt.want {
			t.Errorf("input %q: expected %t, got %t", tt.input, tt.want, got)
		}
		if n := strings.Count(out.String(), "Invalid input."); n != tt.invalid {
			t.Errorf("input %q: expected %d invalid notices, got %d", tt.input, tt.invalid, n)
		}
		if !strings.HasPrefix(out.String(), "Do you want to export to CSV? [y/n] ") {
			t.Errorf("input %q: unexpected prompt %q", tt.input, out.String())
		}
	}
}
