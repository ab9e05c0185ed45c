package booking

import (
	"regexp"
	"testing"
)

var referencePattern = regexp.MustCompile(`^APT-\d{4}-\d{7}$`)

func TestNewReference_Format(t *testing.T) {
	ref := NewReference(2026)
	if !referencePattern.MatchString(ref) {
		t.Fatalf("reference %q does not match APT-YYYY-XXXXXXX", ref)
	}
}

func TestNewReference_NoIdenticalDigitRuns(t *testing.T) {
	for i := 0; i < 10000; i++ {
		ref := NewReference(2026)
		seq := ref[len(ref)-referenceDigits:]
		if hasIdenticalRun(seq, 3) {
			t.Fatalf("reference %q contains 3 identical consecutive digits", ref)
		}
	}
}

func TestHasIdenticalRun(t *testing.T) {
	cases := []struct {
		in     string
		runLen int
		want   bool
	}{
		{"1112345", 3, true},
		{"1212121", 3, false},
		{"1234555", 3, true},
		{"1223455", 3, false},
		{"0000000", 3, true},
		{"", 3, false},
	}
	for _, c := range cases {
		if got := hasIdenticalRun(c.in, c.runLen); got != c.want {
			t.Errorf("hasIdenticalRun(%q, %d) = %v, want %v", c.in, c.runLen, got, c.want)
		}
	}
}
