package booking

import (
	"fmt"
	"math/rand/v2"
)

const (
	referencePrefix = "APT"
	referenceDigits = 7
	maxIdenticalRun = 2
)

// NewReference produces a human-readable booking reference of the form
// APT-<year>-<7 digits>. Candidates containing three or more identical
// consecutive digits are rejected and redrawn, so references stay easy to
// read back over the phone.
func NewReference(year int) string {
	for {
		seq := randomDigits(referenceDigits)
		if !hasIdenticalRun(seq, maxIdenticalRun+1) {
			return fmt.Sprintf("%s-%d-%s", referencePrefix, year, seq)
		}
	}
}

func randomDigits(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte('0' + rand.IntN(10))
	}
	return string(buf)
}

func hasIdenticalRun(s string, runLen int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
