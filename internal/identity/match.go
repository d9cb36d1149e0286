// Package identity compares free-text person names.
//
// The comparison gates identity-document verification: the legal name on the
// application must be close enough to the holder name reported by the payment
// account provider. It is a pure computation with no I/O.
package identity

import (
	"strings"
	"unicode"
)

// MatchThreshold is the minimum similarity accepted as the same person.
const MatchThreshold = 0.80

const (
	messageMatch    = "Names match successfully"
	messageMismatch = "Name mismatch detected"
)

// Result is the outcome of comparing two names.
type Result struct {
	Match   bool
	Score   float64
	Message string
}

// Normalize lowercases name, drops every character outside a-z and whitespace,
// collapses whitespace runs to one space and trims.
func Normalize(name string) string {
	lowered := strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(lowered))
	pendingSpace := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// Distance is the Levenshtein edit distance with unit insert, delete and
// substitute costs.
func Distance(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Similarity returns (L-d)/L over the normalized names, where L is the longer
// normalized length. Two empty names are identical.
func Similarity(nameA, nameB string) float64 {
	a, b := Normalize(nameA), Normalize(nameB)
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1.0
	}
	score := float64(longest-Distance(a, b)) / float64(longest)
	return min(max(score, 0), 1)
}

// Accepts reports whether score clears MatchThreshold.
func Accepts(score float64) bool {
	return score >= MatchThreshold
}

// Match compares two names against MatchThreshold.
func Match(nameA, nameB string) Result {
	score := Similarity(nameA, nameB)
	if Accepts(score) {
		return Result{Match: true, Score: score, Message: messageMatch}
	}
	return Result{Match: false, Score: score, Message: messageMismatch}
}
