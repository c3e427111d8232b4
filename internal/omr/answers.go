package omr

import (
	"fmt"
	"sort"
	"strings"
)

// Unanswered is the option index reported for a question with no mark.
const Unanswered = -1

// AnswerMap maps 1-based question numbers to 0-based option indices
// (0 = A ... 4 = E). Unanswered questions are absent.
//
// Its JSON form is an object with string keys, e.g. {"1":0,"2":3}.
type AnswerMap map[int]int

// Validate checks that every entry addresses one of questions questions and
// one of options options.
func (m AnswerMap) Validate(questions, options int) error {
	for q, o := range m {
		if q < 1 || q > questions {
			return fmt.Errorf("question %d out of range 1..%d", q, questions)
		}
		if o < 0 || o >= options {
			return fmt.Errorf("question %d: option %d out of range 0..%d", q, o, options-1)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for q, o := range m {
		out[q] = o
	}
	return out
}

// Questions returns the answered question numbers in ascending order.
func (m AnswerMap) Questions() []int {
	qs := make([]int, 0, len(m))
	for q := range m {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// String renders the map as "1:A 2:D ...".
func (m AnswerMap) String() string {
	var b strings.Builder
	for i, q := range m.Questions() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%s", q, OptionLetter(m[q]))
	}
	return b.String()
}

// OptionLetter returns "A" for 0, "B" for 1 and so on, and "-" for
// Unanswered or any other out-of-range value.
func OptionLetter(option int) string {
	if option < 0 || option >= 26 {
		return "-"
	}
	return string(rune('A' + option))
}

// ParseOption accepts a letter ("A".."Z", any case) and returns its index.
func ParseOption(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return 0, fmt.Errorf("invalid option %q", s)
	}
	return int(s[0] - 'A'), nil
}
