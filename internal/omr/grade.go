package omr

import "math"

// Verdict classifies one question of a graded sheet.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
	// VerdictMissed marks a keyed question the student left blank. It
	// scores as incorrect.
	VerdictMissed Verdict = "missed"
	// VerdictNoKey marks a student answer to a question the key does not
	// cover. It is not scored.
	VerdictNoKey Verdict = "no-key"
)

// ScoreResult is the outcome of grading one sheet.
type ScoreResult struct {
	Correct    int             `json:"correct"`
	Total      int             `json:"total"`
	Percentage int             `json:"percentage"`
	Verdicts   map[int]Verdict `json:"verdicts"`
}

// Err reports ErrEmptyKey when the key had no entries, nil otherwise.
func (r ScoreResult) Err() error {
	if r.Total == 0 {
		return ErrEmptyKey
	}
	return nil
}

// Grade compares a student's answers with the key. Every keyed question is
// scored; the percentage is round(100*correct/total), or 0 for an empty key.
func Grade(key, student AnswerMap) ScoreResult {
	res := ScoreResult{
		Total:    len(key),
		Verdicts: make(map[int]Verdict, len(key)),
	}

	for q, want := range key {
		got, ok := student[q]
		switch {
		case !ok:
			res.Verdicts[q] = VerdictMissed
		case got == want:
			res.Verdicts[q] = VerdictCorrect
			res.Correct++
		default:
			res.Verdicts[q] = VerdictIncorrect
		}
	}
	for q := range student {
		if _, ok := key[q]; !ok {
			res.Verdicts[q] = VerdictNoKey
		}
	}

	if res.Total > 0 {
		res.Percentage = int(math.Round(100 * float64(res.Correct) / float64(res.Total)))
	}
	return res
}
