package app

import (
	"graphquiz/internal/domain"
)

// ScoreResult is the verdict for one submission. Fraction is the exact
// unclamped-then-clamped value on [0,1]; Credit is the same value rounded
// half away from zero onto the 0-100 storage scale.
type ScoreResult struct {
	Correct      bool
	Fraction     float64
	Credit       domain.Credit
	CorrectIndex int   // canonical answer in single mode
	CorrectSet   []int // canonical answer in multi mode, nil otherwise
}

// Score grades a submission against a question's answer key. It is a pure
// function; persisting the resulting credit is the caller's job, as is the
// already-answered check.
//
// Single-answer mode is exact match. Multi-answer mode awards partial credit:
// correctHits/|correct| minus wrongHits/totalOptions, clamped to [0,1], with a
// pass at full selection or a net fraction of at least 0.7. The 0.7 threshold
// and the total-option-count penalty denominator are part of the observable
// scoring contract and must not change.
func Score(question domain.Question, submission domain.Submission) (ScoreResult, error) {
	if question.Multi {
		return scoreMulti(question, submission)
	}
	return scoreSingle(question, submission), nil
}

func scoreSingle(question domain.Question, submission domain.Submission) ScoreResult {
	result := ScoreResult{CorrectIndex: question.CorrectIndex}
	// A set submitted against a single-answer question never matches; it is
	// graded as incorrect rather than rejected.
	if !submission.IsSet && submission.Index == question.CorrectIndex {
		result.Correct = true
		result.Fraction = 1
		result.Credit = 100
	}
	return result
}

func scoreMulti(question domain.Question, submission domain.Submission) (ScoreResult, error) {
	picks := submission.Set
	if !submission.IsSet {
		picks = []int{submission.Index}
	}
	if len(picks) == 0 {
		return ScoreResult{}, domain.ErrInvalidAnswer
	}

	total := len(question.Options)
	key := make(map[int]bool, len(question.CorrectSet))
	for _, idx := range question.CorrectSet {
		key[idx] = true
	}
	if len(key) == 0 {
		return ScoreResult{}, domain.ErrInvalidQuestion
	}

	seen := make(map[int]bool, len(picks))
	correctHits, wrongHits := 0, 0
	for _, idx := range picks {
		if idx < 0 || idx >= total {
			return ScoreResult{}, domain.ErrInvalidAnswer
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		if key[idx] {
			correctHits++
		} else {
			wrongHits++
		}
	}

	// raw = correctHits/|key| - wrongHits/total, computed exactly over the
	// common denominator |key|*total.
	den := len(key) * total
	num := correctHits*total - wrongHits*len(key)
	exact := correctHits == len(key) && wrongHits == 0
	// fraction >= 0.7 without leaving integer arithmetic
	pass := 10*num >= 7*den
	if num < 0 {
		num = 0
	}
	if num > den {
		num = den
	}

	return ScoreResult{
		Correct: exact || pass,
		// round half away from zero onto the hundredths scale
		Fraction:   float64(num) / float64(den),
		Credit:     domain.Credit((200*num + den) / (2 * den)),
		CorrectSet: append([]int(nil), question.CorrectSet...),
	}, nil
}
