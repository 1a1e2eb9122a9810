package app

import (
	"sort"
	"time"

	"graphquiz/internal/domain"
)

// RankedEntry is one leaderboard row. CorrectAnswers is the sum of fractional
// credit (a participant with credits 100, 75, 50 accrues 2.25), Score is the
// mean credit on the 0-100 scale, FinishTime the latest answer timestamp.
type RankedEntry struct {
	Rank           int        `json:"rank"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TotalAnswers   int        `json:"totalAnswers"`
	CorrectAnswers float64    `json:"correctAnswers"`
	Score          float64    `json:"score"`
	FinishTime     *time.Time `json:"finishTime"`
}

// Aggregate ranks every participant over the given score records. When section
// is non-nil only records from that section count; participants with no
// matching records still appear with zeroes. Ordering is total fractional
// credit descending, then finish time ascending, with entries that never
// answered sorting ahead of any concrete finish time on a tie. Ties beyond
// that keep their input order.
func Aggregate(records []domain.ScoreRecord, participants []domain.Participant, section *int) []RankedEntry {
	type tally struct {
		answers   int
		creditSum int // hundredths, kept integral so ties compare exactly
		finish    time.Time
	}

	tallies := make(map[string]*tally, len(participants))
	for _, record := range records {
		if section != nil && record.Section != *section {
			continue
		}
		t := tallies[record.ParticipantID]
		if t == nil {
			t = &tally{}
			tallies[record.ParticipantID] = t
		}
		t.answers++
		t.creditSum += int(record.Credit)
		if record.AnsweredAt.After(t.finish) {
			t.finish = record.AnsweredAt
		}
	}

	type row struct {
		entry RankedEntry
		sum   int
	}
	rows := make([]row, 0, len(participants))
	for _, p := range participants {
		r := row{entry: RankedEntry{ID: p.ID, Name: p.Name}}
		if t := tallies[p.ID]; t != nil {
			r.entry.TotalAnswers = t.answers
			r.entry.CorrectAnswers = float64(t.creditSum) / 100
			r.entry.Score = float64(t.creditSum) / float64(t.answers)
			finish := t.finish
			r.entry.FinishTime = &finish
			r.sum = t.creditSum
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].sum != rows[j].sum {
			return rows[i].sum > rows[j].sum
		}
		fi, fj := rows[i].entry.FinishTime, rows[j].entry.FinishTime
		switch {
		case fi == nil:
			return fj != nil
		case fj == nil:
			return false
		default:
			return fi.Before(*fj)
		}
	})

	entries := make([]RankedEntry, len(rows))
	for i, r := range rows {
		r.entry.Rank = i + 1
		entries[i] = r.entry
	}
	return entries
}
