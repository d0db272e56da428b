// Package exam holds the pure grading logic: scoring a single answer against
// its canonical definition, aggregating a submission into a result, and
// formatting the per-question protocol of a finished result. Nothing here
// touches the database.
package exam

import (
	"strings"

	"quizdesk/internal/model"
)

// Score is the grading decision for one answer.
type Score struct {
	IsCorrect    bool
	ReviewStatus model.ReviewStatus
}

// ScoreAnswer grades one submitted answer against its question's canonical
// definition.
//
// Select questions are correct iff the set of submitted option keys exactly
// equals the canonical key set; there is no partial credit, and a superset is
// as wrong as a subset. Submitted option IDs that do not belong to the
// question are ignored outright, not scored.
//
// Match questions compare the submitted ordering element by element, trimmed
// and case-insensitive; a length mismatch is incorrect.
//
// Free-text questions are never auto-scored: they come back pending with a
// provisional isCorrect=false that only a manual verdict may change.
func ScoreAnswer(q model.Question, answerIDs []string) Score {
	switch q.Kind {
	case model.KindText:
		return Score{IsCorrect: false, ReviewStatus: model.ReviewPending}

	case model.KindMatch:
		return Score{
			IsCorrect:    matchOrderCorrect(q.MatchAnswers, answerIDs),
			ReviewStatus: model.ReviewAuto,
		}

	default:
		return Score{
			IsCorrect:    selectionCorrect(q, answerIDs),
			ReviewStatus: model.ReviewAuto,
		}
	}
}

func matchOrderCorrect(canonical, submitted []string) bool {
	if len(canonical) != len(submitted) {
		return false
	}
	for i, want := range canonical {
		if !strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(submitted[i])) {
			return false
		}
	}
	return true
}

// selectionCorrect compares submitted option IDs to the canonical key set.
// Option IDs are namespaced "<questionID>-<key>"; anything without this
// question's prefix is a cross-question (or cross-test) ID and is dropped
// before comparison.
func selectionCorrect(q model.Question, answerIDs []string) bool {
	prefix := q.ID + "-"
	submitted := make(map[string]struct{}, len(answerIDs))
	for _, fullID := range answerIDs {
		key, ok := strings.CutPrefix(fullID, prefix)
		if !ok || key == "" {
			continue
		}
		submitted[key] = struct{}{}
	}

	if len(submitted) != len(q.CorrectKeys) {
		return false
	}
	for _, key := range q.CorrectKeys {
		if _, ok := submitted[key]; !ok {
			return false
		}
	}
	return true
}
