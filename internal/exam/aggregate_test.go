package exam

import (
	"testing"
	"time"

	"quizdesk/internal/model"
)

func TestAggregateCompletedPass(t *testing.T) {
	questions := map[string]model.Question{
		"q1": selectQuestion("q1", "a"),
		"q2": selectQuestion("q2", "b"),
		"q3": selectQuestion("q3", "c"),
	}
	submitted := []model.SubmittedAnswer{
		{QuestionID: "q1", AnswerIDs: []string{"q1-a"}},
		{QuestionID: "q2", AnswerIDs: []string{"q2-b"}},
		{QuestionID: "q3", AnswerIDs: []string{"q3-x"}},
	}

	result, answers := Aggregate("t1", "Ivanov", submitted, questions, 2, time.Now())
	if result.Score != 2 || result.Total != 3 {
		t.Fatalf("score = %d/%d, want 2/3", result.Score, result.Total)
	}
	if result.Percentage != 67 {
		t.Errorf("percentage = %d, want 67", result.Percentage)
	}
	if result.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", result.Status)
	}
	if !result.Passed {
		t.Error("score 2 with passing score 2 must pass")
	}
	if len(answers) != 3 {
		t.Fatalf("expected 3 answer rows, got %d", len(answers))
	}
}

func TestAggregateDropsUnknownQuestions(t *testing.T) {
	questions := map[string]model.Question{
		"q1": selectQuestion("q1", "a"),
	}
	submitted := []model.SubmittedAnswer{
		{QuestionID: "q1", AnswerIDs: []string{"q1-a"}},
		{QuestionID: "forged", AnswerIDs: []string{"forged-a"}},
	}

	result, answers := Aggregate("t1", "Ivanov", submitted, questions, 1, time.Now())
	if result.Total != 1 {
		t.Errorf("total = %d: a question outside the test must not count at all", result.Total)
	}
	if result.Score != 1 || result.Percentage != 100 {
		t.Errorf("score = %d%%, dropped questions must not dilute the percentage", result.Percentage)
	}
	if len(answers) != 1 {
		t.Errorf("expected 1 answer row, got %d", len(answers))
	}
}

func TestAggregatePendingHoldsVerdict(t *testing.T) {
	questions := map[string]model.Question{
		"q1": selectQuestion("q1", "a"),
		"q2": {ID: "q2", Kind: model.KindText},
	}
	submitted := []model.SubmittedAnswer{
		{QuestionID: "q1", AnswerIDs: []string{"q1-a"}},
		{QuestionID: "q2", AnswerIDs: []string{"free text"}},
	}

	result, answers := Aggregate("t1", "Ivanov", submitted, questions, 1, time.Now())
	if result.Status != model.StatusPendingReview {
		t.Fatalf("status = %q, want pending_review", result.Status)
	}
	if result.Passed {
		t.Error("a result cannot pass while an answer awaits review")
	}
	// Provisional score counts only auto-graded correct answers.
	if result.Score != 1 {
		t.Errorf("provisional score = %d, want 1", result.Score)
	}
	if answers[1].ReviewStatus != model.ReviewPending {
		t.Errorf("free-text answer status = %q, want pending", answers[1].ReviewStatus)
	}
}

func TestAggregateEmptySubmission(t *testing.T) {
	result, answers := Aggregate("t1", "Ivanov", nil, map[string]model.Question{}, 1, time.Now())
	if result.Total != 0 || result.Score != 0 || result.Percentage != 0 {
		t.Errorf("empty submission: got %d/%d (%d%%)", result.Score, result.Total, result.Percentage)
	}
	if result.Status != model.StatusCompleted || result.Passed {
		t.Errorf("empty submission must complete unpassed, got %q passed=%v", result.Status, result.Passed)
	}
	if len(answers) != 0 {
		t.Errorf("expected no answer rows, got %d", len(answers))
	}
}
