package exam

import (
	"math"
	"time"

	"quizdesk/internal/model"
)

// Aggregate scores a whole submission against the canonical questions and
// produces the result row plus one answer row per retained submitted answer.
//
// questions must already be filtered to the addressed test (the anti-cheat
// re-fetch); a submitted answer whose question is not in the map is dropped
// from both total and score, never merely marked wrong. The submission-time
// score counts only auto-graded correct answers; while any answer is pending
// the stored score is provisional and will be recomputed at finalization.
func Aggregate(testID, fio string, submitted []model.SubmittedAnswer, questions map[string]model.Question, passingScore int, now time.Time) (model.Result, []model.Answer) {
	var answers []model.Answer
	score := 0
	hasPending := false

	for _, ua := range submitted {
		q, ok := questions[ua.QuestionID]
		if !ok {
			continue
		}
		sc := ScoreAnswer(q, ua.AnswerIDs)
		if sc.ReviewStatus == model.ReviewPending {
			hasPending = true
		}
		if sc.IsCorrect && sc.ReviewStatus == model.ReviewAuto {
			score++
		}
		answers = append(answers, model.Answer{
			QuestionID:   q.ID,
			UserAnswer:   model.AnswerValue{Values: ua.AnswerIDs},
			IsCorrect:    sc.IsCorrect,
			ReviewStatus: sc.ReviewStatus,
		})
	}

	total := len(answers)
	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(score) / float64(total) * 100))
	}

	status := model.StatusCompleted
	if hasPending {
		status = model.StatusPendingReview
	}

	return model.Result{
		TestID:     testID,
		FIO:        fio,
		Score:      score,
		Total:      total,
		Percentage: percentage,
		Date:       now.UTC().Format(time.RFC3339),
		Status:     status,
		Passed:     status == model.StatusCompleted && score >= passingScore,
	}, answers
}
