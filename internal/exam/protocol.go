package exam

import (
	"context"
	"strings"

	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
)

// BuildProtocol renders the per-question breakdown of a result from its
// stored answer records. It is a pure formatter: given the same records and
// options it always produces the same entries, so a protocol can be rebuilt
// at any time.
//
// Dangling references are tolerated everywhere: a deleted question or option
// becomes a localized placeholder instead of an error, and a free-text answer
// shows a review-status placeholder since no canonical text exists.
func BuildProtocol(ctx context.Context, records []model.AnswerRecord, optionsByQuestion map[string][]model.Option) []model.ProtocolEntry {
	entries := make([]model.ProtocolEntry, 0, len(records))
	for _, rec := range records {
		entry := model.ProtocolEntry{
			QuestionText: rec.QuestionText,
			IsCorrect:    rec.IsCorrect,
			Explanation:  rec.Explanation,
			Kind:         rec.Kind,
			MatchPrompts: rec.MatchPrompts,
		}
		if entry.QuestionText == "" {
			entry.QuestionText = appI18n.T(ctx, "ProtocolQuestionRemoved")
		}

		switch rec.Kind {
		case model.KindMatch:
			entry.ChosenAnswerText = strings.Join(rec.UserAnswer.Values, "; ")
			entry.CorrectAnswerText = strings.Join(rec.MatchAnswers, "; ")
			entry.ChosenMatches = rec.UserAnswer.Values
			entry.CorrectMatches = rec.MatchAnswers

		case model.KindText:
			entry.ChosenAnswerText = rec.UserAnswer.Text()
			if rec.ReviewStatus == model.ReviewPending {
				entry.CorrectAnswerText = appI18n.T(ctx, "ProtocolAwaitingReview")
			} else {
				entry.CorrectAnswerText = appI18n.T(ctx, "ProtocolReviewedManually")
			}

		default:
			opts := optionsByQuestion[rec.QuestionID]
			entry.ChosenAnswerText = chosenOptionText(ctx, rec.UserAnswer.Values, opts)
			entry.CorrectAnswerText = correctOptionText(rec.QuestionID, rec.CorrectKeys, opts)
		}

		entries = append(entries, entry)
	}
	return entries
}

func chosenOptionText(ctx context.Context, chosenIDs []string, opts []model.Option) string {
	if len(chosenIDs) == 0 {
		return appI18n.T(ctx, "ProtocolNoAnswer")
	}
	texts := make([]string, 0, len(chosenIDs))
	for _, id := range chosenIDs {
		text := appI18n.T(ctx, "ProtocolOptionRemoved")
		for _, opt := range opts {
			if opt.ID == id {
				text = opt.Text
				break
			}
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, ", ")
}

func correctOptionText(questionID string, correctKeys []string, opts []model.Option) string {
	prefix := questionID + "-"
	var texts []string
	for _, opt := range opts {
		key := strings.TrimPrefix(opt.ID, prefix)
		for _, want := range correctKeys {
			if key == want {
				texts = append(texts, opt.Text)
				break
			}
		}
	}
	return strings.Join(texts, ", ")
}
