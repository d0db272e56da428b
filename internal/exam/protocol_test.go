package exam

import (
	"context"
	"reflect"
	"testing"

	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
)

func englishCtx(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
}

func TestBuildProtocolSelect(t *testing.T) {
	ctx := englishCtx(t)

	records := []model.AnswerRecord{{
		QuestionID:   "q1",
		QuestionText: "Pick two",
		Kind:         model.KindSelect,
		CorrectKeys:  []string{"a", "c"},
		UserAnswer:   model.AnswerValue{Values: []string{"q1-a", "q1-b"}},
		IsCorrect:    false,
		ReviewStatus: model.ReviewAuto,
	}}
	options := map[string][]model.Option{
		"q1": {
			{ID: "q1-a", Text: "Alpha"},
			{ID: "q1-b", Text: "Bravo"},
			{ID: "q1-c", Text: "Charlie"},
		},
	}

	entries := BuildProtocol(ctx, records, options)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ChosenAnswerText != "Alpha, Bravo" {
		t.Errorf("chosen = %q, want %q", e.ChosenAnswerText, "Alpha, Bravo")
	}
	if e.CorrectAnswerText != "Alpha, Charlie" {
		t.Errorf("correct = %q, want %q", e.CorrectAnswerText, "Alpha, Charlie")
	}
	if e.IsCorrect {
		t.Error("entry must carry the stored verdict")
	}
}

func TestBuildProtocolPlaceholders(t *testing.T) {
	ctx := englishCtx(t)

	records := []model.AnswerRecord{
		{
			// Question deleted after the attempt: text gone, link severed.
			QuestionID:   "",
			QuestionText: "",
			Kind:         model.KindSelect,
			UserAnswer:   model.AnswerValue{Values: []string{"q-gone-a"}},
		},
		{
			QuestionID:   "q2",
			QuestionText: "Pick one",
			Kind:         model.KindSelect,
			CorrectKeys:  []string{"a"},
			UserAnswer:   model.AnswerValue{},
		},
	}
	options := map[string][]model.Option{
		"q2": {{ID: "q2-a", Text: "Alpha"}},
	}

	entries := BuildProtocol(ctx, records, options)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].QuestionText != "Question text was removed or not found" {
		t.Errorf("deleted question placeholder = %q", entries[0].QuestionText)
	}
	if entries[0].ChosenAnswerText != "[option removed]" {
		t.Errorf("deleted option placeholder = %q", entries[0].ChosenAnswerText)
	}
	if entries[1].ChosenAnswerText != "— no answer selected —" {
		t.Errorf("no-answer placeholder = %q", entries[1].ChosenAnswerText)
	}
}

func TestBuildProtocolTextReviewStates(t *testing.T) {
	ctx := englishCtx(t)

	records := []model.AnswerRecord{
		{
			QuestionID:   "q1",
			QuestionText: "Explain",
			Kind:         model.KindText,
			UserAnswer:   model.AnswerValue{Values: []string{"my essay"}},
			ReviewStatus: model.ReviewPending,
		},
		{
			QuestionID:   "q1",
			QuestionText: "Explain",
			Kind:         model.KindText,
			UserAnswer:   model.AnswerValue{Values: []string{"my essay"}},
			IsCorrect:    true,
			ReviewStatus: model.ReviewManualCorrect,
		},
	}

	entries := BuildProtocol(ctx, records, nil)
	if entries[0].CorrectAnswerText != "[Awaiting review]" {
		t.Errorf("pending placeholder = %q", entries[0].CorrectAnswerText)
	}
	if entries[1].CorrectAnswerText != "[Reviewed manually]" {
		t.Errorf("reviewed placeholder = %q", entries[1].CorrectAnswerText)
	}
	if entries[0].ChosenAnswerText != "my essay" {
		t.Errorf("chosen = %q, want the raw essay text", entries[0].ChosenAnswerText)
	}
}

func TestBuildProtocolMatch(t *testing.T) {
	ctx := englishCtx(t)

	records := []model.AnswerRecord{{
		QuestionID:   "q1",
		QuestionText: "Match them",
		Kind:         model.KindMatch,
		MatchPrompts: []string{"p1", "p2"},
		MatchAnswers: []string{"Alpha", "Beta"},
		UserAnswer:   model.AnswerValue{Values: []string{"Beta", "Alpha"}},
	}}

	entries := BuildProtocol(ctx, records, nil)
	e := entries[0]
	if e.ChosenAnswerText != "Beta; Alpha" {
		t.Errorf("chosen = %q", e.ChosenAnswerText)
	}
	if e.CorrectAnswerText != "Alpha; Beta" {
		t.Errorf("correct = %q", e.CorrectAnswerText)
	}
	if !reflect.DeepEqual(e.CorrectMatches, []string{"Alpha", "Beta"}) {
		t.Errorf("correct matches = %v", e.CorrectMatches)
	}
}

func TestBuildProtocolDeterministic(t *testing.T) {
	ctx := englishCtx(t)

	records := []model.AnswerRecord{{
		QuestionID:   "q1",
		QuestionText: "Pick one",
		Kind:         model.KindSelect,
		CorrectKeys:  []string{"a"},
		UserAnswer:   model.AnswerValue{Values: []string{"q1-a"}},
		IsCorrect:    true,
		ReviewStatus: model.ReviewAuto,
	}}
	options := map[string][]model.Option{
		"q1": {{ID: "q1-a", Text: "Alpha"}},
	}

	first := BuildProtocol(ctx, records, options)
	second := BuildProtocol(ctx, records, options)
	if !reflect.DeepEqual(first, second) {
		t.Error("rebuilding a protocol from the same records must give identical entries")
	}
}
