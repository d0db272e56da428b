package store

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"quizdesk/internal/model"
)

// SaveQuestion creates or updates a question. Option rows are replaced
// wholesale inside the same transaction; empty option texts are skipped.
// For new questions testID must be set; updates keep the original test.
func (s *Store) SaveQuestion(testID string, q model.Question) (model.Question, error) {
	isNew := q.ID == ""
	if isNew {
		q.ID = uuid.NewString()
		q.TestID = testID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.Question{}, err
	}
	defer tx.Rollback()

	correctKeys := "[]"
	var prompts, answers any
	switch q.Kind {
	case model.KindMatch:
		prompts = model.EncodeStringList(q.MatchPrompts)
		answers = model.EncodeStringList(q.MatchAnswers)
	case model.KindText:
		// no canonical answer exists for free text
	default:
		q.Kind = model.KindSelect
		correctKeys = model.EncodeStringList(q.CorrectKeys)
	}

	if isNew {
		_, err = tx.Exec(
			`INSERT INTO questions (id, test_id, text, explain, type, correct_option_key, match_prompts, match_answers)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.TestID, q.Text, q.Explain, q.Kind, correctKeys, prompts, answers,
		)
	} else {
		var res sql.Result
		res, err = tx.Exec(
			`UPDATE questions SET text = ?, explain = ?, type = ?, correct_option_key = ?, match_prompts = ?, match_answers = ?
			 WHERE id = ?`,
			q.Text, q.Explain, q.Kind, correctKeys, prompts, answers, q.ID,
		)
		if err == nil {
			err = requireChange(res)
		}
	}
	if err != nil {
		return model.Question{}, err
	}

	if _, err := tx.Exec(`DELETE FROM options WHERE question_id = ?`, q.ID); err != nil {
		return model.Question{}, err
	}

	if q.Kind == model.KindSelect {
		kept := q.Options[:0]
		for _, opt := range q.Options {
			text := strings.TrimSpace(opt.Text)
			if text == "" {
				continue
			}
			// Preserve the short key of an existing option ID so canonical
			// correct keys stay stable across edits.
			key := opt.ID
			if i := strings.LastIndex(key, "-"); i >= 0 {
				key = key[i+1:]
			}
			if key == "" {
				key = uuid.NewString()
			}
			opt.ID = q.ID + "-" + key
			opt.Text = text
			if _, err := tx.Exec(
				`INSERT INTO options (id, question_id, text) VALUES (?, ?, ?)`,
				opt.ID, q.ID, opt.Text,
			); err != nil {
				return model.Question{}, err
			}
			kept = append(kept, opt)
		}
		q.Options = kept
	} else {
		q.Options = nil
	}

	return q, tx.Commit()
}

// QuestionsForTest returns all questions of a test with their options, for
// the admin question editor. Canonical answers are included.
func (s *Store) QuestionsForTest(testID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, test_id, text, COALESCE(explain, ''), type,
		        COALESCE(correct_option_key, '[]'), COALESCE(match_prompts, '[]'), COALESCE(match_answers, '[]')
		 FROM questions WHERE test_id = ? ORDER BY text`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	var ids []string
	for rows.Next() {
		var q model.Question
		var correct, prompts, answers string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Explain, &q.Kind, &correct, &prompts, &answers); err != nil {
			return nil, err
		}
		q.CorrectKeys = model.DecodeStringList(correct)
		q.MatchPrompts = model.DecodeStringList(prompts)
		q.MatchAnswers = model.DecodeStringList(answers)
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s.attachOptions(questions, ids)
}

// SampleQuestions draws up to limit random questions from a test's pool,
// without replacement, with options attached. Select-kind correct keys are
// never included; match answers are (the caller shuffles them for display,
// the canonical ordering is the secret).
func (s *Store) SampleQuestions(testID string, limit int) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, test_id, text, type, COALESCE(match_prompts, '[]'), COALESCE(match_answers, '[]')
		 FROM questions WHERE test_id = ? ORDER BY RANDOM() LIMIT ?`, testID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	var ids []string
	for rows.Next() {
		var q model.Question
		var prompts, answers string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Kind, &prompts, &answers); err != nil {
			return nil, err
		}
		q.MatchPrompts = model.DecodeStringList(prompts)
		q.MatchAnswers = model.DecodeStringList(answers)
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s.attachOptions(questions, ids)
}

// QuestionsForSubmission re-fetches canonical definitions for the submitted
// question IDs, strictly filtered by test. A submitted ID that does not
// belong to the test is simply not returned; this is the anti-cheat boundary.
func (s *Store) QuestionsForSubmission(testID string, ids []string) (map[string]model.Question, error) {
	if len(ids) == 0 {
		return map[string]model.Question{}, nil
	}
	query := `SELECT id, test_id, text, COALESCE(explain, ''), type,
	                 COALESCE(correct_option_key, '[]'), COALESCE(match_prompts, '[]'), COALESCE(match_answers, '[]')
	          FROM questions WHERE test_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, testID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make(map[string]model.Question)
	for rows.Next() {
		var q model.Question
		var correct, prompts, answers string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Explain, &q.Kind, &correct, &prompts, &answers); err != nil {
			return nil, err
		}
		q.CorrectKeys = model.DecodeStringList(correct)
		q.MatchPrompts = model.DecodeStringList(prompts)
		q.MatchAnswers = model.DecodeStringList(answers)
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// DeleteQuestions removes questions by ID. Options cascade; historical
// answers keep their text with the question link severed.
func (s *Store) DeleteQuestions(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM questions WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// OptionsForQuestions returns option rows grouped by question ID.
func (s *Store) OptionsForQuestions(ids []string) (map[string][]model.Option, error) {
	byQuestion := make(map[string][]model.Option)
	if len(ids) == 0 {
		return byQuestion, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT id, question_id, text FROM options WHERE question_id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var opt model.Option
		var qID string
		if err := rows.Scan(&opt.ID, &qID, &opt.Text); err != nil {
			return nil, err
		}
		byQuestion[qID] = append(byQuestion[qID], opt)
	}
	return byQuestion, rows.Err()
}

func (s *Store) attachOptions(questions []model.Question, ids []string) ([]model.Question, error) {
	opts, err := s.OptionsForQuestions(ids)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Options = opts[questions[i].ID]
	}
	return questions, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
