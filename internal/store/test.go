package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quizdesk/internal/model"
)

// CreateTest inserts a test together with its default settings row in one
// transaction.
func (s *Store) CreateTest(name string) (model.Test, error) {
	t := model.Test{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		IsActive:  false,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.Test{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO tests (id, name, created_at, is_active) VALUES (?, ?, ?, 0)`,
		t.ID, t.Name, t.CreatedAt,
	); err != nil {
		return model.Test{}, err
	}
	if _, err := tx.Exec(`INSERT INTO test_settings (test_id) VALUES (?)`, t.ID); err != nil {
		return model.Test{}, err
	}

	return t, tx.Commit()
}

// ListTests returns all tests, newest first, flagging those with results
// awaiting manual review.
func (s *Store) ListTests() ([]model.Test, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.name, t.created_at, t.is_active,
		       CASE WHEN COUNT(r.id) > 0 THEN 1 ELSE 0 END
		FROM tests t
		LEFT JOIN test_results r ON t.id = r.test_id AND r.status = 'pending_review'
		GROUP BY t.id
		ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.IsActive, &t.HasPendingReviews); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// ListActiveTests returns active tests with their settings, plus whether the
// given respondent already passed each one. fio may be empty.
func (s *Store) ListActiveTests(fio string) ([]model.ActiveTest, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.name, s.duration_minutes, s.passing_score, s.questions_per_test,
		       COALESCE(MAX(r.passed), 0)
		FROM tests t
		JOIN test_settings s ON t.id = s.test_id
		LEFT JOIN test_results r ON t.id = r.test_id AND r.fio = ? COLLATE NOCASE AND r.passed = 1
		WHERE t.is_active = 1
		GROUP BY t.id
		ORDER BY t.name ASC`, fio)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []model.ActiveTest
	for rows.Next() {
		var t model.ActiveTest
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.PassingScore, &t.QuestionsPerTest, &t.AlreadyPassed); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// GetTest returns a test by ID.
func (s *Store) GetTest(id string) (model.Test, error) {
	var t model.Test
	err := s.db.QueryRow(
		`SELECT id, name, created_at, is_active FROM tests WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.IsActive)
	if err == sql.ErrNoRows {
		return model.Test{}, ErrNotFound
	}
	return t, err
}

// RenameTest updates a test's name.
func (s *Store) RenameTest(id, name string) error {
	res, err := s.db.Exec(`UPDATE tests SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	return requireChange(res)
}

// SetTestActive toggles a test's published flag.
func (s *Store) SetTestActive(id string, active bool) error {
	res, err := s.db.Exec(`UPDATE tests SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireChange(res)
}

// DeleteTest removes a test; settings, questions, options and results cascade.
func (s *Store) DeleteTest(id string) error {
	res, err := s.db.Exec(`DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireChange(res)
}

// GetSettings returns the attempt settings for a test.
func (s *Store) GetSettings(testID string) (model.TestSettings, error) {
	var st model.TestSettings
	err := s.db.QueryRow(
		`SELECT test_id, duration_minutes, passing_score, questions_per_test
		 FROM test_settings WHERE test_id = ?`, testID,
	).Scan(&st.TestID, &st.DurationMinutes, &st.PassingScore, &st.QuestionsPerTest)
	if err == sql.ErrNoRows {
		return model.TestSettings{}, ErrNotFound
	}
	return st, err
}

// SaveSettings updates the attempt settings for a test.
func (s *Store) SaveSettings(st model.TestSettings) error {
	res, err := s.db.Exec(
		`UPDATE test_settings SET duration_minutes = ?, passing_score = ?, questions_per_test = ?
		 WHERE test_id = ?`,
		st.DurationMinutes, st.PassingScore, st.QuestionsPerTest, st.TestID,
	)
	if err != nil {
		return err
	}
	return requireChange(res)
}

func requireChange(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
