package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	"quizdesk/internal/model"
)

// CreateResult persists a result and all of its answers in one transaction.
// Partial writes are never observable: either the result row and every answer
// row land together, or nothing does.
func (s *Store) CreateResult(r model.Result, answers []model.Answer) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO test_results (test_id, fio, score, total, percentage, date, status, passed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TestID, r.FIO, r.Score, r.Total, r.Percentage, r.Date, r.Status, r.Passed,
	)
	if err != nil {
		return 0, err
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, a := range answers {
		if _, err := tx.Exec(
			`INSERT INTO test_answers (result_id, question_id, user_answer, is_correct, review_status)
			 VALUES (?, NULLIF(?, ''), ?, ?, ?)`,
			resultID, a.QuestionID, model.EncodeAnswerValue(a.UserAnswer.Values), a.IsCorrect, a.ReviewStatus,
		); err != nil {
			return 0, err
		}
	}

	return resultID, tx.Commit()
}

// HasPassedResult reports whether the respondent already has a passed result
// for the test. The name match is case-insensitive. This is an advisory
// read-then-write guard, not a linearizable one.
func (s *Store) HasPassedResult(testID, fio string) (bool, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM test_results
		 WHERE test_id = ? AND fio = ? COLLATE NOCASE AND passed = 1
		 ORDER BY date DESC LIMIT 1`,
		testID, strings.TrimSpace(fio),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// LastPassedResultID returns the most recent passed result for a respondent.
func (s *Store) LastPassedResultID(testID, fio string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM test_results
		 WHERE test_id = ? AND fio = ? COLLATE NOCASE AND passed = 1
		 ORDER BY date DESC LIMIT 1`,
		testID, strings.TrimSpace(fio),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

// ResultPage is one page of a results listing.
type ResultPage struct {
	Results     []model.Result `json:"results"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}

// resultSortColumns is the whitelist for ORDER BY in PaginatedResults.
var resultSortColumns = map[string]string{
	"id":         "id",
	"fio":        "fio",
	"score":      "score",
	"percentage": "percentage",
	"date":       "date",
	"status":     "status",
}

// PaginatedResults returns a filtered, sorted page of a test's results.
// Unknown sort columns fall back to date; order is restricted to asc/desc.
func (s *Store) PaginatedResults(testID, search, sort, order string, page, limit int) (ResultPage, error) {
	sortColumn, ok := resultSortColumns[sort]
	if !ok {
		sortColumn = "date"
	}
	sortOrder := "DESC"
	if strings.EqualFold(order, "asc") {
		sortOrder = "ASC"
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	where := `WHERE test_id = ?`
	args := []any{testID}
	if search != "" {
		where += ` AND fio LIKE ? COLLATE NOCASE`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM test_results `+where, args...).Scan(&total); err != nil {
		return ResultPage{}, err
	}

	query := fmt.Sprintf(
		`SELECT id, test_id, fio, score, total, percentage, date, status, passed
		 FROM test_results %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		where, sortColumn, sortOrder,
	)
	rows, err := s.db.Query(query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return ResultPage{}, err
	}
	defer rows.Close()

	page_ := ResultPage{CurrentPage: page, TotalPages: max((total+limit-1)/limit, 1)}
	for rows.Next() {
		var r model.Result
		if err := rows.Scan(&r.ID, &r.TestID, &r.FIO, &r.Score, &r.Total, &r.Percentage, &r.Date, &r.Status, &r.Passed); err != nil {
			return ResultPage{}, err
		}
		page_.Results = append(page_.Results, r)
	}
	return page_, rows.Err()
}

// DeleteResults removes results by ID; their answers cascade.
func (s *Store) DeleteResults(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.Exec(`DELETE FROM test_results WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingReviews lists the free-text answers of a result still awaiting a
// verdict, joined to their question text for the reviewer.
func (s *Store) PendingReviews(resultID int64) ([]model.PendingReview, error) {
	rows, err := s.db.Query(
		`SELECT ta.id, q.text, COALESCE(q.explain, ''), COALESCE(ta.user_answer, '[]')
		 FROM test_answers ta
		 JOIN questions q ON ta.question_id = q.id
		 WHERE ta.result_id = ? AND ta.review_status = 'pending'`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pending []model.PendingReview
	for rows.Next() {
		var p model.PendingReview
		var raw string
		if err := rows.Scan(&p.AnswerID, &p.QuestionText, &p.Explanation, &raw); err != nil {
			return nil, err
		}
		p.UserAnswer = model.DecodeAnswerValue(raw).Text()
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// ReviewOutcome reports what a verdict batch did.
type ReviewOutcome struct {
	ResultID  int64
	Finalized bool
}

// ApplyVerdicts applies a batch of manual verdicts in one transaction.
//
// Each update is guarded on review_status = 'pending', so re-applying a batch
// (or racing reviewers) changes nothing a second time. When the batch resolves
// the last pending answer of the owning result, the result is finalized in the
// same transaction: score is recomputed across all answers (auto and manual),
// the provisional submission-time score is discarded, and status flips to
// completed. All verdicts in a batch are assumed to belong to one result; the
// owning result is resolved from the first verdict.
func (s *Store) ApplyVerdicts(verdicts []model.Verdict) (ReviewOutcome, error) {
	if len(verdicts) == 0 {
		return ReviewOutcome{}, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return ReviewOutcome{}, err
	}
	defer tx.Rollback()

	var resultID int64
	err = tx.QueryRow(`SELECT result_id FROM test_answers WHERE id = ?`, verdicts[0].AnswerID).Scan(&resultID)
	if err == sql.ErrNoRows {
		return ReviewOutcome{}, ErrNotFound
	}
	if err != nil {
		return ReviewOutcome{}, err
	}

	for _, v := range verdicts {
		status := model.ReviewManualIncorrect
		if v.IsCorrect {
			status = model.ReviewManualCorrect
		}
		if _, err := tx.Exec(
			`UPDATE test_answers SET review_status = ?, is_correct = ?
			 WHERE id = ? AND review_status = 'pending'`,
			status, v.IsCorrect, v.AnswerID,
		); err != nil {
			return ReviewOutcome{}, err
		}
	}

	var pendingLeft int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM test_answers WHERE result_id = ? AND review_status = 'pending'`,
		resultID,
	).Scan(&pendingLeft); err != nil {
		return ReviewOutcome{}, err
	}

	outcome := ReviewOutcome{ResultID: resultID}
	if pendingLeft == 0 {
		if err := finalizeResult(tx, resultID); err != nil {
			return ReviewOutcome{}, err
		}
		outcome.Finalized = true
	}

	return outcome, tx.Commit()
}

// finalizeResult recomputes the final score of a result whose last pending
// answer was just resolved, and marks it completed. Runs inside the verdict
// transaction.
func finalizeResult(tx *sql.Tx, resultID int64) error {
	var total int
	var testID string
	err := tx.QueryRow(`SELECT total, test_id FROM test_results WHERE id = ?`, resultID).Scan(&total, &testID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var score int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM test_answers WHERE result_id = ? AND is_correct = 1`, resultID,
	).Scan(&score); err != nil {
		return err
	}

	passingScore := 1
	err = tx.QueryRow(`SELECT passing_score FROM test_settings WHERE test_id = ?`, testID).Scan(&passingScore)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(score) / float64(total) * 100))
	}

	_, err = tx.Exec(
		`UPDATE test_results SET score = ?, percentage = ?, status = 'completed', passed = ? WHERE id = ?`,
		score, percentage, score >= passingScore, resultID,
	)
	return err
}

// GetResultSummary returns the protocol header for a result. The test name
// and passing score come from left joins and survive a deleted test row.
func (s *Store) GetResultSummary(resultID int64) (model.ResultSummary, error) {
	var sum model.ResultSummary
	err := s.db.QueryRow(
		`SELECT COALESCE(t.name, ''), r.fio, r.score, r.total, r.percentage, r.date, r.status, r.passed,
		        COALESCE(s.passing_score, 0)
		 FROM test_results r
		 LEFT JOIN tests t ON r.test_id = t.id
		 LEFT JOIN test_settings s ON r.test_id = s.test_id
		 WHERE r.id = ?`, resultID,
	).Scan(&sum.TestName, &sum.FIO, &sum.Score, &sum.Total, &sum.Percentage, &sum.Date, &sum.Status, &sum.Passed, &sum.PassingScore)
	if err == sql.ErrNoRows {
		return model.ResultSummary{}, ErrNotFound
	}
	return sum, err
}

// AnswersForResult returns the joined answer/question rows a protocol is
// built from. Deleted questions come back with empty question fields; the
// answer row itself always survives.
func (s *Store) AnswersForResult(resultID int64) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT COALESCE(q.id, ''), COALESCE(q.text, ''), COALESCE(q.explain, ''),
		        COALESCE(q.type, ''), COALESCE(q.correct_option_key, '[]'),
		        COALESCE(q.match_prompts, '[]'), COALESCE(q.match_answers, '[]'),
		        COALESCE(ta.user_answer, '[]'), ta.is_correct, ta.review_status
		 FROM test_answers ta
		 LEFT JOIN questions q ON q.id = ta.question_id
		 WHERE ta.result_id = ?
		 ORDER BY ta.id`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		var kind, correct, prompts, answers, raw string
		if err := rows.Scan(&rec.QuestionID, &rec.QuestionText, &rec.Explanation,
			&kind, &correct, &prompts, &answers, &raw, &rec.IsCorrect, &rec.ReviewStatus); err != nil {
			return nil, err
		}
		rec.Kind = model.QuestionKind(kind)
		rec.CorrectKeys = model.DecodeStringList(correct)
		rec.MatchPrompts = model.DecodeStringList(prompts)
		rec.MatchAnswers = model.DecodeStringList(answers)
		rec.UserAnswer = model.DecodeAnswerValue(raw)
		records = append(records, rec)
	}
	return records, rows.Err()
}
