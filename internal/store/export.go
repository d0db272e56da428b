package store

// ListResultIDs returns all result IDs for a test, oldest first. Used by the
// export command to walk a test's history.
func (s *Store) ListResultIDs(testID string) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM test_results WHERE test_id = ? ORDER BY id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
