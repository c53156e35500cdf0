package db

import (
	"context"
	"errors"
	"fmt"
)

// QualityIssue is a row the cleaner rejected during a run.
type QualityIssue struct {
	Row      int    `json:"row"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// SaveIssues stores the rejected rows of a run in one transaction.
func (s *RunStore) SaveIssues(ctx context.Context, runID string, issues []QualityIssue) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO data_quality (run_id, row_number, rule, severity, message)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx, runID, issue.Row, issue.Rule, issue.Severity, issue.Message); err != nil {
			return fmt.Errorf("row %d: %w", issue.Row, err)
		}
	}
	return tx.Commit()
}

// LoadIssues returns the issues recorded for runID in row order.
func (s *RunStore) LoadIssues(ctx context.Context, runID string) ([]QualityIssue, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT row_number, rule, severity, message
        FROM data_quality
        WHERE run_id = ?
        ORDER BY row_number, id
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := make([]QualityIssue, 0)
	for rows.Next() {
		var issue QualityIssue
		if err := rows.Scan(&issue.Row, &issue.Rule, &issue.Severity, &issue.Message); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
