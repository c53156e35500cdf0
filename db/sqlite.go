package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bodytype/ml"
)

// RunStore records every training run in SQLite.
type RunStore struct {
	database *sql.DB
}

// TrainingLog is one row of training_log.
type TrainingLog struct {
	RunID          string         `json:"run_id"`
	ModelName      string         `json:"model_name"`
	Params         ml.Params      `json:"params"`
	CVAccuracy     float64        `json:"cv_accuracy"`
	Accuracy       float64        `json:"accuracy"`
	Precision      float64        `json:"precision"`
	Recall         float64        `json:"recall"`
	DataPoints     int            `json:"data_points"`
	LabelSource    ml.LabelSource `json:"label_source"`
	FeatureVersion string         `json:"feature_version"`
	TrainedAt      time.Time      `json:"trained_at"`
}

// Open initializes the SQLite database at path, creating its directory.
func Open(path string) (*RunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        model_name VARCHAR(50) NOT NULL,
        params TEXT NOT NULL,
        cv_accuracy REAL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        data_points INTEGER,
        label_source VARCHAR(20) NOT NULL,
        feature_version TEXT NOT NULL,
        trained_at DATETIME NOT NULL,
        UNIQUE(run_id)
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
    CREATE TABLE IF NOT EXISTS data_quality (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        row_number INTEGER NOT NULL,
        rule TEXT NOT NULL,
        severity TEXT NOT NULL,
        message TEXT,
        created_at INTEGER DEFAULT (strftime('%s', 'now'))
    );
    CREATE INDEX IF NOT EXISTS idx_quality_run ON data_quality(run_id, row_number);
    `

	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &RunStore{database: database}, nil
}

// SaveRun stores a finished run.
func (s *RunStore) SaveRun(ctx context.Context, log TrainingLog) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	if log.RunID == "" {
		return errors.New("run id required")
	}
	params, err := json.Marshal(log.Params)
	if err != nil {
		return err
	}
	_, err = s.database.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_name, params, cv_accuracy, accuracy, precision, recall,
            data_points, label_source, feature_version, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		log.RunID,
		log.ModelName,
		string(params),
		log.CVAccuracy,
		log.Accuracy,
		log.Precision,
		log.Recall,
		log.DataPoints,
		string(log.LabelSource),
		log.FeatureVersion,
		log.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns the newest runs first. A limit of zero returns all.
func (s *RunStore) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT run_id, model_name, params, cv_accuracy, accuracy, precision, recall,
               data_points, label_source, feature_version, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var params, labelSource string
		if err := rows.Scan(&log.RunID, &log.ModelName, &params, &log.CVAccuracy, &log.Accuracy,
			&log.Precision, &log.Recall, &log.DataPoints, &labelSource, &log.FeatureVersion, &log.TrainedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &log.Params); err != nil {
			return nil, fmt.Errorf("run %s params: %w", log.RunID, err)
		}
		log.LabelSource = ml.LabelSource(labelSource)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *RunStore) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}
