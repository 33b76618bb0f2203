package iocache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// RunStoreImpl tracks analysis runs in a SQL backend.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore initializes the run tracking store for the backend. The
// NoneBackend yields a no-op store.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	if backend == schema.NoneBackend {
		return &RunStoreImpl{backend: backend}, nil
	}
	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createRunsTableQuery(backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", analysisRunsTable, err)
	}
	return &RunStoreImpl{db: db, backend: backend}, nil
}

func createRunsTableQuery(backend schema.DatabaseBackend) string {
	quoted := quoteTableName(analysisRunsTable, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				device_id VARCHAR(255) NOT NULL,
				time_from BIGINT NOT NULL,
				time_to BIGINT NOT NULL,
				started_at BIGINT NOT NULL,
				ended_at BIGINT,
				peer_count INT,
				contact_count INT,
				failure_count INT
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				device_id TEXT NOT NULL,
				time_from BIGINT NOT NULL,
				time_to BIGINT NOT NULL,
				started_at BIGINT NOT NULL,
				ended_at BIGINT,
				peer_count INTEGER,
				contact_count INTEGER,
				failure_count INTEGER
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				device_id TEXT NOT NULL,
				time_from INTEGER NOT NULL,
				time_to INTEGER NOT NULL,
				started_at INTEGER NOT NULL,
				ended_at INTEGER,
				peer_count INTEGER,
				contact_count INTEGER,
				failure_count INTEGER
			);
		`, quoted)
	}
}

// BeginRun inserts a run record and returns its ID.
func (s *RunStoreImpl) BeginRun(req schema.AnalysisRequest, startTime time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	quoted := quoteTableName(analysisRunsTable, s.backend)

	if s.backend == schema.PostgreSQLBackend {
		query := fmt.Sprintf(`INSERT INTO %s (device_id, time_from, time_to, started_at)
			VALUES ($1, $2, $3, $4) RETURNING run_id`, quoted)
		var id int64
		err := s.db.QueryRow(query, string(req.DeviceID), req.TimeFrom.Unix(), req.TimeTo.Unix(), startTime.Unix()).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to record run start: %w", err)
		}
		return id, nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (device_id, time_from, time_to, started_at) VALUES (?, ?, ?, ?)`, quoted)
	result, err := s.db.Exec(query, string(req.DeviceID), req.TimeFrom.Unix(), req.TimeTo.Unix(), startTime.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return result.LastInsertId()
}

// EndRun completes a run record with its counters.
func (s *RunStoreImpl) EndRun(runID int64, endTime time.Time, peers, contacts, failures int) error {
	if s.db == nil {
		return nil
	}
	quoted := quoteTableName(analysisRunsTable, s.backend)

	var query string
	if s.backend == schema.PostgreSQLBackend {
		query = fmt.Sprintf(`UPDATE %s SET ended_at = $1, peer_count = $2, contact_count = $3, failure_count = $4
			WHERE run_id = $5`, quoted)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET ended_at = ?, peer_count = ?, contact_count = ?, failure_count = ?
			WHERE run_id = ?`, quoted)
	}
	if _, err := s.db.Exec(query, endTime.Unix(), peers, contacts, failures, runID); err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

// GetStatus returns the run count and most recent run time.
func (s *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{Backend: s.backend}
	if s.db == nil {
		return status, nil
	}
	quoted := quoteTableName(analysisRunsTable, s.backend)

	if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&status.Runs); err != nil {
		return status, fmt.Errorf("failed to count runs: %w", err)
	}
	if status.Runs == 0 {
		return status, nil
	}
	if err := s.db.QueryRow(fmt.Sprintf("SELECT MAX(started_at) FROM %s", quoted)).Scan(&status.LastRunAt); err != nil {
		return status, fmt.Errorf("failed to read last run time: %w", err)
	}
	return status, nil
}

// Close closes the underlying DB connection.
func (s *RunStoreImpl) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
