package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"training-orchestrator/core/models"

	"github.com/google/uuid"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// StatusFields carries the columns a status transition implies. Nil
// fields are left untouched.
type StatusFields struct {
	StartedAt    *time.Time
	CompletedAt  *time.Time
	OutputDir    *string
	ResultRef    *string
	ErrorKind    *models.ErrorKind
	ErrorMessage *string
}

// CreateJob creates a new job in the database
func (r *JobRepository) CreateJob(job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	} else if _, err := uuid.Parse(job.ID); err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to serialize job config: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO jobs (id, name, kind, status, config_json, output_dir, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.Exec(query,
		job.ID, job.Name, job.Kind, job.Status, configJSON, job.OutputDir, now, now,
	); err != nil {
		return err
	}

	job.CreatedAt = now
	job.UpdatedAt = now

	// Initial event with no source status
	return r.insertEvent(r.db.DB, job.ID, nil, job.Status, "job_created")
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(id string) (*models.Job, error) {
	query := `
		SELECT id, name, kind, status, config_json, output_dir, result_ref,
			error_kind, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var job models.Job
	var configJSON []byte
	var startedAt, completedAt sql.NullTime

	err := r.db.QueryRow(query, id).Scan(
		&job.ID,
		&job.Name,
		&job.Kind,
		&job.Status,
		&configJSON,
		&job.OutputDir,
		&job.ResultRef,
		&job.ErrorKind,
		&job.ErrorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &job.Config); err != nil {
		return nil, fmt.Errorf("failed to decode job config: %w", err)
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

// ListJobs lists jobs, newest first, with an optional status filter
func (r *JobRepository) ListJobs(status *models.JobStatus, limit int) ([]*models.Job, error) {
	query := `
		SELECT id, name, kind, status, config_json, output_dir, result_ref,
			error_kind, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs
	`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var job models.Job
		var configJSON []byte
		var startedAt, completedAt sql.NullTime

		if err := rows.Scan(
			&job.ID, &job.Name, &job.Kind, &job.Status, &configJSON, &job.OutputDir,
			&job.ResultRef, &job.ErrorKind, &job.ErrorMessage,
			&job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(configJSON, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to decode job config: %w", err)
		}
		if startedAt.Valid {
			job.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job from one status to another,
// persisting the implied fields and an event row in one transaction.
// Returns models.ErrStatusConflict if the job is not in fromStatus,
// which is how duplicate starts and transitions out of terminal states
// are refused.
func (r *JobRepository) UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, fields StatusFields) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE jobs SET status = $1, updated_at = NOW()`
	args := []interface{}{toStatus}
	idx := 2

	if fields.StartedAt != nil {
		query += fmt.Sprintf(", started_at = $%d", idx)
		args = append(args, *fields.StartedAt)
		idx++
	}
	if fields.CompletedAt != nil {
		query += fmt.Sprintf(", completed_at = $%d", idx)
		args = append(args, *fields.CompletedAt)
		idx++
	}
	if fields.OutputDir != nil {
		query += fmt.Sprintf(", output_dir = $%d", idx)
		args = append(args, *fields.OutputDir)
		idx++
	}
	if fields.ResultRef != nil {
		query += fmt.Sprintf(", result_ref = $%d", idx)
		args = append(args, *fields.ResultRef)
		idx++
	}
	if fields.ErrorKind != nil {
		query += fmt.Sprintf(", error_kind = $%d", idx)
		args = append(args, *fields.ErrorKind)
		idx++
	}
	if fields.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", idx)
		args = append(args, *fields.ErrorMessage)
		idx++
	}

	query += fmt.Sprintf(" WHERE id = $%d AND status = $%d", idx, idx+1)
	args = append(args, jobID, fromStatus)

	result, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrStatusConflict
	}

	from := string(fromStatus)
	if err := r.insertEventTx(tx, jobID, &from, toStatus, reason); err != nil {
		return err
	}

	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *JobRepository) insertEvent(e execer, jobID string, fromStatus *string, toStatus models.JobStatus, reason string) error {
	query := `
		INSERT INTO job_events (job_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4)
	`
	_, err := e.Exec(query, jobID, fromStatus, toStatus, reason)
	return err
}

func (r *JobRepository) insertEventTx(tx *sql.Tx, jobID string, fromStatus *string, toStatus models.JobStatus, reason string) error {
	return r.insertEvent(tx, jobID, fromStatus, toStatus, reason)
}
