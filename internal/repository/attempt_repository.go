package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examforge/exam-engine/internal/model"
)

// AttemptRepository handles attempt aggregate persistence. The one active
// attempt per student rule is enforced here, at the storage boundary, by the
// partial unique index on (student_id) WHERE status = 'ACTIVE'.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `
	id, student_id, status, started_at, ends_at, duration_seconds,
	total_questions, score, percentage, ip_address, user_agent,
	tab_switches, focus_losses, fullscreen_exits,
	category_id, level_id, finalized_at, version`

// CreateIfNoneActive inserts the attempt and its question rows in one
// transaction. Concurrent starts for the same student race on the partial
// unique index: exactly one insert wins, the other observes
// model.ErrAttemptAlreadyActive.
func (r *AttemptRepository) CreateIfNoneActive(ctx context.Context, a *model.Attempt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO attempts (
			id, student_id, status, started_at, ends_at, duration_seconds,
			total_questions, ip_address, user_agent, category_id, level_id
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (student_id) WHERE status = 'ACTIVE' DO NOTHING
		 RETURNING id`,
		a.ID, a.StudentID, model.AttemptStatusActive, a.StartedAt, a.EndsAt,
		a.DurationSeconds, a.TotalQuestions, a.IPAddress, a.UserAgent,
		a.CategoryID, a.LevelID,
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrAttemptAlreadyActive
		}
		return fmt.Errorf("insert attempt: %w", err)
	}

	rows := make([][]interface{}, 0, len(a.Questions))
	for _, q := range a.Questions {
		rows = append(rows, []interface{}{
			a.ID, q.IndexInExam, q.QuestionID, q.QuestionText, q.ImageURL,
			q.Options, q.CorrectAnswer, q.SelectedOption, q.Flagged,
		})
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_questions"},
		[]string{
			"attempt_id", "index_in_exam", "question_id", "question_text",
			"image_url", "options", "correct_answer", "selected_option", "flagged",
		},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	a.Status = model.AttemptStatusActive
	a.Version = 1
	return nil
}

// GetByID retrieves an attempt aggregate with its ordered question sequence.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := r.scanAttempt(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadQuestions(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetActiveByStudent retrieves a student's ACTIVE attempt, if any.
func (r *AttemptRepository) GetActiveByStudent(ctx context.Context, studentID int64) (*model.Attempt, error) {
	a, err := r.scanAttempt(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE student_id = $1 AND status = 'ACTIVE'`,
		studentID)
	if err != nil {
		return nil, err
	}
	if err := r.loadQuestions(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Finalize commits the terminal status, score, and final selections in one
// transaction. The attempts update is guarded by the optimistic version
// check: if another writer finalized first, zero rows match and the caller
// observes model.ErrAttemptAlreadyFinalized.
func (r *AttemptRepository) Finalize(ctx context.Context, a *model.Attempt) error {
	if !a.Status.Terminal() {
		return fmt.Errorf("finalize called with non-terminal status %s", a.Status)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	n := len(a.Questions)
	indexes := make([]int, 0, n)
	selections := make([]*string, 0, n)
	flags := make([]bool, 0, n)
	for _, q := range a.Questions {
		indexes = append(indexes, q.IndexInExam)
		selections = append(selections, q.SelectedOption)
		flags = append(flags, q.Flagged)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE attempt_questions AS q
		 SET selected_option = t.selected_option,
		     flagged = t.flagged
		 FROM (
			SELECT u.index_in_exam, u.selected_option, u.flagged
			FROM UNNEST($2::int[], $3::text[], $4::bool[])
				AS u (index_in_exam, selected_option, flagged)
		 ) AS t
		 WHERE q.attempt_id = $1 AND q.index_in_exam = t.index_in_exam`,
		a.ID, indexes, selections, flags,
	); err != nil {
		return fmt.Errorf("persist selections: %w", err)
	}

	now := time.Now()
	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, score = $3, percentage = $4,
		     finalized_at = $5, version = version + 1
		 WHERE id = $1 AND status = 'ACTIVE' AND version = $6`,
		a.ID, a.Status, a.Score, a.Percentage, now, a.Version,
	)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAttemptAlreadyFinalized
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	a.FinalizedAt = &now
	a.Version++
	return nil
}

// ListFinalizedByStudent retrieves a student's finalized attempts, newest
// first. Question rows are not loaded — result projections never expose
// per-question detail.
func (r *AttemptRepository) ListFinalizedByStudent(ctx context.Context, studentID int64) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1 AND status IN ('SUBMITTED', 'EXPIRED')
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttemptRow(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func (r *AttemptRepository) scanAttempt(ctx context.Context, query string, arg interface{}) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx, query, arg)
	if err := scanAttemptRow(row, a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAttemptNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAttemptRow(row pgx.Row, a *model.Attempt) error {
	return row.Scan(
		&a.ID, &a.StudentID, &a.Status, &a.StartedAt, &a.EndsAt,
		&a.DurationSeconds, &a.TotalQuestions, &a.Score, &a.Percentage,
		&a.IPAddress, &a.UserAgent,
		&a.TabSwitches, &a.FocusLosses, &a.FullscreenExits,
		&a.CategoryID, &a.LevelID, &a.FinalizedAt, &a.Version,
	)
}

func (r *AttemptRepository) loadQuestions(ctx context.Context, a *model.Attempt) error {
	rows, err := r.pool.Query(ctx,
		`SELECT index_in_exam, question_id, question_text, image_url,
		        options, correct_answer, selected_option, flagged
		 FROM attempt_questions
		 WHERE attempt_id = $1
		 ORDER BY index_in_exam ASC`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.AttemptQuestion
		if err := rows.Scan(
			&q.IndexInExam, &q.QuestionID, &q.QuestionText, &q.ImageURL,
			&q.Options, &q.CorrectAnswer, &q.SelectedOption, &q.Flagged,
		); err != nil {
			return err
		}
		a.Questions = append(a.Questions, q)
	}
	return rows.Err()
}
