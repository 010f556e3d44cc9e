package lessonplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

const dbTimeout = 5 * time.Second

const planColumns = `id::text, school_id, COALESCE(created_by, ''), title, subject, class, academic_year,
	to_char(date, 'YYYY-MM-DD'), chapter_id, chapter_name, duration, learning_outcome_ids,
	learning_objectives, teaching_methodology, required_materials, resource_files, resource_links,
	evaluation_criteria, evaluation_items, homework, differentiation_notes, status, created_at, updated_at`

// PostgresStore is a PostgreSQL-backed Store. List fields are kept in JSONB
// columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed lesson plan store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, r Record) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if r.SchoolID == "" {
		return Record{}, fmt.Errorf("school_id is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	lists, err := encodeLists(r)
	if err != nil {
		return Record{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO lesson_plans (
		   id, school_id, created_by, title, subject, class, academic_year, date,
		   chapter_id, chapter_name, duration, learning_outcome_ids,
		   learning_objectives, teaching_methodology, required_materials, resource_files, resource_links,
		   evaluation_criteria, evaluation_items, homework, differentiation_notes, status)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8::text::date,
		   $9, $10, $11, $12::jsonb,
		   $13, $14, $15, $16::jsonb, $17::jsonb,
		   $18, $19::jsonb, $20, $21, $22)
		 RETURNING `+planColumns,
		r.ID, r.SchoolID, nullIfEmpty(r.CreatedBy), r.Title, r.Subject, r.Class, r.AcademicYear, r.Date,
		r.ChapterID, r.ChapterName, r.Duration, lists.outcomes,
		r.LearningObjectives, r.TeachingMethodology, r.RequiredMaterials, lists.files, lists.links,
		r.EvaluationCriteria, lists.items, r.Homework, r.DifferentiationNotes, string(r.Status),
	)
	created, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("create lesson plan: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, r Record) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(r.ID); err != nil {
		return Record{}, fmt.Errorf("lesson plan %s: %w", r.ID, apperr.ErrNotFound)
	}
	lists, err := encodeLists(r)
	if err != nil {
		return Record{}, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE lesson_plans SET
		   title = $3, subject = $4, class = $5, academic_year = $6, date = $7::text::date,
		   chapter_id = $8, chapter_name = $9, duration = $10, learning_outcome_ids = $11::jsonb,
		   learning_objectives = $12, teaching_methodology = $13, required_materials = $14,
		   resource_files = $15::jsonb, resource_links = $16::jsonb,
		   evaluation_criteria = $17, evaluation_items = $18::jsonb,
		   homework = $19, differentiation_notes = $20, status = $21, updated_at = NOW()
		 WHERE id = $1::uuid AND school_id = $2
		 RETURNING `+planColumns,
		r.ID, r.SchoolID, r.Title, r.Subject, r.Class, r.AcademicYear, r.Date,
		r.ChapterID, r.ChapterName, r.Duration, lists.outcomes,
		r.LearningObjectives, r.TeachingMethodology, r.RequiredMaterials,
		lists.files, lists.links,
		r.EvaluationCriteria, lists.items,
		r.Homework, r.DifferentiationNotes, string(r.Status),
	)
	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("lesson plan %s: %w", r.ID, apperr.ErrNotFound)
		}
		return Record{}, fmt.Errorf("update lesson plan: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Get(ctx context.Context, schoolID, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM lesson_plans WHERE id = $1::uuid AND school_id = $2`,
		id, schoolID,
	)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
		}
		return Record{}, fmt.Errorf("get lesson plan: %w", err)
	}
	return r, nil
}

// List filters by school, status, year and author in SQL, then applies the
// case-folded criteria of f in Go so both stores match identically.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+`
		 FROM lesson_plans
		 WHERE school_id = $1
		   AND ($2 = '' OR status = $2)
		   AND ($3 = '' OR academic_year = $3)
		   AND ($4 = '' OR created_by = $4)
		 ORDER BY created_at DESC, id`,
		f.SchoolID, string(f.Status), f.AcademicYear, f.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("query lesson plans: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson plan: %w", err)
		}
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson plans: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, schoolID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
	}

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM lesson_plans WHERE id = $1::uuid AND school_id = $2`,
		id, schoolID,
	)
	if err != nil {
		return fmt.Errorf("delete lesson plan: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type encodedLists struct {
	outcomes, files, links, items string
}

func encodeLists(r Record) (encodedLists, error) {
	var out encodedLists
	var err error
	if out.outcomes, err = jsonList(r.LearningOutcomeIDs); err != nil {
		return out, err
	}
	if out.files, err = jsonList(r.ResourceFiles); err != nil {
		return out, err
	}
	if out.links, err = jsonList(r.ResourceLinks); err != nil {
		return out, err
	}
	if out.items, err = jsonList(r.EvaluationItems); err != nil {
		return out, err
	}
	return out, nil
}

func jsonList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(b), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var status string
	var outcomes, files, links, items []byte

	err := row.Scan(
		&r.ID, &r.SchoolID, &r.CreatedBy, &r.Title, &r.Subject, &r.Class, &r.AcademicYear,
		&r.Date, &r.ChapterID, &r.ChapterName, &r.Duration, &outcomes,
		&r.LearningObjectives, &r.TeachingMethodology, &r.RequiredMaterials, &files, &links,
		&r.EvaluationCriteria, &items, &r.Homework, &r.DifferentiationNotes, &status,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	r.Status = Status(status)

	if err := decodeList(outcomes, &r.LearningOutcomeIDs); err != nil {
		return Record{}, err
	}
	if err := decodeList(files, &r.ResourceFiles); err != nil {
		return Record{}, err
	}
	if err := decodeList(links, &r.ResourceLinks); err != nil {
		return Record{}, err
	}
	if err := decodeList(items, &r.EvaluationItems); err != nil {
		return Record{}, err
	}
	return r, nil
}

// decodeList leaves dst nil for an empty array, matching ToRecord.
func decodeList[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	var v []T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	if len(v) > 0 {
		*dst = v
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
