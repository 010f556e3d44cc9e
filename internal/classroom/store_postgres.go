package classroom

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

const classColumns = `id::text, school_id, name, COALESCE(grade, ''), COALESCE(section, ''),
	COALESCE(academic_year, ''), max_students, current_students, status, metadata, created_at, updated_at`

const studentColumns = `id::text, name, COALESCE(email, ''), COALESCE(class_id::text, ''), updated_at`

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed class store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ListClasses(ctx context.Context, schoolID string) ([]Class, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+classColumns+` FROM school_classes WHERE school_id = $1 ORDER BY created_at DESC, id`,
		schoolID,
	)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	out := []Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetClass(ctx context.Context, schoolID, id string) (Class, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return Class{}, classNotFound(id)
	}
	c, err := scanClass(s.pool.QueryRow(ctx,
		`SELECT `+classColumns+` FROM school_classes WHERE id = $1::uuid AND school_id = $2`,
		id, schoolID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Class{}, classNotFound(id)
		}
		return Class{}, fmt.Errorf("get class: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateClass(ctx context.Context, c Class) (Class, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if c.SchoolID == "" {
		return Class{}, fmt.Errorf("school_id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return Class{}, fmt.Errorf("marshal class metadata: %w", err)
	}

	created, err := scanClass(s.pool.QueryRow(ctx,
		`INSERT INTO school_classes (id, school_id, name, grade, section, academic_year,
		   max_students, current_students, status, metadata)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		 RETURNING `+classColumns,
		c.ID, c.SchoolID, c.Name, c.Grade, c.Section, c.AcademicYear,
		c.MaxStudents, c.CurrentStudents, c.Status, string(meta),
	))
	if err != nil {
		return Class{}, fmt.Errorf("create class: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateClass(ctx context.Context, c Class) (Class, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(c.ID); err != nil {
		return Class{}, classNotFound(c.ID)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return Class{}, fmt.Errorf("marshal class metadata: %w", err)
	}

	updated, err := scanClass(s.pool.QueryRow(ctx,
		`UPDATE school_classes SET
		   name = $3, grade = $4, section = $5, academic_year = $6, max_students = $7,
		   status = $8, metadata = $9::jsonb, updated_at = NOW()
		 WHERE id = $1::uuid AND school_id = $2
		 RETURNING `+classColumns,
		c.ID, c.SchoolID, c.Name, c.Grade, c.Section, c.AcademicYear, c.MaxStudents,
		c.Status, string(meta),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Class{}, classNotFound(c.ID)
		}
		return Class{}, fmt.Errorf("update class: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteClass(ctx context.Context, schoolID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return classNotFound(id)
	}
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM school_classes WHERE id = $1::uuid AND school_id = $2`, id, schoolID)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return classNotFound(id)
	}
	return nil
}

func (s *PostgresStore) ActiveStudents(ctx context.Context, classID string) ([]Student, error) {
	if _, err := uuid.Parse(classID); err != nil {
		return []Student{}, nil
	}
	return s.queryStudents(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE class_id = $1::uuid AND NOT is_deleted
		 ORDER BY lower(name), id`,
		classID,
	)
}

func (s *PostgresStore) UnassignedStudents(ctx context.Context, schoolID string) ([]Student, error) {
	return s.queryStudents(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE school_id = $1 AND class_id IS NULL AND NOT is_deleted
		 ORDER BY lower(name), id`,
		schoolID,
	)
}

func (s *PostgresStore) queryStudents(ctx context.Context, query string, args ...any) ([]Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := []Student{}
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.ClassID, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AssignStudents(ctx context.Context, schoolID, classID string, studentIDs []string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(classID); err != nil {
		return 0, classNotFound(classID)
	}
	ids := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM school_classes WHERE id = $1::uuid AND school_id = $2)`,
		classID, schoolID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check class: %w", err)
	}
	if !exists {
		return 0, classNotFound(classID)
	}

	cmd, err := tx.Exec(ctx,
		`UPDATE students SET class_id = $1::uuid, updated_at = NOW()
		 WHERE school_id = $2 AND id::text = ANY($3) AND class_id IS NULL AND NOT is_deleted`,
		classID, schoolID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("assign students: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit assign: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresStore) UnassignStudent(ctx context.Context, schoolID, classID, studentID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	notFound := fmt.Errorf("student %s in class %s: %w", studentID, classID, apperr.ErrNotFound)
	if _, err := uuid.Parse(classID); err != nil {
		return notFound
	}
	if _, err := uuid.Parse(studentID); err != nil {
		return notFound
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE students SET class_id = NULL, updated_at = NOW()
		 WHERE id = $1::uuid AND class_id = $2::uuid AND school_id = $3`,
		studentID, classID, schoolID,
	)
	if err != nil {
		return fmt.Errorf("unassign student: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func (s *PostgresStore) SetStudentCount(ctx context.Context, classID string, n int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE school_classes SET current_students = $2, updated_at = NOW() WHERE id = $1::uuid`,
		classID, n,
	)
	if err != nil {
		return fmt.Errorf("set student count: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return classNotFound(classID)
	}
	return nil
}

func scanClass(row pgx.Row) (Class, error) {
	var c Class
	var meta []byte
	err := row.Scan(
		&c.ID, &c.SchoolID, &c.Name, &c.Grade, &c.Section, &c.AcademicYear,
		&c.MaxStudents, &c.CurrentStudents, &c.Status, &meta, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Class{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return Class{}, fmt.Errorf("decode class metadata: %w", err)
		}
	}
	return c, nil
}
