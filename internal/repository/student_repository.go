package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/acappella-workshop/internal/model"
)

// StudentRepo stores the children a parent registers.  Every read and
// write is scoped to the owning user so one parent can never see or
// modify another parent's students.
type StudentRepo struct {
	db *sql.DB
}

// NewStudentRepo returns a new StudentRepo bound to the given database.
func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{db: db} }

const studentCols = "id, user_id, first_name, last_name, notes, created_at, updated_at"

func scanStudent(sc interface{ Scan(...any) error }) (model.Student, error) {
	var s model.Student
	err := sc.Scan(&s.ID, &s.UserID, &s.FirstName, &s.LastName, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListByUser returns the user's students ordered by first name.
func (r *StudentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+studentCols+" FROM students WHERE user_id = ? ORDER BY first_name, last_name, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetForUser loads a student, returning ErrForbidden when it belongs to
// someone else and sql.ErrNoRows when it does not exist.
func (r *StudentRepo) GetForUser(ctx context.Context, id, userID uint64) (model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, "SELECT "+studentCols+" FROM students WHERE id = ?", id))
	if err != nil {
		return s, err
	}
	if s.UserID != userID {
		return model.Student{}, ErrForbidden
	}
	return s, nil
}

// GetByID loads a student without an ownership check (admin views).
func (r *StudentRepo) GetByID(ctx context.Context, id uint64) (model.Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, "SELECT "+studentCols+" FROM students WHERE id = ?", id))
}

// Create inserts s and fills its ID.
func (r *StudentRepo) Create(ctx context.Context, s *model.Student) error {
	return insertStudent(ctx, r.db, s)
}

// CreateTx is Create inside tx.
func (r *StudentRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Student) error {
	return insertStudent(ctx, tx, s)
}

func insertStudent(ctx context.Context, q querier, s *model.Student) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO students (user_id, first_name, last_name, notes) VALUES (?, ?, ?, ?)",
		s.UserID, strings.TrimSpace(s.FirstName), strings.TrimSpace(s.LastName), s.Notes)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// FindByNameTx looks a student up by case-insensitive first and last
// name under one parent.  The oldest match wins.
func (r *StudentRepo) FindByNameTx(ctx context.Context, tx *sql.Tx, userID uint64, first, last string) (model.Student, error) {
	return scanStudent(tx.QueryRowContext(ctx,
		"SELECT "+studentCols+" FROM students WHERE user_id = ? AND LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?) ORDER BY id LIMIT 1",
		userID, strings.TrimSpace(first), strings.TrimSpace(last)))
}

// Update changes the editable fields of a student owned by userID.
func (r *StudentRepo) Update(ctx context.Context, s *model.Student, userID uint64) error {
	if _, err := r.GetForUser(ctx, s.ID, userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE students SET first_name = ?, last_name = ?, notes = ? WHERE id = ? AND user_id = ?",
		strings.TrimSpace(s.FirstName), strings.TrimSpace(s.LastName), s.Notes, s.ID, userID)
	return err
}

// Delete removes a student owned by userID.  A student with any
// registration cannot be deleted; ErrConflict is returned instead.
func (r *StudentRepo) Delete(ctx context.Context, id, userID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var owner uint64
	if err := tx.QueryRowContext(ctx, "SELECT user_id FROM students WHERE id = ? FOR UPDATE", id).Scan(&owner); err != nil {
		return err
	}
	if owner != userID {
		return ErrForbidden
	}
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM registrations WHERE student_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
