// Package postgres persists the roster, attendance and users in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"schoolattend/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository implements domain.Store on top of database/sql.
type Repository struct {
	root *sql.DB
	db   DBTX
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{root: db, db: db}
}

// WithTx runs fn inside one transaction. Nested calls reuse the open transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if _, inTx := r.db.(*sql.Tx); inTx {
		return fn(r)
	}
	return RunInTx(ctx, r.root, nil, func(ctx context.Context, tx DBTX) error {
		return fn(&Repository{root: r.root, db: tx})
	})
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.root.PingContext(ctx)
}

// Close closes the underlying pool.
func (r *Repository) Close() error {
	if r == nil || r.root == nil {
		return nil
	}
	return r.root.Close()
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---------- classes ----------

const classColumns = `id, name, created_by, assigned_teacher, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClass(row scanner) (domain.Class, error) {
	var c domain.Class
	var teacher sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedBy, &teacher, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Class{}, err
	}
	if teacher.Valid {
		c.AssignedTeacher = &teacher.String
	}
	return c, nil
}

func (r *Repository) CreateClass(ctx context.Context, c domain.Class) (domain.Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, name, created_by, assigned_teacher)
		VALUES ($1, $2, $3, $4)
		RETURNING `+classColumns, c.ID, c.Name, c.CreatedBy, c.AssignedTeacher)
	out, err := scanClass(row)
	return out, mapErr(err)
}

func (r *Repository) GetClass(ctx context.Context, id string) (domain.Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	c, err := scanClass(row)
	return c, mapErr(err)
}

func (r *Repository) ListClasses(ctx context.Context) ([]domain.Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+classColumns+` FROM classes ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) UpdateClass(ctx context.Context, c domain.Class) (domain.Class, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE classes
		SET name = $2, assigned_teacher = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+classColumns, c.ID, c.Name, c.AssignedTeacher)
	out, err := scanClass(row)
	return out, mapErr(err)
}

// DeleteClass relies on ON DELETE CASCADE for enrollments and attendance.
func (r *Repository) DeleteClass(ctx context.Context, id string) error {
	return affectedOrNotFound(r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id))
}

// ---------- students ----------

const studentColumns = `id, name, roll_number, email, created_at, updated_at`

func scanStudent(row scanner) (domain.Student, error) {
	var s domain.Student
	err := row.Scan(&s.ID, &s.Name, &s.RollNumber, &s.Email, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) CreateStudent(ctx context.Context, s domain.Student) (domain.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, roll_number, email)
		VALUES ($1, $2, $3, $4)
		RETURNING `+studentColumns, s.ID, s.Name, s.RollNumber, s.Email)
	out, err := scanStudent(row)
	return out, mapErr(err)
}

func (r *Repository) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	s, err := scanStudent(row)
	return s, mapErr(err)
}

func (r *Repository) ListStudents(ctx context.Context) ([]domain.Student, error) {
	return r.queryStudents(ctx, `SELECT `+studentColumns+` FROM students ORDER BY created_at, id`)
}

func (r *Repository) UpdateStudent(ctx context.Context, s domain.Student) (domain.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET name = $2, roll_number = $3, email = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+studentColumns, s.ID, s.Name, s.RollNumber, s.Email)
	out, err := scanStudent(row)
	return out, mapErr(err)
}

func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	return affectedOrNotFound(r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id))
}

func (r *Repository) queryStudents(ctx context.Context, query string, args ...any) ([]domain.Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ---------- enrollments ----------

func (r *Repository) StudentsInClass(ctx context.Context, classID string) ([]domain.Student, error) {
	return r.queryStudents(ctx, `
		SELECT s.id, s.name, s.roll_number, s.email, s.created_at, s.updated_at
		FROM student_classes sc
		JOIN students s ON s.id = sc.student_id
		WHERE sc.class_id = $1
		ORDER BY sc.seq
	`, classID)
}

func (r *Repository) ClassesForStudent(ctx context.Context, studentID string) ([]domain.Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.created_by, c.assigned_teacher, c.created_at, c.updated_at
		FROM student_classes sc
		JOIN classes c ON c.id = sc.class_id
		WHERE sc.student_id = $1
		ORDER BY sc.seq
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM student_classes WHERE student_id = $1 AND class_id = $2)
	`, studentID, classID).Scan(&ok)
	return ok, err
}

func (r *Repository) DeleteEnrollmentsForStudent(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM student_classes WHERE student_id = $1`, studentID)
	return err
}

func (r *Repository) InsertEnrollment(ctx context.Context, e domain.Enrollment) (domain.Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO student_classes (id, student_id, class_id)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, e.ID, e.StudentID, e.ClassID).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Enrollment{}, mapErr(err)
	}
	return e, nil
}

// ---------- attendance ----------

const attendanceColumns = `id, class_id, student_id, date, status, created_at, updated_at`

func scanAttendance(row scanner) (domain.AttendanceRecord, error) {
	var a domain.AttendanceRecord
	var status string
	if err := row.Scan(&a.ID, &a.ClassID, &a.StudentID, &a.Date, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.AttendanceRecord{}, err
	}
	a.Date = domain.StartOfDay(a.Date)
	a.Status = domain.Status(status)
	return a, nil
}

// UpsertAttendance is a single INSERT .. ON CONFLICT, so racing writers of the
// same triple never produce a duplicate row; the last writer wins.
func (r *Repository) UpsertAttendance(ctx context.Context, rec domain.AttendanceRecord) (domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendances (id, class_id, student_id, date, status)
		VALUES ($1, $2, $3, $4::date, $5)
		ON CONFLICT (class_id, student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING `+attendanceColumns,
		uuid.NewString(), rec.ClassID, rec.StudentID, domain.FormatDay(rec.Date), string(rec.Status))
	out, err := scanAttendance(row)
	return out, mapErr(err)
}

func (r *Repository) ListAttendance(ctx context.Context, f domain.AttendanceFilter) ([]domain.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendances`
	args := []any{}
	clauses := []string{}
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, "class_id = $"+strconv.Itoa(len(args)))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, domain.FormatDay(f.From))
		clauses = append(clauses, "date >= $"+strconv.Itoa(len(args))+"::date")
	}
	if !f.To.IsZero() {
		args = append(args, domain.FormatDay(f.To))
		clauses = append(clauses, "date < $"+strconv.Itoa(len(args))+"::date")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, created_at, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.AttendanceRecord{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r *Repository) GetAttendance(ctx context.Context, id string) (domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE id = $1`, id)
	a, err := scanAttendance(row)
	return a, mapErr(err)
}

func (r *Repository) DeleteAttendance(ctx context.Context, id string) error {
	return affectedOrNotFound(r.db.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id))
}

// ---------- users ----------

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role))
	out, err := scanUser(row)
	return out, mapErr(err)
}

func (r *Repository) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	return u, mapErr(err)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	return u, mapErr(err)
}
