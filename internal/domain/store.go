package domain

import (
	"context"
	"time"
)

// AttendanceFilter narrows ListAttendance. Zero values mean "any".
// From is inclusive and To exclusive; both are canonical days.
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	From      time.Time
	To        time.Time
}

// RosterStore persists classes, students and the enrollments joining them.
type RosterStore interface {
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (Class, error)
	ListClasses(ctx context.Context) ([]Class, error)
	UpdateClass(ctx context.Context, c Class) (Class, error)
	DeleteClass(ctx context.Context, id string) error

	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	DeleteStudent(ctx context.Context, id string) error

	// StudentsInClass returns students in enrollment insertion order.
	StudentsInClass(ctx context.Context, classID string) ([]Student, error)
	ClassesForStudent(ctx context.Context, studentID string) ([]Class, error)
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	DeleteEnrollmentsForStudent(ctx context.Context, studentID string) error
	// InsertEnrollment returns ErrConflict when the pair already exists.
	InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
}

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	// UpsertAttendance inserts or overwrites the record for (ClassID, StudentID, Date).
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)
	ListAttendance(ctx context.Context, f AttendanceFilter) ([]AttendanceRecord, error)
	GetAttendance(ctx context.Context, id string) (AttendanceRecord, error)
	DeleteAttendance(ctx context.Context, id string) error
}

// UserStore persists API accounts.
type UserStore interface {
	// CreateUser returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// Store is a complete storage backend.
type Store interface {
	RosterStore
	AttendanceStore
	UserStore

	// WithTx runs fn against a store whose writes commit together or not at all.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
